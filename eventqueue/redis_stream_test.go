package eventqueue

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	runner "github.com/crynux-network/taskrunner"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []runner.TaskEvent{
		runner.NewTaskCreated(1, 2),
		runner.NewTaskResultReady(1, [][]byte{{0xaa}, {0xbb}}, []string{"out/a.bin", "out/b.bin"}),
		runner.NewTaskResultCommitmentsReady(1),
		runner.NewTaskSuccess(1, common.HexToAddress("0x1234567890123456789012345678901234567890")),
		runner.NewTaskAborted(1),
	}

	for _, want := range cases {
		kind, payload, err := marshal(want)
		require.NoError(t, err)

		got, err := unmarshal(map[string]interface{}{"kind": kind, "payload": payload})
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestMarshalRejectsUnrecognizedEventType(t *testing.T) {
	_, _, err := marshal(nil)
	require.Error(t, err)
}

func TestUnmarshalRejectsUnrecognizedKind(t *testing.T) {
	_, err := unmarshal(map[string]interface{}{"kind": "NotAnEvent", "payload": "{}"})
	require.Error(t, err)
}
