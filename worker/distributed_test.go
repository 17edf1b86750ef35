package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	runner "github.com/crynux-network/taskrunner"
)

func TestDispatchRequestRoundTrip(t *testing.T) {
	want := dispatchRequest{TaskName: "demo", TaskID: 9, Args: json.RawMessage(`{"prompt":"hi"}`)}
	b, err := json.Marshal(want)
	require.NoError(t, err)

	var got dispatchRequest
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, want, got)
}

func TestDispatchReplyRoundTrip(t *testing.T) {
	want := dispatchReply{OK: false, Message: "queue full"}
	b, err := json.Marshal(want)
	require.NoError(t, err)

	var got dispatchReply
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, want, got)
}

func TestRunLocalUnsupportedOnDistributed(t *testing.T) {
	d := NewDistributed(nil, "taskrunner.dispatch")
	_, err := d.RunLocal(context.Background(), 1, runner.TaskArgs{}, t.TempDir())
	require.Error(t, err)
}

// RunDistributed itself requires a live NATS connection and is exercised
// only via integration testing against a running nats-server; no in-process
// fake broker is available in this module's dependency set.
