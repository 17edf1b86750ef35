package watcher

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	runner "github.com/crynux-network/taskrunner"
)

func newTestWatcher(t *testing.T) *Eth {
	w, err := New(nil, common.HexToAddress("0xabc"))
	require.NoError(t, err)
	return w
}

func TestDecodeTaskResultCommitmentsReady(t *testing.T) {
	w := newTestWatcher(t)
	vLog := types.Log{Topics: []common.Hash{
		w.abi.Events["TaskResultCommitmentsReady"].ID,
		common.BigToHash(big.NewInt(7)),
	}}

	ev, err := w.decode("TaskResultCommitmentsReady", vLog)
	require.NoError(t, err)
	require.Equal(t, runner.NewTaskResultCommitmentsReady(7), ev)
}

func TestDecodeTaskAborted(t *testing.T) {
	w := newTestWatcher(t)
	vLog := types.Log{Topics: []common.Hash{
		w.abi.Events["TaskAborted"].ID,
		common.BigToHash(big.NewInt(11)),
	}}

	ev, err := w.decode("TaskAborted", vLog)
	require.NoError(t, err)
	require.Equal(t, runner.NewTaskAborted(11), ev)
}

func TestDecodeTaskSuccessUnpacksResultNode(t *testing.T) {
	w := newTestWatcher(t)
	resultNode := common.HexToAddress("0x1234567890123456789012345678901234567890")

	data, err := w.abi.Events["TaskSuccess"].Inputs.NonIndexed().Pack(resultNode)
	require.NoError(t, err)

	vLog := types.Log{
		Topics: []common.Hash{w.abi.Events["TaskSuccess"].ID, common.BigToHash(big.NewInt(3))},
		Data:   data,
	}

	ev, err := w.decode("TaskSuccess", vLog)
	require.NoError(t, err)
	require.Equal(t, runner.NewTaskSuccess(3, resultNode), ev)
}

func TestDecodeRejectsLogMissingTaskIDTopic(t *testing.T) {
	w := newTestWatcher(t)
	_, err := w.decode("TaskAborted", types.Log{Topics: []common.Hash{w.abi.Events["TaskAborted"].ID}})
	require.Error(t, err)
}
