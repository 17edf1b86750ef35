package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingChain wraps mockChainClient and counts how many times
// SubmitTaskResultCommitment actually submits a new transaction, so tests
// can assert the coordinator resumes instead of resubmitting.
type countingChain struct {
	*mockChainClient
	submits int
}

func (c *countingChain) SubmitTaskResultCommitment(ctx context.Context, taskID uint64, round uint32, commitment, nonce []byte) (TxWaiter, error) {
	c.submits++
	return c.mockChainClient.SubmitTaskResultCommitment(ctx, taskID, round, commitment, nonce)
}

func TestTxCoordinatorResumesRatherThanResubmits(t *testing.T) {
	cache := newMockStateCache()
	chain := &countingChain{mockChainClient: newMockChainClient()}

	sc := newStateContext(cache, time.Second, TaskState{TaskID: 1, Status: StatusExecuting})
	tx := newTxCoordinator(sc, chain)

	err := tx.call(context.Background(), "submitTaskResultCommitment", func(ctx context.Context) (TxWaiter, error) {
		return chain.SubmitTaskResultCommitment(ctx, 1, 0, []byte("commit"), []byte("nonce"))
	})
	require.NoError(t, err)
	require.Equal(t, 1, chain.submits)
	require.Empty(t, sc.get().WaitingTxMethod)

	// Simulate a crash right after submission, before the waiting-tx fields
	// were cleared: reload a fresh stateContext from the persisted snapshot
	// as it would have looked mid-flight.
	st := sc.get()
	st.WaitingTxMethod = "submitTaskResultCommitment"
	st.WaitingTxHash = []byte{1, 2, 3, 4}
	require.NoError(t, cache.Dump(context.Background(), st))

	resumedSC := newStateContext(cache, time.Second, st)
	resumedTx := newTxCoordinator(resumedSC, chain)

	err = resumedTx.call(context.Background(), "submitTaskResultCommitment", func(ctx context.Context) (TxWaiter, error) {
		return chain.SubmitTaskResultCommitment(ctx, 1, 0, []byte("commit"), []byte("nonce"))
	})
	require.NoError(t, err)
	require.Equal(t, 1, chain.submits, "resuming an in-flight tx must not resubmit")
	require.Empty(t, resumedSC.get().WaitingTxMethod)
}

func TestTxCoordinatorFailsLoudlyOnMismatchedWaitingMethod(t *testing.T) {
	cache := newMockStateCache()
	chain := newMockChainClient()

	// A waiting tx is persisted for a different method than the one being
	// called now: this is an inconsistent durable state, not a resumable one.
	sc := newStateContext(cache, time.Second, TaskState{
		TaskID:          1,
		Status:          StatusExecuting,
		WaitingTxMethod: "discloseTaskResult",
		WaitingTxHash:   []byte{1, 2, 3, 4},
	})
	tx := newTxCoordinator(sc, chain)

	submitted := false
	err := tx.call(context.Background(), "submitTaskResultCommitment", func(ctx context.Context) (TxWaiter, error) {
		submitted = true
		return chain.SubmitTaskResultCommitment(ctx, 1, 0, []byte("commit"), []byte("nonce"))
	})
	require.ErrorIs(t, err, ErrInvalidTxState)
	require.False(t, submitted, "a mismatched waiting tx must not be resubmitted under the new method")
}
