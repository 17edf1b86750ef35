package runner

import "context"

// txCoordinator submits a contract call and blocks for its receipt, while
// persisting the submitted (method, hash) pair before awaiting so a crash
// between submission and confirmation resumes against the same transaction
// instead of submitting twice. Adapted from task_runner.py's
// _call_task_contract_method / waiting_tx_method / waiting_tx_hash trio.
type txCoordinator struct {
	state *stateContext
	chain ChainClient
}

func newTxCoordinator(state *stateContext, chain ChainClient) *txCoordinator {
	return &txCoordinator{state: state, chain: chain}
}

// call resumes the transaction matching method/WaitingTxHash if one is
// already persisted, otherwise invokes submit to put a new one on-chain.
// Either way it blocks for the receipt and clears the waiting-tx fields
// before returning.
func (c *txCoordinator) call(ctx context.Context, method string, submit func(ctx context.Context) (TxWaiter, error)) error {
	st := c.state.get()

	var waiter TxWaiter
	switch {
	case st.WaitingTxMethod == method && st.WaitingTxHash != nil:
		waiter = c.chain.NewWaiter(method, st.WaitingTxHash)

	case st.WaitingTxMethod != "" && st.WaitingTxHash != nil:
		// A waiting transaction is persisted for a different method than
		// the one being called now: the durable state is inconsistent
		// with what the caller is asking to do, and resuming or
		// resubmitting would risk a double-submit under the wrong method.
		// Fail loudly rather than silently starting a new transaction.
		return ErrInvalidTxState

	default:
		if err := c.state.withState(func(s *TaskState) error {
			w, err := submit(ctx)
			if err != nil {
				return err
			}
			waiter = w
			s.WaitingTxMethod = method
			s.WaitingTxHash = w.Hash()
			return nil
		}); err != nil {
			return err
		}
	}

	waitErr := waiter.Wait(ctx)

	clearErr := c.state.withState(func(s *TaskState) error {
		s.WaitingTxMethod = ""
		s.WaitingTxHash = nil
		return nil
	})

	if waitErr != nil {
		return waitErr
	}
	return clearErr
}
