package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	runner "github.com/crynux-network/taskrunner"
)

// waiter polls for a transaction receipt by hash rather than by the
// *types.Transaction bind.WaitMined expects, so it can be rebuilt from
// nothing but a persisted hash after a crash (runner.ChainClient.NewWaiter).
type waiter struct {
	eth    *ethclient.Client
	method string
	hash   common.Hash
	poll   time.Duration
}

func newWaiter(eth *ethclient.Client, method string, hash common.Hash) *waiter {
	return &waiter{eth: eth, method: method, hash: hash, poll: 2 * time.Second}
}

func (w *waiter) Hash() []byte { return w.hash.Bytes() }

func (w *waiter) Wait(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		receipt, err := w.eth.TransactionReceipt(ctx, w.hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return &runner.RevertedError{Method: w.method, Reason: w.revertReason(ctx, receipt)}
		}
		if err != ethereum.NotFound {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// revertReason best-effort replays the failed call at its mined block via
// eth_call to recover the contract's revert string. Errors here are
// swallowed in favor of a generic reason — the receipt's failure status is
// already authoritative.
func (w *waiter) revertReason(ctx context.Context, receipt *types.Receipt) string {
	tx, _, err := w.eth.TransactionByHash(ctx, w.hash)
	if err != nil || tx == nil || tx.To() == nil {
		return "execution reverted"
	}

	_, callErr := w.eth.CallContract(ctx, ethereum.CallMsg{To: tx.To(), Data: tx.Data()}, receipt.BlockNumber)
	if callErr == nil {
		return "execution reverted"
	}
	return callErr.Error()
}
