// Package watcher provides the production runner.Watcher implementation:
// chain log subscriptions scoped to one task id each, resilient to
// reconnects via go-ethereum's event.Resubscribe.
package watcher

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethevent "github.com/ethereum/go-ethereum/event"

	runner "github.com/crynux-network/taskrunner"
)

// taskEventsABI covers the three log events a Runner subscribes to.
const taskEventsABI = `[
 {"name":"TaskResultCommitmentsReady","type":"event",
  "inputs":[{"name":"taskId","type":"uint256","indexed":true}]},
 {"name":"TaskSuccess","type":"event",
  "inputs":[{"name":"taskId","type":"uint256","indexed":true},{"name":"resultNode","type":"address"}]},
 {"name":"TaskAborted","type":"event",
  "inputs":[{"name":"taskId","type":"uint256","indexed":true}]}
]`

// Eth is the production runner.Watcher. Each WatchEvent call opens an
// independent log subscription filtered to one (event signature, task id)
// pair, wrapped in event.Resubscribe so a dropped websocket is retried
// without the caller noticing.
type Eth struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]gethevent.Subscription
}

func New(eth *ethclient.Client, contract common.Address) (*Eth, error) {
	parsed, err := abi.JSON(strings.NewReader(taskEventsABI))
	if err != nil {
		return nil, err
	}
	return &Eth{eth: eth, contract: contract, abi: parsed, subs: make(map[uint64]gethevent.Subscription)}, nil
}

func (w *Eth) WatchEvent(ctx context.Context, eventName string, taskID uint64, callback func(runner.TaskEvent)) (uint64, error) {
	event, ok := w.abi.Events[eventName]
	if !ok {
		return 0, fmt.Errorf("watcher: unknown event %q", eventName)
	}

	taskTopic := common.BigToHash(new(big.Int).SetUint64(taskID))
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.contract},
		Topics:    [][]common.Hash{{event.ID}, {taskTopic}},
	}

	logs := make(chan types.Log)
	sub, err := gethevent.Resubscribe(time.Second, func(ctx context.Context) (gethevent.Subscription, error) {
		return w.eth.SubscribeFilterLogs(ctx, query, logs)
	})
	if err != nil {
		return 0, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Err():
				if !ok {
					return
				}
				// Resubscribe already retries transparently; nothing to do here.
			case vLog, ok := <-logs:
				if !ok {
					return
				}
				if ev, err := w.decode(eventName, vLog); err == nil {
					callback(ev)
				}
			}
		}
	}()

	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.subs[id] = sub
	w.mu.Unlock()
	return id, nil
}

func (w *Eth) Unwatch(watchID uint64) error {
	w.mu.Lock()
	sub, ok := w.subs[watchID]
	delete(w.subs, watchID)
	w.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
	return nil
}

func (w *Eth) decode(eventName string, vLog types.Log) (runner.TaskEvent, error) {
	if len(vLog.Topics) < 2 {
		return nil, fmt.Errorf("watcher: log for %q missing indexed taskId topic", eventName)
	}
	taskID := vLog.Topics[1].Big().Uint64()

	switch eventName {
	case "TaskResultCommitmentsReady":
		return runner.NewTaskResultCommitmentsReady(taskID), nil
	case "TaskAborted":
		return runner.NewTaskAborted(taskID), nil
	case "TaskSuccess":
		var unpacked struct{ ResultNode common.Address }
		if err := w.abi.UnpackIntoInterface(&unpacked, eventName, vLog.Data); err != nil {
			return nil, err
		}
		return runner.NewTaskSuccess(taskID, unpacked.ResultNode), nil
	default:
		return nil, fmt.Errorf("watcher: unhandled event %q", eventName)
	}
}
