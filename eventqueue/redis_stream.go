// Package eventqueue provides EventQueue implementations. RedisStream is
// the durable production backend: a Redis Streams consumer group gives
// at-least-once delivery, explicit XAck on success, and XAutoClaim-based
// redelivery for events whose handler crashed or returned an error.
package eventqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	runner "github.com/crynux-network/taskrunner"
)

const group = "taskrunner"

// RedisStream wraps one Redis stream with a single consumer group. The
// runner.EventQueue boundary identifies a delivery by a uint64 ackID;
// Redis stream entry IDs are strings ("<ms>-<seq>"), so RedisStream keeps a
// small in-memory table mapping the ackIDs it has handed out back to their
// stream entry IDs. Losing that table (process restart) is harmless: any
// entry still in the consumer group's pending list is picked up again by
// the next Recv's XAutoClaim pass and given a fresh ackID.
type RedisStream struct {
	client   *redis.Client
	stream   string
	consumer string
	minIdle  time.Duration
	block    time.Duration

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]string
}

// New builds a RedisStream bound to stream, consuming as consumer within
// the shared "taskrunner" group. Call EnsureGroup once before Recv.
func New(client *redis.Client, stream, consumer string) *RedisStream {
	return &RedisStream{
		client:   client,
		stream:   stream,
		consumer: consumer,
		minIdle:  30 * time.Second,
		block:    5 * time.Second,
		pending:  make(map[uint64]string),
	}
}

// EnsureGroup creates the consumer group at the tail of the stream if it
// does not already exist.
func (q *RedisStream) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (q *RedisStream) Put(ctx context.Context, event runner.TaskEvent) error {
	kind, payload, err := marshal(event)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"kind": kind, "payload": payload},
	}).Err()
}

// Recv first tries to reclaim one idle-too-long pending entry (a prior
// delivery whose consumer never ack'd it) via XAutoClaim, and only if none
// is reclaimable blocks for a new entry via XReadGroup.
func (q *RedisStream) Recv(ctx context.Context) (uint64, runner.TaskEvent, error) {
	for {
		if entryID, values, ok, err := q.autoclaimOne(ctx); err != nil {
			return 0, nil, err
		} else if ok {
			return q.deliver(entryID, values)
		}

		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    q.block,
		}).Result()

		if err == redis.Nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			return 0, nil, err
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				return q.deliver(msg.ID, msg.Values)
			}
		}
	}
}

func (q *RedisStream) autoclaimOne(ctx context.Context) (string, map[string]interface{}, bool, error) {
	entries, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    group,
		Consumer: q.consumer,
		MinIdle:  q.minIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, false, ctx.Err()
		}
		return "", nil, false, err
	}
	if len(entries) == 0 {
		return "", nil, false, nil
	}
	return entries[0].ID, entries[0].Values, true, nil
}

func (q *RedisStream) deliver(entryID string, values map[string]interface{}) (uint64, runner.TaskEvent, error) {
	event, err := unmarshal(values)
	if err != nil {
		return 0, nil, err
	}

	q.mu.Lock()
	q.nextID++
	ackID := q.nextID
	q.pending[ackID] = entryID
	q.mu.Unlock()

	return ackID, event, nil
}

func (q *RedisStream) Ack(ctx context.Context, ackID uint64) error {
	entryID, ok := q.takeEntry(ackID)
	if !ok {
		return nil
	}
	return q.client.XAck(ctx, q.stream, group, entryID).Err()
}

// NoAck leaves the entry in the consumer group's pending list; it will be
// picked up again once it has been idle for at least minIdle, via the
// XAutoClaim pass in Recv.
func (q *RedisStream) NoAck(_ context.Context, ackID uint64) error {
	q.takeEntry(ackID)
	return nil
}

func (q *RedisStream) takeEntry(ackID uint64) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entryID, ok := q.pending[ackID]
	delete(q.pending, ackID)
	return entryID, ok
}

func marshal(event runner.TaskEvent) (string, string, error) {
	var kind string
	var v interface{}

	switch ev := event.(type) {
	case runner.TaskCreated:
		kind, v = "TaskCreated", ev
	case runner.TaskResultReady:
		kind, v = "TaskResultReady", ev
	case runner.TaskResultCommitmentsReady:
		kind, v = "TaskResultCommitmentsReady", ev
	case runner.TaskSuccess:
		kind, v = "TaskSuccess", ev
	case runner.TaskAborted:
		kind, v = "TaskAborted", ev
	default:
		return "", "", fmt.Errorf("eventqueue: unrecognized event type %T", event)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return "", "", err
	}
	return kind, string(payload), nil
}

func unmarshal(values map[string]interface{}) (runner.TaskEvent, error) {
	kind, _ := values["kind"].(string)
	payload, _ := values["payload"].(string)

	switch kind {
	case "TaskCreated":
		var ev struct {
			TaskID uint64
			Round  uint32
		}
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, err
		}
		return runner.NewTaskCreated(ev.TaskID, ev.Round), nil

	case "TaskResultReady":
		var ev struct {
			TaskID uint64
			Hashes [][]byte
			Files  []string
		}
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, err
		}
		return runner.NewTaskResultReady(ev.TaskID, ev.Hashes, ev.Files), nil

	case "TaskResultCommitmentsReady":
		var ev struct{ TaskID uint64 }
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, err
		}
		return runner.NewTaskResultCommitmentsReady(ev.TaskID), nil

	case "TaskSuccess":
		var ev struct {
			TaskID     uint64
			ResultNode common.Address
		}
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, err
		}
		return runner.NewTaskSuccess(ev.TaskID, ev.ResultNode), nil

	case "TaskAborted":
		var ev struct{ TaskID uint64 }
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, err
		}
		return runner.NewTaskAborted(ev.TaskID), nil

	default:
		return nil, fmt.Errorf("eventqueue: unrecognized event kind %q", kind)
	}
}
