package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	runner "github.com/crynux-network/taskrunner"
)

// Distributed submits a task to an external worker service over NATS
// request-reply and blocks until it acknowledges acceptance. Grounded on
// nats.go's Conn.RequestWithContext — the synchronous request-reply call
// the pack's NATS-based services use in place of ad hoc HTTP between
// worker and dispatcher processes.
type Distributed struct {
	conn    *nats.Conn
	subject string
}

// NewDistributed builds a Distributed dispatcher publishing requests on
// subject (e.g. "taskrunner.dispatch").
func NewDistributed(conn *nats.Conn, subject string) *Distributed {
	return &Distributed{conn: conn, subject: subject}
}

type dispatchRequest struct {
	TaskName string          `json:"task_name"`
	TaskID   uint64          `json:"task_id"`
	Args     json.RawMessage `json:"args"`
}

type dispatchReply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (d *Distributed) RunDistributed(ctx context.Context, taskName string, taskID uint64, args runner.TaskArgs) error {
	payload, err := json.Marshal(dispatchRequest{TaskName: taskName, TaskID: taskID, Args: args.Raw})
	if err != nil {
		return err
	}

	msg, err := d.conn.RequestWithContext(ctx, d.subject, payload)
	if err != nil {
		return fmt.Errorf("taskrunner/worker: dispatching task %d to %s: %w", taskID, d.subject, err)
	}

	var reply dispatchReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("taskrunner/worker: decoding dispatch reply for task %d: %w", taskID, err)
	}
	if !reply.OK {
		return fmt.Errorf("taskrunner/worker: remote worker rejected task %d: %s", taskID, reply.Message)
	}
	return nil
}

// RunLocal is unsupported on Distributed; a Runner not configured with
// WithDistributed must be given a Local dispatcher instead.
func (d *Distributed) RunLocal(_ context.Context, taskID uint64, _ runner.TaskArgs, _ string) (runner.TaskResultReady, error) {
	return runner.TaskResultReady{}, fmt.Errorf("taskrunner/worker: Distributed dispatcher does not support in-process execution (task %d)", taskID)
}
