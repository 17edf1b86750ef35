// Package runner implements the per-task state machine for a decentralized
// inference network worker node. One Runner coordinates exactly one on-chain
// task from creation to terminal completion (Success or Aborted): it commits
// a hash of the locally computed result, discloses the result once peer
// commitments are collected, and — if selected — uploads the output
// artifacts to the relay.
//
// Construction
//   - New(taskID, taskName, outputDir, opts ...Option): builds a Runner wired
//     to the collaborators supplied via options (state cache, event queue,
//     chain client, watcher, relay, worker dispatcher). Collaborators
//     default to the package's in-memory mocks so a Runner can be exercised
//     without any network (see runner_mock.go).
//
// Lifecycle
//   - Init(ctx) loads or creates the task's durable state and validates it
//     against the chain. Run(ctx) drives the event loop until a terminal
//     status is reached or the task's on-chain deadline passes, then runs
//     cleanup. Each event is acked when its handler succeeds and no-acked
//     when it fails; Run does not drain events still held by the queue on
//     exit, so those are neither acked nor no-acked by Run.
//
// Durability
//   - Every state mutation happens inside withState, which persists the new
//     state before the runner yields to wait on the next event, and every
//     contract call goes through the txCoordinator, which persists the
//     in-flight (method, hash) pair before awaiting the receipt — so a crash
//     mid-transaction resumes by awaiting the same hash rather than
//     resubmitting.
package runner
