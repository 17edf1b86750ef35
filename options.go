package runner

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/crynux-network/taskrunner/metrics"
)

// Option configures a Runner. Use New(taskID, taskName, outputDir, opts...) to
// construct a Runner. Unset collaborators default to in-memory mocks (see
// runner_mock.go) so a Runner can be exercised with zero network.
type Option func(*config)

type config struct {
	cache       StateCache
	queue       EventQueue
	chain       ChainClient
	watcher     Watcher
	relay       RelayClient
	dispatcher  WorkerDispatcher
	logger      zerolog.Logger
	metrics     metrics.Provider
	distributed bool
	drainWindow time.Duration
	errWindow   time.Duration
	getTaskMax  time.Duration
}

func defaultConfig() config {
	return config{
		logger:      zerolog.Nop(),
		metrics:     metrics.NewNoopProvider(),
		drainWindow: 10 * time.Second,
		errWindow:   60 * time.Second,
		getTaskMax:  30 * time.Minute,
	}
}

// WithStateCache supplies the durable state cache. Required for production
// use; defaults to an in-memory cache suitable for tests.
func WithStateCache(c StateCache) Option { return func(cfg *config) { cfg.cache = c } }

// WithEventQueue supplies the event queue used to ack/no-ack delivered events.
func WithEventQueue(q EventQueue) Option { return func(cfg *config) { cfg.queue = q } }

// WithChainClient supplies the contract client used for all on-chain calls.
func WithChainClient(c ChainClient) Option { return func(cfg *config) { cfg.chain = c } }

// WithWatcher supplies the chain event watcher used to subscribe/unsubscribe
// this task's commitment/success/abort filters.
func WithWatcher(w Watcher) Option { return func(cfg *config) { cfg.watcher = w } }

// WithRelayClient supplies the relay HTTP client used to fetch task args and
// upload result artifacts.
func WithRelayClient(r RelayClient) Option { return func(cfg *config) { cfg.relay = r } }

// WithWorkerDispatcher supplies the local/distributed worker dispatcher.
func WithWorkerDispatcher(d WorkerDispatcher) Option { return func(cfg *config) { cfg.dispatcher = d } }

// WithLogger sets the structured logger. Default is a no-op logger.
func WithLogger(l zerolog.Logger) Option { return func(cfg *config) { cfg.logger = l } }

// WithMetrics sets the metrics provider. Default is a no-op provider.
func WithMetrics(p metrics.Provider) Option { return func(cfg *config) { cfg.metrics = p } }

// WithDistributed selects distributed worker dispatch mode: the task is
// submitted to an external job service and the runner blocks for its
// completion instead of running the worker in-process.
func WithDistributed() Option { return func(cfg *config) { cfg.distributed = true } }

// WithDrainWindow overrides the shielded budget for state persistence and
// for enqueuing events delivered by watcher callbacks. Default 10s, per spec.
func WithDrainWindow(d time.Duration) Option { return func(cfg *config) { cfg.drainWindow = d } }

// WithErrorReportWindow overrides the shielded budget for reporting an
// invalid-task error to the chain. Default 60s, per spec.
func WithErrorReportWindow(d time.Duration) Option { return func(cfg *config) { cfg.errWindow = d } }

// WithGetTaskRetryBudget overrides the total time budget for relay GetTask
// retries on transient "not found"/"not ready" errors. Default 30 minutes.
func WithGetTaskRetryBudget(d time.Duration) Option { return func(cfg *config) { cfg.getTaskMax = d } }
