package campaign

import "github.com/okanek/campaign/types"

// Option configures an Election or Reader with optional dependencies.
type Option func(*electionOptions)

// electionOptions holds optional configuration.
type electionOptions struct {
	coordinator types.Coordinator
	hooks       *types.Hooks
	readHooks   *types.ReadHooks
	logger      types.Logger
	metrics     types.MetricsCollector
	idGenerator func() string
}

// WithCoordinator sets a custom coordination backend, replacing the
// built-in NATS KV coordinator. When set, the NATS connection passed to
// New may be nil and the Bucket/BucketTTL configuration is ignored.
//
// Parameters:
//   - coord: Coordinator implementation
//
// Returns:
//   - Option: Functional option for New / NewReader
//
// Example:
//
//	coord := myEtcdCoordinator
//	e, err := campaign.New(nil, cfg, campaign.WithCoordinator(coord))
func WithCoordinator(coord types.Coordinator) Option {
	return func(o *electionOptions) {
		o.coordinator = coord
	}
}

// WithHooks sets the election lifecycle hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	hooks := &campaign.Hooks{
//	    OnWin:  func() error { return promoteSelf() },
//	    OnLose: func() error { return demoteSelf() },
//	}
//	e, err := campaign.New(nc, cfg, campaign.WithHooks(hooks))
func WithHooks(hooks *types.Hooks) Option {
	return func(o *electionOptions) {
		o.hooks = hooks
	}
}

// WithReadHooks sets the Reader result hooks. Ignored by New.
//
// Parameters:
//   - hooks: ReadHooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewReader
func WithReadHooks(hooks *types.ReadHooks) Option {
	return func(o *electionOptions) {
		o.readHooks = hooks
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for New / NewReader
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	e, err := campaign.New(nc, cfg, campaign.WithLogger(logger))
func WithLogger(logger types.Logger) Option {
	return func(o *electionOptions) {
		o.logger = logger
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	metrics := myPrometheusCollector
//	e, err := campaign.New(nc, cfg, campaign.WithMetrics(metrics))
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *electionOptions) {
		o.metrics = metrics
	}
}

// WithIDGenerator sets the generator used when Config.ID is empty.
//
// The default generator derives a random decimal token. Supplying a
// deterministic generator makes elections reproducible in tests.
//
// Parameters:
//   - gen: Function returning a candidate identity
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	e, err := campaign.New(nc, cfg,
//	    campaign.WithIDGenerator(func() string { return "candidate-1" }))
func WithIDGenerator(gen func() string) Option {
	return func(o *electionOptions) {
		o.idGenerator = gen
	}
}
