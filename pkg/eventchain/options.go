package eventchain

import (
	"log/slog"

	"github.com/avandermeer/eventchain/pkg/eventchain/observability"
	"github.com/avandermeer/eventchain/pkg/eventchain/output"
	"github.com/avandermeer/eventchain/pkg/eventchain/rng"
	"github.com/avandermeer/eventchain/pkg/eventchain/snapshot"
)

// options holds the construction-time configuration of a mediator.
type options struct {
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	tracing    bool
	src        *rng.Source
	runID      string
	outputs    *output.Registry
	dispatches []dispatchBinding
	snapStore  snapshot.Store
	snapEvery  uint64
	snapFatal  bool
	rawConfig  []byte
	warnEqual  bool
}

type dispatchBinding struct {
	kind string
	d    Dispatch
}

// defaultOptions returns the default mediator configuration.
func defaultOptions() options {
	return options{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a mediator at construction.
type Option func(*options)

// WithLogger sets the structured logger. A nil logger (the default) keeps
// the run silent.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics enables OpenTelemetry metrics recording.
//
// Example:
//
//	m, err := eventchain.New(store, act, eventchain.WithMetrics(true))
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		if enabled {
			o.metrics = observability.NewMetricsRecorder()
		} else {
			o.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a specific metrics recorder. Mainly useful for
// testing with a recording fake.
func WithMetricsRecorder(r observability.MetricsRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithTracing enables OpenTelemetry tracing: one span per run, one per leg.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracing = enabled
		if enabled {
			o.spans = observability.NewSpanManager()
		} else {
			o.spans = observability.NoopSpanManager{}
		}
	}
}

// WithRNG sets the run's random source. The default is a source seeded with
// zero, so unconfigured runs are still reproducible.
func WithRNG(src *rng.Source) Option {
	return func(o *options) {
		if src != nil {
			o.src = src
		}
	}
}

// WithRunID overrides the generated run identifier. Snapshots and output
// headers carry it.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithOutput sets the registry of named outputs that sampling-type side
// effects write to. Handlers naming an output that is not registered fail
// New.
func WithOutput(reg *output.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.outputs = reg
		}
	}
}

// WithDispatch binds a handler kind to its argument construction and
// mediation callbacks. Binding a kind twice, including the built-in kinds,
// fails New with an AmbiguousDispatchError.
//
// Example:
//
//	m, err := eventchain.New(store, act,
//	    eventchain.WithDispatch("cell-collider", eventchain.Dispatch{
//	        BuildArgs: eventchain.CellOccupantArgs,
//	    }))
func WithDispatch(kind string, d Dispatch) Option {
	return func(o *options) {
		o.dispatches = append(o.dispatches, dispatchBinding{kind: kind, d: d})
	}
}

// WithSnapshots enables snapshot persistence. everyLegs > 0 additionally
// saves a snapshot each time that many legs committed; zero leaves dumping
// to snapshot-dump handlers and explicit WriteSnapshot calls.
func WithSnapshots(store snapshot.Store, everyLegs uint64) Option {
	return func(o *options) {
		o.snapStore = store
		o.snapEvery = everyLegs
	}
}

// WithSnapshotFailureFatal makes a failed leg-cadence snapshot abort the
// run. By default the failure is logged and the run continues.
func WithSnapshotFailureFatal() Option {
	return func(o *options) {
		o.snapFatal = true
	}
}

// WithRawConfig attaches the raw configuration the run was built from. It
// travels inside snapshots so a resuming process can rebuild the mediator
// from the snapshot alone.
func WithRawConfig(raw []byte) Option {
	return func(o *options) {
		o.rawConfig = raw
	}
}

// WithEqualTimeWarnings logs a warning whenever two scheduled candidates
// race at exactly equal times. Needs WithLogger to have any effect.
func WithEqualTimeWarnings() Option {
	return func(o *options) {
		o.warnEqual = true
	}
}

// runConfig holds configuration for one Run call.
type runConfig struct {
	maxLegs uint64
}

// defaultRunConfig returns the default run configuration.
func defaultRunConfig() runConfig {
	return runConfig{}
}

// RunOption configures one Run call.
type RunOption func(*runConfig)

// WithMaxLegs bounds a Run call to n committed legs. The run stops without
// finalizing its outputs; a later Run on the same mediator continues the
// chain where it stopped. Zero (the default) means unbounded.
func WithMaxLegs(n uint64) RunOption {
	return func(c *runConfig) {
		c.maxLegs = n
	}
}
