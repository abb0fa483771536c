package eventchain

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avandermeer/eventchain/pkg/eventchain/activator"
	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/observability"
	"github.com/avandermeer/eventchain/pkg/eventchain/output"
	"github.com/avandermeer/eventchain/pkg/eventchain/registry"
	"github.com/avandermeer/eventchain/pkg/eventchain/rng"
	"github.com/avandermeer/eventchain/pkg/eventchain/scheduler"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/snapshot"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Mediator is the hub of one run. It owns the scheduler, routes every other
// exchange between the collaborators, and drives the leg loop: arm new
// candidates, race them, commit the winner's out-state, run its side
// effects. Collaborators never talk to each other directly.
//
// A mediator drives exactly one run on one goroutine. For statistically
// independent replicas build one mediator per replica (see RunMany).
type Mediator struct {
	store   state.Store
	act     *activator.Activator
	queue   *scheduler.Queue[handler.EventHandler]
	outputs *output.Registry
	src     *rng.Source

	byHandler map[handler.EventHandler]Dispatch
	aux       map[handler.EventHandler][]any

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	tracing bool

	runID     string
	rawConfig []byte

	snapStore snapshot.Store
	snapEvery uint64
	snapFatal bool

	legs      uint64
	eventTime simtime.Time
	committed handler.EventHandler
	primed    bool
}

// New wires a mediator from its collaborators, resolves every pooled
// handler's dispatch kind, and initializes the activator's internal states
// from the full global state.
func New(store state.Store, act *activator.Activator, opts ...Option) (*Mediator, error) {
	if store == nil {
		return nil, &ConfigurationError{Component: "state store", Reason: "must not be nil"}
	}
	if act == nil {
		return nil, &ConfigurationError{Component: "activator", Reason: "must not be nil"}
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Mediator{
		store:     store,
		act:       act,
		outputs:   cfg.outputs,
		src:       cfg.src,
		aux:       make(map[handler.EventHandler][]any),
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		spans:     cfg.spans,
		tracing:   cfg.tracing,
		runID:     cfg.runID,
		rawConfig: cfg.rawConfig,
		snapStore: cfg.snapStore,
		snapEvery: cfg.snapEvery,
		snapFatal: cfg.snapFatal,
	}
	if m.outputs == nil {
		m.outputs = output.NewRegistry()
	}
	if m.src == nil {
		m.src = rng.New(0)
	}
	if m.runID == "" {
		m.runID = uuid.New().String()
	}

	var qopts []scheduler.Option
	if cfg.warnEqual {
		qopts = append(qopts, scheduler.WithWarnOnEqual(), scheduler.WithLogger(m.logger))
	}
	m.queue = scheduler.New[handler.EventHandler](qopts...)

	table := registry.New[string, Dispatch]()
	for kind, d := range builtinDispatches() {
		table.Register(kind, d)
	}
	for _, b := range cfg.dispatches {
		if !table.RegisterOnce(b.kind, b.d) {
			return nil, &AmbiguousDispatchError{Kind: b.kind}
		}
	}

	// Resolve each pooled handler once so the leg loop never consults the
	// kind table.
	m.byHandler = make(map[handler.EventHandler]Dispatch)
	used := make(map[string]bool)
	for _, h := range act.Handlers() {
		kind := handler.Kind(h)
		d, bound := table.Get(kind)
		if n := h.Arity().Confirm; n > 0 && (!bound || d.BuildArgs == nil) {
			return nil, &ConfigurationError{
				Component: "dispatch",
				Reason:    fmt.Sprintf("kind %q confirms %d argument sets but has no argument constructor", kind, n),
			}
		}
		if name := outputName(h); name != "" {
			if !m.outputs.Has(name) {
				return nil, &ConfigurationError{
					Component: "output",
					Reason:    fmt.Sprintf("handler kind %q writes to output %q, which is not registered", kind, name),
				}
			}
			used[name] = true
		}
		if bound {
			m.byHandler[h] = d
		}
	}
	for _, name := range m.outputs.Names() {
		if !used[name] {
			observability.LogUnusedOutput(m.logger, name)
		}
	}

	if err := act.Initialize(store.Full()); err != nil {
		return nil, err
	}
	return m, nil
}

// RunID returns the run identifier.
func (m *Mediator) RunID() string { return m.runID }

// Legs returns the number of committed events so far.
func (m *Mediator) Legs() uint64 { return m.legs }

// EventTime returns the time of the last committed event.
func (m *Mediator) EventTime() simtime.Time { return m.eventTime }

// RNG returns the run's random source.
func (m *Mediator) RNG() *rng.Source { return m.src }

// Outputs returns the registry of named outputs.
func (m *Mediator) Outputs() *output.Registry { return m.outputs }

// Committed returns the handler whose candidate won the current leg's race.
// During argument construction its event is not yet committed; during
// mediation it is.
func (m *Mediator) Committed() handler.EventHandler { return m.committed }

// Active returns deep-copied branches of every independently lifted unit.
func (m *Mediator) Active() []*state.Branch { return m.store.Active() }

// Extract returns the deep-copied branch of one identifier.
func (m *Mediator) Extract(id state.ID) *state.Branch { return m.store.Extract(id) }

// Full returns the whole forest without copying. The returned units must not
// be modified.
func (m *Mediator) Full() []*state.Branch { return m.store.Full() }

// WriteOutput writes the full global state to a named output.
func (m *Mediator) WriteOutput(name string) error {
	return m.outputs.Write(name, m.store.Full())
}

// OccupantLookup routes an internal-state identifier through the winning
// handler's tagger, typically mapping a cell index to its occupant.
func (m *Mediator) OccupantLookup(internalID int) (state.ID, bool) {
	return m.act.InternalStateLookup(m.committed, internalID)
}

// handlerName names a handler for diagnostics: its stable pool name when it
// is pooled, its kind otherwise.
func (m *Mediator) handlerName(h handler.EventHandler) string {
	if name, ok := m.act.HandlerName(h); ok {
		return name
	}
	return handler.Kind(h)
}

// armAndPush extracts each arm's in-state, requests its candidate time, and
// schedules it. Every candidate of the wave is pushed before any race.
func (m *Mediator) armAndPush(arms []activator.Arm) error {
	for _, arm := range arms {
		var in []*state.Branch
		if len(arm.InStateIDs) > 0 {
			in = make([]*state.Branch, 0, len(arm.InStateIDs))
			for _, id := range arm.InStateIDs {
				in = append(in, m.store.Extract(id))
			}
		}
		req := arm.Handler.RequestTime(in)
		m.aux[arm.Handler] = req.Aux
		if err := m.queue.Push(req.Time, arm.Handler); err != nil {
			return &SchedulerError{Op: "push", Err: err}
		}
	}
	return nil
}
