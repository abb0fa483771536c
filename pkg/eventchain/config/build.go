package config

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/avandermeer/eventchain/pkg/eventchain"
	"github.com/avandermeer/eventchain/pkg/eventchain/activator"
	"github.com/avandermeer/eventchain/pkg/eventchain/geometry"
	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/lifting"
	"github.com/avandermeer/eventchain/pkg/eventchain/occupancy"
	"github.com/avandermeer/eventchain/pkg/eventchain/output"
	"github.com/avandermeer/eventchain/pkg/eventchain/registry"
	"github.com/avandermeer/eventchain/pkg/eventchain/rng"
	"github.com/avandermeer/eventchain/pkg/eventchain/snapshot"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Potential bundles the callbacks of one two-unit interaction: the factor's
// true rate and the bounding potential proposals come from.
type Potential struct {
	Rate     handler.RateFunc
	Bounding handler.BoundingPotential
}

// FactorPotential bundles the callbacks of one multi-unit interaction.
type FactorPotential struct {
	Rates        handler.FactorRatesFunc
	BoundingRate handler.FactorRateFunc
	Displacement handler.FactorDisplacementFunc
}

// Context carries the collaborators factories draw on while one run is
// assembled. Occupancy is the cell-occupancy index of the tagger currently
// being built, nil for taggers without a cells section.
type Context struct {
	Box       *geometry.Box
	Tree      *state.TreeStore
	RNG       *rng.Source
	Logger    *slog.Logger
	Occupancy *occupancy.SingleActive

	builder *Builder
}

// Potential resolves a registered two-unit potential by name.
func (c *Context) Potential(name string) (Potential, bool) {
	return c.builder.potentials.Get(name)
}

// FactorPotential resolves a registered multi-unit potential by name.
func (c *Context) FactorPotential(name string) (FactorPotential, bool) {
	return c.builder.factorPotentials.Get(name)
}

// HandlerFactory builds one handler instance of a configured kind. The
// factory runs once per pool slot, so every instance is distinct.
type HandlerFactory func(c *Context, p Params) (handler.EventHandler, error)

// GeneratorFactory builds the generator of a configured tagger.
type GeneratorFactory func(c *Context, p Params) (activator.Generator, error)

// Builder assembles mediators from run configurations. The zero vocabulary
// covers the reference handler and generator kinds; embedding programs
// extend it with RegisterHandler, RegisterGenerator, and the potential
// registrations the physics-backed kinds resolve against.
type Builder struct {
	handlers         *registry.Registry[string, HandlerFactory]
	generators       *registry.Registry[string, GeneratorFactory]
	potentials       *registry.Registry[string, Potential]
	factorPotentials *registry.Registry[string, FactorPotential]
	logger           *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuildLogger sets the logger passed to factories and to the built
// mediators.
func WithBuildLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder returns a builder with the reference kinds registered.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		handlers:         registry.New[string, HandlerFactory](),
		generators:       registry.New[string, GeneratorFactory](),
		potentials:       registry.New[string, Potential](),
		factorPotentials: registry.New[string, FactorPotential](),
	}
	for _, opt := range opts {
		opt(b)
	}
	for kind, f := range referenceHandlerFactories() {
		b.handlers.Register(kind, f)
	}
	for kind, f := range referenceGeneratorFactories() {
		b.generators.Register(kind, f)
	}
	return b
}

// RegisterHandler adds a handler kind. Registering a kind twice is a
// configuration error.
func (b *Builder) RegisterHandler(kind string, f HandlerFactory) error {
	if !b.handlers.RegisterOnce(kind, f) {
		return &eventchain.ConfigurationError{Component: "builder", Reason: fmt.Sprintf("handler kind %q registered twice", kind)}
	}
	return nil
}

// RegisterGenerator adds a generator kind. Registering a kind twice is a
// configuration error.
func (b *Builder) RegisterGenerator(kind string, f GeneratorFactory) error {
	if !b.generators.RegisterOnce(kind, f) {
		return &eventchain.ConfigurationError{Component: "builder", Reason: fmt.Sprintf("generator kind %q registered twice", kind)}
	}
	return nil
}

// RegisterPotential adds a two-unit potential pair-collider specs resolve by
// name.
func (b *Builder) RegisterPotential(name string, p Potential) error {
	if !b.potentials.RegisterOnce(name, p) {
		return &eventchain.ConfigurationError{Component: "builder", Reason: fmt.Sprintf("potential %q registered twice", name)}
	}
	return nil
}

// RegisterFactorPotential adds a multi-unit potential factor-exchange specs
// resolve by name.
func (b *Builder) RegisterFactorPotential(name string, p FactorPotential) error {
	if !b.factorPotentials.RegisterOnce(name, p) {
		return &eventchain.ConfigurationError{Component: "builder", Reason: fmt.Sprintf("factor potential %q registered twice", name)}
	}
	return nil
}

// Build assembles a runnable mediator from the configuration. Additional
// mediator options are applied after the configured ones, so callers can
// override the seed, run identifier, or observability wiring.
func (b *Builder) Build(run *Run, opts ...eventchain.Option) (*eventchain.Mediator, error) {
	return b.build(run, false, opts...)
}

// Check assembles the whole run without touching the filesystem: file
// writers become discarding ones and a sqlite snapshot store stays in
// memory. It surfaces every configuration error a Build would hit.
func (b *Builder) Check(run *Run) error {
	_, err := b.build(run, true)
	return err
}

func (b *Builder) build(run *Run, dry bool, opts ...eventchain.Option) (*eventchain.Mediator, error) {
	if err := run.Validate(); err != nil {
		return nil, err
	}

	box, err := geometry.NewBox(run.Box.Lengths, run.Box.Beta)
	if err != nil {
		return nil, &eventchain.ConfigurationError{Component: "box", Reason: err.Error()}
	}
	src := rng.New(run.Seed)
	tree := buildState(box, src, run.State)
	runID := uuid.New().String()

	outputs := output.NewRegistry()
	for _, o := range run.Outputs {
		w, err := buildWriter(box, o, runID, dry)
		if err != nil {
			return nil, &eventchain.ConfigurationError{Component: "output", Reason: fmt.Sprintf("output %q: %v", o.Name, err)}
		}
		if err := outputs.Add(o.Name, w); err != nil {
			return nil, err
		}
	}

	mopts := []eventchain.Option{
		eventchain.WithRunID(runID),
		eventchain.WithRNG(src),
		eventchain.WithOutput(outputs),
	}
	if raw := run.Raw(); raw != nil {
		mopts = append(mopts, eventchain.WithRawConfig(raw))
	}
	if b.logger != nil {
		mopts = append(mopts, eventchain.WithLogger(b.logger))
	}
	if run.Snapshots != nil {
		store, err := buildSnapshotStore(run.Snapshots, dry)
		if err != nil {
			return nil, &eventchain.ConfigurationError{Component: "snapshots", Reason: err.Error()}
		}
		mopts = append(mopts, eventchain.WithSnapshots(store, run.Snapshots.EveryLegs))
	}

	taggers := make([]activator.Tagger, 0, len(run.Taggers))
	for _, tc := range run.Taggers {
		t, err := b.buildTagger(box, tree, src, tc)
		if err != nil {
			return nil, err
		}
		taggers = append(taggers, t)
	}
	act, err := activator.New(taggers)
	if err != nil {
		return nil, &eventchain.ConfigurationError{Component: "activator", Reason: err.Error()}
	}

	return eventchain.New(tree, act, append(mopts, opts...)...)
}

func (b *Builder) buildTagger(box *geometry.Box, tree *state.TreeStore, src *rng.Source, tc Tagger) (activator.Tagger, error) {
	ctx := &Context{Box: box, Tree: tree, RNG: src, Logger: b.logger, builder: b}
	if tc.Cells != nil {
		cells, err := geometry.NewCuboidCells(box, tc.Cells.Counts, tc.Cells.Layers)
		if err != nil {
			return activator.Tagger{}, &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q: %v", tc.Tag, err)}
		}
		var oopts []occupancy.Option
		if tc.Cells.Charge != "" {
			oopts = append(oopts, occupancy.WithChargeFilter(tc.Cells.Charge))
		}
		ctx.Occupancy = occupancy.NewSingleActive(cells, tc.Cells.Level, oopts...)
	}

	hf, ok := b.handlers.Get(tc.Handler.Kind)
	if !ok {
		return activator.Tagger{}, &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q uses unknown handler kind %q", tc.Tag, tc.Handler.Kind)}
	}
	pool := make([]handler.EventHandler, tc.Count)
	for i := range pool {
		h, err := hf(ctx, tc.Handler.Params)
		if err != nil {
			return activator.Tagger{}, &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q handler: %v", tc.Tag, err)}
		}
		pool[i] = h
	}

	gf, ok := b.generators.Get(tc.Generate.Kind)
	if !ok {
		return activator.Tagger{}, &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q uses unknown generator kind %q", tc.Tag, tc.Generate.Kind)}
	}
	gen, err := gf(ctx, tc.Generate.Params)
	if err != nil {
		return activator.Tagger{}, &eventchain.ConfigurationError{Component: "taggers", Reason: fmt.Sprintf("tagger %q generator: %v", tc.Tag, err)}
	}

	t := activator.Tagger{
		Tag:         tc.Tag,
		Pool:        pool,
		Generate:    gen,
		Creates:     tc.Creates,
		Trashes:     tc.Trashes,
		Activates:   tc.Activates,
		Deactivates: tc.Deactivates,
	}
	if ctx.Occupancy != nil {
		t.State = ctx.Occupancy
	}
	return t, nil
}

func buildState(box *geometry.Box, src *rng.Source, cfg State) *state.TreeStore {
	tree := state.NewTree()
	for _, c := range cfg.Composites {
		pos := c.Position
		if pos == nil {
			pos = make([]float64, box.Dimension())
			for _, p := range c.Points {
				for d, x := range p.Position {
					pos[d] += x / float64(len(c.Points))
				}
			}
		}
		root := tree.AddRoot(pos, nil)
		for _, p := range c.Points {
			tree.AddChild(root, p.Position, p.Charges)
		}
	}
	for _, p := range cfg.Points {
		tree.AddRoot(p.Position, p.Charges)
	}
	if cfg.Random != nil {
		for i := 0; i < cfg.Random.Points; i++ {
			pos := make([]float64, box.Dimension())
			for d := range pos {
				pos[d] = src.Uniform(0.0, box.Length(d))
			}
			tree.AddRoot(pos, cfg.Random.Charges)
		}
	}
	return tree
}

func buildWriter(box *geometry.Box, o Output, runID string, dry bool) (output.Writer, error) {
	if dry || o.Kind == OutputDiscard {
		return output.Discard{}, nil
	}
	switch o.Kind {
	case OutputPositions:
		return output.NewPositionWriter(o.Path, runID)
	case OutputSeparations:
		return output.NewSeparationWriter(box, o.Path, runID)
	default:
		return nil, fmt.Errorf("unknown writer kind %q", o.Kind)
	}
}

func buildSnapshotStore(cfg *Snapshots, dry bool) (snapshot.Store, error) {
	if dry || cfg.Store == "memory" {
		return snapshot.NewMemoryStore(), nil
	}
	return snapshot.NewSQLiteStore(cfg.Path)
}

// referenceHandlerFactories binds the reference handler kinds shipped with
// the kernel. Physics-backed kinds resolve their potential by name at build
// time.
func referenceHandlerFactories() map[string]HandlerFactory {
	return map[string]HandlerFactory{
		"chain-start": func(c *Context, p Params) (handler.EventHandler, error) {
			level := p.Int("level", 1)
			ids := c.Tree.IDsAtLevel(level)
			index := p.Int("index", 0)
			if index < 0 || index >= len(ids) {
				return nil, fmt.Errorf("initial index %d outside the %d units at level %d", index, len(ids), level)
			}
			return handler.NewChainStart(c.Box, p.Int("direction", 0), p.Float("speed", 1.0), ids[index])
		},
		"interval-sampler": func(c *Context, p Params) (handler.EventHandler, error) {
			return handler.NewFixedIntervalSampler(c.Box, p.Float("interval", 0.0), p.String("output", ""))
		},
		"direction-switch": func(c *Context, p Params) (handler.EventHandler, error) {
			return handler.NewPeriodicDirectionSwitch(c.Box, p.Float("chain_time", 0.0))
		},
		"end-of-run": func(c *Context, p Params) (handler.EventHandler, error) {
			return handler.NewFinalTimeEndOfRun(c.Box, p.Float("end_time", 0.0), p.String("output", ""))
		},
		"snapshot-dump": func(c *Context, p Params) (handler.EventHandler, error) {
			return handler.NewSnapshotDump(p.Float("interval", 0.0))
		},
		"pair-collider": func(c *Context, p Params) (handler.EventHandler, error) {
			name := p.String("potential", "")
			pot, ok := c.Potential(name)
			if !ok {
				return nil, fmt.Errorf("unknown potential %q", name)
			}
			opts := []handler.PairColliderOption{handler.WithColliderLogger(c.Logger)}
			if charge := p.String("charge", ""); charge != "" {
				opts = append(opts, handler.WithColliderCharge(charge))
			}
			return handler.NewPairCollider(c.Box, c.RNG, pot.Rate, pot.Bounding, opts...)
		},
		"factor-exchange": func(c *Context, p Params) (handler.EventHandler, error) {
			name := p.String("potential", "")
			pot, ok := c.FactorPotential(name)
			if !ok {
				return nil, fmt.Errorf("unknown factor potential %q", name)
			}
			var scheme lifting.Scheme[state.ID]
			switch s := p.String("scheme", "inside-first"); s {
			case "inside-first":
				scheme = lifting.NewInsideFirst[state.ID](c.RNG)
			case "ratio":
				scheme = lifting.NewRatio[state.ID](c.RNG)
			default:
				return nil, fmt.Errorf("unknown lifting scheme %q", s)
			}
			return handler.NewFactorExchange(c.Box, c.RNG, scheme,
				pot.Rates, pot.BoundingRate, pot.Displacement,
				handler.WithExchangeLogger(c.Logger))
		},
	}
}

// referenceGeneratorFactories binds the reference generator kinds.
func referenceGeneratorFactories() map[string]GeneratorFactory {
	return map[string]GeneratorFactory{
		"no-in-state": func(c *Context, p Params) (activator.Generator, error) {
			return activator.NoInState(), nil
		},
		"active-global-state": func(c *Context, p Params) (activator.Generator, error) {
			return activator.ActiveGlobalState(p.Int("level", 1)), nil
		},
		"cell-bounding": func(c *Context, p Params) (activator.Generator, error) {
			if c.Occupancy == nil {
				return nil, fmt.Errorf("cell-bounding needs a cells section on its tagger")
			}
			return activator.CellBounding(c.Occupancy), nil
		},
	}
}
