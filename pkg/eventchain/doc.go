/*
Package eventchain provides a discrete-event kernel for event-chain Monte
Carlo simulations.

# Overview

eventchain drives runs made of legs: between two events the global physical
state evolves deterministically (lifted units move ballistically), and at
event times the direction of that evolution changes. Event handlers propose
candidate events for single factors of the potential, a scheduler races the
candidates, and the mediator commits the earliest one and routes its side
effects. The kernel is domain-agnostic: all physics lives in the handlers'
injected rate callbacks.

The moving parts:

  - state: the global state as a forest of composite point objects
  - handler: the two-phase event-handler protocol and reference handlers
  - activator: the tagger graph deciding which handlers compete when
  - scheduler: the indexed min heap racing candidate events
  - output: named writers that sampling side effects route to
  - snapshot: the persisted image of a run for dump-and-resume

# Basic Usage

Build the collaborators, wire a mediator, and run:

	box, _ := geometry.NewBox([]float64{1.0}, 1.0)
	tree := state.NewTree()
	id := tree.AddRoot([]float64{0.5}, nil)

	start, _ := handler.NewChainStart(box, 0, 1.0, id)
	ender, _ := handler.NewFinalTimeEndOfRun(box, 100.0, "")

	act, _ := activator.New([]activator.Tagger{
	    {Tag: "start", Pool: []handler.EventHandler{start},
	        Generate: activator.NoInState(), Creates: []string{"end"}, Trashes: []string{"start"}},
	    {Tag: "end", Pool: []handler.EventHandler{ender},
	        Generate: activator.NoInState(), Trashes: []string{"end"}},
	})

	m, err := eventchain.New(tree, act, eventchain.WithRNG(rng.New(42)))
	if err != nil {
	    log.Fatal(err)
	}
	if err := m.Run(context.Background()); err != nil {
	    log.Fatal(err)
	}

Run returns nil when an end-of-run side effect fires; see ErrEndOfRun.

# Event Handlers

Handlers follow a two-phase protocol. RequestTime proposes a candidate event
time from an optional in-state; only when that candidate wins the race does
Confirm compute the out-state. Handlers using a bounding rate may reject
their own proposal in Confirm; they then implement Resender and the kernel
reschedules them with a strictly later candidate, re-racing the rest.

# Dispatch

Handlers declare a kind (see handler.Kinder), and a Dispatch binds each kind
to the kernel: BuildArgs constructs the Confirm arguments, Mediate runs the
committed event's side effect. The kinds of the reference handlers are bound
automatically; bind custom kinds with WithDispatch and compose them from the
building blocks ActiveArgs, IdentifierArgs, CellOccupantArgs, WriteFullState,
EndRun, and DumpRun.

# Snapshots

Enable dump-and-resume with a snapshot store:

	store, _ := snapshot.NewSQLiteStore("./snapshots.db")
	defer store.Close()

	m, _ := eventchain.New(tree, act,
	    eventchain.WithSnapshots(store, 10_000),
	    eventchain.WithRunID("run-123"))

Snapshots are also written by snapshot-dump handlers at a simulation-time
cadence and by WriteSnapshot. To resume, rebuild the mediator from the same
configuration and rewind it:

	data, _ := store.LoadLatest("run-123")
	snap, _ := snapshot.Unmarshal(data)
	m.RestoreSnapshot(snap)
	err := m.Run(ctx)

A resumed run continues event for event: the global state, the scheduled
candidates, the handler pools, the handler internals, and the random source
all come back exactly as dumped.

# Observability

Enable logging, metrics, and tracing:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	m, _ := eventchain.New(tree, act,
	    eventchain.WithLogger(logger),
	    eventchain.WithMetrics(true),
	    eventchain.WithTracing(true))

Logs carry structured fields: run_id, seed, kind, event_time, duration_ms.
OpenTelemetry metrics: eventchain.legs, eventchain.leg.latency_ms, etc.
OpenTelemetry tracing: eventchain.run > eventchain.leg spans.

# Error Handling

Errors carry the failing handler and phase:

	err := m.Run(ctx)
	var handlerErr *eventchain.HandlerError
	if errors.As(err, &handlerErr) {
	    log.Printf("handler %s failed during %s: %v", handlerErr.Handler, handlerErr.Op, handlerErr.Err)
	}

Kernel invariant violations (a regressing event time, a cancel of an absent
entry) surface as SchedulerError and abort the run.

# Thread Safety

  - A Mediator drives one run on one goroutine and is NOT safe for
    concurrent use
  - RunMany runs independent replicas concurrently; replicas share nothing
  - snapshot.Store implementations are safe for concurrent use

# Subpackages

  - simtime: exact event-time arithmetic
  - state, geometry, lifting, occupancy: global state, periodic boxes,
    lifting schemes, cell occupancy
  - handler, activator, scheduler: the event loop's collaborators
  - output, snapshot: sampling outputs and dump-and-resume
  - observability: logging, metrics, and tracing helpers
  - config: YAML run specifications and the factory wiring them
*/
package eventchain
