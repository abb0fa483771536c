package eventchain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/avandermeer/eventchain/pkg/eventchain/activator"
	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/observability"
	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Run drives the leg loop until a mediation callback ends the run, an error
// aborts it, the context is cancelled, or a WithMaxLegs bound is reached.
//
// Each leg arms the activator's next wave of candidates, races every
// scheduled candidate in the scheduler, commits the winner's out-state to
// the global state, trashes the candidates the event consumed, and runs the
// winner's mediation side effect.
//
// On a clean end of run every output is finalized. On cancellation the
// returned CancellationError leaves the mediator consistent: a snapshot
// taken afterwards resumes the run at the cancelled leg, and a later Run on
// the same mediator continues in process.
func (m *Mediator) Run(ctx context.Context, opts ...RunOption) (runErr error) {
	if ctx == nil {
		return ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	observability.LogRunStart(m.logger, m.runID, m.src.Seed())
	legLogger := observability.EnrichLogger(m.logger, m.runID, m.src.Seed())

	start := time.Now()

	execCtx := ctx
	var runSpan trace.Span
	if m.tracing {
		execCtx, runSpan = m.spans.StartRunSpan(ctx, m.runID)
		defer func() {
			m.spans.EndSpanWithError(runSpan, runErr)
		}()
	}

	startLegs := m.legs
	runErr = m.loop(execCtx, legLogger, cfg.maxLegs)

	duration := time.Since(start)
	durationMs := float64(duration.Milliseconds())
	m.metrics.RecordRun(ctx, runErr == nil, duration, int64(m.legs-startLegs))

	if runErr != nil {
		observability.LogRunError(m.logger, m.runID, runErr, m.legs, durationMs)
		return runErr
	}
	observability.LogRunComplete(m.logger, m.runID, m.legs, m.eventTime.Float(), durationMs)
	return nil
}

// loop executes legs until the run ends or maxLegs legs committed in this
// call. maxLegs zero means unbounded.
func (m *Mediator) loop(ctx context.Context, logger *slog.Logger, maxLegs uint64) error {
	for n := uint64(0); maxLegs == 0 || n < maxLegs; n++ {
		select {
		case <-ctx.Done():
			return &CancellationError{Legs: m.legs, Cause: context.Cause(ctx)}
		default:
		}

		// Arm the next wave before racing. The first wave comes from the
		// start-of-run tagger; every later one from the taggers the last
		// committed handler creates.
		var (
			arms []activator.Arm
			err  error
		)
		if !m.primed {
			arms, err = m.act.FirstCall()
		} else {
			arms, err = m.act.NextCall(m.store.Active(), m.committed)
		}
		if err != nil {
			return err
		}
		m.primed = true
		if err := m.armAndPush(arms); err != nil {
			return err
		}

		done, err := m.leg(ctx, logger)
		if err != nil {
			return err
		}
		if done {
			return m.postRun()
		}
	}
	return nil
}

// leg races the scheduled candidates, commits the winner's out-state, and
// runs its side effects. done reports a clean end of run.
func (m *Mediator) leg(parent context.Context, logger *slog.Logger) (bool, error) {
	var (
		winner  handler.EventHandler
		kind    string
		t       simtime.Time
		out     []*state.Branch
		legCtx  context.Context
		legSpan trace.Span
		start   time.Time
	)

	// Race resolution: peek the earliest candidate and ask it to confirm.
	// A rejected proposal goes back to the scheduler with a later time and
	// the race repeats, possibly with a different winner.
	for {
		var perr error
		winner, t, perr = m.queue.PeekMin()
		if perr != nil {
			return false, &SchedulerError{Op: "peek", Err: perr}
		}
		m.committed = winner
		kind = handler.Kind(winner)

		legCtx = parent
		if m.tracing {
			legCtx, legSpan = m.spans.StartLegSpan(parent, kind)
		}
		start = time.Now()

		d := m.byHandler[winner]
		var args []*state.Branch
		if d.BuildArgs != nil {
			built, err := d.BuildArgs(m, m.aux[winner])
			if err != nil {
				herr := &HandlerError{Handler: m.handlerName(winner), Kind: kind, Op: "arguments", Err: err}
				m.endLegSpan(legSpan, herr)
				return false, herr
			}
			args = built
		}

		var confirmed bool
		out, confirmed = winner.Confirm(args)
		if confirmed {
			break
		}

		// Bounding-rate rejection: resend a later candidate and race again.
		m.metrics.RecordLeg(legCtx, kind, time.Since(start), false)
		observability.LogCandidateRejected(logger, kind, t.Float())
		m.endLegSpan(legSpan, nil)

		resender, ok := winner.(handler.Resender)
		if !ok {
			return false, &HandlerError{Handler: m.handlerName(winner), Kind: kind, Op: "resend", Err: ErrNotResender}
		}
		req := resender.ResendTime()
		if req.Time.Before(t) {
			return false, &ResendOrderError{Handler: m.handlerName(winner), Rejected: t, Resent: req.Time}
		}
		if err := m.queue.Cancel(winner); err != nil {
			return false, &SchedulerError{Op: "cancel", Err: err}
		}
		if err := m.queue.Push(req.Time, winner); err != nil {
			return false, &SchedulerError{Op: "push", Err: err}
		}
		m.aux[winner] = req.Aux
	}

	if err := m.store.Commit(out); err != nil {
		m.endLegSpan(legSpan, err)
		return false, err
	}
	m.legs++
	m.eventTime = t

	// The committed event consumed the trashed taggers' candidates,
	// including the winner's own scheduled entry.
	trashed, err := m.act.Trashable(winner)
	if err != nil {
		m.endLegSpan(legSpan, err)
		return false, err
	}
	for _, h := range trashed {
		if err := m.queue.Cancel(h); err != nil {
			serr := &SchedulerError{Op: "cancel", Err: err}
			m.endLegSpan(legSpan, serr)
			return false, serr
		}
		delete(m.aux, h)
	}

	done := false
	if d := m.byHandler[winner]; d.Mediate != nil {
		if err := d.Mediate(legCtx, m); err != nil {
			if !errors.Is(err, ErrEndOfRun) {
				herr := &HandlerError{Handler: m.handlerName(winner), Kind: kind, Op: "mediate", Err: err}
				m.endLegSpan(legSpan, herr)
				return false, herr
			}
			done = true
		}
	}

	m.metrics.RecordLeg(legCtx, kind, time.Since(start), true)
	observability.LogLegCommitted(logger, kind, t.Float())
	m.endLegSpan(legSpan, nil)

	if !done && m.snapStore != nil && m.snapEvery > 0 && m.legs%m.snapEvery == 0 {
		if err := m.WriteSnapshot(legCtx); err != nil {
			if m.snapFatal {
				return false, err
			}
			observability.LogSnapshotError(logger, m.runID, "save", err)
		}
	}

	return done, nil
}

func (m *Mediator) endLegSpan(span trace.Span, err error) {
	if m.tracing {
		m.spans.EndSpanWithError(span, err)
	}
}

// postRun finalizes every output after a clean end of run.
func (m *Mediator) postRun() error {
	return m.outputs.Flush()
}
