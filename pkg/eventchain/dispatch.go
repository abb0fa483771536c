package eventchain

import (
	"context"
	"fmt"

	"github.com/avandermeer/eventchain/pkg/eventchain/handler"
	"github.com/avandermeer/eventchain/pkg/eventchain/state"
)

// Dispatch binds one handler kind to the kernel. BuildArgs constructs the
// Confirm arguments after a candidate of this kind won the race; Mediate
// runs the side effect after its out-state was committed. Either field may
// be nil: kinds with confirm arity zero need no BuildArgs, kinds without
// side effects need no Mediate.
//
// The built-in kinds of the reference handlers are bound automatically;
// WithDispatch binds additional kinds. Binding a kind twice fails New with
// an AmbiguousDispatchError.
type Dispatch struct {
	// BuildArgs turns the winning handler's stored supplementary objects
	// into Confirm arguments. Required for kinds whose confirm arity is not
	// zero.
	BuildArgs func(m *Mediator, aux []any) ([]*state.Branch, error)

	// Mediate runs after the out-state went into the global state.
	// Returning ErrEndOfRun ends the run cleanly; any other error aborts
	// it.
	Mediate func(ctx context.Context, m *Mediator) error
}

// builtinDispatches binds the kinds of the reference handlers. Kinds with
// confirm arity zero (pair-collider, factor-exchange) need no binding: they
// keep their in-state internally and have no side effects.
func builtinDispatches() map[string]Dispatch {
	return map[string]Dispatch{
		"chain-start":      {BuildArgs: IdentifierArgs},
		"direction-switch": {BuildArgs: ActiveArgs},
		"interval-sampler": {BuildArgs: ActiveArgs, Mediate: WriteFullState},
		"end-of-run":       {BuildArgs: ActiveArgs, Mediate: EndRun},
		"snapshot-dump":    {Mediate: DumpRun},
	}
}

// ActiveArgs returns the active global state: the branch of every
// independently lifted unit.
func ActiveArgs(m *Mediator, aux []any) ([]*state.Branch, error) {
	return m.Active(), nil
}

// IdentifierArgs extracts the branch of every identifier the winning handler
// returned as a supplementary object with its candidate time.
func IdentifierArgs(m *Mediator, aux []any) ([]*state.Branch, error) {
	branches := make([]*state.Branch, 0, len(aux))
	for _, a := range aux {
		id, ok := a.(state.ID)
		if !ok {
			return nil, fmt.Errorf("supplementary object %T is not a state identifier", a)
		}
		branches = append(branches, m.Extract(id))
	}
	return branches, nil
}

// CellOccupantArgs resolves a cell index the winning handler returned as a
// supplementary object through its tagger's internal state and extracts the
// occupant's branch. An empty target cell yields nil arguments.
func CellOccupantArgs(m *Mediator, aux []any) ([]*state.Branch, error) {
	if len(aux) != 1 {
		return nil, fmt.Errorf("expected one supplementary cell index, got %d", len(aux))
	}
	cell, ok := aux[0].(int)
	if !ok {
		return nil, fmt.Errorf("supplementary object %T is not a cell index", aux[0])
	}
	id, ok := m.OccupantLookup(cell)
	if !ok {
		return nil, nil
	}
	return []*state.Branch{m.Extract(id)}, nil
}

// WriteFullState writes the full global state to the winning handler's named
// output. Handlers without an output name write nothing.
func WriteFullState(ctx context.Context, m *Mediator) error {
	name := outputName(m.Committed())
	if name == "" {
		return nil
	}
	return m.WriteOutput(name)
}

// EndRun writes the full state like WriteFullState and then ends the run.
func EndRun(ctx context.Context, m *Mediator) error {
	if err := WriteFullState(ctx, m); err != nil {
		return err
	}
	return ErrEndOfRun
}

// DumpRun persists a snapshot of the whole run to the configured snapshot
// store.
func DumpRun(ctx context.Context, m *Mediator) error {
	return m.WriteSnapshot(ctx)
}

func outputName(h handler.EventHandler) string {
	if n, ok := h.(handler.OutputNamer); ok {
		return n.OutputName()
	}
	return ""
}
