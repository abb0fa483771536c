package eventchain

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Factory builds the mediator of one replica. Each replica needs its own
// collaborators end to end; mediators share nothing.
type Factory func(replica int) (*Mediator, error)

// RunMany executes n statistically independent replicas concurrently and
// waits for all of them. At most limit replicas run at once; zero means no
// limit. The first failure cancels the context the remaining replicas run
// under and is returned, wrapped with the replica index.
//
// Replicas that should differ only in their noise get distinct seeds from
// the factory:
//
//	err := eventchain.RunMany(ctx, 16, 4, func(replica int) (*eventchain.Mediator, error) {
//	    return buildMediator(eventchain.WithRNG(rng.New(uint64(replica))))
//	})
func RunMany(ctx context.Context, n, limit int, factory Factory, opts ...RunOption) error {
	if ctx == nil {
		return ErrNilContext
	}
	if n <= 0 {
		return &ConfigurationError{Component: "replicas", Reason: fmt.Sprintf("count must be positive, got %d", n)}
	}
	if factory == nil {
		return &ConfigurationError{Component: "replicas", Reason: "factory must not be nil"}
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			m, err := factory(i)
			if err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			if err := m.Run(gctx, opts...); err != nil {
				return fmt.Errorf("replica %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
