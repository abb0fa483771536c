package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avandermeer/eventchain/pkg/eventchain"
	"github.com/avandermeer/eventchain/pkg/eventchain/config"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	*rootOptions
	seed     uint64
	maxLegs  uint64
	metrics  bool
	tracing  bool
	replicas int
	jobs     int
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Start a run from a configuration file",
		Long: `Start an event-chain Monte Carlo run from a YAML configuration.

The run commits events until its end-of-run handler fires or the process
receives an interrupt; an interrupted run with a configured snapshot store
dumps a final snapshot so "eventchain resume" can continue it.

Example:
  eventchain run dipoles.yaml --seed 42
  eventchain run dipoles.yaml --replicas 8 --jobs 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args[0])
		},
	}

	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "override the configured random seed")
	cmd.Flags().Uint64Var(&opts.maxLegs, "max-legs", 0, "stop after this many committed events (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "record OpenTelemetry metrics")
	cmd.Flags().BoolVar(&opts.tracing, "tracing", false, "record OpenTelemetry spans per run and leg")
	cmd.Flags().IntVar(&opts.replicas, "replicas", 1, "number of independent replicas to run")
	cmd.Flags().IntVar(&opts.jobs, "jobs", 0, "replicas running at once (0 = all)")

	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions, path string) error {
	logger, closeLog, err := opts.logger()
	if err != nil {
		return err
	}
	defer closeLog()

	run, err := config.FromFile(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		run.Seed = opts.seed
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := config.NewBuilder(config.WithBuildLogger(logger))
	registerReferencePotentials(builder)

	mopts := []eventchain.Option{
		eventchain.WithMetrics(opts.metrics),
		eventchain.WithTracing(opts.tracing),
	}
	var ropts []eventchain.RunOption
	if opts.maxLegs > 0 {
		ropts = append(ropts, eventchain.WithMaxLegs(opts.maxLegs))
	}

	if opts.replicas > 1 {
		return eventchain.RunMany(ctx, opts.replicas, opts.jobs, func(replica int) (*eventchain.Mediator, error) {
			return builder.Build(replicaRun(run, replica), mopts...)
		}, ropts...)
	}

	m, err := builder.Build(run, mopts...)
	if err != nil {
		return err
	}
	cmd.Printf("run %s seed %d\n", m.RunID(), run.Seed)

	err = m.Run(ctx, ropts...)
	var cancelled *eventchain.CancellationError
	if errors.As(err, &cancelled) && run.Snapshots != nil {
		// Interrupted with a snapshot store configured: dump a final
		// snapshot so resume continues at the cancelled leg.
		if serr := m.WriteSnapshot(cmd.Context()); serr != nil {
			logger.Error("final snapshot failed", "error", serr)
		} else {
			cmd.Printf("interrupted after %d legs, snapshot written; resume with: eventchain resume %s --snapshots %s\n",
				cancelled.Legs, m.RunID(), run.Snapshots.Path)
		}
	}
	return err
}

// replicaRun derives one replica's configuration: a shifted seed and
// per-replica output paths so concurrent replicas never write the same file.
func replicaRun(base *config.Run, replica int) *config.Run {
	rc := *base
	rc.Seed = base.Seed + uint64(replica)
	rc.Outputs = make([]config.Output, len(base.Outputs))
	copy(rc.Outputs, base.Outputs)
	for i := range rc.Outputs {
		if rc.Outputs[i].Path != "" {
			rc.Outputs[i].Path = fmt.Sprintf("%s.%d", rc.Outputs[i].Path, replica)
		}
	}
	return &rc
}
