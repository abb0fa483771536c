package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avandermeer/eventchain/pkg/eventchain"
	"github.com/avandermeer/eventchain/pkg/eventchain/config"
	"github.com/avandermeer/eventchain/pkg/eventchain/snapshot"
)

// resumeOptions holds the flags of the resume command.
type resumeOptions struct {
	*rootOptions
	store   string
	atLegs  uint64
	maxLegs uint64
	metrics bool
	tracing bool
}

func newResumeCommand(root *rootOptions) *cobra.Command {
	opts := &resumeOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a dumped run from its snapshot store",
		Long: `Continue a run from a snapshot. The snapshot carries the run's raw
configuration, so the mediator is rebuilt from the snapshot store alone and
rewound to the dumped leg before the loop continues.

Example:
  eventchain resume 2f0b34da-... --snapshots run.db
  eventchain resume 2f0b34da-... --snapshots run.db --at-legs 50000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.store, "snapshots", "", "path to the sqlite snapshot store (required)")
	_ = cmd.MarkFlagRequired("snapshots")
	cmd.Flags().Uint64Var(&opts.atLegs, "at-legs", 0, "resume at this leg count instead of the latest snapshot")
	cmd.Flags().Uint64Var(&opts.maxLegs, "max-legs", 0, "stop after this many additional events (0 = unbounded)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "record OpenTelemetry metrics")
	cmd.Flags().BoolVar(&opts.tracing, "tracing", false, "record OpenTelemetry spans per run and leg")

	return cmd
}

func runResume(cmd *cobra.Command, opts *resumeOptions, runID string) error {
	logger, closeLog, err := opts.logger()
	if err != nil {
		return err
	}
	defer closeLog()

	snap, err := loadSnapshot(opts.store, runID, opts.atLegs)
	if err != nil {
		return err
	}
	if len(snap.Config) == 0 {
		return fmt.Errorf("snapshot of run %s carries no configuration", runID)
	}
	run, err := config.FromYAML(snap.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := config.NewBuilder(config.WithBuildLogger(logger))
	registerReferencePotentials(builder)
	m, err := builder.Build(run,
		eventchain.WithRunID(snap.RunID),
		eventchain.WithMetrics(opts.metrics),
		eventchain.WithTracing(opts.tracing),
	)
	if err != nil {
		return err
	}
	if err := m.RestoreSnapshot(snap); err != nil {
		return err
	}
	cmd.Printf("run %s resumed at %d legs\n", m.RunID(), m.Legs())

	var ropts []eventchain.RunOption
	if opts.maxLegs > 0 {
		ropts = append(ropts, eventchain.WithMaxLegs(opts.maxLegs))
	}
	return m.Run(ctx, ropts...)
}

// loadSnapshot reads one snapshot out of the store and releases it again;
// the rebuilt mediator opens its own store from the configuration.
func loadSnapshot(path, runID string, atLegs uint64) (*snapshot.Snapshot, error) {
	store, err := snapshot.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var data []byte
	if atLegs > 0 {
		data, err = store.Load(runID, atLegs)
	} else {
		data, err = store.LoadLatest(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot of run %s: %w", runID, err)
	}
	return snapshot.Unmarshal(data)
}
