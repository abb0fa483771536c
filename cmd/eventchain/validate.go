package main

import (
	"github.com/spf13/cobra"

	"github.com/avandermeer/eventchain/pkg/eventchain/config"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a configuration without running it",
		Long: `Assemble the whole run off disk: parse the configuration, build every
handler pool and generator, and wire the mediator. Every configuration
error a run would hit at startup is reported here instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, root, args[0])
		},
	}
	return cmd
}

func runValidate(cmd *cobra.Command, root *rootOptions, path string) error {
	logger, closeLog, err := root.logger()
	if err != nil {
		return err
	}
	defer closeLog()

	run, err := config.FromFile(path)
	if err != nil {
		return err
	}

	builder := config.NewBuilder(config.WithBuildLogger(logger))
	registerReferencePotentials(builder)
	if err := builder.Check(run); err != nil {
		return err
	}

	cmd.Printf("%s: configuration valid (%d taggers, %d outputs)\n", path, len(run.Taggers), len(run.Outputs))
	return nil
}
