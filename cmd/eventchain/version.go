package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

// version is stamped at release time.
const version = "0.1.0"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the eventchain version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("eventchain %s (%s)\n", version, runtime.Version())
		},
	}
}
