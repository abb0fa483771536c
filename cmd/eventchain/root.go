package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	verbose bool
	logJSON bool
	logFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "eventchain",
		Short: "Event-chain Monte Carlo runs",
		Long: `eventchain drives event-chain Monte Carlo simulations described by
declarative YAML configurations: the box, the initial state, the tagger
graph of event handlers, the outputs, and the snapshot store of a run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "append logs to a file instead of stderr")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newResumeCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// logger builds the run logger from the global flags. The returned closer
// flushes the log file, if one is configured.
func (o *rootOptions) logger() (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closer := func() {}
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closer = func() { f.Close() }
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	var h slog.Handler
	if o.logJSON {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h), closer, nil
}
