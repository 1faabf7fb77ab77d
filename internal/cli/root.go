// Package cli implements the bimanip command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tracelab/bimanip/internal/dataset"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Prefix     string // dataset root directory
	ConfigPath string // optional YAML config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bimanip CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bimanip",
		Short: "Inspect bimanual manipulation annotations and dependency graphs",
		Long: `bimanip walks a bimanual hands-object manipulation dataset, parses its
primitive programs, builds the primitive dependency graph per sequence
and answers queries against the result.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "", "dataset root directory")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")

	cmd.AddCommand(NewSequencesCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewPDGCommand(opts))
	cmd.AddCommand(NewFrameCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openDataset resolves config + flags into an opened dataset.
func openDataset(opts *RootOptions, cmd *cobra.Command) (*dataset.Dataset, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	cfg = cfg.Merge(opts.Prefix)

	if cfg.Prefix == "" {
		return nil, NewExitError(ExitCommandError, "no dataset prefix: pass --prefix or set it in --config")
	}

	logger := newLogger(opts, cmd)
	ds, err := dataset.Open(cfg.Prefix, dataset.Options{
		AnnoOffset:       cfg.AnnoOffset,
		ObjOffset:        cfg.ObjOffset,
		AffordanceOffset: cfg.AffordanceOffset,
		StrictOrphans:    cfg.StrictOrphans,
		Logger:           &logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open dataset at %s", cfg.Prefix), err)
	}
	return ds, nil
}

// newLogger builds the command logger. Diagnostics go to stderr so JSON
// output on stdout stays parseable.
func newLogger(opts *RootOptions, cmd *cobra.Command) zerolog.Logger {
	level := zerolog.WarnLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// formatterFor builds the output formatter for a command invocation.
func formatterFor(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// Execute runs the root command and maps errors to exit codes.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}
