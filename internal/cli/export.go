package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracelab/bimanip/internal/index"
)

// ExportResult is the JSON payload for the export command.
type ExportResult struct {
	RunID    string            `json:"run_id"`
	Database string            `json:"database"`
	Exported int               `json:"exported"`
	Skipped  []SequenceFailure `json:"skipped,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "export --db <path>",
		Short: "Export the dataset index into a SQLite database",
		Long: `Export loads every sequence and writes its key facts (task target,
frame range, primitives in execution order, graph edges) into a SQLite
file as one export run. Broken sequences are skipped and reported.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return NewExitError(ExitCommandError, "missing --db path")
			}
			return runExport(rootOpts, dbPath, cmd)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file to write")
	return cmd
}

func runExport(opts *RootOptions, dbPath string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)
	ctx := cmd.Context()

	ds, err := openDataset(opts, cmd)
	if err != nil {
		formatter.Error(ErrCodeOpen, err.Error(), nil)
		return err
	}

	ix, err := index.Open(dbPath)
	if err != nil {
		formatter.Error(ErrCodeExport, err.Error(), nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("open index %s", dbPath), err)
	}
	defer ix.Close()

	runID, err := ix.BeginRun(ctx, opts.Prefix)
	if err != nil {
		formatter.Error(ErrCodeExport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "begin export run", err)
	}

	result := ExportResult{RunID: runID, Database: dbPath}
	for _, key := range ds.SequenceKeys() {
		seq, err := ds.Get(key)
		if err != nil {
			result.Skipped = append(result.Skipped, SequenceFailure{Key: key, Message: err.Error()})
			continue
		}
		if err := ix.WriteSequence(ctx, runID, seq); err != nil {
			formatter.Error(ErrCodeExport, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("export sequence %s", key), err)
		}
		result.Exported++
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "exported %d sequence(s) to %s (run %s)\n", result.Exported, dbPath, runID)
	for _, s := range result.Skipped {
		fmt.Fprintf(&sb, "  SKIPPED %s: %s\n", s.Key, s.Message)
	}
	return formatter.Success(strings.TrimRight(sb.String(), "\n"))
}
