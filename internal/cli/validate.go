package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidationResult holds the outcome of a full dataset walk.
type ValidationResult struct {
	Total  int               `json:"total"`
	Valid  int               `json:"valid"`
	Broken []SequenceFailure `json:"broken,omitempty"`
}

// SequenceFailure is one sequence that failed to load.
type SequenceFailure struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load every sequence and report the broken ones",
		Long: `Validate walks the whole dataset, loading each sequence in turn:
annotation pickle, primitive program, descriptions and dependency
graph. A broken sequence is reported and skipped; the remaining
sequences are still checked. Exits non-zero when any sequence fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateDataset(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidateDataset(opts *RootOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	ds, err := openDataset(opts, cmd)
	if err != nil {
		formatter.Error(ErrCodeOpen, err.Error(), nil)
		return err
	}

	result := ValidationResult{Total: ds.Len()}
	for _, key := range ds.SequenceKeys() {
		formatter.VerboseLog("checking %s", key)
		if _, err := ds.Get(key); err != nil {
			result.Broken = append(result.Broken, SequenceFailure{
				Key:     key,
				Message: err.Error(),
			})
			continue
		}
		result.Valid++
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d/%d sequence(s) valid\n", result.Valid, result.Total)
		for _, b := range result.Broken {
			fmt.Fprintf(&sb, "  BROKEN %s: %s\n", b.Key, b.Message)
		}
		if err := formatter.Success(strings.TrimRight(sb.String(), "\n")); err != nil {
			return err
		}
	}

	if len(result.Broken) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d broken sequence(s)", len(result.Broken)))
	}
	return nil
}
