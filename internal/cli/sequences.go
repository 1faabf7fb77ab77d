package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracelab/bimanip/internal/dataset"
)

// SequenceListing is the JSON payload for the sequences command.
type SequenceListing struct {
	Count     int            `json:"count"`
	Sequences []SequenceItem `json:"sequences"`
}

// SequenceItem is one listed sequence.
type SequenceItem struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

// NewSequencesCommand creates the sequences command.
func NewSequencesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sequences",
		Short:         "List the sequence keys of the dataset",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSequences(rootOpts, cmd)
		},
	}
	return cmd
}

func runSequences(opts *RootOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	ds, err := openDataset(opts, cmd)
	if err != nil {
		formatter.Error(ErrCodeOpen, err.Error(), nil)
		return err
	}

	keys := ds.SequenceKeys()
	listing := SequenceListing{Count: len(keys)}
	for _, k := range keys {
		listing.Sequences = append(listing.Sequences, SequenceItem{Key: k, Token: dataset.Token(k)})
	}

	if opts.Format == "json" {
		return formatter.Success(listing)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d sequence(s)\n", listing.Count)
	for _, s := range listing.Sequences {
		fmt.Fprintf(&sb, "  %s\n", s.Key)
	}
	return formatter.Success(strings.TrimRight(sb.String(), "\n"))
}
