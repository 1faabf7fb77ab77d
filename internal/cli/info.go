package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SequenceInfo is the JSON payload for the info command.
type SequenceInfo struct {
	Key        string          `json:"key"`
	Token      string          `json:"token"`
	TaskTarget string          `json:"task_target"`
	FrameRange [2]int          `json:"frame_range"`
	IsComplex  bool            `json:"is_complex"`
	ExecPath   []string        `json:"exec_path"`
	Cameras    []string        `json:"cameras"`
	Objects    []string        `json:"objects"`
	Primitives []PrimitiveInfo `json:"primitives"`
}

// PrimitiveInfo is one primitive in the info payload.
type PrimitiveInfo struct {
	Key       string   `json:"key"`
	Segment   string   `json:"segment"`
	Mode      string   `json:"mode"`
	Objects   []string `json:"objects,omitempty"`
	Desc      string   `json:"desc,omitempty"`
	Transient bool     `json:"transient,omitempty"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "info <sequence-key>",
		Short:         "Show one sequence's program, frame range and objects",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInfo(opts *RootOptions, seqKey string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	ds, err := openDataset(opts, cmd)
	if err != nil {
		formatter.Error(ErrCodeOpen, err.Error(), nil)
		return err
	}

	seq, err := ds.Get(seqKey)
	if err != nil {
		formatter.Error(ErrCodeSequence, err.Error(), nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("load sequence %s", seqKey), err)
	}

	info := SequenceInfo{
		Key:        seq.Key,
		Token:      seq.Token,
		TaskTarget: seq.TaskTarget,
		FrameRange: seq.FrameRange,
		IsComplex:  seq.IsComplex,
		ExecPath:   seq.ExecPath,
		Cameras:    seq.Annotations.CameraIDs(),
		Objects:    seq.Annotations.ObjectIDs(),
	}
	for _, p := range seq.Primitives.Primitives {
		info.Primitives = append(info.Primitives, PrimitiveInfo{
			Key:       p.Key,
			Segment:   p.Segment,
			Mode:      string(p.Mode),
			Objects:   p.Objects,
			Desc:      p.Desc,
			Transient: p.Transient,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(info)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "sequence:    %s\n", info.Key)
	fmt.Fprintf(&sb, "task target: %s\n", info.TaskTarget)
	fmt.Fprintf(&sb, "frames:      [%d, %d]\n", info.FrameRange[0], info.FrameRange[1])
	fmt.Fprintf(&sb, "complex:     %v\n", info.IsComplex)
	fmt.Fprintf(&sb, "cameras:     %s\n", strings.Join(info.Cameras, ", "))
	fmt.Fprintf(&sb, "objects:     %s\n", strings.Join(info.Objects, ", "))
	fmt.Fprintf(&sb, "primitives (%d):\n", len(info.Primitives))
	for _, p := range info.Primitives {
		marker := ""
		if p.Transient {
			marker = " (transient)"
		}
		fmt.Fprintf(&sb, "  %-28s %-14s %s%s\n", p.Key, p.Segment, p.Mode, marker)
	}
	return formatter.Success(strings.TrimRight(sb.String(), "\n"))
}
