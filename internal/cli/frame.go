package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracelab/bimanip/internal/dataset"
)

// FrameInfo is the JSON payload for the frame command. Matrices are
// flattened row-major; pose tensors are reported by shape only.
type FrameInfo struct {
	Key     string               `json:"key"`
	FrameID int                  `json:"frame_id"`
	Cameras map[string]FrameView `json:"cameras,omitempty"`
	Objects map[string][]float64 `json:"objects,omitempty"`
	Pose    *FramePose           `json:"pose,omitempty"`
}

// FrameView is one camera's calibration in the payload.
type FrameView struct {
	Intrinsics []float64 `json:"intrinsics"` // 3x3 row-major
	Extrinsics []float64 `json:"extrinsics"` // 4x4 row-major
}

// FramePose summarizes the raw pose channels present at the frame.
type FramePose struct {
	Body      []string `json:"body,omitempty"`
	LeftHand  []string `json:"left_hand,omitempty"`
	RightHand []string `json:"right_hand,omitempty"`
}

// NewFrameCommand creates the frame command.
func NewFrameCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "frame <sequence-key> <frame-id>",
		Short:         "Show the merged annotation for one frame",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			frameID, err := strconv.Atoi(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("frame id %q is not an integer", args[1]), err)
			}
			return runFrame(rootOpts, args[0], frameID, cmd)
		},
	}
	return cmd
}

func runFrame(opts *RootOptions, seqKey string, frameID int, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	ds, err := openDataset(opts, cmd)
	if err != nil {
		formatter.Error(ErrCodeOpen, err.Error(), nil)
		return err
	}

	fa, err := ds.Frame(seqKey, frameID)
	if err != nil {
		formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("frame %d of %s", frameID, seqKey), err)
	}

	info := frameInfo(fa)
	if opts.Format == "json" {
		return formatter.Success(info)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "frame %d of %s\n", info.FrameID, info.Key)
	fmt.Fprintf(&sb, "  cameras: %s\n", strings.Join(sortedKeys(info.Cameras), ", "))
	fmt.Fprintf(&sb, "  objects: %s\n", strings.Join(sortedKeys(info.Objects), ", "))
	if info.Pose != nil {
		fmt.Fprintf(&sb, "  pose channels: body=%d lh=%d rh=%d\n",
			len(info.Pose.Body), len(info.Pose.LeftHand), len(info.Pose.RightHand))
	}
	return formatter.Success(strings.TrimRight(sb.String(), "\n"))
}

func frameInfo(fa *dataset.FrameAnnotation) FrameInfo {
	info := FrameInfo{Key: fa.SeqKey, FrameID: fa.FrameID}

	if len(fa.Cameras) > 0 {
		info.Cameras = make(map[string]FrameView, len(fa.Cameras))
		for id, view := range fa.Cameras {
			info.Cameras[id] = FrameView{
				Intrinsics: view.Intrinsics.RawMatrix().Data,
				Extrinsics: view.Extrinsics.RawMatrix().Data,
			}
		}
	}
	if len(fa.Objects) > 0 {
		info.Objects = make(map[string][]float64, len(fa.Objects))
		for id, transf := range fa.Objects {
			info.Objects[id] = transf.RawMatrix().Data
		}
	}
	if fa.Pose != nil {
		pose := &FramePose{}
		for name := range fa.Pose.Body {
			pose.Body = append(pose.Body, name)
		}
		for name := range fa.Pose.LeftHand {
			pose.LeftHand = append(pose.LeftHand, name)
		}
		for name := range fa.Pose.RightHand {
			pose.RightHand = append(pose.RightHand, name)
		}
		sort.Strings(pose.Body)
		sort.Strings(pose.LeftHand)
		sort.Strings(pose.RightHand)
		info.Pose = pose
	}
	return info
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
