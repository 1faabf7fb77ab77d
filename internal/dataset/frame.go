package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tracelab/bimanip/internal/anno"
)

// CameraView is one camera's calibration at one frame.
type CameraView struct {
	Intrinsics *mat.Dense // 3x3
	Extrinsics *mat.Dense // 4x4
}

// FrameAnnotation is the merged per-frame view: camera calibration for
// video frames, object transforms and raw pose for mocap frames.
type FrameAnnotation struct {
	SeqKey  string
	FrameID int

	// Cameras is populated when FrameID is in the video frame-id list.
	Cameras map[string]CameraView
	// Objects and Pose are populated when FrameID is in the mocap
	// frame-id list.
	Objects map[string]*mat.Dense
	Pose    *anno.PoseRecord
}

// Frame composes camera, object and pose data for one frame of a
// sequence. The frame id must appear in at least one of the sequence's
// frame-id lists.
func (d *Dataset) Frame(seqKey string, frameID int) (*FrameAnnotation, error) {
	seq, err := d.Get(seqKey)
	if err != nil {
		return nil, err
	}
	store := seq.Annotations
	inVideo := store.HasFrame(frameID)
	inMocap := store.HasMocapFrame(frameID)
	if !inVideo && !inMocap {
		return nil, &anno.KeyNotFoundError{Kind: "frame", FrameID: frameID}
	}

	fa := &FrameAnnotation{SeqKey: seqKey, FrameID: frameID}
	if inVideo {
		fa.Cameras = make(map[string]CameraView)
		for _, camID := range store.CameraIDs() {
			intr, err := store.CameraIntrinsics(camID, frameID)
			if err != nil {
				return nil, err
			}
			extr, err := store.CameraExtrinsics(camID, frameID)
			if err != nil {
				return nil, err
			}
			fa.Cameras[camID] = CameraView{Intrinsics: intr, Extrinsics: extr}
		}
	}
	if inMocap {
		fa.Objects = make(map[string]*mat.Dense)
		for _, objID := range store.ObjectIDs() {
			transf, err := store.ObjectTransform(objID, frameID)
			if err != nil {
				return nil, err
			}
			fa.Objects[objID] = transf
		}
		pose, err := store.RawPose(frameID)
		if err != nil {
			return nil, err
		}
		fa.Pose = pose
	}
	return fa, nil
}
