// Package anno loads the per-sequence annotation blob and exposes
// frame-indexed accessors over cameras, object transforms and raw pose
// tensors.
//
// The blob is one pickled dictionary per sequence with the keys
// cam_def, cam_selection, frame_id_list, cam_intr, cam_extr,
// mocap_frame_id_list, obj_list, obj_transf, raw_smplx and raw_mano.
// All shape validation happens once at Load; the resulting Store is
// immutable and performs no further checks beyond key lookups.
//
// Camera data is indexed by the video frame-id list; object transforms
// and pose tensors are indexed by the mocap frame-id list.
package anno

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/tracelab/bimanip/internal/pkl"
)

// Store is the immutable per-sequence annotation handle.
type Store struct {
	path string

	camDef       map[string]string
	camSelection []string
	frameIDs     []int
	mocapIDs     []int
	mocapSet     map[int]struct{}
	frameSet     map[int]struct{}

	camIntr   map[string]map[int]*mat.Dense // 3x3 per camera per frame
	camExtr   map[string]map[int]*mat.Dense // 4x4 per camera per frame
	objList   []string
	objTransf map[string]map[int]*mat.Dense // 4x4 per object per mocap frame

	bodyPose  map[int]map[string]*pkl.Tensor
	leftPose  map[int]map[string]*pkl.Tensor
	rightPose map[int]map[string]*pkl.Tensor
}

var requiredKeys = []string{
	"cam_def", "cam_selection", "frame_id_list", "cam_intr", "cam_extr",
	"mocap_frame_id_list", "obj_list", "obj_transf", "raw_smplx", "raw_mano",
}

// Load reads and validates the pickled annotation blob at path.
func Load(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingFileError{Path: path, Err: err}
		}
		return nil, err
	}
	raw, err := pkl.Load(path)
	if err != nil {
		return nil, &SchemaError{Path: path, Reason: err.Error()}
	}
	root, ok := raw.(*pkl.Dict)
	if !ok {
		return nil, &SchemaError{Path: path, Reason: fmt.Sprintf("top-level value is %T, want dict", raw)}
	}
	for _, key := range requiredKeys {
		if _, ok := root.Get(key); !ok {
			return nil, &SchemaError{Path: path, Key: key, Reason: "required key absent"}
		}
	}

	s := &Store{path: path}
	if s.camDef, err = stringMap(root, "cam_def"); err != nil {
		return nil, &SchemaError{Path: path, Key: "cam_def", Reason: err.Error()}
	}
	if s.camSelection, err = stringList(root, "cam_selection"); err != nil {
		return nil, &SchemaError{Path: path, Key: "cam_selection", Reason: err.Error()}
	}
	if s.frameIDs, err = frameList(root, "frame_id_list"); err != nil {
		return nil, &SchemaError{Path: path, Key: "frame_id_list", Reason: err.Error()}
	}
	if s.mocapIDs, err = frameList(root, "mocap_frame_id_list"); err != nil {
		return nil, &SchemaError{Path: path, Key: "mocap_frame_id_list", Reason: err.Error()}
	}
	if s.objList, err = stringList(root, "obj_list"); err != nil {
		return nil, &SchemaError{Path: path, Key: "obj_list", Reason: err.Error()}
	}
	s.frameSet = frameSet(s.frameIDs)
	s.mocapSet = frameSet(s.mocapIDs)

	if s.camIntr, err = s.loadCamera(root, "cam_intr", 3); err != nil {
		return nil, err
	}
	if s.camExtr, err = s.loadCamera(root, "cam_extr", 4); err != nil {
		return nil, err
	}
	if s.objTransf, err = s.loadObjects(root); err != nil {
		return nil, err
	}
	if err := s.loadPose(root); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the annotation file this store was loaded from.
func (s *Store) Path() string { return s.path }

// FrameIDs returns the ascending, duplicate-free video frame ids.
func (s *Store) FrameIDs() []int { return append([]int(nil), s.frameIDs...) }

// MocapFrameIDs returns the ascending, duplicate-free mocap frame ids
// that index object transforms and pose tensors.
func (s *Store) MocapFrameIDs() []int { return append([]int(nil), s.mocapIDs...) }

// HasFrame reports membership of frameID in the video frame-id list.
func (s *Store) HasFrame(frameID int) bool {
	_, ok := s.frameSet[frameID]
	return ok
}

// HasMocapFrame reports membership of frameID in the mocap frame-id list.
func (s *Store) HasMocapFrame(frameID int) bool {
	_, ok := s.mocapSet[frameID]
	return ok
}

// CameraIDs returns the sequence's camera selection.
func (s *Store) CameraIDs() []string { return append([]string(nil), s.camSelection...) }

// CameraDef returns the camera definition map (camera id to device name).
func (s *Store) CameraDef() map[string]string {
	out := make(map[string]string, len(s.camDef))
	for k, v := range s.camDef {
		out[k] = v
	}
	return out
}

// ObjectIDs returns the scene object list.
func (s *Store) ObjectIDs() []string { return append([]string(nil), s.objList...) }

// CameraIntrinsics returns the 3x3 intrinsics of camID at frameID.
func (s *Store) CameraIntrinsics(camID string, frameID int) (*mat.Dense, error) {
	return s.cameraLookup(s.camIntr, camID, frameID)
}

// CameraExtrinsics returns the 4x4 extrinsics of camID at frameID.
func (s *Store) CameraExtrinsics(camID string, frameID int) (*mat.Dense, error) {
	return s.cameraLookup(s.camExtr, camID, frameID)
}

func (s *Store) cameraLookup(table map[string]map[int]*mat.Dense, camID string, frameID int) (*mat.Dense, error) {
	perFrame, ok := table[camID]
	if !ok {
		return nil, &KeyNotFoundError{Kind: "camera", Key: camID, FrameID: frameID}
	}
	if !s.HasFrame(frameID) {
		return nil, &KeyNotFoundError{Kind: "frame", FrameID: frameID}
	}
	m, ok := perFrame[frameID]
	if !ok {
		return nil, &KeyNotFoundError{Kind: "camera", Key: camID, FrameID: frameID}
	}
	return m, nil
}

// ObjectTransform returns the 4x4 rigid transform of objID at the given
// mocap frame.
func (s *Store) ObjectTransform(objID string, frameID int) (*mat.Dense, error) {
	perFrame, ok := s.objTransf[objID]
	if !ok {
		return nil, &KeyNotFoundError{Kind: "object", Key: objID, FrameID: frameID}
	}
	if !s.HasMocapFrame(frameID) {
		return nil, &KeyNotFoundError{Kind: "mocap frame", FrameID: frameID}
	}
	m, ok := perFrame[frameID]
	if !ok {
		return nil, &KeyNotFoundError{Kind: "object", Key: objID, FrameID: frameID}
	}
	return m, nil
}

// PoseRecord is the opaque per-frame pose payload: body model tensors
// plus the per-hand tensor groups split out of the bimanual hand blob.
type PoseRecord struct {
	FrameID   int
	Body      map[string]*pkl.Tensor
	LeftHand  map[string]*pkl.Tensor
	RightHand map[string]*pkl.Tensor
}

// RawPose returns the pose tensors for one mocap frame.
func (s *Store) RawPose(frameID int) (*PoseRecord, error) {
	if !s.HasMocapFrame(frameID) {
		return nil, &KeyNotFoundError{Kind: "mocap frame", FrameID: frameID}
	}
	return &PoseRecord{
		FrameID:   frameID,
		Body:      s.bodyPose[frameID],
		LeftHand:  s.leftPose[frameID],
		RightHand: s.rightPose[frameID],
	}, nil
}

// loadCamera converts one of cam_intr/cam_extr into typed matrices,
// restricted to the camera selection, requiring an n x n entry for
// every selected camera and every video frame.
func (s *Store) loadCamera(root *pkl.Dict, key string, dim int) (map[string]map[int]*mat.Dense, error) {
	table, err := dictValue(root, key)
	if err != nil {
		return nil, &SchemaError{Path: s.path, Key: key, Reason: err.Error()}
	}
	out := make(map[string]map[int]*mat.Dense, len(s.camSelection))
	for _, camID := range s.camSelection {
		rawPerFrame, ok := table.Get(camID)
		if !ok {
			return nil, &SchemaError{Path: s.path, Key: key, Reason: fmt.Sprintf("selected camera %q absent", camID)}
		}
		perFrame, ok := rawPerFrame.(*pkl.Dict)
		if !ok {
			return nil, &SchemaError{Path: s.path, Key: key, Reason: fmt.Sprintf("camera %q maps to %T, want dict", camID, rawPerFrame)}
		}
		frames := make(map[int]*mat.Dense, perFrame.Len())
		for _, fid := range s.frameIDs {
			raw, ok := perFrame.Get(fid)
			if !ok {
				return nil, &SchemaError{Path: s.path, Key: key, Reason: fmt.Sprintf("camera %q missing frame %d", camID, fid)}
			}
			m, err := denseMatrix(raw, dim)
			if err != nil {
				return nil, &SchemaError{Path: s.path, Key: key, Reason: fmt.Sprintf("camera %q frame %d: %v", camID, fid, err)}
			}
			frames[fid] = m
		}
		out[camID] = frames
	}
	return out, nil
}

// loadObjects converts obj_transf into typed matrices over the mocap
// frame-id list for every object in obj_list.
func (s *Store) loadObjects(root *pkl.Dict) (map[string]map[int]*mat.Dense, error) {
	table, err := dictValue(root, "obj_transf")
	if err != nil {
		return nil, &SchemaError{Path: s.path, Key: "obj_transf", Reason: err.Error()}
	}
	out := make(map[string]map[int]*mat.Dense, len(s.objList))
	for _, objID := range s.objList {
		rawPerFrame, ok := table.Get(objID)
		if !ok {
			return nil, &SchemaError{Path: s.path, Key: "obj_transf", Reason: fmt.Sprintf("object %q absent", objID)}
		}
		perFrame, ok := rawPerFrame.(*pkl.Dict)
		if !ok {
			return nil, &SchemaError{Path: s.path, Key: "obj_transf", Reason: fmt.Sprintf("object %q maps to %T, want dict", objID, rawPerFrame)}
		}
		frames := make(map[int]*mat.Dense, perFrame.Len())
		for _, fid := range s.mocapIDs {
			raw, ok := perFrame.Get(fid)
			if !ok {
				return nil, &SchemaError{Path: s.path, Key: "obj_transf", Reason: fmt.Sprintf("object %q missing mocap frame %d", objID, fid)}
			}
			m, err := denseMatrix(raw, 4)
			if err != nil {
				return nil, &SchemaError{Path: s.path, Key: "obj_transf", Reason: fmt.Sprintf("object %q frame %d: %v", objID, fid, err)}
			}
			frames[fid] = m
		}
		out[objID] = frames
	}
	return out, nil
}

// loadPose splits raw_smplx into the body table and raw_mano into the
// two per-hand tables (keys prefixed lh__ and rh__). Tensors stay
// opaque; only presence per mocap frame is checked.
func (s *Store) loadPose(root *pkl.Dict) error {
	body, err := dictValue(root, "raw_smplx")
	if err != nil {
		return &SchemaError{Path: s.path, Key: "raw_smplx", Reason: err.Error()}
	}
	hands, err := dictValue(root, "raw_mano")
	if err != nil {
		return &SchemaError{Path: s.path, Key: "raw_mano", Reason: err.Error()}
	}

	s.bodyPose = make(map[int]map[string]*pkl.Tensor, len(s.mocapIDs))
	s.leftPose = make(map[int]map[string]*pkl.Tensor, len(s.mocapIDs))
	s.rightPose = make(map[int]map[string]*pkl.Tensor, len(s.mocapIDs))
	for _, fid := range s.mocapIDs {
		bodyParams, err := tensorGroup(body, fid)
		if err != nil {
			return &SchemaError{Path: s.path, Key: "raw_smplx", Reason: err.Error()}
		}
		s.bodyPose[fid] = bodyParams

		handParams, err := tensorGroup(hands, fid)
		if err != nil {
			return &SchemaError{Path: s.path, Key: "raw_mano", Reason: err.Error()}
		}
		left := make(map[string]*pkl.Tensor)
		right := make(map[string]*pkl.Tensor)
		for name, tensor := range handParams {
			switch {
			case strings.HasPrefix(name, "lh__"):
				left[strings.TrimPrefix(name, "lh__")] = tensor
			case strings.HasPrefix(name, "rh__"):
				right[strings.TrimPrefix(name, "rh__")] = tensor
			default:
				return &SchemaError{
					Path: s.path, Key: "raw_mano",
					Reason: fmt.Sprintf("frame %d: param %q has no hand prefix", fid, name),
				}
			}
		}
		s.leftPose[fid] = left
		s.rightPose[fid] = right
	}
	return nil
}

func tensorGroup(table *pkl.Dict, fid int) (map[string]*pkl.Tensor, error) {
	raw, ok := table.Get(fid)
	if !ok {
		return nil, fmt.Errorf("missing mocap frame %d", fid)
	}
	group, ok := raw.(*pkl.Dict)
	if !ok {
		return nil, fmt.Errorf("frame %d maps to %T, want dict", fid, raw)
	}
	out := make(map[string]*pkl.Tensor, group.Len())
	for _, key := range group.Keys() {
		name, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("frame %d: param key %v is %T, want string", fid, key, key)
		}
		value, _ := group.Get(key)
		tensor, ok := value.(*pkl.Tensor)
		if !ok {
			return nil, fmt.Errorf("frame %d: param %q is %T, want array", fid, name, value)
		}
		out[name] = tensor
	}
	return out, nil
}

func dictValue(root *pkl.Dict, key string) (*pkl.Dict, error) {
	raw, _ := root.Get(key)
	d, ok := raw.(*pkl.Dict)
	if !ok {
		return nil, fmt.Errorf("value is %T, want dict", raw)
	}
	return d, nil
}

func stringMap(root *pkl.Dict, key string) (map[string]string, error) {
	d, err := dictValue(root, key)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, d.Len())
	for _, k := range d.Keys() {
		name, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("key %v is %T, want string", k, k)
		}
		v, _ := d.Get(k)
		sv, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("value for %q is %T, want string", name, v)
		}
		out[name] = sv
	}
	return out, nil
}

func stringList(root *pkl.Dict, key string) ([]string, error) {
	raw, _ := root.Get(key)
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("value is %T, want list", raw)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want string", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// frameList decodes a frame-id list and enforces the ascending,
// duplicate-free contract of the accessors.
func frameList(root *pkl.Dict, key string) ([]int, error) {
	raw, _ := root.Get(key)
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("value is %T, want list", raw)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("frame-id list is empty")
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		n, ok := item.(int)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want int", i, item)
		}
		out = append(out, n)
	}
	sorted := append([]int(nil), out...)
	sort.Ints(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("duplicate frame id %d", sorted[i])
		}
	}
	return sorted, nil
}

func frameSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// denseMatrix converts a pickled array into an n x n gonum matrix.
// Accepts shape (n, n) or a flat (n*n,) vector.
func denseMatrix(raw any, n int) (*mat.Dense, error) {
	tensor, ok := raw.(*pkl.Tensor)
	if !ok {
		return nil, fmt.Errorf("value is %T, want array", raw)
	}
	switch {
	case len(tensor.Shape) == 2 && tensor.Shape[0] == n && tensor.Shape[1] == n:
	case len(tensor.Shape) == 1 && tensor.Shape[0] == n*n:
	default:
		return nil, fmt.Errorf("array shape %v, want (%d, %d)", tensor.Shape, n, n)
	}
	data := make([]float64, len(tensor.Data))
	copy(data, tensor.Data)
	return mat.NewDense(n, n, data), nil
}
