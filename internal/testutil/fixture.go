package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SeqFixture declares one synthetic sequence of a fixture dataset.
// Zero-value fields fall back to a small consistent default: two video
// cameras, one object, and frames covering every primitive interval.
type SeqFixture struct {
	Key        string
	TaskTarget string

	// Raw JSON written under program/. ProgramInfo and PDG are
	// required; DescInfo and InitCondInfo files are omitted when empty.
	ProgramInfo  string
	DescInfo     string
	InitCondInfo string
	PDG          string

	// Annotation payload. FrameIDs is the video list, MocapIDs the
	// mocap list; both default to 0..99.
	FrameIDs []int
	MocapIDs []int
	Cameras  []string
	Objects  []string

	// SkipAnno leaves the pickle out, for missing-file tests.
	SkipAnno bool
	// RawAnno, when set, is written verbatim as the pickle blob.
	RawAnno []byte
}

// Token folds a sequence key into its filename form.
func Token(seqKey string) string {
	return strings.ReplaceAll(seqKey, "/", "++")
}

// WriteDataset materializes a fixture dataset under dir with the
// standard layout (program/, anno_preview/) and returns dir.
func WriteDataset(t *testing.T, dir string, seqs ...SeqFixture) string {
	t.Helper()

	programDir := filepath.Join(dir, "program")
	for _, sub := range []string{"program_info", "desc_info", "initial_condition_info", "pdg"} {
		mustMkdir(t, filepath.Join(programDir, sub))
	}
	mustMkdir(t, filepath.Join(dir, "anno_preview"))

	var target strings.Builder
	target.WriteString("{")
	for i, seq := range seqs {
		if i > 0 {
			target.WriteString(",")
		}
		fmt.Fprintf(&target, "%s: %s", mustJSON(t, seq.Key), mustJSON(t, seq.TaskTarget))
	}
	target.WriteString("}")
	mustWrite(t, filepath.Join(programDir, "task_target.json"), []byte(target.String()))

	for _, seq := range seqs {
		writeSequence(t, dir, seq)
	}
	return dir
}

func writeSequence(t *testing.T, dir string, seq SeqFixture) {
	t.Helper()

	token := Token(seq.Key)
	programDir := filepath.Join(dir, "program")

	mustWrite(t, filepath.Join(programDir, "program_info", token+".json"), []byte(seq.ProgramInfo))
	if seq.DescInfo != "" {
		mustWrite(t, filepath.Join(programDir, "desc_info", token+".json"), []byte(seq.DescInfo))
	}
	if seq.InitCondInfo != "" {
		mustWrite(t, filepath.Join(programDir, "initial_condition_info", token+".json"), []byte(seq.InitCondInfo))
	}
	mustWrite(t, filepath.Join(programDir, "pdg", token+".json"), []byte(seq.PDG))

	if seq.SkipAnno {
		return
	}
	annoPath := filepath.Join(dir, "anno_preview", token+".pkl")
	if seq.RawAnno != nil {
		mustWrite(t, annoPath, seq.RawAnno)
		return
	}
	blob, err := EncodePickle(AnnoDict(seq))
	if err != nil {
		t.Fatalf("encode annotation pickle for %s: %v", seq.Key, err)
	}
	mustWrite(t, annoPath, blob)
}

// AnnoDict builds the annotation dictionary for a fixture sequence in
// the shape the loader expects.
func AnnoDict(seq SeqFixture) map[string]any {
	frameIDs := seq.FrameIDs
	if frameIDs == nil {
		frameIDs = rangeInts(0, 100)
	}
	mocapIDs := seq.MocapIDs
	if mocapIDs == nil {
		mocapIDs = rangeInts(0, 100)
	}
	cameras := seq.Cameras
	if cameras == nil {
		cameras = []string{"cam0", "cam1"}
	}
	objects := seq.Objects
	if objects == nil {
		objects = []string{"bottle"}
	}

	camDef := map[string]any{}
	camIntr := map[string]any{}
	camExtr := map[string]any{}
	for i, cam := range cameras {
		camDef[cam] = fmt.Sprintf("device_%d", i)
		intr := map[int]any{}
		extr := map[int]any{}
		for _, fid := range frameIDs {
			intr[fid] = Eye(3)
			extr[fid] = Eye(4)
		}
		camIntr[cam] = intr
		camExtr[cam] = extr
	}

	objTransf := map[string]any{}
	for _, obj := range objects {
		perFrame := map[int]any{}
		for _, fid := range mocapIDs {
			perFrame[fid] = Eye(4)
		}
		objTransf[obj] = perFrame
	}

	rawSMPLX := map[int]any{}
	rawMANO := map[int]any{}
	for _, fid := range mocapIDs {
		rawSMPLX[fid] = map[string]any{
			"body_pose": &NDArray{Shape: []int{21, 3}, Data: zeros(63)},
			"transl":    &NDArray{Shape: []int{3}, Data: zeros(3)},
		}
		rawMANO[fid] = map[string]any{
			"lh__hand_pose": &NDArray{Shape: []int{15, 3}, Data: zeros(45)},
			"rh__hand_pose": &NDArray{Shape: []int{15, 3}, Data: zeros(45)},
		}
	}

	camList := make([]any, len(cameras))
	for i, cam := range cameras {
		camList[i] = cam
	}
	objList := make([]any, len(objects))
	for i, obj := range objects {
		objList[i] = obj
	}

	return map[string]any{
		"cam_def":             camDef,
		"cam_selection":       camList,
		"frame_id_list":       intsAny(frameIDs),
		"cam_intr":            camIntr,
		"cam_extr":            camExtr,
		"mocap_frame_id_list": intsAny(mocapIDs),
		"obj_list":            objList,
		"obj_transf":          objTransf,
		"raw_smplx":           rawSMPLX,
		"raw_mano":            rawMANO,
	}
}

// AffordanceFixture declares the dataset-level object metadata files.
type AffordanceFixture struct {
	ObjDesc  map[string]any // obj_desc.json under object_raw/
	PartDesc map[string]any // part_desc.json
	PartTree map[string][]string
	Records  map[string]any // object_affordance.json
}

// WriteAffordance materializes the object metadata alongside a fixture
// dataset written by WriteDataset.
func WriteAffordance(t *testing.T, dir string, fx AffordanceFixture) {
	t.Helper()

	objDir := filepath.Join(dir, "object_raw")
	affordDir := filepath.Join(dir, "object_affordance")
	mustMkdir(t, objDir)
	mustMkdir(t, affordDir)

	writeJSON := func(path string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", path, err)
		}
		mustWrite(t, path, data)
	}
	writeJSON(filepath.Join(objDir, "obj_desc.json"), fx.ObjDesc)
	writeJSON(filepath.Join(affordDir, "part_desc.json"), fx.PartDesc)
	writeJSON(filepath.Join(affordDir, "object_part_tree.json"), fx.PartTree)
	writeJSON(filepath.Join(affordDir, "object_affordance.json"), fx.Records)
}

// Eye returns an n x n identity as a pickled array value.
func Eye(n int) *NDArray {
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return &NDArray{Shape: []int{n, n}, Data: data}
}

func rangeInts(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

func intsAny(ids []int) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func zeros(n int) []float64 {
	return make([]float64, n)
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %v: %v", v, err)
	}
	return string(data)
}
