package dataset_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelab/bimanip/internal/anno"
	"github.com/tracelab/bimanip/internal/dataset"
	"github.com/tracelab/bimanip/internal/testutil"
)

const goodProgram = `{
	"((10, 30), None)": {
		"primitive": "reach",
		"obj_list": ["bottle"],
		"interaction_mode": "lh_main",
		"primitive_lh": null,
		"primitive_rh": null,
		"obj_list_lh": [],
		"obj_list_rh": []
	},
	"((30, 50), None)": {
		"primitive": "shift",
		"obj_list": [],
		"interaction_mode": "lh_main",
		"primitive_lh": null,
		"primitive_rh": null,
		"obj_list_lh": [],
		"obj_list_rh": []
	},
	"((50, 70), (55, 70))": {
		"primitive": "grasp",
		"obj_list": ["bottle"],
		"interaction_mode": "bh_main",
		"primitive_lh": null,
		"primitive_rh": null,
		"obj_list_lh": [],
		"obj_list_rh": []
	}
}`

const goodPDG = `{
	"id_map": {
		"((10, 30), None)": 1,
		"((30, 50), None)": 2,
		"((50, 70), (55, 70))": 3
	},
	"v": [1, 2, 3],
	"e": [[1, 2], [2, 3]]
}`

func goodFixture(key string) testutil.SeqFixture {
	return testutil.SeqFixture{
		Key:         key,
		TaskTarget:  "pick up the bottle",
		ProgramInfo: goodProgram,
		PDG:         goodPDG,
	}
}

func openFixture(t *testing.T, seqs ...testutil.SeqFixture) *dataset.Dataset {
	t.Helper()
	dir := testutil.WriteDataset(t, t.TempDir(), seqs...)
	ds, err := dataset.Open(dir, dataset.Options{})
	require.NoError(t, err)
	return ds
}

func TestOpen_MissingTaskTarget(t *testing.T) {
	_, err := dataset.Open(t.TempDir(), dataset.Options{})
	var missing *anno.MissingFileError
	require.ErrorAs(t, err, &missing)
}

func TestOpen_DiscoversSequences(t *testing.T) {
	ds := openFixture(t,
		goodFixture("kitchen/seq_002"),
		goodFixture("kitchen/seq_001"),
	)

	// Discovery order follows task_target.json document order.
	assert.Equal(t, []string{"kitchen/seq_002", "kitchen/seq_001"}, ds.SequenceKeys())
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, "kitchen++seq_001", dataset.Token("kitchen/seq_001"))
}

func TestGet_LoadsSequence(t *testing.T) {
	ds := openFixture(t, goodFixture("kitchen/seq_001"))

	seq, err := ds.Get("kitchen/seq_001")
	require.NoError(t, err)

	assert.Equal(t, "kitchen/seq_001", seq.Key)
	assert.Equal(t, "kitchen++seq_001", seq.Token)
	assert.Equal(t, "pick up the bottle", seq.TaskTarget)
	assert.Equal(t, [2]int{0, 99}, seq.FrameRange)
	assert.Equal(t, []string{"reach#0", "shift#0", "grasp#0"}, seq.ExecPath)
	assert.True(t, seq.IsComplex)
	assert.Nil(t, seq.Instantiated, "instantiation is opt-in")

	// The transient shift node is contracted out of the graph.
	assert.Equal(t, []int{1, 3}, seq.Graph.Vertices())
	assert.Equal(t, [][2]int{{1, 3}}, seq.Graph.Edges())
}

func TestGet_Memoizes(t *testing.T) {
	ds := openFixture(t, goodFixture("kitchen/seq_001"))

	first, err := ds.Get("kitchen/seq_001")
	require.NoError(t, err)
	second, err := ds.Get("kitchen/seq_001")
	require.NoError(t, err)
	assert.Same(t, first, second, "second Get must hit the cache")
}

func TestGet_UnknownSequence(t *testing.T) {
	ds := openFixture(t, goodFixture("kitchen/seq_001"))

	_, err := ds.Get("kitchen/seq_999")
	var unknown *dataset.UnknownSequenceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "kitchen/seq_999", unknown.Key)
}

func TestGet_FailureIsolation(t *testing.T) {
	broken := goodFixture("kitchen/broken")
	broken.SkipAnno = true

	ds := openFixture(t, goodFixture("kitchen/seq_001"), broken)

	// The broken sequence fails on every attempt and is never cached.
	_, err := ds.Get("kitchen/broken")
	var missing *anno.MissingFileError
	require.ErrorAs(t, err, &missing)
	_, err = ds.Get("kitchen/broken")
	require.ErrorAs(t, err, &missing)

	// The healthy one is unaffected.
	_, err = ds.Get("kitchen/seq_001")
	require.NoError(t, err)
}

func TestGet_GarbagePickle(t *testing.T) {
	bad := goodFixture("kitchen/seq_001")
	bad.RawAnno = []byte("not a pickle at all")

	ds := openFixture(t, bad)
	_, err := ds.Get("kitchen/seq_001")
	var schema *anno.SchemaError
	require.ErrorAs(t, err, &schema)
}

func TestGet_IntegrityCheck(t *testing.T) {
	// Mocap list stops at 60, but a primitive interval runs to 70.
	short := goodFixture("kitchen/seq_001")
	short.MocapIDs = rangeInts(0, 61)

	ds := openFixture(t, short)
	_, err := ds.Get("kitchen/seq_001")
	var integrity *dataset.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "kitchen/seq_001", integrity.SeqKey)
}

func TestPrimitive_CanonicalizesKey(t *testing.T) {
	ds := openFixture(t, goodFixture("kitchen/seq_001"))

	p, err := ds.Primitive("kitchen/seq_001", "(( 10,30 ), None)")
	require.NoError(t, err)
	assert.Equal(t, "reach", p.Name)

	_, err = ds.Primitive("kitchen/seq_001", "((90, 95), None)")
	var unknown *dataset.UnknownPrimitiveError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "((90, 95), None)", unknown.Key)
}

func TestFrame_MergedView(t *testing.T) {
	fx := goodFixture("kitchen/seq_001")
	fx.FrameIDs = []int{10, 20, 30}
	fx.MocapIDs = rangeInts(0, 100)

	ds := openFixture(t, fx)

	// 20 is both a video and a mocap frame.
	fa, err := ds.Frame("kitchen/seq_001", 20)
	require.NoError(t, err)
	assert.Len(t, fa.Cameras, 2)
	assert.Contains(t, fa.Objects, "bottle")
	require.NotNil(t, fa.Pose)
	assert.Equal(t, 20, fa.Pose.FrameID)

	// 25 is mocap-only: pose and objects, no cameras.
	fa, err = ds.Frame("kitchen/seq_001", 25)
	require.NoError(t, err)
	assert.Empty(t, fa.Cameras)
	assert.NotNil(t, fa.Pose)

	// 200 is in neither list.
	_, err = ds.Frame("kitchen/seq_001", 200)
	var notFound *anno.KeyNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestInstantiate_MasksAndPadding(t *testing.T) {
	ds := openFixture(t, goodFixture("kitchen/seq_001"))

	inst, err := ds.Instantiate("kitchen/seq_001", "((50, 70), (55, 70))")
	require.NoError(t, err)

	// Enclosing range is the union hull of both hand intervals.
	require.Len(t, inst.FrameIDs, 20)
	assert.Equal(t, 50, inst.FrameIDs[0])
	assert.Equal(t, 69, inst.FrameIDs[19])

	// Left hand covers the whole hull, right hand starts at 55.
	for i, fid := range inst.FrameIDs {
		assert.True(t, inst.LeftMask[i], "frame %d", fid)
		assert.Equal(t, fid >= 55, inst.RightMask[i], "frame %d", fid)
		if inst.RightMask[i] {
			assert.NotNil(t, inst.RightHand[i])
		} else {
			assert.Nil(t, inst.RightHand[i], "padding outside the right interval")
		}
		assert.NotNil(t, inst.Body[i])
	}

	assert.Equal(t, []string{"bottle"}, inst.Objects)
	assert.Len(t, inst.ObjectTransf["bottle"], 20)
	assert.Nil(t, inst.Geometry, "no evaluator configured")
	assert.Nil(t, inst.ObjectModels)
}

func TestInstantiate_Callbacks(t *testing.T) {
	dir := testutil.WriteDataset(t, t.TempDir(), goodFixture("kitchen/seq_001"))

	var loads, evals int
	ds, err := dataset.Open(dir, dataset.Options{
		ReturnInstantiated: true,
		ObjectLoader: func(objID string) (any, error) {
			loads++
			return "mesh:" + objID, nil
		},
		PoseEvaluator: func(inst *dataset.InstantiatedPrimitive) (any, error) {
			evals++
			return len(inst.FrameIDs), nil
		},
	})
	require.NoError(t, err)

	seq, err := ds.Get("kitchen/seq_001")
	require.NoError(t, err)
	require.Len(t, seq.Instantiated, 3)

	// The evaluator ran once per primitive; the loader result is
	// memoized across primitives sharing the object.
	assert.Equal(t, 3, evals)
	assert.Equal(t, 1, loads)
	assert.Equal(t, "mesh:bottle", seq.Instantiated[0].ObjectModels["bottle"])
	assert.Equal(t, 20, seq.Instantiated[0].Geometry, "hull of ((10, 30), None)")
}

func TestOpen_CustomOffsets(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDataset(t, dir, goodFixture("kitchen/seq_001"))

	// Point the annotation offset somewhere empty: the sequence is
	// discovered but fails to load.
	ds, err := dataset.Open(dir, dataset.Options{AnnoOffset: "elsewhere"})
	require.NoError(t, err)
	_, err = ds.Get("kitchen/seq_001")
	var missing *anno.MissingFileError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, filepath.Join(dir, "elsewhere", "kitchen++seq_001.pkl"), missing.Path)
}

func rangeInts(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}
