package index_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelab/bimanip/internal/dataset"
	"github.com/tracelab/bimanip/internal/index"
	"github.com/tracelab/bimanip/internal/testutil"
)

func loadFixtureSequence(t *testing.T) *dataset.Sequence {
	t.Helper()
	dir := testutil.WriteDataset(t, t.TempDir(), testutil.SeqFixture{
		Key:        "kitchen/seq_001",
		TaskTarget: "pour water",
		ProgramInfo: `{
			"((10, 30), None)": {
				"primitive": "reach",
				"obj_list": ["kettle"],
				"interaction_mode": "lh_main",
				"primitive_lh": null,
				"primitive_rh": null,
				"obj_list_lh": [],
				"obj_list_rh": []
			},
			"((30, 50), None)": {
				"primitive": "pour",
				"obj_list": ["kettle", "cup"],
				"interaction_mode": "lh_main",
				"primitive_lh": null,
				"primitive_rh": null,
				"obj_list_lh": [],
				"obj_list_rh": []
			}
		}`,
		PDG: `{
			"id_map": {"((10, 30), None)": 1, "((30, 50), None)": 2},
			"v": [1, 2],
			"e": [[1, 2]]
		}`,
		Objects: []string{"kettle", "cup"},
	})
	ds, err := dataset.Open(dir, dataset.Options{})
	require.NoError(t, err)
	seq, err := ds.Get("kitchen/seq_001")
	require.NoError(t, err)
	return seq
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	ix, err := index.Open(path)
	require.NoError(t, err)
	defer ix.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file should exist")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	for i := 0; i < 3; i++ {
		ix, err := index.Open(path)
		require.NoError(t, err, "open iteration %d", i)
		ix.Close()
	}
}

func TestWriteSequence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	seq := loadFixtureSequence(t)

	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer ix.Close()

	runID, err := ix.BeginRun(ctx, "/data/bimanip")
	require.NoError(t, err)
	require.NoError(t, ix.WriteSequence(ctx, runID, seq))

	seqs, err := ix.Sequences(ctx, runID)
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, "kitchen/seq_001", seqs[0].SeqKey)
	assert.Equal(t, "kitchen++seq_001", seqs[0].Token)
	assert.Equal(t, "pour water", seqs[0].TaskTarget)
	assert.Equal(t, 0, seqs[0].FrameLo)
	assert.Equal(t, 99, seqs[0].FrameHi)
	assert.True(t, seqs[0].IsComplex)

	prims, err := ix.PrimitivesFor(ctx, runID, "kitchen/seq_001")
	require.NoError(t, err)
	require.Len(t, prims, 2)
	assert.Equal(t, "reach#0", prims[0].Segment)
	assert.Equal(t, 0, prims[0].ExecOrder)
	assert.Equal(t, []string{"kettle", "cup"}, prims[1].Objects)
	assert.Equal(t, "lh_main", prims[1].Mode)

	edges, err := ix.EdgesFor(ctx, runID, "kitchen/seq_001")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "((10, 30), None)", edges[0].SrcKey)
	assert.Equal(t, "((30, 50), None)", edges[0].DstKey)
}

func TestRuns_NewestFirstAndLatest(t *testing.T) {
	ctx := context.Background()

	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer ix.Close()

	first, err := ix.BeginRun(ctx, "/data/a")
	require.NoError(t, err)
	second, err := ix.BeginRun(ctx, "/data/b")
	require.NoError(t, err)

	runs, err := ix.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)

	latest, err := ix.LatestRun(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, latest.ID)
}

func TestLatestRun_EmptyIndex(t *testing.T) {
	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.LatestRun(context.Background())
	assert.Error(t, err)
}

func TestWriteSequence_DuplicateFails(t *testing.T) {
	ctx := context.Background()
	seq := loadFixtureSequence(t)

	ix, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer ix.Close()

	runID, err := ix.BeginRun(ctx, "/data/bimanip")
	require.NoError(t, err)
	require.NoError(t, ix.WriteSequence(ctx, runID, seq))
	assert.Error(t, ix.WriteSequence(ctx, runID, seq), "same run and key must conflict")

	// A fresh run takes the same sequence again.
	other, err := ix.BeginRun(ctx, "/data/bimanip")
	require.NoError(t, err)
	assert.NoError(t, ix.WriteSequence(ctx, other, seq))
}
