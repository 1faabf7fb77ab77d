package pdg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelab/bimanip/internal/pdg"
	"github.com/tracelab/bimanip/internal/program"
)

// tableOf builds a primitive table from (key, name, objects) triples.
// Empty objects mark the primitive transient.
func tableOf(t *testing.T, prims ...[3]string) *program.Table {
	t.Helper()
	body := "{"
	for i, p := range prims {
		if i > 0 {
			body += ","
		}
		objs := "[]"
		if p[2] != "" {
			objs = `["` + p[2] + `"]`
		}
		body += `"` + p[0] + `": {
			"primitive": "` + p[1] + `",
			"obj_list": ` + objs + `,
			"interaction_mode": "lh_main",
			"primitive_lh": null,
			"primitive_rh": null,
			"obj_list_lh": [],
			"obj_list_rh": []
		}`
	}
	body += "}"
	table, err := program.Parse([]byte(body), nil, nil, program.Options{})
	require.NoError(t, err)
	return table
}

// threeChain is the canonical 1 -> 2 -> 3 chain with a transient
// middle node.
func threeChain(t *testing.T) (*program.Table, pdg.RawGraph) {
	t.Helper()
	table := tableOf(t,
		[3]string{"((0, 10), None)", "reach", "cup"},
		[3]string{"((10, 20), None)", "shift", ""},
		[3]string{"((20, 30), None)", "grasp", "cup"},
	)
	raw := pdg.RawGraph{
		IDMap: map[string]int{
			"((0, 10), None)":  1,
			"((10, 20), None)": 2,
			"((20, 30), None)": 3,
		},
		V: []int{1, 2, 3},
		E: [][2]int{{1, 2}, {2, 3}},
	}
	return table, raw
}

func TestBuild_ContractsTransientNode(t *testing.T) {
	table, raw := threeChain(t)

	g, err := pdg.Build(table, raw, pdg.Options{})
	require.NoError(t, err)

	// The transient middle node is cut out and its neighbors rewired.
	assert.Equal(t, []int{1, 3}, g.Vertices())
	assert.Equal(t, [][2]int{{1, 3}}, g.Edges())
	assert.Equal(t, []int{1, 3}, g.Topo())
	assert.True(t, g.Reachable(1, 3), "reachability survives contraction")
	assert.False(t, g.Reachable(3, 1))
}

func TestBuild_LinearChainContraction(t *testing.T) {
	table := tableOf(t,
		[3]string{"((0, 10), None)", "reach", "cup"},
		[3]string{"((10, 20), None)", "move", "cup"},
		[3]string{"((20, 30), None)", "place", "cup"},
	)
	raw := pdg.RawGraph{
		IDMap: map[string]int{
			"((0, 10), None)":  1,
			"((10, 20), None)": 2,
			"((20, 30), None)": 3,
		},
		V: []int{1, 2, 3},
		E: [][2]int{{1, 2}, {2, 3}},
	}

	// By default a one-in one-out node folds away even when retained
	// by the predicate.
	g, err := pdg.Build(table, raw, pdg.Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, g.Vertices())

	// KeepLinearChains preserves the full chain.
	g, err = pdg.Build(table, raw, pdg.Options{KeepLinearChains: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, g.Vertices())
	assert.Equal(t, [][2]int{{1, 2}, {2, 3}}, g.Edges())
}

func TestBuild_ContractionIdempotent(t *testing.T) {
	table := tableOf(t,
		[3]string{"((0, 10), None)", "reach", "cup"},
		[3]string{"((20, 30), None)", "grasp", "cup"},
	)
	raw := pdg.RawGraph{
		IDMap: map[string]int{"((0, 10), None)": 1, "((20, 30), None)": 3},
		V:     []int{1, 3},
		E:     [][2]int{{1, 3}},
	}

	// An already-contracted graph passes through untouched.
	g, err := pdg.Build(table, raw, pdg.Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, g.Vertices())
	assert.Equal(t, [][2]int{{1, 3}}, g.Edges())
}

func TestBuild_DiamondKeepsReachability(t *testing.T) {
	table := tableOf(t,
		[3]string{"((0, 10), None)", "reach", "cup"},
		[3]string{"((10, 20), None)", "shift", ""},
		[3]string{"((10, 20), (10, 20))", "hold", "cup"},
		[3]string{"((20, 30), None)", "place", "cup"},
	)
	raw := pdg.RawGraph{
		IDMap: map[string]int{
			"((0, 10), None)":      1,
			"((10, 20), None)":     2,
			"((10, 20), (10, 20))": 3,
			"((20, 30), None)":     4,
		},
		V: []int{1, 2, 3, 4},
		E: [][2]int{{1, 2}, {1, 3}, {2, 4}, {3, 4}},
	}

	g, err := pdg.Build(table, raw, pdg.Options{KeepLinearChains: true})
	require.NoError(t, err)

	// Contracting the transient branch rewires 1 -> 4; the edge through
	// the retained branch already exists and is not duplicated.
	assert.Equal(t, []int{1, 3, 4}, g.Vertices())
	assert.Equal(t, [][2]int{{1, 3}, {1, 4}, {3, 4}}, g.Edges())
	assert.True(t, g.Reachable(1, 4))
}

func TestBuild_AllTransientCollapsesToEmpty(t *testing.T) {
	table := tableOf(t,
		[3]string{"((0, 10), None)", "idle", ""},
		[3]string{"((10, 20), None)", "idle", ""},
	)
	raw := pdg.RawGraph{
		IDMap: map[string]int{"((0, 10), None)": 1, "((10, 20), None)": 2},
		V:     []int{1, 2},
		E:     [][2]int{{1, 2}},
	}

	g, err := pdg.Build(table, raw, pdg.Options{})
	require.NoError(t, err)
	assert.Empty(t, g.Vertices())
	assert.Empty(t, g.Edges())
}

func TestBuild_CustomRetain(t *testing.T) {
	table, raw := threeChain(t)

	// Retain everything: nothing is transient-contracted, but the
	// middle node still folds as a linear chain unless kept.
	g, err := pdg.Build(table, raw, pdg.Options{
		Retain:           func(*program.Primitive) bool { return true },
		KeepLinearChains: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, g.Vertices())
}

func TestBuild_CycleDetectedBeforeContraction(t *testing.T) {
	table := tableOf(t,
		[3]string{"((0, 10), None)", "a", ""},
		[3]string{"((10, 20), None)", "b", ""},
	)
	raw := pdg.RawGraph{
		IDMap: map[string]int{"((0, 10), None)": 1, "((10, 20), None)": 2},
		V:     []int{1, 2},
		E:     [][2]int{{1, 2}, {2, 1}},
	}

	// Both nodes are contractible; without the pre-check the two-cycle
	// would vanish into a dropped self-loop.
	_, err := pdg.Build(table, raw, pdg.Options{})
	var cyclic *pdg.CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.ElementsMatch(t, []int{1, 2}, cyclic.Nodes)
}

func TestBuild_VertexMismatch(t *testing.T) {
	table, raw := threeChain(t)

	// id_map key with no table entry.
	extra := pdg.RawGraph{
		IDMap: map[string]int{},
		V:     raw.V,
		E:     raw.E,
	}
	for k, v := range raw.IDMap {
		extra.IDMap[k] = v
	}
	extra.IDMap["((40, 50), None)"] = 9
	extra.V = append(append([]int(nil), raw.V...), 9)

	_, err := pdg.Build(table, extra, pdg.Options{})
	var mismatch *pdg.VertexMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"((40, 50), None)"}, mismatch.ExtraKeys)

	// Table key missing from id_map.
	missing := pdg.RawGraph{
		IDMap: map[string]int{"((0, 10), None)": 1, "((10, 20), None)": 2},
		V:     []int{1, 2},
		E:     nil,
	}
	_, err = pdg.Build(table, missing, pdg.Options{})
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"((20, 30), None)"}, mismatch.MissingKeys)
}

func TestBuild_RejectsUnknownEdgeEndpoint(t *testing.T) {
	table, raw := threeChain(t)
	raw.E = append(raw.E, [2]int{3, 7})

	_, err := pdg.Build(table, raw, pdg.Options{})
	var schema *pdg.SchemaError
	require.ErrorAs(t, err, &schema)
}

func TestBuild_KeyLookups(t *testing.T) {
	table, raw := threeChain(t)
	g, err := pdg.Build(table, raw, pdg.Options{})
	require.NoError(t, err)

	pair, ok := g.PairFor(1)
	require.True(t, ok)
	assert.Equal(t, "((0, 10), None)", pair.Key())

	id, ok := g.IDFor(pair)
	require.True(t, ok)
	assert.Equal(t, 1, id)

	label, ok := g.LabelFor(3)
	require.True(t, ok)
	assert.Equal(t, "grasp#0", label)

	assert.True(t, g.Retained(1))
	assert.False(t, g.Retained(2), "contracted node is known but not retained")
}

func TestParseRaw(t *testing.T) {
	raw, err := pdg.ParseRaw("seq.json", []byte(`{
		"id_map": {"((0, 10), None)": 1},
		"v": [1],
		"e": []
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, raw.IDMap["((0, 10), None)"])
	assert.Equal(t, []int{1}, raw.V)

	// Non-integer node id fails schema validation.
	_, err = pdg.ParseRaw("seq.json", []byte(`{
		"id_map": {"((0, 10), None)": "one"},
		"v": [],
		"e": []
	}`))
	var schema *pdg.SchemaError
	require.ErrorAs(t, err, &schema)
}
