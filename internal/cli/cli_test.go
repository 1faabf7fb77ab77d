package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelab/bimanip/internal/index"
	"github.com/tracelab/bimanip/internal/testutil"
)

const fixtureProgram = `{
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
		"primitive": "grasp",
		"obj_list": ["bottle"],
		"interaction_mode": "lh_main",
		"primitive_lh": null,
		"primitive_rh": null,
		"obj_list_lh": [],
		"obj_list_rh": []
	}
}`

const fixturePDG = `{
	"id_map": {"((10, 30), None)": 1, "((30, 50), None)": 2},
	"v": [1, 2],
	"e": [[1, 2]]
}`

func fixtureDir(t *testing.T, seqs ...testutil.SeqFixture) string {
	t.Helper()
	if len(seqs) == 0 {
		seqs = []testutil.SeqFixture{{
			Key:         "kitchen/seq_001",
			TaskTarget:  "pick up the bottle",
			ProgramInfo: fixtureProgram,
			PDG:         fixturePDG,
		}}
	}
	return testutil.WriteDataset(t, t.TempDir(), seqs...)
}

// runCommand executes the root command with args and captures stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_RejectsBadFormat(t *testing.T) {
	_, err := runCommand(t, "--format", "xml", "sequences")
	assert.Error(t, err)
}

func TestSequences_Text(t *testing.T) {
	dir := fixtureDir(t)
	out, err := runCommand(t, "--prefix", dir, "sequences")
	require.NoError(t, err)
	assert.Contains(t, out, "1 sequence(s)")
	assert.Contains(t, out, "kitchen/seq_001")
}

func TestSequences_JSON(t *testing.T) {
	dir := fixtureDir(t)
	out, err := runCommand(t, "--prefix", dir, "--format", "json", "sequences")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	payload, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var listing SequenceListing
	require.NoError(t, json.Unmarshal(payload, &listing))
	assert.Equal(t, 1, listing.Count)
	assert.Equal(t, "kitchen++seq_001", listing.Sequences[0].Token)
}

func TestSequences_MissingPrefix(t *testing.T) {
	_, err := runCommand(t, "sequences")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInfo(t *testing.T) {
	dir := fixtureDir(t)
	out, err := runCommand(t, "--prefix", dir, "info", "kitchen/seq_001")
	require.NoError(t, err)
	assert.Contains(t, out, "pick up the bottle")
	assert.Contains(t, out, "reach#0")
	assert.Contains(t, out, "((30, 50), None)")
}

func TestInfo_UnknownSequence(t *testing.T) {
	dir := fixtureDir(t)
	_, err := runCommand(t, "--prefix", dir, "info", "kitchen/seq_999")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPDG_Listing(t *testing.T) {
	dir := fixtureDir(t)
	out, err := runCommand(t, "--prefix", dir, "pdg", "kitchen/seq_001")
	require.NoError(t, err)
	assert.Contains(t, out, "2 vertex(es), 1 edge(s)")
	assert.Contains(t, out, "n1 -> n2")
}

func TestPDG_DOT(t *testing.T) {
	dir := fixtureDir(t)
	out, err := runCommand(t, "--prefix", dir, "pdg", "--dot", "kitchen/seq_001")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph pdg {")
	assert.Contains(t, out, `n1 [label="reach#0 ((10, 30), None)"];`)
}

func TestFrame(t *testing.T) {
	dir := fixtureDir(t)
	out, err := runCommand(t, "--prefix", dir, "frame", "kitchen/seq_001", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "frame 20 of kitchen/seq_001")
	assert.Contains(t, out, "cam0")
	assert.Contains(t, out, "bottle")
}

func TestFrame_BadID(t *testing.T) {
	dir := fixtureDir(t)
	_, err := runCommand(t, "--prefix", dir, "frame", "kitchen/seq_001", "twenty")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_AllGood(t *testing.T) {
	dir := fixtureDir(t)
	out, err := runCommand(t, "--prefix", dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "1/1 sequence(s) valid")
}

func TestValidate_ReportsBrokenAndFails(t *testing.T) {
	good := testutil.SeqFixture{
		Key:         "kitchen/seq_001",
		TaskTarget:  "pick up the bottle",
		ProgramInfo: fixtureProgram,
		PDG:         fixturePDG,
	}
	broken := testutil.SeqFixture{
		Key:         "kitchen/broken",
		TaskTarget:  "broken one",
		ProgramInfo: fixtureProgram,
		PDG:         fixturePDG,
		SkipAnno:    true,
	}
	dir := fixtureDir(t, good, broken)

	out, err := runCommand(t, "--prefix", dir, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "1/2 sequence(s) valid")
	assert.Contains(t, out, "BROKEN kitchen/broken")
}

func TestExport_WritesDatabase(t *testing.T) {
	dir := fixtureDir(t)
	dbPath := filepath.Join(t.TempDir(), "index.db")

	out, err := runCommand(t, "--prefix", dir, "export", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 sequence(s)")

	ix, err := index.Open(dbPath)
	require.NoError(t, err)
	defer ix.Close()

	run, err := ix.LatestRun(context.Background())
	require.NoError(t, err)
	seqs, err := ix.Sequences(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, seqs, 1)
	assert.Equal(t, "kitchen/seq_001", seqs[0].SeqKey)
}

func TestExport_MissingDBFlag(t *testing.T) {
	dir := fixtureDir(t)
	_, err := runCommand(t, "--prefix", dir, "export")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigFile(t *testing.T) {
	dir := fixtureDir(t)
	cfgPath := filepath.Join(t.TempDir(), "bimanip.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("prefix: "+dir+"\n"), 0o644))

	out, err := runCommand(t, "--config", cfgPath, "sequences")
	require.NoError(t, err)
	assert.Contains(t, out, "kitchen/seq_001")
}

func TestConfig_FlagOverridesFile(t *testing.T) {
	dir := fixtureDir(t)
	cfgPath := filepath.Join(t.TempDir(), "bimanip.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("prefix: /nonexistent\n"), 0o644))

	out, err := runCommand(t, "--config", cfgPath, "--prefix", dir, "sequences")
	require.NoError(t, err)
	assert.Contains(t, out, "kitchen/seq_001")
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	cfg, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}
