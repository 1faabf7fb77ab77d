package index

import (
	"context"
	"encoding/json"
	"fmt"
)

// RunRecord is one row of export_runs.
type RunRecord struct {
	ID        string
	Prefix    string
	CreatedAt string
}

// SequenceRecord is one exported sequence row.
type SequenceRecord struct {
	SeqKey     string
	Token      string
	TaskTarget string
	FrameLo    int
	FrameHi    int
	IsComplex  bool
}

// PrimitiveRecord is one exported primitive row.
type PrimitiveRecord struct {
	PairKey   string
	Segment   string
	Name      string
	Mode      string
	Objects   []string
	Transient bool
	ExecOrder int
}

// EdgeRecord is one exported graph edge, keyed by canonical pair keys.
type EdgeRecord struct {
	SrcKey string
	DstKey string
}

// Runs returns all export runs, newest first.
func (ix *Index) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT id, prefix, created_at
		FROM export_runs
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Prefix, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("read runs: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the most recent export run.
// Fails with a wrapped sql.ErrNoRows when the index is empty.
func (ix *Index) LatestRun(ctx context.Context) (RunRecord, error) {
	var r RunRecord
	err := ix.db.QueryRowContext(ctx, `
		SELECT id, prefix, created_at
		FROM export_runs
		ORDER BY created_at DESC, id
		LIMIT 1
	`).Scan(&r.ID, &r.Prefix, &r.CreatedAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("read latest run: %w", err)
	}
	return r, nil
}

// Sequences returns the sequences of a run ordered by key.
func (ix *Index) Sequences(ctx context.Context, runID string) ([]SequenceRecord, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT seq_key, token, task_target, frame_lo, frame_hi, is_complex
		FROM sequences
		WHERE run_id = ?
		ORDER BY seq_key
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read sequences: %w", err)
	}
	defer rows.Close()

	var out []SequenceRecord
	for rows.Next() {
		var (
			s         SequenceRecord
			isComplex int
		)
		if err := rows.Scan(&s.SeqKey, &s.Token, &s.TaskTarget, &s.FrameLo, &s.FrameHi, &isComplex); err != nil {
			return nil, fmt.Errorf("read sequences: %w", err)
		}
		s.IsComplex = isComplex != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// PrimitivesFor returns a sequence's primitives in execution order.
func (ix *Index) PrimitivesFor(ctx context.Context, runID, seqKey string) ([]PrimitiveRecord, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT pair_key, segment, name, mode, objects, transient, exec_order
		FROM primitives
		WHERE run_id = ? AND seq_key = ?
		ORDER BY exec_order
	`, runID, seqKey)
	if err != nil {
		return nil, fmt.Errorf("read primitives for %s: %w", seqKey, err)
	}
	defer rows.Close()

	var out []PrimitiveRecord
	for rows.Next() {
		var (
			p         PrimitiveRecord
			objects   string
			transient int
		)
		if err := rows.Scan(&p.PairKey, &p.Segment, &p.Name, &p.Mode, &objects, &transient, &p.ExecOrder); err != nil {
			return nil, fmt.Errorf("read primitives for %s: %w", seqKey, err)
		}
		if err := json.Unmarshal([]byte(objects), &p.Objects); err != nil {
			return nil, fmt.Errorf("read primitives for %s: decode objects: %w", seqKey, err)
		}
		p.Transient = transient != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// EdgesFor returns a sequence's graph edges ordered by (src, dst).
func (ix *Index) EdgesFor(ctx context.Context, runID, seqKey string) ([]EdgeRecord, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT src_key, dst_key
		FROM pdg_edges
		WHERE run_id = ? AND seq_key = ?
		ORDER BY src_key, dst_key
	`, runID, seqKey)
	if err != nil {
		return nil, fmt.Errorf("read edges for %s: %w", seqKey, err)
	}
	defer rows.Close()

	var out []EdgeRecord
	for rows.Next() {
		var e EdgeRecord
		if err := rows.Scan(&e.SrcKey, &e.DstKey); err != nil {
			return nil, fmt.Errorf("read edges for %s: %w", seqKey, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
