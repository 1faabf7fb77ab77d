// Package index exports a walked dataset into a SQLite file so downstream
// tooling can query sequences and primitives without touching the raw
// annotation tree.
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tracelab/bimanip/internal/dataset"
)

//go:embed schema.sql
var schemaSQL string

// Index wraps a SQLite database holding export runs.
// Uses WAL mode so readers can run while an export is in flight.
type Index struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically; safe to call
// multiple times on the same file.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the database connection.
func (ix *Index) Close() error {
	if ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Prefer Index methods when available.
func (ix *Index) DB() *sql.DB {
	return ix.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// BeginRun records a new export run and returns its id.
func (ix *Index) BeginRun(ctx context.Context, prefix string) (string, error) {
	runID := uuid.NewString()
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO export_runs (id, prefix) VALUES (?, ?)`,
		runID, prefix,
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return runID, nil
}

// WriteSequence inserts one loaded sequence with its primitives and graph
// edges in a single transaction. Writing the same (run, sequence) twice
// is an error; use a fresh run instead.
func (ix *Index) WriteSequence(ctx context.Context, runID string, seq *dataset.Sequence) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write sequence %s: %w", seq.Key, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sequences
		(run_id, seq_key, token, task_target, frame_lo, frame_hi, is_complex)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		runID, seq.Key, seq.Token, seq.TaskTarget,
		seq.FrameRange[0], seq.FrameRange[1], boolInt(seq.IsComplex),
	)
	if err != nil {
		return fmt.Errorf("write sequence %s: %w", seq.Key, err)
	}

	for order, p := range seq.Primitives.Primitives {
		objects, err := json.Marshal(p.Objects)
		if err != nil {
			return fmt.Errorf("write sequence %s: %w", seq.Key, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO primitives
			(run_id, seq_key, pair_key, segment, name, mode, objects, transient, exec_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, seq.Key, p.Key, p.Segment, p.Name, string(p.Mode),
			string(objects), boolInt(p.Transient), order,
		)
		if err != nil {
			return fmt.Errorf("write sequence %s: %w", seq.Key, err)
		}
	}

	for _, e := range seq.Graph.Edges() {
		srcPair, ok := seq.Graph.PairFor(e[0])
		if !ok {
			return fmt.Errorf("write sequence %s: edge references unknown vertex %d", seq.Key, e[0])
		}
		dstPair, ok := seq.Graph.PairFor(e[1])
		if !ok {
			return fmt.Errorf("write sequence %s: edge references unknown vertex %d", seq.Key, e[1])
		}
		src := srcPair.Key()
		dst := dstPair.Key()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pdg_edges (run_id, seq_key, src_key, dst_key)
			VALUES (?, ?, ?, ?)
		`,
			runID, seq.Key, src, dst,
		)
		if err != nil {
			return fmt.Errorf("write sequence %s: %w", seq.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write sequence %s: %w", seq.Key, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
