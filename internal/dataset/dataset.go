// Package dataset composes the per-sequence annotation store, primitive
// table and dependency graph into one queryable handle over a dataset
// directory tree.
//
// Layout under the dataset prefix (offsets are configurable):
//
//	anno_preview/<token>.pkl                  per-sequence annotation blob
//	program/task_target.json                  sequence list + task targets
//	program/program_info/<token>.json
//	program/desc_info/<token>.json            optional
//	program/initial_condition_info/<token>.json  optional
//	program/pdg/<token>.json
//	object_raw/obj_desc.json                  affordance metadata, optional
//	object_affordance/...
//
// Sequence keys may contain "/"; file names use the token form with
// "/" replaced by "++".
//
// Loading is lazy and memoized per sequence: Get either returns a fully
// consistent triple or fails without caching anything. The cache is not
// safe for concurrent first access on the same key: two goroutines may
// duplicate the load and the last writer wins, which is harmless but
// wasteful. Serialize first access per key if that matters.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tracelab/bimanip/internal/anno"
	"github.com/tracelab/bimanip/internal/interval"
	"github.com/tracelab/bimanip/internal/pdg"
	"github.com/tracelab/bimanip/internal/program"
)

// PoseEvaluator turns raw pose tensors into instantiated geometry. It
// is an external collaborator: the core never interprets its output.
type PoseEvaluator func(p *InstantiatedPrimitive) (any, error)

// ObjectLoader loads an object or part model by id. External
// collaborator, output is opaque to the core.
type ObjectLoader func(objID string) (any, error)

// Options configures Open.
type Options struct {
	// ReturnInstantiated evaluates primitive pose slices through the
	// injected callbacks when a sequence is loaded.
	ReturnInstantiated bool

	// Directory offsets under the dataset prefix.
	AnnoOffset       string // default "anno_preview"
	ObjOffset        string // default "object_raw"
	AffordanceOffset string // default "object_affordance"

	// StrictOrphans makes orphan desc/initial-condition keys fail the
	// sequence instead of warn-and-skip.
	StrictOrphans bool

	// PoseEvaluator and ObjectLoader are only consulted when
	// ReturnInstantiated is set (or Instantiate is called directly).
	PoseEvaluator PoseEvaluator
	ObjectLoader  ObjectLoader

	Logger *zerolog.Logger
}

// Dataset is the facade handle. It exclusively owns all per-sequence
// sub-objects; accessors hand out views that must not outlive it.
type Dataset struct {
	prefix string
	opts   Options
	logger zerolog.Logger

	annoPrefix    string
	objPrefix     string
	affordPrefix  string
	programPrefix string

	seqKeys    []string
	taskTarget map[string]string

	cache      map[string]*Sequence
	objCache   map[string]any
	affordance *affordanceMeta
}

// Sequence is the cached per-sequence triple plus derived metadata.
type Sequence struct {
	Key   string
	Token string

	Annotations *anno.Store
	Primitives  *program.Table
	Graph       *pdg.Graph

	// TaskTarget is the sequence's task description from task_target.json.
	TaskTarget string
	// FrameRange is the [min, max] of the mocap frame-id list.
	FrameRange [2]int
	// ExecPath lists segment names in program order.
	ExecPath []string
	// IsComplex reports whether the sequence has any non-transient
	// primitive (a task with real object interaction).
	IsComplex bool

	// Instantiated holds per-primitive instantiations when the dataset
	// was opened with ReturnInstantiated; nil otherwise.
	Instantiated []*InstantiatedPrimitive
}

// Open discovers the dataset under prefix.
func Open(prefix string, opts Options) (*Dataset, error) {
	if opts.AnnoOffset == "" {
		opts.AnnoOffset = "anno_preview"
	}
	if opts.ObjOffset == "" {
		opts.ObjOffset = "object_raw"
	}
	if opts.AffordanceOffset == "" {
		opts.AffordanceOffset = "object_affordance"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	d := &Dataset{
		prefix:        prefix,
		opts:          opts,
		logger:        logger,
		annoPrefix:    filepath.Join(prefix, opts.AnnoOffset),
		objPrefix:     filepath.Join(prefix, opts.ObjOffset),
		affordPrefix:  filepath.Join(prefix, opts.AffordanceOffset),
		programPrefix: filepath.Join(prefix, "program"),
		cache:         make(map[string]*Sequence),
		objCache:      make(map[string]any),
	}

	targetPath := filepath.Join(d.programPrefix, "task_target.json")
	data, err := os.ReadFile(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &anno.MissingFileError{Path: targetPath, Err: err}
		}
		return nil, err
	}
	keys, values, err := program.DecodeOrderedObject(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", targetPath, err)
	}
	d.taskTarget = make(map[string]string, len(keys))
	for _, key := range keys {
		var target string
		if err := json.Unmarshal(values[key], &target); err != nil {
			return nil, fmt.Errorf("parse %s: task target for %q: %w", targetPath, key, err)
		}
		d.seqKeys = append(d.seqKeys, key)
		d.taskTarget[key] = target
	}
	d.logger.Debug().Int("sequences", len(d.seqKeys)).Str("prefix", prefix).Msg("dataset opened")
	return d, nil
}

// SequenceKeys returns all discovered sequence keys, in discovery order.
func (d *Dataset) SequenceKeys() []string {
	return append([]string(nil), d.seqKeys...)
}

// Len returns the number of sequences.
func (d *Dataset) Len() int { return len(d.seqKeys) }

// Token returns the filesystem token of a sequence key.
func Token(seqKey string) string {
	return strings.ReplaceAll(seqKey, "/", "++")
}

// Get loads and caches the per-sequence triple. The first call does
// all file reads; later calls return the memoized value. On failure
// nothing is cached and other sequences remain loadable.
func (d *Dataset) Get(seqKey string) (*Sequence, error) {
	if _, ok := d.taskTarget[seqKey]; !ok {
		return nil, &UnknownSequenceError{Key: seqKey}
	}
	if seq, ok := d.cache[seqKey]; ok {
		return seq, nil
	}
	seq, err := d.loadSequence(seqKey)
	if err != nil {
		return nil, err
	}
	d.cache[seqKey] = seq
	return seq, nil
}

func (d *Dataset) loadSequence(seqKey string) (*Sequence, error) {
	token := Token(seqKey)
	logger := d.logger.With().Str("seq", seqKey).Logger()

	programInfo, err := d.readRequired(filepath.Join(d.programPrefix, "program_info", token+".json"))
	if err != nil {
		return nil, err
	}
	descInfo, err := d.readOptional(filepath.Join(d.programPrefix, "desc_info", token+".json"))
	if err != nil {
		return nil, err
	}
	initCondInfo, err := d.readOptional(filepath.Join(d.programPrefix, "initial_condition_info", token+".json"))
	if err != nil {
		return nil, err
	}
	table, err := program.Parse(programInfo, descInfo, initCondInfo, program.Options{
		Strict: d.opts.StrictOrphans,
		Logger: &logger,
	})
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", seqKey, err)
	}

	pdgPath := filepath.Join(d.programPrefix, "pdg", token+".json")
	pdgData, err := d.readRequired(pdgPath)
	if err != nil {
		return nil, err
	}
	raw, err := pdg.ParseRaw(filepath.Base(pdgPath), pdgData)
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", seqKey, err)
	}
	graph, err := pdg.Build(table, raw, pdg.Options{})
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", seqKey, err)
	}

	store, err := anno.Load(filepath.Join(d.annoPrefix, token+".pkl"))
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", seqKey, err)
	}

	// Every frame referenced by a primitive interval must exist in the
	// sequence's mocap frame-id list.
	for _, fid := range table.ReferencedFrameIDs() {
		if !store.HasMocapFrame(fid) {
			return nil, &IntegrityError{
				SeqKey: seqKey,
				Reason: fmt.Sprintf("primitive interval references frame %d outside the mocap frame-id list", fid),
			}
		}
	}

	mocap := store.MocapFrameIDs()
	seq := &Sequence{
		Key:         seqKey,
		Token:       token,
		Annotations: store,
		Primitives:  table,
		Graph:       graph,
		TaskTarget:  d.taskTarget[seqKey],
		FrameRange:  [2]int{mocap[0], mocap[len(mocap)-1]},
		ExecPath:    table.ExecPath(),
	}
	for _, p := range table.Primitives {
		if !p.Transient {
			seq.IsComplex = true
			break
		}
	}

	if d.opts.ReturnInstantiated {
		for _, p := range table.Primitives {
			inst, err := d.instantiate(seq, p)
			if err != nil {
				return nil, fmt.Errorf("sequence %s: instantiate %s: %w", seqKey, p.Segment, err)
			}
			seq.Instantiated = append(seq.Instantiated, inst)
		}
	}
	logger.Debug().
		Int("primitives", len(table.Primitives)).
		Int("vertices", len(graph.Vertices())).
		Msg("sequence loaded")
	return seq, nil
}

func (d *Dataset) readRequired(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &anno.MissingFileError{Path: path, Err: err}
		}
		return nil, err
	}
	return data, nil
}

func (d *Dataset) readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Primitive looks up one primitive of a sequence by canonical pair key.
func (d *Dataset) Primitive(seqKey, pairKey string) (*program.Primitive, error) {
	seq, err := d.Get(seqKey)
	if err != nil {
		return nil, err
	}
	canon, err := interval.Canonicalize(pairKey)
	if err != nil {
		return nil, err
	}
	p, ok := seq.Primitives.Lookup(canon)
	if !ok {
		return nil, &UnknownPrimitiveError{SeqKey: seqKey, Key: canon}
	}
	return p, nil
}
