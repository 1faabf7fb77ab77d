package program

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tracelab/bimanip/internal/interval"
)

// Options controls Parse behavior.
type Options struct {
	// Strict turns orphan desc/initial-condition keys into an
	// OrphanDescriptionError instead of the default warn-and-skip.
	Strict bool
	// Logger receives warnings for skipped orphan keys; defaults to a
	// no-op logger.
	Logger *zerolog.Logger
}

// rawEntry mirrors one program_info value.
type rawEntry struct {
	Primitive       string   `json:"primitive"`
	ObjList         []string `json:"obj_list"`
	InteractionMode string   `json:"interaction_mode"`
	PrimitiveLH     *string  `json:"primitive_lh"`
	PrimitiveRH     *string  `json:"primitive_rh"`
	ObjListLH       []string `json:"obj_list_lh"`
	ObjListRH       []string `json:"obj_list_rh"`
}

type rawDesc struct {
	SegDesc string `json:"seg_desc"`
}

type rawInitialCondition struct {
	InitialCondition []string `json:"initial_condition"`
	Recipe           []string `json:"recipe"`
}

// Parse builds the primitive table from the three per-sequence files.
// descInfo and initCondInfo may be nil when the sequence has no such
// annotations. Output order follows the program_info file.
func Parse(programInfo, descInfo, initCondInfo []byte, opts Options) (*Table, error) {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	if err := validateJSON("#ProgramInfo", "program_info", programInfo); err != nil {
		return nil, err
	}

	keys, values, err := DecodeOrderedObject(programInfo)
	if err != nil {
		return nil, &SchemaError{File: "program_info", Reason: err.Error()}
	}

	table := &Table{byKey: make(map[string]*Primitive, len(keys))}
	for _, rawKey := range keys {
		pair, err := interval.ParsePair(rawKey)
		if err != nil {
			return nil, err
		}
		key := pair.Key()
		if _, dup := table.byKey[key]; dup {
			return nil, &SchemaError{File: "program_info", Path: key, Reason: "duplicate interval-pair key"}
		}

		var entry rawEntry
		if err := json.Unmarshal(values[rawKey], &entry); err != nil {
			return nil, &SchemaError{File: "program_info", Path: key, Reason: err.Error()}
		}
		p, err := buildPrimitive(key, pair, entry)
		if err != nil {
			return nil, err
		}
		table.Primitives = append(table.Primitives, p)
		table.byKey[key] = p
	}
	segmentNames(table.Primitives)

	if descInfo != nil {
		if err := attachDesc(table, descInfo, opts, logger); err != nil {
			return nil, err
		}
	}
	if initCondInfo != nil {
		if err := attachInitialCondition(table, initCondInfo, opts, logger); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func buildPrimitive(key string, pair interval.Pair, entry rawEntry) (*Primitive, error) {
	if !pair.LH.Valid && !pair.RH.Valid {
		return nil, &SchemaError{File: "program_info", Path: key, Reason: "both hand intervals are absent"}
	}
	mode := Mode(entry.InteractionMode)
	if !mode.valid() {
		return nil, &InconsistentModeError{Key: key, Mode: mode, Reason: "is not a known interaction mode"}
	}
	if (mode == ModeLeftMain || mode == ModeBothMain) && !pair.LH.Valid {
		return nil, &InconsistentModeError{Key: key, Mode: mode, Reason: "names the left hand but its interval is absent"}
	}
	if (mode == ModeRightMain || mode == ModeBothMain) && !pair.RH.Valid {
		return nil, &InconsistentModeError{Key: key, Mode: mode, Reason: "names the right hand but its interval is absent"}
	}

	p := &Primitive{
		Key:       key,
		Pair:      pair,
		Name:      entry.Primitive,
		Mode:      mode,
		Objects:   unionObjects(entry.ObjList, entry.ObjListLH, entry.ObjListRH),
		ObjectsLH: entry.ObjListLH,
		ObjectsRH: entry.ObjListRH,
	}
	if entry.PrimitiveLH != nil {
		p.NameLH = *entry.PrimitiveLH
	}
	if entry.PrimitiveRH != nil {
		p.NameRH = *entry.PrimitiveRH
	}
	if p.NameLH != "" && !pair.LH.Valid {
		return nil, &SchemaError{File: "program_info", Path: key, Reason: "primitive_lh set but left interval is absent"}
	}
	if p.NameRH != "" && !pair.RH.Valid {
		return nil, &SchemaError{File: "program_info", Path: key, Reason: "primitive_rh set but right interval is absent"}
	}
	p.Transient = len(p.Objects) == 0
	return p, nil
}

func attachDesc(table *Table, descInfo []byte, opts Options, logger zerolog.Logger) error {
	if err := validateJSON("#DescInfo", "desc_info", descInfo); err != nil {
		return err
	}
	keys, values, err := DecodeOrderedObject(descInfo)
	if err != nil {
		return &SchemaError{File: "desc_info", Reason: err.Error()}
	}
	for _, rawKey := range keys {
		key, err := interval.Canonicalize(rawKey)
		if err != nil {
			return err
		}
		p, ok := table.byKey[key]
		if !ok {
			if opts.Strict {
				return &OrphanDescriptionError{Source: "desc_info", Key: key}
			}
			logger.Warn().Str("key", key).Msg("desc_info key has no matching primitive, skipping")
			table.Orphans = append(table.Orphans, key)
			continue
		}
		var d rawDesc
		if err := json.Unmarshal(values[rawKey], &d); err != nil {
			return &SchemaError{File: "desc_info", Path: key, Reason: err.Error()}
		}
		p.Desc = d.SegDesc
	}
	return nil
}

func attachInitialCondition(table *Table, initCondInfo []byte, opts Options, logger zerolog.Logger) error {
	if err := validateJSON("#InitialConditionInfo", "initial_condition_info", initCondInfo); err != nil {
		return err
	}
	keys, values, err := DecodeOrderedObject(initCondInfo)
	if err != nil {
		return &SchemaError{File: "initial_condition_info", Reason: err.Error()}
	}
	for _, rawKey := range keys {
		key, err := interval.Canonicalize(rawKey)
		if err != nil {
			return err
		}
		p, ok := table.byKey[key]
		if !ok {
			if opts.Strict {
				return &OrphanDescriptionError{Source: "initial_condition_info", Key: key}
			}
			logger.Warn().Str("key", key).Msg("initial_condition_info key has no matching primitive, skipping")
			table.Orphans = append(table.Orphans, key)
			continue
		}
		var ic rawInitialCondition
		if err := json.Unmarshal(values[rawKey], &ic); err != nil {
			return &SchemaError{File: "initial_condition_info", Path: key, Reason: err.Error()}
		}
		p.InitialCondition = ic.InitialCondition
		p.Recipe = ic.Recipe
	}
	return nil
}

// DecodeOrderedObject decodes a top-level JSON object preserving key
// order, which encoding/json's map decoding discards. The annotation
// files rely on document order to define the execution path.
func DecodeOrderedObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("top-level value is not an object")
	}
	var keys []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("object key is %T", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("value for key %q: %w", key, err)
		}
		if _, dup := values[key]; dup {
			return nil, nil, fmt.Errorf("duplicate key %q", key)
		}
		keys = append(keys, key)
		values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}
