package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Affordance describes one object or object part: its display name,
// whether a standalone model exists, its place in the part tree and
// the annotated affordances.
type Affordance struct {
	ObjID   string
	ObjName string
	// IsPart reports whether the id names a part rather than a whole
	// object instance.
	IsPart bool
	// HasModel reports whether a standalone model file exists for the id.
	HasModel bool
	// InstanceID is the root of the id's part tree (the owning object
	// instance; equal to ObjID for tree roots).
	InstanceID string
	// PartIDs lists the id's direct parts, empty for leaves.
	PartIDs []string

	// Affordances are function-level labels; Instantiations are the
	// interaction-level (task) labels.
	Affordances    []string
	Instantiations []string

	// Model is the opaque output of the injected object loader, nil
	// when no loader is configured.
	Model any
}

type affordanceMeta struct {
	objDesc  map[string]objDescEntry
	partDesc map[string]objDescEntry
	partTree map[string][]string
	revTree  map[string]string
	records  map[string]affordanceEntry
}

type objDescEntry struct {
	ObjName string `json:"obj_name"`
}

type affordanceEntry struct {
	HasModel       bool     `json:"has_model"`
	Affordance     []string `json:"affordance"`
	Instantiations []string `json:"affordance_instantiation"`
}

// Affordance resolves the affordance record for an object or part id.
// When an object loader is configured the model is loaded (and
// memoized) as well.
func (d *Dataset) Affordance(objID string) (*Affordance, error) {
	meta, err := d.affordanceInfo()
	if err != nil {
		return nil, err
	}

	a := &Affordance{ObjID: objID}
	if desc, ok := meta.objDesc[objID]; ok {
		a.ObjName = desc.ObjName
	} else if desc, ok := meta.partDesc[objID]; ok {
		a.ObjName = desc.ObjName
		a.IsPart = true
	} else {
		return nil, &UnknownObjectError{ObjID: objID}
	}

	record, ok := meta.records[objID]
	if !ok {
		return nil, &UnknownObjectError{ObjID: objID}
	}
	a.HasModel = record.HasModel
	a.Affordances = record.Affordance
	a.Instantiations = record.Instantiations
	a.PartIDs = meta.partTree[objID]
	a.InstanceID = meta.root(objID)

	if d.opts.ObjectLoader != nil && a.HasModel {
		model, err := d.loadObject(objID)
		if err != nil {
			return nil, err
		}
		a.Model = model
	}
	return a, nil
}

// AffordanceParts expands an affordance into its parts: a part expands
// to itself, a whole object to one affordance per direct part.
func (d *Dataset) AffordanceParts(a *Affordance) ([]*Affordance, error) {
	if a.IsPart || len(a.PartIDs) == 0 {
		return []*Affordance{a}, nil
	}
	out := make([]*Affordance, 0, len(a.PartIDs))
	for _, partID := range a.PartIDs {
		part, err := d.Affordance(partID)
		if err != nil {
			return nil, err
		}
		out = append(out, part)
	}
	return out, nil
}

// affordanceInfo lazily loads the dataset-level affordance metadata.
func (d *Dataset) affordanceInfo() (*affordanceMeta, error) {
	if d.affordance != nil {
		return d.affordance, nil
	}
	if _, err := os.Stat(d.affordPrefix); err != nil {
		return nil, &AffordanceUnavailableError{Path: d.affordPrefix}
	}

	meta := &affordanceMeta{}
	if err := readJSON(filepath.Join(d.objPrefix, "obj_desc.json"), &meta.objDesc); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(d.affordPrefix, "part_desc.json"), &meta.partDesc); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(d.affordPrefix, "object_part_tree.json"), &meta.partTree); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(d.affordPrefix, "object_affordance.json"), &meta.records); err != nil {
		return nil, err
	}
	meta.revTree = make(map[string]string)
	for parent, parts := range meta.partTree {
		for _, part := range parts {
			meta.revTree[part] = parent
		}
	}
	d.affordance = meta
	return meta, nil
}

// root walks the reversed part tree up to the owning instance.
func (m *affordanceMeta) root(objID string) string {
	for {
		parent, ok := m.revTree[objID]
		if !ok {
			return objID
		}
		objID = parent
	}
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AffordanceUnavailableError{Path: path}
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
