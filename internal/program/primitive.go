// Package program parses the per-sequence primitive annotation files
// (program_info, desc_info, initial_condition_info) into the primitive
// table: one immutable record per (lh, rh) interval pair, with hand
// assignment, object involvement and attached descriptions.
package program

import (
	"fmt"
	"sort"

	"github.com/tracelab/bimanip/internal/interval"
)

// Mode is the bimanual interaction mode of a primitive.
type Mode string

const (
	// ModeLeftMain marks a primitive driven by the left hand.
	ModeLeftMain Mode = "lh_main"
	// ModeRightMain marks a primitive driven by the right hand.
	ModeRightMain Mode = "rh_main"
	// ModeBothMain marks a primitive driven by both hands.
	ModeBothMain Mode = "bh_main"
)

// Primitive is one record of the primitive table. Constructed once at
// sequence-load time; immutable thereafter.
type Primitive struct {
	// Key is the canonical interval-pair key, Pair.Key().
	Key string
	// Pair holds the per-hand spans; at least one is present.
	Pair interval.Pair
	// Segment is the unique execution-path name, "<name>#<ordinal>".
	Segment string

	// Name is the primitive id; NameLH/NameRH are the per-hand
	// sub-primitive ids (empty when that hand is inactive).
	Name   string
	NameLH string
	NameRH string

	Mode Mode

	// Objects is the union of the per-hand object lists (file order,
	// duplicates removed). ObjectsLH/ObjectsRH are the per-hand lists.
	Objects   []string
	ObjectsLH []string
	ObjectsRH []string

	// Desc is the segment description from desc_info (may be empty).
	Desc string
	// InitialCondition and Recipe come from initial_condition_info
	// (may be empty).
	InitialCondition []string
	Recipe           []string

	// Transient marks a primitive with no object involvement: a
	// bookkeeping segment that carries no task-ordering meaning and is
	// contracted out of the dependency graph by default.
	Transient bool
}

// HandsInvolved returns which hands have a present interval, as
// ("lh", "rh") flags.
func (p *Primitive) HandsInvolved() (lh, rh bool) {
	return p.Pair.LH.Valid, p.Pair.RH.Valid
}

// Table is the ordered primitive table of one sequence.
type Table struct {
	// Primitives preserves the iteration order of the program_info
	// file; callers must not assume temporal order.
	Primitives []*Primitive
	// Orphans lists desc/initial-condition keys that matched no
	// primitive-info entry and were skipped.
	Orphans []string

	byKey map[string]*Primitive
}

// Lookup finds a primitive by canonical pair key.
func (t *Table) Lookup(key string) (*Primitive, bool) {
	p, ok := t.byKey[key]
	return p, ok
}

// Keys returns the canonical pair keys in table order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.Primitives))
	for i, p := range t.Primitives {
		out[i] = p.Key
	}
	return out
}

// ExecPath returns the segment names in table order.
func (t *Table) ExecPath() []string {
	out := make([]string, len(t.Primitives))
	for i, p := range t.Primitives {
		out[i] = p.Segment
	}
	return out
}

// SortedByStart returns the primitives ordered by the start of their
// enclosing interval (stable for equal starts). The table itself stays
// in file order.
func (t *Table) SortedByStart() []*Primitive {
	out := append([]*Primitive(nil), t.Primitives...)
	sort.SliceStable(out, func(i, j int) bool {
		hi, _ := out[i].Pair.Enclose()
		hj, _ := out[j].Pair.Enclose()
		return hi.Start < hj.Start
	})
	return out
}

// ReferencedFrameIDs returns every frame id referenced by any
// primitive's intervals, ascending and duplicate-free.
func (t *Table) ReferencedFrameIDs() []int {
	seen := make(map[int]struct{})
	for _, p := range t.Primitives {
		for _, fid := range p.Pair.FrameIDs() {
			seen[fid] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for fid := range seen {
		out = append(out, fid)
	}
	sort.Ints(out)
	return out
}

func (m Mode) valid() bool {
	switch m {
	case ModeLeftMain, ModeRightMain, ModeBothMain:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

func unionObjects(base, lh, rh []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(base)
	add(lh)
	add(rh)
	return out
}

// segmentNames assigns each primitive a unique "<name>#<ordinal>"
// execution-path name, counting occurrences of the same primitive id
// in table order.
func segmentNames(primitives []*Primitive) {
	counts := make(map[string]int)
	for _, p := range primitives {
		p.Segment = fmt.Sprintf("%s#%d", p.Name, counts[p.Name])
		counts[p.Name]++
	}
}
