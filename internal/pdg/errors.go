package pdg

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaError reports a raw graph file that does not match the
// expected {id_map, v, e} shape.
type SchemaError struct {
	File   string
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("pdg schema error in %s: %s", e.File, e.Reason)
}

// VertexMismatchError reports a raw graph whose id_map does not cover
// exactly the interval-pair keys of the primitive table.
type VertexMismatchError struct {
	// MissingKeys are primitive keys absent from the id_map.
	MissingKeys []string
	// ExtraKeys are id_map keys with no primitive record.
	ExtraKeys []string
}

// Error implements the error interface.
func (e *VertexMismatchError) Error() string {
	var parts []string
	if len(e.MissingKeys) > 0 {
		keys := append([]string(nil), e.MissingKeys...)
		sort.Strings(keys)
		parts = append(parts, fmt.Sprintf("primitives missing from id_map: %s", strings.Join(keys, ", ")))
	}
	if len(e.ExtraKeys) > 0 {
		keys := append([]string(nil), e.ExtraKeys...)
		sort.Strings(keys)
		parts = append(parts, fmt.Sprintf("id_map keys without primitives: %s", strings.Join(keys, ", ")))
	}
	return "pdg vertex mismatch: " + strings.Join(parts, "; ")
}

// CyclicDependencyError reports a dependency graph containing a cycle.
// This is a data-integrity condition, not recoverable.
type CyclicDependencyError struct {
	// Nodes are the node ids involved in (or downstream of) the cycle.
	Nodes []int
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	ids := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		ids[i] = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("dependency graph contains a cycle through nodes {%s}", strings.Join(ids, ", "))
}
