package pdg

import (
	"fmt"
	"strings"
)

// DOT renders the contracted graph in Graphviz dot syntax. Output is
// deterministic: vertices ascending by id, edges sorted by
// (source, target).
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph pdg {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, id := range g.verts {
		label := g.labels[id]
		pair := g.idToPair[id]
		fmt.Fprintf(&b, "  n%d [label=%q];\n", id, fmt.Sprintf("%s %s", label, pair.Key()))
	}
	for _, e := range g.edges {
		fmt.Fprintf(&b, "  n%d -> n%d;\n", e[0], e[1])
	}
	b.WriteString("}\n")
	return b.String()
}
