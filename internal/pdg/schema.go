package pdg

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource []byte

// ParseRaw validates the persisted graph payload against the embedded
// schema and decodes it.
func ParseRaw(filename string, data []byte) (RawGraph, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource)
	if err := schema.Err(); err != nil {
		return RawGraph{}, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.MakePath(cue.Def("#RawGraph")))
	if err := def.Err(); err != nil {
		return RawGraph{}, fmt.Errorf("lookup schema: %w", err)
	}
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return RawGraph{}, &SchemaError{File: filename, Reason: err.Error()}
	}
	val := ctx.BuildExpr(expr)
	if err := val.Err(); err != nil {
		return RawGraph{}, &SchemaError{File: filename, Reason: err.Error()}
	}
	if err := def.Unify(val).Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return RawGraph{}, &SchemaError{File: filename, Reason: err.Error()}
	}

	var raw RawGraph
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawGraph{}, &SchemaError{File: filename, Reason: err.Error()}
	}
	return raw, nil
}
