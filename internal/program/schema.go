package program

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource []byte

// validateJSON checks data against the named schema definition.
// Validation runs before any parsing so malformed files fail with the
// offending path instead of a partial table.
func validateJSON(defName, filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.MakePath(cue.Def(defName)))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup schema %s: %w", defName, err)
	}
	expr, err := cuejson.Extract(filename, data)
	if err != nil {
		return &SchemaError{File: filename, Reason: err.Error()}
	}
	val := ctx.BuildExpr(expr)
	if err := val.Err(); err != nil {
		return &SchemaError{File: filename, Reason: err.Error()}
	}
	unified := def.Unify(val)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return &SchemaError{File: filename, Reason: err.Error()}
	}
	return nil
}
