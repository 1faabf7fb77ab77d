package program

import "fmt"

// SchemaError reports a program/desc/initial-condition file that does
// not match the expected shape.
type SchemaError struct {
	File   string
	Path   string // CUE path or JSON key where validation failed
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("program schema error in %s at %s: %s", e.File, e.Path, e.Reason)
	}
	return fmt.Sprintf("program schema error in %s: %s", e.File, e.Reason)
}

// InconsistentModeError reports an interaction mode that names a hand
// whose interval is absent.
type InconsistentModeError struct {
	Key    string
	Mode   Mode
	Reason string
}

// Error implements the error interface.
func (e *InconsistentModeError) Error() string {
	return fmt.Sprintf("primitive %s: interaction mode %q %s", e.Key, e.Mode, e.Reason)
}

// OrphanDescriptionError reports a description or initial-condition key
// with no matching primitive-info entry. The default parse policy is
// warn-and-skip; this error is only returned under Options.Strict.
type OrphanDescriptionError struct {
	Source string // "desc_info" or "initial_condition_info"
	Key    string
}

// Error implements the error interface.
func (e *OrphanDescriptionError) Error() string {
	return fmt.Sprintf("%s key %s has no matching primitive-info entry", e.Source, e.Key)
}
