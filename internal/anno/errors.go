package anno

import "fmt"

// MissingFileError reports an absent annotation file.
type MissingFileError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *MissingFileError) Error() string {
	return fmt.Sprintf("annotation file missing: %s", e.Path)
}

// Unwrap exposes the underlying filesystem error.
func (e *MissingFileError) Unwrap() error { return e.Err }

// SchemaError reports a deserialized payload that does not match the
// expected annotation shape.
type SchemaError struct {
	Path   string
	Key    string
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("annotation schema error in %s at %q: %s", e.Path, e.Key, e.Reason)
	}
	return fmt.Sprintf("annotation schema error in %s: %s", e.Path, e.Reason)
}

// KeyNotFoundError reports a query for an unknown camera, object or
// frame id.
type KeyNotFoundError struct {
	Kind    string // "camera", "object", "frame", "mocap frame"
	Key     string // camera or object id; empty for frame lookups
	FrameID int
}

// Error implements the error interface.
func (e *KeyNotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("unknown %s %q (frame %d)", e.Kind, e.Key, e.FrameID)
	}
	return fmt.Sprintf("unknown %s %d", e.Kind, e.FrameID)
}
