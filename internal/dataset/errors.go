package dataset

import "fmt"

// UnknownSequenceError reports a query for a sequence key that was not
// discovered at Open time.
type UnknownSequenceError struct {
	Key string
}

// Error implements the error interface.
func (e *UnknownSequenceError) Error() string {
	return fmt.Sprintf("unknown sequence %q", e.Key)
}

// UnknownPrimitiveError reports a primitive lookup for a pair key that
// is not in the sequence's table.
type UnknownPrimitiveError struct {
	SeqKey string
	Key    string
}

// Error implements the error interface.
func (e *UnknownPrimitiveError) Error() string {
	return fmt.Sprintf("sequence %s has no primitive %s", e.SeqKey, e.Key)
}

// IntegrityError reports a cross-file inconsistency within one
// sequence, such as a primitive interval referencing a frame id that is
// not in the sequence's frame-id list.
type IntegrityError struct {
	SeqKey string
	Reason string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("sequence %s: %s", e.SeqKey, e.Reason)
}

// AffordanceUnavailableError reports an affordance query against a
// dataset without affordance metadata files.
type AffordanceUnavailableError struct {
	Path string
}

// Error implements the error interface.
func (e *AffordanceUnavailableError) Error() string {
	return fmt.Sprintf("affordance metadata not available under %s", e.Path)
}

// UnknownObjectError reports an affordance query for an object id that
// appears in neither obj_desc nor part_desc.
type UnknownObjectError struct {
	ObjID string
}

// Error implements the error interface.
func (e *UnknownObjectError) Error() string {
	return fmt.Sprintf("unknown object %q", e.ObjID)
}
