package interval

import "fmt"

// MalformedKeyError reports a key string that does not match the
// two-integer tuple encoding, or whose interval is empty or inverted.
type MalformedKeyError struct {
	Key    string
	Reason string
}

// Error implements the error interface.
func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed interval key %q: %s", e.Key, e.Reason)
}
