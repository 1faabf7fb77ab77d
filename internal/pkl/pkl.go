// Package pkl decodes the pickled per-sequence annotation blobs into
// plain Go values.
//
// The annotation pipeline persists one Python pickle per sequence: a
// dictionary of camera definitions, frame-id lists and per-frame numeric
// arrays. Decoding is delegated to github.com/nlpodyssey/gopickle; this
// package installs a class resolver for the numpy ndarray/dtype
// reconstruction protocol and normalizes the result into a small value
// vocabulary:
//
//	nil, bool, int, float64, string, []byte, []any, *Dict, *Tensor
//
// Dict preserves the insertion order of the pickled dictionary and keeps
// keys as int or string, matching how the annotation files key per-frame
// maps by integer frame id and per-camera maps by name.
package pkl

import (
	"fmt"
	"io"
	"os"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
)

// Load decodes the pickle file at path.
func Load(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	v, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

// Decode decodes one pickle stream from r.
func Decode(r io.Reader) (any, error) {
	u := pickle.NewUnpickler(r)
	u.FindClass = findClass
	raw, err := u.Load()
	if err != nil {
		return nil, err
	}
	return normalize(raw)
}

// Dict is an insertion-ordered dictionary with int or string keys.
type Dict struct {
	keys  []any
	items map[any]any
}

// NewDict returns an empty ordered dictionary.
func NewDict() *Dict {
	return &Dict{items: make(map[any]any)}
}

// Set inserts or replaces a key.
func (d *Dict) Set(key, value any) {
	if _, ok := d.items[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.items[key] = value
}

// Get looks up a key.
func (d *Dict) Get(key any) (any, bool) {
	v, ok := d.items[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []any { return d.keys }

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// StringKeys returns the keys in insertion order, requiring every key
// to be a string.
func (d *Dict) StringKeys() ([]string, error) {
	out := make([]string, 0, len(d.keys))
	for _, k := range d.keys {
		s, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is %T, want string", k, k)
		}
		out = append(out, s)
	}
	return out, nil
}

// IntKeys returns the keys in insertion order, requiring every key to
// be an int.
func (d *Dict) IntKeys() ([]int, error) {
	out := make([]int, 0, len(d.keys))
	for _, k := range d.keys {
		n, ok := k.(int)
		if !ok {
			return nil, fmt.Errorf("dict key %v is %T, want int", k, k)
		}
		out = append(out, n)
	}
	return out, nil
}

// normalize converts the gopickle value tree into the package's value
// vocabulary. Unsupported node types are an error rather than a silent
// passthrough so schema problems surface at the load boundary.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, int, float64, string, []byte:
		return val, nil
	case int64:
		return int(val), nil
	case *types.Dict:
		out := NewDict()
		for _, entry := range *val {
			key, err := normalizeKey(entry.Key)
			if err != nil {
				return nil, err
			}
			value, err := normalize(entry.Value)
			if err != nil {
				return nil, err
			}
			out.Set(key, value)
		}
		return out, nil
	case *types.List:
		return normalizeSeq(*val)
	case *types.Tuple:
		return normalizeSeq(*val)
	case *ndarray:
		return val.tensor()
	default:
		return nil, fmt.Errorf("unsupported pickle value of type %T", v)
	}
}

func normalizeSeq(items []any) (any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		nv, err := normalize(item)
		if err != nil {
			return nil, err
		}
		out = append(out, nv)
	}
	return out, nil
}

func normalizeKey(k any) (any, error) {
	switch key := k.(type) {
	case string:
		return key, nil
	case int:
		return key, nil
	case int64:
		return int(key), nil
	default:
		return nil, fmt.Errorf("unsupported dict key of type %T", k)
	}
}
