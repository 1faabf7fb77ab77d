// Package testutil builds on-disk fixture datasets for tests: the
// program/desc/initial-condition/pdg JSON files plus the pickled
// per-sequence annotation blob, written in the exact formats the
// loaders consume.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// NDArray is a numpy array literal for pickle fixtures. Data is
// row-major float64 and is written as dtype f8.
type NDArray struct {
	Shape []int
	Data  []float64
}

// KV is one ordered dictionary entry for pickle fixtures.
type KV struct {
	Key   any
	Value any
}

// OrderedMap preserves entry order when pickled; plain map values are
// written in sorted key order instead.
type OrderedMap []KV

// EncodePickle serializes v as a Python pickle (protocol 3).
//
// Supported values: nil, bool, int, float64, string, []byte, []any,
// []int, []string, map[string]any, map[int]any, OrderedMap, NDArray.
func EncodePickle(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(0x80) // PROTO
	buf.WriteByte(3)
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	buf.WriteByte('.') // STOP
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteByte('N')
	case bool:
		if val {
			buf.WriteByte(0x88) // NEWTRUE
		} else {
			buf.WriteByte(0x89) // NEWFALSE
		}
	case int:
		encodeInt(buf, val)
	case float64:
		buf.WriteByte('G') // BINFLOAT, big-endian
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(val))
		buf.Write(b[:])
	case string:
		encodeString(buf, val)
	case []byte:
		encodeBytes(buf, val)
	case []any:
		return encodeList(buf, val)
	case []int:
		items := make([]any, len(val))
		for i, n := range val {
			items[i] = n
		}
		return encodeList(buf, items)
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return encodeList(buf, items)
	case map[string]any:
		entries := make(OrderedMap, 0, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			entries = append(entries, KV{Key: k, Value: val[k]})
		}
		return encodeDict(buf, entries)
	case map[int]any:
		entries := make(OrderedMap, 0, len(val))
		keys := make([]int, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			entries = append(entries, KV{Key: k, Value: val[k]})
		}
		return encodeDict(buf, entries)
	case OrderedMap:
		return encodeDict(buf, val)
	case NDArray:
		return encodeNDArray(buf, val)
	case *NDArray:
		return encodeNDArray(buf, *val)
	default:
		return fmt.Errorf("cannot pickle value of type %T", v)
	}
	return nil
}

func encodeInt(buf *bytes.Buffer, n int) {
	if n >= 0 && n < 256 {
		buf.WriteByte('K') // BININT1
		buf.WriteByte(byte(n))
		return
	}
	buf.WriteByte('J') // BININT, 4-byte little-endian signed
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(int32(n)))
	buf.Write(b[:])
}

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('X') // BINUNICODE
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}

func encodeBytes(buf *bytes.Buffer, p []byte) {
	buf.WriteByte('B') // BINBYTES (protocol 3)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(p)))
	buf.Write(b[:])
	buf.Write(p)
}

func encodeList(buf *bytes.Buffer, items []any) error {
	buf.WriteByte(']') // EMPTY_LIST
	if len(items) == 0 {
		return nil
	}
	buf.WriteByte('(') // MARK
	for _, item := range items {
		if err := encodeValue(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte('e') // APPENDS
	return nil
}

func encodeDict(buf *bytes.Buffer, entries OrderedMap) error {
	buf.WriteByte('}') // EMPTY_DICT
	if len(entries) == 0 {
		return nil
	}
	buf.WriteByte('(') // MARK
	for _, entry := range entries {
		if err := encodeValue(buf, entry.Key); err != nil {
			return err
		}
		if err := encodeValue(buf, entry.Value); err != nil {
			return err
		}
	}
	buf.WriteByte('u') // SETITEMS
	return nil
}

func encodeTuple(buf *bytes.Buffer, items []any) error {
	if len(items) == 0 {
		buf.WriteByte(')') // EMPTY_TUPLE
		return nil
	}
	buf.WriteByte('(') // MARK
	for _, item := range items {
		if err := encodeValue(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte('t') // TUPLE
	return nil
}

func encodeGlobal(buf *bytes.Buffer, module, name string) {
	buf.WriteByte('c') // GLOBAL
	buf.WriteString(module)
	buf.WriteByte('\n')
	buf.WriteString(name)
	buf.WriteByte('\n')
}

// encodeNDArray emits the numpy reduce protocol:
// _reconstruct(ndarray, (0,), b'b') followed by BUILD with the state
// tuple (1, shape, dtype('f8'), False, data).
func encodeNDArray(buf *bytes.Buffer, arr NDArray) error {
	n := 1
	for _, d := range arr.Shape {
		n *= d
	}
	if n != len(arr.Data) {
		return fmt.Errorf("ndarray shape %v does not match %d data values", arr.Shape, len(arr.Data))
	}

	encodeGlobal(buf, "numpy.core.multiarray", "_reconstruct")
	buf.WriteByte('(') // MARK: args tuple
	encodeGlobal(buf, "numpy", "ndarray")
	if err := encodeTuple(buf, []any{0}); err != nil {
		return err
	}
	encodeBytes(buf, []byte{'b'})
	buf.WriteByte('t') // TUPLE
	buf.WriteByte('R') // REDUCE

	// dtype('f8', False, True) with state (3, '<', None, None, None, -1, -1, 0)
	// then the ndarray state itself.
	buf.WriteByte('(') // MARK: state tuple
	encodeInt(buf, 1)
	shape := make([]any, len(arr.Shape))
	for i, d := range arr.Shape {
		shape[i] = d
	}
	if err := encodeTuple(buf, shape); err != nil {
		return err
	}
	encodeGlobal(buf, "numpy", "dtype")
	if err := encodeTuple(buf, []any{"f8", 0, 1}); err != nil {
		return err
	}
	buf.WriteByte('R') // REDUCE
	if err := encodeTuple(buf, []any{3, "<", nil, nil, nil, -1, -1, 0}); err != nil {
		return err
	}
	buf.WriteByte('b')  // BUILD dtype
	buf.WriteByte(0x89) // NEWFALSE: not fortran order
	raw := make([]byte, 8*len(arr.Data))
	for i, f := range arr.Data {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(f))
	}
	encodeBytes(buf, raw)
	buf.WriteByte('t') // TUPLE
	buf.WriteByte('b') // BUILD ndarray
	return nil
}
