package pkl

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nlpodyssey/gopickle/types"
)

// Tensor is an opaque numeric payload restored from a pickled numpy
// array. Data is flattened in row-major (C) order.
type Tensor struct {
	Shape []int
	Data  []float64
}

// Len returns the number of elements implied by Shape.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// At returns the element at the given row-major indices.
func (t *Tensor) At(indices ...int) (float64, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("tensor rank %d, got %d indices", len(t.Shape), len(indices))
	}
	pos := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range for axis %d (size %d)", idx, i, t.Shape[i])
		}
		pos = pos*t.Shape[i] + idx
	}
	return t.Data[pos], nil
}

// findClass resolves the numpy globals referenced by pickled ndarrays.
// Everything else is rejected: annotation blobs contain only plain
// containers and numpy arrays, and an unexpected class is a schema
// problem, not something to reconstruct generically.
func findClass(module, name string) (any, error) {
	switch module + "." + name {
	case "numpy.core.multiarray._reconstruct", "numpy._core.multiarray._reconstruct":
		return &ndarrayReconstruct{}, nil
	case "numpy.ndarray":
		return &ndarrayType{}, nil
	case "numpy.dtype":
		return &dtypeType{}, nil
	default:
		return nil, fmt.Errorf("unsupported pickle class %s.%s", module, name)
	}
}

// ndarrayType stands in for the numpy.ndarray type object; it only ever
// appears as the subtype argument of _reconstruct.
type ndarrayType struct{}

// dtypeType reconstructs numpy.dtype instances.
type dtypeType struct{}

var _ types.Callable = &dtypeType{}

// Call implements the dtype constructor: dtype(descr, align, copy).
func (d *dtypeType) Call(args ...any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("numpy.dtype: missing descr argument")
	}
	descr, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("numpy.dtype: descr is %T, want string", args[0])
	}
	return &dtype{descr: descr, byteOrder: "="}, nil
}

// dtype is a reconstructed numpy dtype. Only the descriptor and byte
// order matter for decoding the raw array bytes.
type dtype struct {
	descr     string
	byteOrder string
}

var _ types.PyStateSettable = &dtype{}

// PySetState consumes the dtype __setstate__ tuple
// (version, byteorder, subarray, names, fields, elsize, alignment, flags).
func (d *dtype) PySetState(state any) error {
	tup, ok := state.(*types.Tuple)
	if !ok || tup.Len() < 2 {
		return fmt.Errorf("numpy.dtype: unexpected state %T", state)
	}
	order, ok := tup.Get(1).(string)
	if !ok {
		return fmt.Errorf("numpy.dtype: byte order is %T, want string", tup.Get(1))
	}
	d.byteOrder = order
	return nil
}

func (d *dtype) itemSize() (int, error) {
	switch d.descr {
	case "f8", "i8", "u8":
		return 8, nil
	case "f4", "i4", "u4":
		return 4, nil
	case "i2", "u2":
		return 2, nil
	case "i1", "u1", "b1":
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", d.descr)
	}
}

func (d *dtype) order() (binary.ByteOrder, error) {
	switch d.byteOrder {
	case "<", "|", "=":
		return binary.LittleEndian, nil
	case ">":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unsupported dtype byte order %q", d.byteOrder)
	}
}

// ndarrayReconstruct is the numpy.core.multiarray._reconstruct callable.
type ndarrayReconstruct struct{}

var _ types.Callable = &ndarrayReconstruct{}

// Call allocates the empty array shell; the payload arrives via BUILD.
func (r *ndarrayReconstruct) Call(args ...any) (any, error) {
	return &ndarray{}, nil
}

// ndarray is a partially reconstructed numpy array.
type ndarray struct {
	shape   []int
	dt      *dtype
	fortran bool
	raw     []byte
}

var _ types.PyStateSettable = &ndarray{}

// PySetState consumes the ndarray __setstate__ tuple
// (version, shape, dtype, is_fortran, raw_data).
func (a *ndarray) PySetState(state any) error {
	tup, ok := state.(*types.Tuple)
	if !ok {
		return fmt.Errorf("numpy.ndarray: unexpected state %T", state)
	}
	items := []any(*tup)
	if len(items) == 4 {
		// older protocol without the leading version element
		items = append([]any{0}, items...)
	}
	if len(items) != 5 {
		return fmt.Errorf("numpy.ndarray: state has %d elements, want 5", len(items))
	}
	shapeTup, ok := items[1].(*types.Tuple)
	if !ok {
		return fmt.Errorf("numpy.ndarray: shape is %T, want tuple", items[1])
	}
	a.shape = make([]int, 0, shapeTup.Len())
	for i := 0; i < shapeTup.Len(); i++ {
		dim, ok := toInt(shapeTup.Get(i))
		if !ok {
			return fmt.Errorf("numpy.ndarray: shape element %d is %T", i, shapeTup.Get(i))
		}
		a.shape = append(a.shape, dim)
	}
	dt, ok := items[2].(*dtype)
	if !ok {
		return fmt.Errorf("numpy.ndarray: dtype is %T", items[2])
	}
	a.dt = dt
	fortran, ok := items[3].(bool)
	if !ok {
		return fmt.Errorf("numpy.ndarray: fortran flag is %T", items[3])
	}
	a.fortran = fortran
	raw, ok := items[4].([]byte)
	if !ok {
		return fmt.Errorf("numpy.ndarray: data is %T, want bytes", items[4])
	}
	a.raw = raw
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// tensor converts the reconstructed array into a Tensor.
func (a *ndarray) tensor() (*Tensor, error) {
	if a.dt == nil {
		return nil, fmt.Errorf("numpy.ndarray: missing dtype state")
	}
	if a.fortran && len(a.shape) > 1 {
		return nil, fmt.Errorf("numpy.ndarray: fortran-order arrays are not supported")
	}
	size, err := a.dt.itemSize()
	if err != nil {
		return nil, err
	}
	order, err := a.dt.order()
	if err != nil {
		return nil, err
	}
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	if len(a.raw) != n*size {
		return nil, fmt.Errorf("numpy.ndarray: %d data bytes for shape %v of dtype %s", len(a.raw), a.shape, a.dt.descr)
	}
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := a.raw[i*size : (i+1)*size]
		switch a.dt.descr {
		case "f8":
			data[i] = math.Float64frombits(order.Uint64(chunk))
		case "f4":
			data[i] = float64(math.Float32frombits(order.Uint32(chunk)))
		case "i8":
			data[i] = float64(int64(order.Uint64(chunk)))
		case "u8":
			data[i] = float64(order.Uint64(chunk))
		case "i4":
			data[i] = float64(int32(order.Uint32(chunk)))
		case "u4":
			data[i] = float64(order.Uint32(chunk))
		case "i2":
			data[i] = float64(int16(order.Uint16(chunk)))
		case "u2":
			data[i] = float64(order.Uint16(chunk))
		case "i1":
			data[i] = float64(int8(chunk[0]))
		case "u1", "b1":
			data[i] = float64(chunk[0])
		}
	}
	shape := make([]int, len(a.shape))
	copy(shape, a.shape)
	return &Tensor{Shape: shape, Data: data}, nil
}
