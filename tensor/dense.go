package tensor

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxEntries is the default allocation ceiling of a Dense backend: 2^30 float64 entries, i.e 8 GiB.
const DefaultMaxEntries = int64(1) << 30

// minRowsPerWorker is the smallest number of result rows worth handing to a separate goroutine.
const minRowsPerWorker = 64

// Dense is a Backend storing arrays as row-major slices of float64.
type Dense struct {
	Threads    int   // Maximum number of goroutines used by a single contraction; <= 1 means sequential.
	MaxEntries int64 // Allocation ceiling, in entries; 0 means DefaultMaxEntries.
}

// NewDense returns a dense backend using at most threads goroutines per contraction.
func NewDense(threads int) *Dense {
	return &Dense{Threads: threads}
}

// A DenseArray is an Array created by a Dense backend.
type DenseArray struct {
	shape []int
	data  []float64
}

// Shape returns the size of each axis.
func (a *DenseArray) Shape() []int {
	return a.shape
}

// Data returns the underlying entries, in row-major order.
func (a *DenseArray) Data() []float64 {
	return a.data
}

func (a *DenseArray) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("index %v does not match shape %v", idx, a.shape))
	}
	off := 0
	for i, n := range a.shape {
		if idx[i] < 0 || idx[i] >= n {
			panic(fmt.Sprintf("index %v out of bounds for shape %v", idx, a.shape))
		}
		off = off*n + idx[i]
	}
	return off
}

// At returns the entry at the given index.
func (a *DenseArray) At(idx ...int) float64 {
	return a.data[a.offset(idx)]
}

// Set sets the entry at the given index.
func (a *DenseArray) Set(v float64, idx ...int) {
	a.data[a.offset(idx)] = v
}

// Scale multiplies every entry matching the fixed axes by factor.
func (a *DenseArray) Scale(fixed []Fix, factor float64) {
	if len(fixed) == 0 {
		for i := range a.data {
			a.data[i] *= factor
		}
		return
	}
	strides := stridesOf(a.shape)
	dims := make([]int, len(a.shape))
	copy(dims, a.shape)
	base := 0
	for _, fix := range fixed {
		base += fix.Index * strides[fix.Axis]
		dims[fix.Axis] = 1
	}
	forEachOffset(dims, strides, func(off int) {
		a.data[base+off] *= factor
	})
}

func (d *Dense) limit() int64 {
	if d.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return d.MaxEntries
}

func (d *Dense) alloc(shape []int) ([]float64, error) {
	n := int64(1)
	for _, s := range shape {
		if s < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= int64(s)
		if n > d.limit() {
			return nil, &OutOfMemoryError{Entries: n, Limit: d.limit()}
		}
	}
	return make([]float64, n), nil
}

func (d *Dense) array(a Array) (*DenseArray, error) {
	da, ok := a.(*DenseArray)
	if !ok {
		return nil, fmt.Errorf("array of type %T was not created by a dense backend", a)
	}
	return da, nil
}

// Create returns an array of the given shape, filled with fill.
func (d *Dense) Create(shape []int, fill float64) (Array, error) {
	data, err := d.alloc(shape)
	if err != nil {
		return nil, err
	}
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	return &DenseArray{shape: append([]int(nil), shape...), data: data}, nil
}

// Stack joins arrays of identical shape along a new axis.
func (d *Dense) Stack(arrays []Array, axis int) (Array, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("cannot stack an empty list of arrays")
	}
	parts := make([]*DenseArray, len(arrays))
	for i, a := range arrays {
		da, err := d.array(a)
		if err != nil {
			return nil, err
		}
		if i > 0 && !sameShape(da.shape, parts[0].shape) {
			return nil, fmt.Errorf("cannot stack arrays of shapes %v and %v", parts[0].shape, da.shape)
		}
		parts[i] = da
	}
	inShape := parts[0].shape
	if axis < 0 || axis > len(inShape) {
		return nil, fmt.Errorf("invalid stack axis %d for rank %d", axis, len(inShape))
	}
	shape := make([]int, 0, len(inShape)+1)
	shape = append(shape, inShape[:axis]...)
	shape = append(shape, len(parts))
	shape = append(shape, inShape[axis:]...)
	data, err := d.alloc(shape)
	if err != nil {
		return nil, err
	}
	inner := product(inShape[axis:])
	outer := product(inShape[:axis])
	k := len(parts)
	for o := 0; o < outer; o++ {
		for j, p := range parts {
			copy(data[(o*k+j)*inner:(o*k+j+1)*inner], p.data[o*inner:(o+1)*inner])
		}
	}
	return &DenseArray{shape: shape, data: data}, nil
}

// Tensordot contracts a and b over the matched axes.
// Both operands are transposed into matrices, then multiplied, splitting the rows of the result
// between at most d.Threads goroutines.
func (d *Dense) Tensordot(a, b Array, axesA, axesB []int) (Array, error) {
	da, err := d.array(a)
	if err != nil {
		return nil, err
	}
	db, err := d.array(b)
	if err != nil {
		return nil, err
	}
	if len(axesA) != len(axesB) {
		return nil, fmt.Errorf("cannot contract %d axes with %d axes", len(axesA), len(axesB))
	}
	for i := range axesA {
		if axesA[i] < 0 || axesA[i] >= len(da.shape) || axesB[i] < 0 || axesB[i] >= len(db.shape) {
			return nil, fmt.Errorf("invalid contraction axes %v, %v for shapes %v, %v", axesA, axesB, da.shape, db.shape)
		}
		if da.shape[axesA[i]] != db.shape[axesB[i]] {
			return nil, fmt.Errorf("shape mismatch on contracted axes %d and %d", axesA[i], axesB[i])
		}
	}
	freeA := freeAxes(len(da.shape), axesA)
	freeB := freeAxes(len(db.shape), axesB)
	shape := make([]int, 0, len(freeA)+len(freeB))
	for _, ax := range freeA {
		shape = append(shape, da.shape[ax])
	}
	for _, ax := range freeB {
		shape = append(shape, db.shape[ax])
	}
	permA := append(append([]int(nil), freeA...), axesA...)
	permB := append(append([]int(nil), axesB...), freeB...)
	// The result and the transposed copies of the operands are all alive at once.
	if err := d.reserve(shape, transposed(permA, da.data), transposed(permB, db.data)); err != nil {
		return nil, err
	}
	out, err := d.alloc(shape)
	if err != nil {
		return nil, err
	}
	var (
		m    = product(shape[:len(freeA)])
		n    = product(shape[len(freeA):])
		kdim = 1
	)
	for _, ax := range axesA {
		kdim *= da.shape[ax]
	}
	left := transpose(da.shape, da.data, permA)
	right := transpose(db.shape, db.data, permB)
	d.matmul(out, left, right, m, kdim, n)
	return &DenseArray{shape: shape, data: out}, nil
}

// matmul computes out = left (m x k) * right (k x n).
func (d *Dense) matmul(out, left, right []float64, m, k, n int) {
	workers := d.Threads
	if workers > m/minRowsPerWorker {
		workers = m / minRowsPerWorker
	}
	if workers <= 1 {
		mulRows(out, left, right, 0, m, k, n)
		return
	}
	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (m + workers - 1) / workers
	for lo := 0; lo < m; lo += chunk {
		lo, hi := lo, min(lo+chunk, m)
		g.Go(func() error {
			mulRows(out, left, right, lo, hi, k, n)
			return nil
		})
	}
	_ = g.Wait()
}

func mulRows(out, left, right []float64, lo, hi, k, n int) {
	for i := lo; i < hi; i++ {
		row := out[i*n : (i+1)*n]
		for l := 0; l < k; l++ {
			x := left[i*k+l]
			if x == 0 {
				continue
			}
			col := right[l*n : (l+1)*n]
			for j, y := range col {
				row[j] += x * y
			}
		}
	}
}

// reserve checks that an array of the given shape, along with extra temporary entries, fits in the allocation ceiling.
func (d *Dense) reserve(shape []int, extra ...int) error {
	n := int64(0)
	for _, e := range extra {
		n += int64(e)
	}
	size := int64(1)
	for _, s := range shape {
		size *= int64(s)
		if size > d.limit() {
			return &OutOfMemoryError{Entries: size + n, Limit: d.limit()}
		}
	}
	if size+n > d.limit() {
		return &OutOfMemoryError{Entries: size + n, Limit: d.limit()}
	}
	return nil
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if p != i {
			return false
		}
	}
	return true
}

// transposed returns the number of entries transpose allocates to reorder data along perm.
func transposed(perm []int, data []float64) int {
	if isIdentity(perm) {
		return 0
	}
	return len(data)
}

// transpose returns the entries of an array reordered so that axis i of the result is axis perm[i] of the input.
// The input slice is returned as is when perm is the identity.
func transpose(shape []int, data []float64, perm []int) []float64 {
	if isIdentity(perm) {
		return data
	}
	strides := stridesOf(shape)
	dims := make([]int, len(perm))
	pstrides := make([]int, len(perm))
	for i, p := range perm {
		dims[i] = shape[p]
		pstrides[i] = strides[p]
	}
	out := make([]float64, 0, len(data))
	forEachOffset(dims, pstrides, func(off int) {
		out = append(out, data[off])
	})
	return out
}

// forEachOffset calls fn with the offset of every index of dims, in row-major order, given the strides of each axis.
func forEachOffset(dims, strides []int, fn func(off int)) {
	for _, n := range dims {
		if n == 0 {
			return
		}
	}
	idx := make([]int, len(dims))
	off := 0
	for {
		fn(off)
		d := len(dims) - 1
		for ; d >= 0; d-- {
			idx[d]++
			off += strides[d]
			if idx[d] < dims[d] {
				break
			}
			off -= strides[d] * dims[d]
			idx[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

func stridesOf(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

func freeAxes(rank int, summed []int) []int {
	res := make([]int, 0, rank)
	for ax := 0; ax < rank; ax++ {
		if !contains(summed, ax) {
			res = append(res, ax)
		}
	}
	return res
}

func product(dims []int) int {
	res := 1
	for _, d := range dims {
		res *= d
	}
	return res
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(list []int, v int) bool {
	return indexOf(list, v) >= 0
}

func indexOf(list []int, v int) int {
	for i, v2 := range list {
		if v2 == v {
			return i
		}
	}
	return -1
}
