package tensor

// A Fix pins one axis of an array to a given index.
type Fix struct {
	Axis  int
	Index int
}

// An Array is a dense numeric array owned by a Backend.
type Array interface {
	// Shape returns the size of each axis.
	Shape() []int
	// At returns the entry at the given index. A rank-0 array is read with no index.
	At(idx ...int) float64
	// Set sets the entry at the given index.
	Set(v float64, idx ...int)
	// Scale multiplies by factor every entry whose index matches all the fixed axes.
	// A nil fixed slice scales the whole array.
	Scale(fixed []Fix, factor float64)
}

// A Backend is the numeric engine used to store and combine tensors.
// Any type implementing it can be used by the tensor algebra.
type Backend interface {
	// Create returns an array of the given shape with every entry set to fill.
	Create(shape []int, fill float64) (Array, error)
	// Stack joins arrays of identical shape along a new axis inserted at position axis.
	Stack(arrays []Array, axis int) (Array, error)
	// Tensordot sums the product of a and b over the axes axesA of a, matched pairwise with axesB of b.
	// Free axes of a come first in the result, followed by the free axes of b, both in their original order.
	Tensordot(a, b Array, axesA, axesB []int) (Array, error)
}
