package tensor

import (
	"fmt"

	"github.com/tensororder/tensororder/formula"
)

// A Tensor is an array with one axis of size 2 per boolean variable.
// Index 0 of an axis stands for false, index 1 for true.
type Tensor struct {
	Base      Array
	Variables []int // Axis i of Base represents Variables[i]
}

// An Elimination is a variable to sum out of a tensor, along with the weights of its literals.
type Elimination struct {
	Var    int
	Weight formula.Weight
}

// Eliminations returns the eliminations of the given vars, weighted as in f.
func Eliminations(f *formula.Formula, vars []int) []Elimination {
	res := make([]Elimination, len(vars))
	for i, v := range vars {
		res[i] = Elimination{Var: v, Weight: f.Weight(v)}
	}
	return res
}

// FromClause returns the tensor of a clause: all entries are 1,
// except the one where every literal of the clause is false, which is 0.
// A tautological clause yields a tensor full of 1s.
func FromClause(b Backend, clause []int) (*Tensor, error) {
	vars := formula.ClauseVars(clause)
	if len(vars) > MaxRank {
		return nil, &RankOverflowError{Rank: len(vars)}
	}
	shape := make([]int, len(vars))
	for i := range shape {
		shape[i] = 2
	}
	base, err := b.Create(shape, 1)
	if err != nil {
		return nil, err
	}
	if formula.Tautological(clause) {
		return &Tensor{Base: base, Variables: vars}, nil
	}
	falsified := make([]int, len(vars))
	for i, v := range vars {
		if !contains(clause, v) { // Only -v is in the clause: it is falsified when v is true
			falsified[i] = 1
		}
	}
	base.Set(0, falsified...)
	return &Tensor{Base: base, Variables: vars}, nil
}

// Rank returns the number of axes of t.
func (t *Tensor) Rank() int {
	return len(t.Variables)
}

// Scalar returns the only entry of a rank-0 tensor.
func (t *Tensor) Scalar() (float64, error) {
	if len(t.Variables) != 0 {
		return 0, fmt.Errorf("tensor still has %d free variables %v", len(t.Variables), t.Variables)
	}
	return t.Base.At(), nil
}

// DuplicateVariable adds a copy of the variable at varIndex as a new first axis.
// Entries where the copy and the original disagree are zeroed, so that
// contracting the copy against another tensor keeps the original axis free.
// It returns the axis of the copy, which is always 0.
func (t *Tensor) DuplicateVariable(b Backend, varIndex int) (int, error) {
	if len(t.Variables) >= MaxRank {
		return 0, &RankOverflowError{Rank: len(t.Variables) + 1}
	}
	base, err := b.Stack([]Array{t.Base, t.Base}, 0)
	if err != nil {
		return 0, err
	}
	base.Scale([]Fix{{Axis: 0, Index: 0}, {Axis: varIndex + 1, Index: 1}}, 0)
	base.Scale([]Fix{{Axis: 0, Index: 1}, {Axis: varIndex + 1, Index: 0}}, 0)
	t.Base = base
	t.Variables = append([]int{t.Variables[varIndex]}, t.Variables...)
	return 0, nil
}

// JoinWith multiplies t by other, then sums out the given eliminations.
// The result is stored in t; other must not be used afterwards.
//
// Variables shared by both tensors and eliminated here are weighted, then summed by the contraction itself.
// Shared variables that survive the join are first duplicated on the smaller tensor,
// so that the contraction leaves one copy of them in the result.
func (t *Tensor) JoinWith(b Backend, other *Tensor, elims []Elimination) error {
	pending := append([]Elimination(nil), elims...)
	var both []int
	for _, v := range t.Variables {
		if contains(other.Variables, v) && !contains(both, v) {
			both = append(both, v)
		}
	}
	for i := len(both) - 1; i >= 0; i-- {
		v := both[i]
		if j := findElimination(pending, v); j >= 0 {
			axis := indexOf(t.Variables, v)
			t.Base.Scale([]Fix{{Axis: axis, Index: 0}}, pending[j].Weight.Neg)
			t.Base.Scale([]Fix{{Axis: axis, Index: 1}}, pending[j].Weight.Pos)
			pending = append(pending[:j], pending[j+1:]...)
			continue
		}
		var err error
		if len(t.Variables) <= len(other.Variables) {
			_, err = t.DuplicateVariable(b, indexOf(t.Variables, v))
		} else {
			_, err = other.DuplicateVariable(b, indexOf(other.Variables, v))
		}
		if err != nil {
			return err
		}
	}
	rank := len(t.Variables) + len(other.Variables) - 2*len(both)
	if rank > MaxRank {
		return &RankOverflowError{Rank: rank}
	}
	left := make([]int, len(both))
	right := make([]int, len(both))
	for i, v := range both {
		left[i] = indexOf(t.Variables, v)
		right[i] = indexOf(other.Variables, v)
	}
	base, err := b.Tensordot(t.Base, other.Base, left, right)
	if err != nil {
		return err
	}
	vars := make([]int, 0, rank)
	for j, v := range t.Variables {
		if !contains(left, j) {
			vars = append(vars, v)
		}
	}
	for j, v := range other.Variables {
		if !contains(right, j) {
			vars = append(vars, v)
		}
	}
	t.Base, t.Variables = base, vars
	return t.ProjectOut(b, pending)
}

// ProjectOut sums the given variables out of t, weighting each assignment by the weights of the elimination.
// A variable t does not depend on scales t by the sum of its weights.
func (t *Tensor) ProjectOut(b Backend, elims []Elimination) error {
	for _, e := range elims {
		axis := indexOf(t.Variables, e.Var)
		if axis < 0 {
			t.Base.Scale(nil, e.Weight.Sum())
			continue
		}
		w, err := b.Create([]int{2}, 0)
		if err != nil {
			return err
		}
		w.Set(e.Weight.Neg, 0)
		w.Set(e.Weight.Pos, 1)
		base, err := b.Tensordot(t.Base, w, []int{axis}, []int{0})
		if err != nil {
			return err
		}
		t.Base = base
		t.Variables = append(t.Variables[:axis:axis], t.Variables[axis+1:]...)
	}
	return nil
}

func findElimination(elims []Elimination, v int) int {
	for i, e := range elims {
		if e.Var == v {
			return i
		}
	}
	return -1
}
