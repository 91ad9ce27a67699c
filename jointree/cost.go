package jointree

import (
	"fmt"
	"math"
	"sort"

	"github.com/tensororder/tensororder/formula"
)

// maxLogFlops caps the log2 of the flops of a single join.
const maxLogFlops = 100

// varSet is a set of variables.
type varSet map[int]struct{}

func (s varSet) has(v int) bool {
	_, ok := s[v]
	return ok
}

// shared returns the variables of s that are also in other, sorted.
func (s varSet) shared(other varSet) []int {
	var res []int
	for v := range s {
		if other.has(v) {
			res = append(res, v)
		}
	}
	return sortInts(res)
}

// A joinCost scores the join of two sets of variables, given the variables projected by the join.
type joinCost func(left, right varSet, projected varSet) float64

// costs returns the score of every pairwise join performed when executing jt on f.
// Children of a node are joined left to right, and only the last join of a node projects its variables.
func (jt *JoinTree) costs(f *formula.Formula, cost joinCost) ([]float64, error) {
	var res []float64
	_, err := Visit(jt,
		func(_ int, children []varSet, projected []int) (varSet, error) {
			if len(children) == 0 {
				return varSet{}, nil
			}
			total := children[0]
			for i, vars := range children[1:] {
				proj := varSet{}
				if i == len(children)-2 {
					proj = toSet(projected)
				}
				res = append(res, cost(total, vars, proj))
				for v := range vars {
					total[v] = struct{}{}
				}
			}
			for _, v := range projected {
				delete(total, v)
			}
			return total, nil
		},
		func(leaf int) (varSet, error) {
			if leaf > f.NbClauses() {
				return nil, fmt.Errorf("leaf %d does not match any of the %d clauses", leaf, f.NbClauses())
			}
			return toSet(formula.ClauseVars(f.Clause(leaf - 1))), nil
		})
	return res, err
}

func (jt *JoinTree) width(f *formula.Formula, cost joinCost) (int, error) {
	costs, err := jt.costs(f, cost)
	if err != nil {
		return 0, err
	}
	width := f.MaxClauseSize()
	for _, c := range costs {
		if int(c) > width {
			width = int(c)
		}
	}
	return width, nil
}

// AddWidth returns the width of jt when executed with decision diagrams:
// the join of two factors costs the size of the union of their variables.
func (jt *JoinTree) AddWidth(f *formula.Formula) (int, error) {
	return jt.width(f, func(left, right, _ varSet) float64 {
		n := len(left)
		for v := range right {
			if !left.has(v) {
				n++
			}
		}
		return float64(n)
	})
}

// TensorWidth returns the width of jt when executed with tensors,
// taking into account the axes added to duplicate shared variables that are not projected yet.
func (jt *JoinTree) TensorWidth(f *formula.Formula) (int, error) {
	return jt.width(f, func(left, right, projected varSet) float64 {
		both := left.shared(right)
		leftSize, rightSize := len(left), len(right)
		for i := len(both) - 1; i >= 0; i-- {
			if projected.has(both[i]) {
				continue
			}
			if leftSize <= rightSize {
				leftSize++
			} else {
				rightSize++
			}
		}
		resultSize := leftSize + rightSize - 2*len(both)
		return float64(max(leftSize, rightSize, resultSize))
	})
}

// TensorFlops estimates the number of floating point operations needed to execute jt with tensors.
func (jt *JoinTree) TensorFlops(f *formula.Formula) (float64, error) {
	costs, err := jt.costs(f, func(left, right, projected varSet) float64 {
		both := left.shared(right)
		totalAxes := len(left) + len(right)
		for _, v := range both {
			if !projected.has(v) {
				totalAxes++
			}
		}
		logNumSums := totalAxes - 2*len(both)
		logTermsInSum := len(both)
		if logNumSums+logTermsInSum > maxLogFlops {
			return math.Ldexp(1, maxLogFlops)
		}
		return math.Ldexp(1, logNumSums+logTermsInSum)
	})
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, c := range costs {
		total += c
	}
	return total, nil
}

func toSet(vars []int) varSet {
	res := make(varSet, len(vars))
	for _, v := range vars {
		res[v] = struct{}{}
	}
	return res
}

func sortInts(vars []int) []int {
	sort.Ints(vars)
	return vars
}
