package formula

import (
	"fmt"
	"sort"
	"strings"
)

// A Weight associates a multiplicative weight to both literals of a variable.
type Weight struct {
	Neg float64 // Weight of an assignment where the variable is false
	Pos float64 // Weight of an assignment where the variable is true
}

var (
	// DefaultWeight is the weight of a variable that was not given one in a weighted formula.
	DefaultWeight = Weight{Neg: 0.5, Pos: 0.5}
	// Unweighted is the weight of every variable in a formula without any weight directive.
	Unweighted = Weight{Neg: 1, Pos: 1}
)

// Sum returns Neg + Pos, i.e the result of projecting the variable out of a constant factor.
func (w Weight) Sum() float64 {
	return w.Neg + w.Pos
}

// A Formula is a CNF formula along with the weights of its literals.
// It is built once by parsing and must not be modified afterwards.
type Formula struct {
	NbVars   int                // Declared number of vars, or the highest var, whichever is bigger
	clauses  [][]int            // Non-empty clauses, in order of appearance
	weights  map[int]Weight     // Explicitly set weights
	partial  map[int]partialLit // Literal weights when only one literal of a var was given
	weighted bool               // Was any weight directive read?
	unsat    bool               // Was an empty clause read?
}

type partialLit struct {
	lit    int
	weight float64
}

// New returns an empty formula.
func New() *Formula {
	return &Formula{weights: make(map[int]Weight)}
}

// AddClause appends the disjunction of the given literals to the formula.
// An empty clause makes the formula trivially unsatisfiable, but is not stored.
func (f *Formula) AddClause(lits []int) error {
	if len(lits) == 0 {
		f.unsat = true
		return nil
	}
	clause := make([]int, len(lits))
	for i, lit := range lits {
		if lit == 0 {
			return fmt.Errorf("null literal in clause %v", lits)
		}
		if v := abs(lit); v > f.NbVars {
			f.NbVars = v
		}
		clause[i] = lit
	}
	f.clauses = append(f.clauses, clause)
	return nil
}

// SetWeight sets the weights of both literals of v.
func (f *Formula) SetWeight(v int, neg, pos float64) {
	f.weighted = true
	delete(f.partial, v)
	f.weights[v] = Weight{Neg: neg, Pos: pos}
}

// setLiteralWeight sets the weight of a single literal.
// If the other literal of the same var is never given a weight, it is 1 - w.
func (f *Formula) setLiteralWeight(lit int, w float64) {
	f.weighted = true
	v := abs(lit)
	if f.partial == nil {
		f.partial = make(map[int]partialLit)
	}
	if p, ok := f.partial[v]; ok && p.lit == -lit {
		delete(f.partial, v)
		if lit > 0 {
			f.weights[v] = Weight{Neg: p.weight, Pos: w}
		} else {
			f.weights[v] = Weight{Neg: w, Pos: p.weight}
		}
		return
	}
	f.partial[v] = partialLit{lit: lit, weight: w}
	if lit > 0 {
		f.weights[v] = Weight{Neg: 1 - w, Pos: w}
	} else {
		f.weights[v] = Weight{Neg: w, Pos: 1 - w}
	}
}

// Weight returns the weights of v.
// Unless explicitly set, this is DefaultWeight in a weighted formula and Unweighted otherwise.
func (f *Formula) Weight(v int) Weight {
	if w, ok := f.weights[abs(v)]; ok {
		return w
	}
	if f.weighted {
		return DefaultWeight
	}
	return Unweighted
}

// LiteralWeight returns the multiplicative weight of the given DIMACS literal.
func (f *Formula) LiteralWeight(lit int) float64 {
	w := f.Weight(lit)
	if lit > 0 {
		return w.Pos
	}
	return w.Neg
}

// Weighted is true iff a weight directive was found in the formula.
func (f *Formula) Weighted() bool {
	return f.weighted
}

// Unsat is true iff the formula contained an empty clause.
func (f *Formula) Unsat() bool {
	return f.unsat
}

// NbClauses returns the number of (non-empty) clauses in the formula.
func (f *Formula) NbClauses() int {
	return len(f.clauses)
}

// Clause returns the clause at the given 0-based index.
func (f *Formula) Clause(i int) []int {
	return f.clauses[i]
}

// Clauses returns a copy of the list of clauses.
func (f *Formula) Clauses() [][]int {
	res := make([][]int, len(f.clauses))
	copy(res, f.clauses)
	return res
}

// Variables returns the sorted list of variables appearing in at least one clause.
func (f *Formula) Variables() []int {
	seen := make(map[int]struct{})
	for _, clause := range f.clauses {
		for _, lit := range clause {
			seen[abs(lit)] = struct{}{}
		}
	}
	res := make([]int, 0, len(seen))
	for v := range seen {
		res = append(res, v)
	}
	sort.Ints(res)
	return res
}

// MaxClauseSize returns the highest number of distinct variables in a single clause.
func (f *Formula) MaxClauseSize() int {
	max := 0
	for _, clause := range f.clauses {
		if n := len(ClauseVars(clause)); n > max {
			max = n
		}
	}
	return max
}

// CNF returns a DIMACS CNF representation of the formula, including its weights.
func (f *Formula) CNF() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "p cnf %d %d\n", f.NbVars, len(f.clauses))
	vars := make([]int, 0, len(f.weights))
	for v := range f.weights {
		vars = append(vars, v)
	}
	sort.Ints(vars)
	for _, v := range vars {
		w := f.weights[v]
		fmt.Fprintf(&sb, "c p weight %d %g 0\n", v, w.Pos)
		fmt.Fprintf(&sb, "c p weight %d %g 0\n", -v, w.Neg)
	}
	for _, clause := range f.clauses {
		for _, lit := range clause {
			fmt.Fprintf(&sb, "%d ", lit)
		}
		sb.WriteString("0\n")
	}
	return sb.String()
}

// ClauseVars returns the distinct variables of a clause, in order of first appearance.
func ClauseVars(clause []int) []int {
	res := make([]int, 0, len(clause))
	for _, lit := range clause {
		v := abs(lit)
		found := false
		for _, v2 := range res {
			if v2 == v {
				found = true
				break
			}
		}
		if !found {
			res = append(res, v)
		}
	}
	return res
}

// Tautological is true iff the clause contains both a literal and its negation.
func Tautological(clause []int) bool {
	for i, lit := range clause {
		for _, lit2 := range clause[i+1:] {
			if lit == -lit2 {
				return true
			}
		}
	}
	return false
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
