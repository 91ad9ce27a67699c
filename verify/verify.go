// Package verify computes weighted model counts by enumerating models with a SAT solver.
//
// Enumeration is exponential in the number of models, so it is only meant to check
// the results of join tree execution on small formulas.
package verify

import (
	"context"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"

	"github.com/tensororder/tensororder/formula"
)

const satisfiable = 1

// ErrTooManyModels is returned when a formula has more models than allowed.
var ErrTooManyModels = errors.New("too many models to enumerate")

// A Result is the outcome of an enumeration.
type Result struct {
	Count  float64 // Sum over all models of the product of their literal weights
	Models int     // Number of models, over the variables occurring in clauses
}

// Count enumerates the models of f, restricted to the variables occurring in its clauses,
// and sums their weights. If maxModels > 0 and f has more models than that, ErrTooManyModels is returned.
func Count(ctx context.Context, f *formula.Formula, maxModels int) (Result, error) {
	var res Result
	if f.Unsat() {
		return res, nil
	}
	g := gini.New()
	for _, clause := range f.Clauses() {
		for _, lit := range clause {
			g.Add(z.Dimacs2Lit(lit))
		}
		g.Add(z.LitNull)
	}
	vars := f.Variables()
	model := make([]z.Lit, len(vars))
	for g.Solve() == satisfiable {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if maxModels > 0 && res.Models == maxModels {
			return res, ErrTooManyModels
		}
		for i, v := range vars {
			lit := z.Dimacs2Lit(v)
			if !g.Value(lit) {
				lit = lit.Not()
			}
			model[i] = lit
		}
		weight := 1.0
		for _, m := range model {
			weight *= f.LiteralWeight(m.Dimacs())
			// Blocking clause: the next model differs on at least one variable.
			g.Add(m.Not())
		}
		g.Add(z.LitNull)
		res.Count += weight
		res.Models++
		if len(vars) == 0 {
			break
		}
	}
	return res, nil
}
