package verify

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensororder/tensororder/formula"
)

func parse(t *testing.T, cnf string) *formula.Formula {
	f, err := formula.ParseDIMACS(strings.NewReader(cnf))
	require.NoError(t, err)
	return f
}

func TestCount(t *testing.T) {
	tests := []struct {
		name   string
		cnf    string
		count  float64
		models int
	}{
		{"unweighted", "p cnf 2 2\n1 2 0\n-1 -2 0\n", 2, 2},
		{"weighted", "p cnf 2 2\nc weights 0.5 0.5 0.5 0.5\n1 2 0\n-1 -2 0\n", 0.5, 2},
		{"tautology", "p cnf 2 2\n1 -1 0\n2 0\n", 2, 2},
		{"biased", "p cnf 1 1\nw 1 0.3\n1 0\n", 0.3, 1},
		{"unsat", "p cnf 1 2\n1 0\n-1 0\n", 0, 0},
		{"empty clause", "p cnf 1 2\n1 0\n0\n", 0, 0},
		{"no clause", "p cnf 3 0\n", 1, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := Count(context.Background(), parse(t, test.cnf), 0)
			require.NoError(t, err)
			assert.InDelta(t, test.count, res.Count, 1e-12)
			assert.Equal(t, test.models, res.Models)
		})
	}
}

func TestCountTooMany(t *testing.T) {
	f := parse(t, "p cnf 3 1\n1 2 3 0\n")
	res, err := Count(context.Background(), f, 5)
	assert.Equal(t, ErrTooManyModels, err)
	assert.Equal(t, 5, res.Models)
	res, err = Count(context.Background(), f, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Models)
}

func TestCountCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Count(ctx, parse(t, "p cnf 1 1\n1 -1 0\n"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

// naive sums the weights of every assignment satisfying f.
func naive(f *formula.Formula) float64 {
	vars := f.Variables()
	total := 0.0
	for mask := 0; mask < 1<<len(vars); mask++ {
		value := make(map[int]bool, len(vars))
		weight := 1.0
		for i, v := range vars {
			value[v] = mask&(1<<i) != 0
			if value[v] {
				weight *= f.LiteralWeight(v)
			} else {
				weight *= f.LiteralWeight(-v)
			}
		}
		sat := true
		for _, clause := range f.Clauses() {
			ok := false
			for _, lit := range clause {
				if value[abs(lit)] == (lit > 0) {
					ok = true
					break
				}
			}
			if !ok {
				sat = false
				break
			}
		}
		if sat {
			total += weight
		}
	}
	return total
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func TestCountRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		f := formula.New()
		nbVars := 2 + rng.Intn(6)
		for v := 1; v <= nbVars; v++ {
			if rng.Intn(2) == 0 {
				p := rng.Float64()
				f.SetWeight(v, 1-p, p)
			}
		}
		for c := 0; c < 1+rng.Intn(8); c++ {
			var clause []int
			for l := 0; l < 1+rng.Intn(3); l++ {
				lit := 1 + rng.Intn(nbVars)
				if rng.Intn(2) == 0 {
					lit = -lit
				}
				clause = append(clause, lit)
			}
			require.NoError(t, f.AddClause(clause))
		}
		res, err := Count(context.Background(), f, 0)
		require.NoError(t, err)
		want := naive(f)
		if math.Abs(res.Count-want) > 1e-9 {
			t.Errorf("formula %d: expected count %v, got %v\n%s", i, want, res.Count, f.CNF())
		}
	}
}
