package plan

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tensororder/tensororder/formula"
	"github.com/tensororder/tensororder/jointree"
	"github.com/tensororder/tensororder/tensor"
)

// An Executor computes the weighted model count of a formula by executing a join tree with tensors.
type Executor struct {
	Formula *formula.Formula
	Backend tensor.Backend
	Log     logrus.FieldLogger

	progress rate.Sometimes
}

// NewExecutor returns an executor for f. Progress is logged at most every few seconds.
func NewExecutor(f *formula.Formula, b tensor.Backend, log logrus.FieldLogger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{
		Formula:  f,
		Backend:  b,
		Log:      log,
		progress: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// check returns a non-nil error if ctx is done.
// When ctx was cancelled by a Budget, the error is the *TimeoutError it was cancelled with.
func check(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); isTimeout(cause) {
		return cause
	}
	return ctx.Err()
}

// Execute walks jt in postorder and returns the weighted model count it computes.
//
// Leaves become clause tensors. The children of an internal node are joined left to right,
// and the variables projected at the node are only eliminated by the last join.
// An internal node without any child contributes nothing and is skipped.
func (e *Executor) Execute(ctx context.Context, jt *jointree.JoinTree) (float64, error) {
	total := len(jt.Nodes())
	done := 0
	root, err := jointree.Visit(jt,
		func(id int, children []*tensor.Tensor, projected []int) (*tensor.Tensor, error) {
			if err := check(ctx); err != nil {
				return nil, err
			}
			live := make([]*tensor.Tensor, 0, len(children))
			for _, child := range children {
				if child != nil {
					live = append(live, child)
				}
			}
			done++
			if len(live) == 0 {
				e.Log.WithField("node", id).Warn("internal node has no children, it does not contribute")
				return nil, nil
			}
			elims := tensor.Eliminations(e.Formula, projected)
			res := live[0]
			if len(live) == 1 {
				if err := res.ProjectOut(e.Backend, elims); err != nil {
					return nil, errors.Wrapf(err, "could not project node %d", id)
				}
			} else {
				for _, other := range live[1 : len(live)-1] {
					if err := res.JoinWith(e.Backend, other, nil); err != nil {
						return nil, errors.Wrapf(err, "could not join children of node %d", id)
					}
				}
				if err := res.JoinWith(e.Backend, live[len(live)-1], elims); err != nil {
					return nil, errors.Wrapf(err, "could not join children of node %d", id)
				}
			}
			e.progress.Do(func() {
				e.Log.WithFields(logrus.Fields{"done": done, "nodes": total, "rank": res.Rank()}).Info("executing join tree")
			})
			return res, nil
		},
		func(leaf int) (*tensor.Tensor, error) {
			if err := check(ctx); err != nil {
				return nil, err
			}
			if leaf > e.Formula.NbClauses() {
				return nil, errors.Errorf("leaf %d does not match any of the %d clauses", leaf, e.Formula.NbClauses())
			}
			return tensor.FromClause(e.Backend, e.Formula.Clause(leaf-1))
		})
	if err != nil {
		return 0, err
	}
	if root == nil {
		e.Log.Warn("join tree has no contribution, count is the empty product")
		return 1, nil
	}
	return root.Scalar()
}
