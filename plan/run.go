package plan

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tensororder/tensororder/formula"
	"github.com/tensororder/tensororder/report"
	"github.com/tensororder/tensororder/tensor"
)

// Names of the timed phases of a run.
const (
	TimeParseFormula  = "Parse Formula"
	TimeParseJoinTree = "Parse Join Tree"
	TimeExecution     = "Execution"
	TimeTotal         = "Total"
)

// A Runner counts the models of a formula: it parses it, selects a join tree from a planner, then executes it.
type Runner struct {
	Options Options
	Backend tensor.Backend
	Log     logrus.FieldLogger
	Kill    Killer          // Defaults to KillProcess
	Metrics *report.Metrics // Optional
}

// Run counts the models of the formula read from cnf, using the join trees of src.
// Run never fails: any error ends the run and is reported in the outcome as an error code.
func (r *Runner) Run(ctx context.Context, cnf io.Reader, src Source) *report.Outcome {
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	sw := report.NewStopwatch()
	out := &report.Outcome{}
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.Errorf("panic: %v", p)
			}
		}()
		return r.run(ctx, log, cnf, src, sw, out)
	}()
	if err != nil {
		out.Error = ErrorCode(err)
		log.WithError(err).WithField("code", out.Error).Error("run failed")
	}
	r.Metrics.Phase(TimeTotal, sw.Total(TimeTotal))
	r.Metrics.Outcome(out.Error)
	out.Times = sw.Intervals()
	return out
}

func (r *Runner) run(ctx context.Context, log logrus.FieldLogger, cnf io.Reader, src Source, sw *report.Stopwatch, out *report.Outcome) error {
	f, err := formula.ParseDIMACS(cnf)
	if err != nil {
		return err
	}
	r.Metrics.Phase(TimeParseFormula, sw.Record(TimeParseFormula))
	log.WithFields(logrus.Fields{"vars": f.NbVars, "clauses": f.NbClauses()}).Info("parsed formula")
	if f.Unsat() {
		log.Info("formula contains an empty clause")
		out.SetCount(0)
		return nil
	}

	search := NewBudget(r.Options.PlanTimeout)
	defer search.Stop()
	sel := &Selector{Formula: f, Options: r.Options, Log: log, Kill: r.Kill, Metrics: r.Metrics}
	choice, err := sel.Select(ctx, src, search)
	if err != nil {
		return err
	}
	if choice.HasSeconds {
		out.SetJoinTreeTime(choice.Seconds)
	}
	r.Metrics.Phase(TimeParseJoinTree, sw.Record(TimeParseJoinTree))
	log.WithFields(logrus.Fields{"width": choice.Width, "flops": choice.Flops, "trees": sel.Trees()}).Info("selected join tree")

	execution := NewBudget(r.Options.Timeout)
	defer execution.Stop()
	execution.ExtendTo(choice.Estimate(r.Options.PerformanceFactor))
	ctx, cancel := execution.Context(ctx, PhaseExecution)
	defer cancel()
	count, err := NewExecutor(f, r.Backend, log).Execute(ctx, choice.Tree)
	if err != nil {
		return inPhase(PhaseExecution, err)
	}
	out.SetCount(count)
	r.Metrics.Phase(TimeExecution, sw.Record(TimeExecution))
	return nil
}
