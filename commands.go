package main

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tensororder/tensororder/formula"
	"github.com/tensororder/tensororder/plan"
	"github.com/tensororder/tensororder/report"
	"github.com/tensororder/tensororder/tensor"
	"github.com/tensororder/tensororder/verify"
)

// treeFlags adds the flags telling where join trees come from.
func treeFlags(cmd *cobra.Command, o *options) {
	cmd.Flags().StringVar(&o.joinTree, "join-tree", "-", "file to read join trees from, - for stdin; ignored when --planner is set")
	cmd.Flags().StringVar(&o.cfg.Planner, "planner", o.cfg.Planner, "planner command line, started with the formula on its stdin")
}

func newCountCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count file.cnf",
		Short: "Counts the weighted models of a formula along the best join tree a planner finds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return o.count(ctx, o.logger(), cmd.OutOrStdout(), args[0])
		},
	}
	treeFlags(cmd, o)
	cmd.Flags().IntVar(&o.cfg.MaxWidth, "max-width", o.cfg.MaxWidth, "join trees of larger tensor width are not used")
	cmd.Flags().Float64Var(&o.cfg.PerformanceFactor, "performance-factor", o.cfg.PerformanceFactor, "seconds per estimated flop, used to budget the execution")
	cmd.Flags().IntVar(&o.cfg.ThreadLimit, "thread-limit", o.cfg.ThreadLimit, "number of threads used by tensor contractions")
	cmd.Flags().Float64Var(&o.cfg.Timeout, "timeout", o.cfg.Timeout, "timeout for the contraction (s), 0 for none")
	cmd.Flags().Float64Var(&o.cfg.PlanTimeout, "plan-timeout", o.cfg.PlanTimeout, "timeout for the join tree search (s), 0 for none")
	cmd.Flags().IntVar(&o.cfg.TargetWidth, "target-width", o.cfg.TargetWidth, "stop searching once a join tree this narrow is found, 0 to never stop early")
	cmd.Flags().Int64Var(&o.cfg.MemoryLimit, "memory-limit", o.cfg.MemoryLimit, "max number of entries of a tensor, 0 for the default")
	return cmd
}

func (o *options) count(ctx context.Context, log logrus.FieldLogger, w io.Writer, path string) error {
	out, err := o.output(w)
	if err != nil {
		return err
	}
	cnf, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "could not open formula")
	}
	defer cnf.Close()
	src, closeSrc, err := o.treeSource(ctx, log, path)
	if err != nil {
		return err
	}
	defer closeSrc()

	metrics := o.metrics()
	runner := &plan.Runner{
		Options: o.planOptions(),
		Backend: &tensor.Dense{Threads: o.cfg.ThreadLimit, MaxEntries: o.cfg.MemoryLimit},
		Log:     log,
		Metrics: metrics,
	}
	if err := out.WriteOutcome(runner.Run(ctx, cnf, src)); err != nil {
		return err
	}
	return metrics.WriteFile(o.cfg.MetricsFile)
}

// treeSource returns the stream of join trees for the formula at path, along with a function releasing it.
func (o *options) treeSource(ctx context.Context, log logrus.FieldLogger, path string) (*plan.Stream, func(), error) {
	if command := o.cfg.PlannerCommand(); len(command) > 0 {
		cnf, err := os.Open(path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "could not open formula for the planner")
		}
		var stderr io.Writer
		if o.debug {
			stderr = os.Stderr
		}
		planner, err := plan.StartPlanner(ctx, command, cnf, stderr, log)
		if err != nil {
			cnf.Close()
			return nil, nil, err
		}
		stream := plan.NewStream(planner.Trees())
		return stream, func() {
			stream.Close()
			if err := planner.Close(stream.Done()); err != nil {
				log.WithError(err).Warn("could not stop planner")
			}
			cnf.Close()
		}, nil
	}
	if o.joinTree == "-" {
		stream := plan.NewStream(os.Stdin)
		return stream, stream.Close, nil
	}
	f, err := os.Open(o.joinTree)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not open join tree")
	}
	stream := plan.NewStream(f)
	return stream, func() {
		stream.Close()
		f.Close()
	}, nil
}

func newRecordCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record file.cnf",
		Short: "Measures every join tree a planner finds for a formula, without executing any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return o.record(ctx, o.logger(), cmd.OutOrStdout(), args[0])
		},
	}
	treeFlags(cmd, o)
	cmd.Flags().StringVar(&o.cfg.Store, "store", o.cfg.Store, "directory to store every join tree in, as <n>.jt")
	cmd.Flags().Float64Var(&o.cfg.PlanTimeout, "plan-timeout", o.cfg.PlanTimeout, "timeout for the join tree search (s), 0 for none")
	return cmd
}

func (o *options) record(ctx context.Context, log logrus.FieldLogger, w io.Writer, path string) error {
	out, err := o.output(w)
	if err != nil {
		return err
	}
	f, err := parseFormula(path)
	if err != nil {
		return out.Write(report.Pair{Key: "Error", Value: plan.ErrorCode(err)})
	}
	src, closeSrc, err := o.treeSource(ctx, log, path)
	if err != nil {
		return err
	}
	defer closeSrc()

	rec := &plan.Recorder{Formula: f, Store: o.cfg.Store, Log: log}
	budget := plan.NewBudget(o.cfg.PlanTimeoutDuration())
	defer budget.Stop()
	entries, err := rec.Record(ctx, src, budget)
	pairs := []report.Pair{{Key: "Log", Value: entries}}
	if err != nil {
		log.WithError(err).Error("recording failed")
		pairs = append(pairs, report.Pair{Key: "Error", Value: plan.CodeExecUnknown})
	}
	return out.Write(pairs...)
}

func newBruteForceCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bruteforce file.cnf",
		Short: "Counts the weighted models of a formula by enumerating them with a SAT solver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return o.bruteForce(ctx, o.logger(), cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().IntVar(&o.maxModels, "max-models", 1<<20, "give up after enumerating this many models, 0 for no limit")
	return cmd
}

func (o *options) bruteForce(ctx context.Context, log logrus.FieldLogger, w io.Writer, path string) error {
	out, err := o.output(w)
	if err != nil {
		return err
	}
	f, err := parseFormula(path)
	if err != nil {
		return out.Write(report.Pair{Key: "Error", Value: plan.ErrorCode(err)})
	}
	sw := report.NewStopwatch()
	res, err := verify.Count(ctx, f, o.maxModels)
	if err != nil {
		log.WithError(err).WithField("models", res.Models).Error("enumeration failed")
		return out.Write(report.Pair{Key: "Error", Value: err.Error()})
	}
	return out.Write(
		report.Pair{Key: "Count", Value: res.Count},
		report.Pair{Key: "Models", Value: res.Models},
		report.Pair{Key: "Enumeration Time", Value: sw.Total("Enumeration").Seconds()},
	)
}

func parseFormula(path string) (*formula.Formula, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open formula")
	}
	defer f.Close()
	return formula.ParseDIMACS(f)
}
