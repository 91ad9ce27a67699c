package plan

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tensororder/tensororder/formula"
	"github.com/tensororder/tensororder/jointree"
	"github.com/tensororder/tensororder/report"
)

// Options drive the search for a plan and its execution.
type Options struct {
	MaxWidth          int           // Join trees of larger tensor width are never executed
	PerformanceFactor float64       // Seconds per estimated flop, used to budget the execution of a tree
	PlanTimeout       time.Duration // Hard limit on the plan search; 0 means none
	Timeout           time.Duration // Execution timeout; 0 means none
	TargetWidth       int           // Stop searching once a tree this narrow is found; 0 means never
}

// DefaultOptions returns the options used when nothing is specified.
func DefaultOptions() Options {
	return Options{MaxWidth: 30, PerformanceFactor: 1e-11}
}

// A State is a step of the plan selection.
type State int

// Possible states of a Selector.
const (
	AwaitingTree State = iota
	TreeReceived
	Improved
	Rejected
	StreamEnd
	TimedOut
	PlanChosen
)

func (s State) String() string {
	switch s {
	case AwaitingTree:
		return "awaiting tree"
	case TreeReceived:
		return "tree received"
	case Improved:
		return "improved"
	case Rejected:
		return "rejected"
	case StreamEnd:
		return "stream end"
	case TimedOut:
		return "timed out"
	case PlanChosen:
		return "plan chosen"
	default:
		return "unknown"
	}
}

// A Killer terminates the planner process with the given pid.
type Killer func(pid int) error

// KillProcess sends SIGKILL to the process with the given pid.
// A process that already exited is not an error.
func KillProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// A Choice is a join tree selected for execution.
type Choice struct {
	Tree       *jointree.JoinTree
	Width      int     // Tensor width of Tree
	Flops      float64 // Estimated flops of Tree; only computed when Width is within bounds
	Seconds    float64 // Time the planner took to find Tree, if HasSeconds
	HasSeconds bool
}

// Estimate returns the time the execution of the choice should take.
func (c *Choice) Estimate(performanceFactor float64) time.Duration {
	return Seconds(c.Flops * performanceFactor)
}

// A Selector reads candidate join trees and keeps the narrowest one.
type Selector struct {
	Formula *formula.Formula
	Options Options
	Log     logrus.FieldLogger
	Kill    Killer          // Defaults to KillProcess
	Metrics *report.Metrics // Optional

	// OnState, if not nil, is called on every state change.
	OnState func(State)

	state State
	trees int
}

// State returns the current state of the selector.
func (s *Selector) State() State {
	return s.state
}

// Trees returns the number of trees read so far.
func (s *Selector) Trees() int {
	return s.trees
}

func (s *Selector) enter(state State) {
	s.state = state
	if s.OnState != nil {
		s.OnState(state)
	}
}

func (s *Selector) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Select reads trees from src until the stream ends, the search budget expires, or the target width is reached.
// Each time a strictly narrower tree is found within MaxWidth, the search budget is recapped to
// the estimated execution time of that tree.
// On return, the planner is killed if its pid was announced on the stream.
func (s *Selector) Select(ctx context.Context, src Source, search *Budget) (*Choice, error) {
	ctx, cancel := search.Context(ctx, PhaseSearch)
	defer cancel()
	log := s.log()

	var (
		best    *Choice
		pid     int
		failure error
	)
	for {
		s.enter(AwaitingTree)
		parsed, err := src.Next(ctx)
		if parsed.PID != 0 {
			pid = parsed.PID
		}
		if err != nil {
			switch {
			case err == io.EOF:
				s.enter(StreamEnd)
			case ctx.Err() != nil:
				s.enter(TimedOut)
				if cause := context.Cause(ctx); !isTimeout(cause) {
					failure = cause
				}
			default:
				s.enter(StreamEnd)
				log.WithError(err).Warn("could not read join tree")
				failure = err
			}
			break
		}
		s.trees++
		s.enter(TreeReceived)
		tlog := log.WithField("tree", s.trees)
		if err := parsed.Tree.Validate(s.Formula); err != nil {
			tlog.WithError(err).Warn("join tree is not a valid elimination order")
			s.enter(Rejected)
			continue
		}
		width, err := parsed.Tree.TensorWidth(s.Formula)
		if err != nil {
			tlog.WithError(err).Warn("could not compute tensor width")
			s.enter(Rejected)
			continue
		}
		s.Metrics.TreeParsed(width)
		tlog = tlog.WithField("width", width)
		tlog.Info("parsed join tree")
		if best != nil && width >= best.Width {
			s.enter(Rejected)
			continue
		}
		best = &Choice{Tree: parsed.Tree, Width: width, Seconds: parsed.Seconds, HasSeconds: parsed.HasSeconds}
		s.enter(Improved)
		if width <= s.Options.MaxWidth {
			flops, err := parsed.Tree.TensorFlops(s.Formula)
			if err != nil {
				failure = err
				break
			}
			best.Flops = flops
			search.Recap(best.Estimate(s.Options.PerformanceFactor))
			tlog.WithField("flops", flops).Debug("recapped search budget")
		}
		if s.Options.TargetWidth > 0 && width <= s.Options.TargetWidth {
			s.enter(PlanChosen)
			break
		}
	}
	s.killPlanner(pid)
	return s.decide(best, failure)
}

func (s *Selector) decide(best *Choice, failure error) (*Choice, error) {
	if best == nil {
		switch {
		case failure != nil:
			var perr *jointree.ParseError
			if errors.As(failure, &perr) {
				return nil, failure
			}
			return nil, inPhase(PhaseSearch, errors.Wrap(failure, "could not read join trees"))
		case s.state == TimedOut:
			return nil, &TimeoutError{Phase: PhaseSearch}
		default:
			return nil, ErrNoPlan
		}
	}
	if failure != nil {
		s.log().WithError(failure).Warn("using best join tree found before the failure")
	}
	if best.Width > s.Options.MaxWidth {
		return nil, &WidthError{Width: best.Width, MaxWidth: s.Options.MaxWidth}
	}
	if s.state != PlanChosen {
		s.enter(PlanChosen)
	}
	return best, nil
}

func (s *Selector) killPlanner(pid int) {
	if pid == 0 {
		return
	}
	kill := s.Kill
	if kill == nil {
		kill = KillProcess
	}
	if err := kill(pid); err != nil {
		s.log().WithError(err).WithField("pid", pid).Warn("could not kill planner")
	}
}

func isTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}
