package plan

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tensororder/tensororder/formula"
	"github.com/tensororder/tensororder/jointree"
	"github.com/tensororder/tensororder/tensor"
)

// Phases a TimeoutError can happen in.
const (
	PhaseSearch    = "search"
	PhaseExecution = "execution"
)

// ErrNoPlan is returned when the planner stream ended, or timed out, before any usable join tree was read.
var ErrNoPlan = errors.New("no join tree could be read")

// A TimeoutError is returned when a budget expires during a phase.
type TimeoutError struct {
	Phase string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Phase)
}

// A WidthError is returned when the best join tree found is too wide to be executed.
type WidthError struct {
	Width, MaxWidth int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("best join tree has tensor width %d, above the limit %d", e.Width, e.MaxWidth)
}

// Outcome codes, reported as "Error: <code>".
const (
	CodeTreeTimeout  = "tree timeout"
	CodeTreeParse    = "tree parse"
	CodeTreeLarge    = "tree large"
	CodeTreeUnknown  = "tree unknown error"
	CodeExecTimeout  = "execution timeout"
	CodeExecUnknown  = "execution unknown error"
	CodeOutOfMemory  = "out of memory"
	CodeRankOverflow = "rank overflow"
	CodeFormulaParse = "formula parse"
)

// A phaseError remembers which phase an otherwise unexpected error happened in.
type phaseError struct {
	phase string
	err   error
}

func (e *phaseError) Error() string { return e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }
func (e *phaseError) Cause() error  { return e.err }

// inPhase tags err with the phase it happened in. nil stays nil.
func inPhase(phase string, err error) error {
	if err == nil {
		return nil
	}
	return &phaseError{phase: phase, err: err}
}

// ErrorCode maps an error returned by a run to its outcome code.
// It returns "" for a nil error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var (
		timeout  *TimeoutError
		width    *WidthError
		rank     *tensor.RankOverflowError
		oom      *tensor.OutOfMemoryError
		cnfErr   *formula.ParseError
		jtErr    *jointree.ParseError
		inPhaseE *phaseError
	)
	switch {
	case errors.As(err, &timeout):
		if timeout.Phase == PhaseSearch {
			return CodeTreeTimeout
		}
		return CodeExecTimeout
	case errors.As(err, &width):
		return CodeTreeLarge
	case errors.As(err, &rank):
		return CodeRankOverflow
	case errors.As(err, &oom):
		return CodeOutOfMemory
	case errors.As(err, &cnfErr):
		return CodeFormulaParse
	case errors.As(err, &jtErr), errors.Is(err, ErrNoPlan):
		return CodeTreeParse
	case errors.As(err, &inPhaseE) && inPhaseE.phase == PhaseSearch:
		return CodeTreeUnknown
	}
	return CodeExecUnknown
}
