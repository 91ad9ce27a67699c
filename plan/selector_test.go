package plan

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensororder/tensororder/formula"
	"github.com/tensororder/tensororder/jointree"
)

// Join trees for the path formula {1, 2} {2, 3} {3, 4}.
const (
	pathCNF = "p cnf 4 3\n1 2 0\n2 3 0\n3 4 0\n"
	// All three clauses joined at the root: width 3.
	wideTree = "p jt 4 3 4\n4 3 2 1 e 1 2 3 4\n"
	// Left to right along the path: width 2, 12 flops.
	narrowTree = "p jt 4 3 5\n4 2 1 e 1 2\n5 3 4 e 3 4\n"
	// Right to left along the path: width 2 as well.
	otherNarrowTree = "p jt 4 3 5\n4 3 2 e 3 4\n5 4 1 e 1 2\n"
	// Variable 4 is never projected.
	invalidTree = "p jt 3 3 5\n4 2 1 e 1 2\n5 3 4 e 3\n"
)

type result struct {
	parsed jointree.Parsed
	err    error
}

// scripted is a Source replaying a fixed list of results.
// Once they are exhausted, it returns io.EOF, or blocks until ctx is done if hang is set.
type scripted struct {
	results []result
	hang    bool
}

func (s *scripted) Next(ctx context.Context) (jointree.Parsed, error) {
	if len(s.results) > 0 {
		res := s.results[0]
		s.results = s.results[1:]
		return res.parsed, res.err
	}
	if s.hang {
		<-ctx.Done()
		return jointree.Parsed{}, ctx.Err()
	}
	return jointree.Parsed{}, io.EOF
}

func trees(t *testing.T, jts ...string) *scripted {
	src := &scripted{}
	for i, jt := range jts {
		tree, err := jointree.Parse(strings.NewReader(jt))
		require.NoError(t, err)
		src.results = append(src.results, result{parsed: jointree.Parsed{Tree: tree, Seconds: float64(i + 1), HasSeconds: true}})
	}
	return src
}

func pathFormula(t *testing.T) *formula.Formula {
	f, err := formula.ParseDIMACS(strings.NewReader(pathCNF))
	require.NoError(t, err)
	return f
}

func newSelector(t *testing.T, opts Options) (*Selector, *test.Hook, *[]State) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	var states []State
	sel := &Selector{
		Formula: pathFormula(t),
		Options: opts,
		Log:     logger,
		Kill:    func(int) error { return nil },
		OnState: func(s State) { states = append(states, s) },
	}
	return sel, hook, &states
}

func TestSelectNarrowest(t *testing.T) {
	sel, _, states := newSelector(t, Options{MaxWidth: 30, PerformanceFactor: 1})
	search := NewBudget(0)
	defer search.Stop()
	choice, err := sel.Select(context.Background(), trees(t, wideTree, narrowTree, otherNarrowTree), search)
	require.NoError(t, err)
	assert.Equal(t, 2, choice.Width)
	assert.Equal(t, 12.0, choice.Flops)
	assert.Equal(t, 2.0, choice.Seconds, "ties keep the first tree seen")
	assert.Equal(t, narrowTree, choice.Tree.String())
	assert.Equal(t, 3, sel.Trees())
	assert.Equal(t, PlanChosen, sel.State())
	assert.Equal(t, []State{
		AwaitingTree, TreeReceived, Improved,
		AwaitingTree, TreeReceived, Improved,
		AwaitingTree, TreeReceived, Rejected,
		AwaitingTree, StreamEnd, PlanChosen,
	}, *states)

	deadline, ok := search.Deadline()
	require.True(t, ok, "an improvement within bounds recaps the search budget")
	assert.WithinDuration(t, time.Now().Add(12*time.Second), deadline, 2*time.Second)
}

func TestSelectRejectsInvalid(t *testing.T) {
	sel, hook, states := newSelector(t, DefaultOptions())
	_, err := sel.Select(context.Background(), trees(t, invalidTree), NewBudget(0))
	assert.Equal(t, ErrNoPlan, err)
	assert.Equal(t, CodeTreeParse, ErrorCode(err))
	assert.Contains(t, *states, Rejected)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestSelectTooWide(t *testing.T) {
	sel, _, _ := newSelector(t, Options{MaxWidth: 2, PerformanceFactor: 1})
	_, err := sel.Select(context.Background(), trees(t, wideTree), NewBudget(0))
	var werr *WidthError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, 3, werr.Width)
	assert.Equal(t, 2, werr.MaxWidth)
	assert.Equal(t, CodeTreeLarge, ErrorCode(err))
}

func TestSelectEmptyStream(t *testing.T) {
	sel, _, _ := newSelector(t, DefaultOptions())
	_, err := sel.Select(context.Background(), &scripted{}, NewBudget(0))
	assert.Equal(t, ErrNoPlan, err)
}

func TestSelectTimeoutKeepsBest(t *testing.T) {
	sel, _, _ := newSelector(t, Options{MaxWidth: 30, PerformanceFactor: 1})
	src := trees(t, wideTree, narrowTree)
	src.hang = true
	start := time.Now()
	choice, err := sel.Select(context.Background(), src, NewBudget(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, choice.Width)
	assert.Less(t, time.Since(start), 5*time.Second, "the recap is clamped to the plan timeout")
}

func TestSelectRecapEndsSearch(t *testing.T) {
	// With the default performance factor, the narrow tree is expected to run in a few picoseconds:
	// the search stops right after it, even without any plan timeout.
	sel, _, states := newSelector(t, DefaultOptions())
	src := trees(t, narrowTree)
	src.hang = true
	choice, err := sel.Select(context.Background(), src, NewBudget(0))
	require.NoError(t, err)
	assert.Equal(t, 2, choice.Width)
	assert.Contains(t, *states, TimedOut)
}

func TestSelectTimeoutWithoutTree(t *testing.T) {
	sel, _, _ := newSelector(t, DefaultOptions())
	_, err := sel.Select(context.Background(), &scripted{hang: true}, NewBudget(20*time.Millisecond))
	var terr *TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, PhaseSearch, terr.Phase)
	assert.Equal(t, CodeTreeTimeout, ErrorCode(err))
}

func TestSelectTargetWidth(t *testing.T) {
	sel, _, _ := newSelector(t, Options{MaxWidth: 30, PerformanceFactor: 1, TargetWidth: 2})
	src := trees(t, wideTree, narrowTree, otherNarrowTree)
	src.hang = true
	choice, err := sel.Select(context.Background(), src, NewBudget(0))
	require.NoError(t, err)
	assert.Equal(t, 2, choice.Width)
	assert.Equal(t, 2, sel.Trees())
	assert.Equal(t, PlanChosen, sel.State())
}

func TestSelectKillsPlanner(t *testing.T) {
	sel, hook, _ := newSelector(t, DefaultOptions())
	var killed []int
	sel.Kill = func(pid int) error {
		killed = append(killed, pid)
		return errors.New("operation not permitted")
	}
	src := trees(t, narrowTree)
	src.results[0].parsed.PID = 77
	_, err := sel.Select(context.Background(), src, NewBudget(0))
	require.NoError(t, err, "failing to kill the planner is not an error")
	assert.Equal(t, []int{77}, killed)
	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Data["pid"] == 77 && entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestSelectParseError(t *testing.T) {
	sel, _, _ := newSelector(t, DefaultOptions())
	stream := NewStream(strings.NewReader("p jt 4 3 5\n4 2 1 1 2\n"))
	defer stream.Close()
	_, err := sel.Select(context.Background(), stream, NewBudget(0))
	var perr *jointree.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, CodeTreeParse, ErrorCode(err))
}

func TestSelectParseErrorAfterBest(t *testing.T) {
	sel, _, _ := newSelector(t, Options{MaxWidth: 30, PerformanceFactor: 1})
	stream := NewStream(strings.NewReader(narrowTree + "=\np jt 4 3 5\n4 2 1 1 2\n"))
	defer stream.Close()
	choice, err := sel.Select(context.Background(), stream, NewBudget(0))
	require.NoError(t, err)
	assert.Equal(t, 2, choice.Width)
}

func TestSelectReadError(t *testing.T) {
	sel, _, _ := newSelector(t, DefaultOptions())
	src := &scripted{results: []result{{err: errors.New("broken pipe")}}}
	_, err := sel.Select(context.Background(), src, NewBudget(0))
	require.Error(t, err)
	assert.Equal(t, CodeTreeUnknown, ErrorCode(err))
}

func TestKillProcess(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("no sleep command available")
	}
	cmd := exec.Command(sleep, "30")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, KillProcess(pid))
	_ = cmd.Wait()
	assert.NoError(t, KillProcess(pid), "killing a process that already exited is not an error")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting tree", AwaitingTree.String())
	assert.Equal(t, "plan chosen", PlanChosen.String())
	assert.Equal(t, "unknown", State(42).String())
}
