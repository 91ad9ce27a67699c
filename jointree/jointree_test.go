package jointree

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensororder/tensororder/formula"
)

const (
	// Both leaves of {1, 2} and {-1, -2}, joined at the root.
	twoClauses = "p jt 2 2 3\n3 2 1 e 1 2\n"
	// Three clauses sharing variable 1, which is only projected at the root.
	diamond = "p jt 3 3 5\n4 2 1 e\n5 3 4 e 1 2 3\n"
)

func mustFormula(t *testing.T, cnf [][]int) *formula.Formula {
	f, err := formula.ParseSlice(cnf)
	require.NoError(t, err)
	return f
}

func mustParse(t *testing.T, jt string) *JoinTree {
	tree, err := Parse(strings.NewReader(jt))
	require.NoError(t, err)
	return tree
}

// shape is a comparable view of a join tree.
type shape struct {
	NumLeaves, Root int
	Order           []int
	Nodes           map[int]Node
}

func shapeOf(jt *JoinTree) shape {
	s := shape{NumLeaves: jt.NumLeaves, Root: jt.Root, Order: jt.Nodes(), Nodes: make(map[int]Node)}
	for _, id := range jt.Nodes() {
		s.Nodes[id] = *jt.Node(id)
	}
	return s
}

func TestParse(t *testing.T) {
	tree := mustParse(t, "c a comment\np jt 7 4 7\n5 2 1 e 1\nc in between\n6 4 3 e 2 3\n7 6 5 e 4 7\n")
	assert.Equal(t, 4, tree.NumLeaves)
	assert.Equal(t, 7, tree.Root)
	assert.Equal(t, []int{5, 6, 7}, tree.Nodes())
	assert.Equal(t, []int{5, 6}, tree.Node(7).Children)
	assert.Equal(t, []int{4, 7}, tree.Node(7).Projected)
	assert.Equal(t, []int{1, 2}, tree.Node(5).Children)
	assert.Nil(t, tree.Node(1))
	assert.True(t, tree.IsLeaf(4))
	assert.False(t, tree.IsLeaf(5))
	assert.Equal(t, 7, tree.MaxVar())
}

func TestRoundTrip(t *testing.T) {
	trees := []string{
		twoClauses,
		diamond,
		"p jt 9 5 9\n6 1 e\n7 3 2 6 e 1 2\n8 5 4 e 3\n9 8 7 e 4 5 6 7 8 9\n",
		"p jt 0 1 2\n2 1 e\n",
	}
	for _, text := range trees {
		tree := mustParse(t, text)
		var sb strings.Builder
		require.NoError(t, tree.Write(&sb))
		assert.Equal(t, text, sb.String())
		again := mustParse(t, sb.String())
		if diff := cmp.Diff(shapeOf(tree), shapeOf(again)); diff != "" {
			t.Errorf("round trip of %q changed the tree (-want +got):\n%s", text, diff)
		}
	}
}

func TestParserStream(t *testing.T) {
	stream := `c pid 4242
p jt 2 2 3
3 2 1 e 1 2
c seconds 0.5
=
c o some planner chatter
p jt 2 2 4
3 1 e 1
4 2 3 e 2
c seconds 1.25
=
`
	p := NewParser(strings.NewReader(stream))
	first, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, first.Tree)
	assert.Equal(t, 3, first.Tree.Root)
	assert.Equal(t, 4242, first.PID)
	assert.True(t, first.HasSeconds)
	assert.Equal(t, 0.5, first.Seconds)

	second, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, second.Tree)
	assert.Equal(t, 4, second.Tree.Root)
	assert.Equal(t, 4242, second.PID)
	assert.Equal(t, 1.25, second.Seconds)

	last, err := p.Next()
	assert.Equal(t, io.EOF, err)
	assert.Nil(t, last.Tree)
	assert.Equal(t, 4242, last.PID)
}

func TestParserUnterminated(t *testing.T) {
	p := NewParser(strings.NewReader("p jt 2 2 3\n3 2 1 e 1 2\nc seconds 2"))
	res, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, res.Tree)
	assert.Equal(t, 2.0, res.Seconds)
	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestParserCommentsOnly(t *testing.T) {
	p := NewParser(strings.NewReader("c pid 12\nc seconds 3\n"))
	res, err := p.Next()
	assert.Equal(t, io.EOF, err)
	assert.Nil(t, res.Tree)
	assert.Equal(t, 12, res.PID)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		jt   string
		line int
	}{
		{"3 2 1 e 1 2\n", 1},
		{"p jt 2 2\n", 1},
		{"p jt 2 x 3\n", 1},
		{"p jt 2 2 3\n3 2 1 1 2\n", 2},
		{"p jt 2 2 3\n3 2 a e 1\n", 2},
		{"p jt 2 2 3\n3 2 1 e b\n", 2},
		{"p jt 2 2 3\n2 1 e 1\n", 2},
		{"p jt 2 2 4\n3 1 e\n3 2 e\n", 3},
		{"c pid abc\np jt 2 2 3\n", 1},
		{"p jt 2 2 3\nc seconds soon\n", 2},
		{"p jt 2 2 3\ne 1 2\n", 2},
	}
	for _, test := range tests {
		_, err := Parse(strings.NewReader(test.jt))
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("expected parse error for %q, got %v", test.jt, err)
			continue
		}
		if perr.Line != test.line {
			t.Errorf("for %q, expected error on line %d, got %d (%v)", test.jt, test.line, perr.Line, perr)
		}
	}
	_, err := Parse(strings.NewReader("c nothing here\n"))
	var perr *ParseError
	assert.True(t, errors.As(err, &perr))
}

func TestVisitOrder(t *testing.T) {
	tree := mustParse(t, "p jt 9 5 9\n6 1 e\n7 3 2 6 e 1 2\n8 5 4 e 3\n9 8 7 e 4 5 6 7 8 9\n")
	var visited []string
	res, err := Visit(tree,
		func(id int, children []string, projected []int) (string, error) {
			visited = append(visited, fmt.Sprint(id))
			return fmt.Sprintf("%d%v", id, children), nil
		},
		func(leaf int) (string, error) {
			visited = append(visited, fmt.Sprint(leaf))
			return fmt.Sprint(leaf), nil
		})
	require.NoError(t, err)
	assert.Equal(t, "9[7[6[1] 2 3] 8[4 5]]", res)
	assert.Equal(t, []string{"1", "6", "2", "3", "7", "4", "5", "8", "9"}, visited)
}

func TestVisitDeep(t *testing.T) {
	const depth = 100000
	tree := New(1, depth+1)
	require.NoError(t, tree.AddNode(2, []int{1}, nil))
	for id := 3; id <= depth+1; id++ {
		require.NoError(t, tree.AddNode(id, []int{id - 1}, nil))
	}
	height, err := Visit(tree,
		func(_ int, children []int, _ []int) (int, error) { return children[0] + 1, nil },
		func(int) (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Equal(t, depth, height)
}

func TestVisitErrors(t *testing.T) {
	leaf := func(int) (int, error) { return 0, nil }
	internal := func(int, []int, []int) (int, error) { return 0, nil }

	unknown := New(2, 3)
	require.NoError(t, unknown.AddNode(3, []int{1, 7}, nil))
	_, err := Visit(unknown, internal, leaf)
	assert.Error(t, err)

	shared := New(2, 4)
	require.NoError(t, shared.AddNode(3, []int{1, 2}, nil))
	require.NoError(t, shared.AddNode(4, []int{3, 3}, nil))
	_, err = Visit(shared, internal, leaf)
	assert.Error(t, err)

	cycle := New(1, 2)
	require.NoError(t, cycle.AddNode(2, []int{3}, nil))
	require.NoError(t, cycle.AddNode(3, []int{2}, nil))
	_, err = Visit(cycle, internal, leaf)
	assert.Error(t, err)

	failing := mustParse(t, twoClauses)
	_, err = Visit(failing, internal, func(int) (int, error) { return 0, fmt.Errorf("boom") })
	assert.EqualError(t, err, "boom")
}

func TestVisitEmptyNode(t *testing.T) {
	tree := mustParse(t, "p jt 1 1 3\n2 e\n3 2 1 e 1\n")
	var sizes []int
	_, err := Visit(tree,
		func(_ int, children []int, _ []int) (int, error) {
			sizes = append(sizes, len(children))
			return 0, nil
		},
		func(int) (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, sizes)
}

func TestWidths(t *testing.T) {
	tests := []struct {
		name        string
		cnf         [][]int
		jt          string
		addWidth    int
		tensorWidth int
		flops       float64
	}{
		{"two clauses", [][]int{{1, 2}, {-1, -2}}, twoClauses, 2, 2, 4},
		{"diamond", [][]int{{1, 2}, {1, -3}, {-1, 2, 3}}, diamond, 3, 3, 24},
		{
			// Variable 1 is shared by all three clauses but kept until the root: duplication makes the tensor wider.
			"chain",
			[][]int{{1, 2}, {1, 3}, {1, 4}},
			"p jt 4 3 5\n4 2 1 e 2 3\n5 3 4 e 1 4\n",
			3, 3, 20,
		},
		{"single leaf", [][]int{{1, -2, 3}}, "p jt 3 1 2\n2 1 e 1 2 3\n", 3, 3, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := mustFormula(t, test.cnf)
			tree := mustParse(t, test.jt)
			require.NoError(t, tree.Validate(f))
			add, err := tree.AddWidth(f)
			require.NoError(t, err)
			assert.Equal(t, test.addWidth, add)
			width, err := tree.TensorWidth(f)
			require.NoError(t, err)
			assert.Equal(t, test.tensorWidth, width)
			assert.GreaterOrEqual(t, width, f.MaxClauseSize())
			flops, err := tree.TensorFlops(f)
			require.NoError(t, err)
			assert.Equal(t, test.flops, flops)
		})
	}
}

func TestTensorWidthDuplication(t *testing.T) {
	// Joining {1, 2, 3} with {1, 2, 4} while keeping both shared variables:
	// the first copy goes to the left side (3 <= 3), the second one to the right side.
	f := mustFormula(t, [][]int{{1, 2, 3}, {1, 2, 4}, {-1, -2}})
	tree := mustParse(t, "p jt 4 3 5\n4 2 1 e 3 4\n5 3 4 e 1 2\n")
	require.NoError(t, tree.Validate(f))
	width, err := tree.TensorWidth(f)
	require.NoError(t, err)
	assert.Equal(t, 4, width)
	add, err := tree.AddWidth(f)
	require.NoError(t, err)
	assert.Equal(t, 4, add)
}

func TestFlopsCap(t *testing.T) {
	// 60 variables in each clause, none shared: a single join of 120 free axes.
	var left, right []int
	for v := 1; v <= 60; v++ {
		left = append(left, v)
		right = append(right, 60+v)
	}
	f := mustFormula(t, [][]int{left, right})
	tree := New(2, 3)
	require.NoError(t, tree.AddNode(3, []int{1, 2}, nil))
	flops, err := tree.TensorFlops(f)
	require.NoError(t, err)
	assert.Equal(t, float64(1<<50)*float64(1<<50), flops)
}

func TestWidthsTooManyLeaves(t *testing.T) {
	f := mustFormula(t, [][]int{{1, 2}, {-1, -2}})
	tree := mustParse(t, "p jt 2 3 4\n4 3 2 1 e 1 2\n")
	_, err := tree.AddWidth(f)
	assert.Error(t, err)
	_, err = tree.TensorWidth(f)
	assert.Error(t, err)
	_, err = tree.TensorFlops(f)
	assert.Error(t, err)
	assert.Error(t, tree.Validate(f))
}

func TestValidate(t *testing.T) {
	f := mustFormula(t, [][]int{{1, 2}, {-1, -2}})
	tests := []struct {
		name string
		jt   string
	}{
		{"missing projection", "p jt 1 2 3\n3 2 1 e 1\n"},
		{"double projection", "p jt 2 2 5\n3 1 e 1\n4 2 e 1\n5 4 3 e 2\n"},
		{"projected too early", "p jt 2 2 4\n3 1 e 1\n4 2 3 e 2\n"},
		{"unreachable leaf", "p jt 2 2 3\n3 1 e 1 2\n"},
		{"wrong number of leaves", "p jt 2 3 4\n4 3 2 1 e 1 2\n"},
	}
	for _, test := range tests {
		tree := mustParse(t, test.jt)
		assert.Error(t, tree.Validate(f), test.name)
	}
	assert.NoError(t, mustParse(t, twoClauses).Validate(f))
}

func ExampleJoinTree_Write() {
	tree := New(2, 3)
	if err := tree.AddNode(3, []int{1, 2}, []int{1, 2}); err != nil {
		fmt.Println(err)
		return
	}
	_ = tree.Write(os.Stdout)
	// Output:
	// p jt 2 2 3
	// 3 2 1 e 1 2
}
