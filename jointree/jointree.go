package jointree

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tensororder/tensororder/formula"
)

// A Node is an internal node of a join tree.
type Node struct {
	Children  []int // Ids of the children, in the reverse of their textual order
	Projected []int // Variables eliminated once the children are joined
}

// A JoinTree is an elimination order for the clauses of a formula.
// Leaves are numbered 1..NumLeaves, leaf k standing for clause k-1.
// Internal nodes have ids above NumLeaves.
type JoinTree struct {
	NumLeaves int
	Root      int
	nodes     map[int]*Node
	order     []int // Ids of internal nodes, in the order they were added
}

// New returns a join tree without any internal node.
func New(numLeaves, root int) *JoinTree {
	return &JoinTree{NumLeaves: numLeaves, Root: root, nodes: make(map[int]*Node)}
}

// AddNode adds an internal node to the join tree.
func (jt *JoinTree) AddNode(id int, children, projected []int) error {
	if id <= jt.NumLeaves {
		return fmt.Errorf("internal node id %d is not above the number of leaves %d", id, jt.NumLeaves)
	}
	if _, ok := jt.nodes[id]; ok {
		return fmt.Errorf("duplicate node %d", id)
	}
	jt.nodes[id] = &Node{Children: children, Projected: projected}
	jt.order = append(jt.order, id)
	return nil
}

// IsLeaf is true iff id is the id of a leaf.
func (jt *JoinTree) IsLeaf(id int) bool {
	return id >= 1 && id <= jt.NumLeaves
}

// Node returns the internal node with the given id, or nil if there is none.
func (jt *JoinTree) Node(id int) *Node {
	return jt.nodes[id]
}

// Nodes returns the ids of all internal nodes, in storage order.
func (jt *JoinTree) Nodes() []int {
	return append([]int(nil), jt.order...)
}

// MaxVar returns the highest projected variable, or 0 if nothing is projected.
func (jt *JoinTree) MaxVar() int {
	max := 0
	for _, node := range jt.nodes {
		for _, v := range node.Projected {
			if v > max {
				max = v
			}
		}
	}
	return max
}

// Validate checks that jt is a complete elimination order for f:
// every leaf is reached exactly once from the root, no node is shared,
// and every variable of f is projected exactly once, above all the clauses it appears in.
func (jt *JoinTree) Validate(f *formula.Formula) error {
	if jt.NumLeaves != f.NbClauses() {
		return fmt.Errorf("join tree has %d leaves, formula has %d clauses", jt.NumLeaves, f.NbClauses())
	}
	projectedAt := make(map[int]int)
	for _, id := range jt.order {
		for _, v := range jt.nodes[id].Projected {
			if prev, ok := projectedAt[v]; ok {
				return fmt.Errorf("variable %d projected at both nodes %d and %d", v, prev, id)
			}
			projectedAt[v] = id
		}
	}
	leaves := 0
	// Each subtree returns its free variables, i.e the ones not projected yet.
	free, err := Visit(jt,
		func(_ int, children []map[int]struct{}, projected []int) (map[int]struct{}, error) {
			res := make(map[int]struct{})
			for _, child := range children {
				for v := range child {
					res[v] = struct{}{}
				}
			}
			for _, v := range projected {
				delete(res, v)
			}
			return res, nil
		},
		func(leaf int) (map[int]struct{}, error) {
			leaves++
			res := make(map[int]struct{})
			for _, v := range formula.ClauseVars(f.Clause(leaf - 1)) {
				res[v] = struct{}{}
			}
			return res, nil
		})
	if err != nil {
		return err
	}
	if leaves != jt.NumLeaves {
		return fmt.Errorf("only %d of %d leaves are reachable from root %d", leaves, jt.NumLeaves, jt.Root)
	}
	if len(free) != 0 {
		return fmt.Errorf("variables %v are never projected", sortedKeys(free))
	}
	for _, v := range f.Variables() {
		if _, ok := projectedAt[v]; !ok {
			return fmt.Errorf("variable %d is never projected", v)
		}
	}
	return nil
}

// Write writes jt in the .jt format.
func (jt *JoinTree) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "p jt %d %d %d\n", jt.MaxVar(), jt.NumLeaves, jt.Root)
	for _, id := range jt.order {
		node := jt.nodes[id]
		fields := make([]string, 0, len(node.Children)+len(node.Projected)+2)
		fields = append(fields, strconv.Itoa(id))
		for i := len(node.Children) - 1; i >= 0; i-- {
			fields = append(fields, strconv.Itoa(node.Children[i]))
		}
		fields = append(fields, "e")
		for _, v := range node.Projected {
			fields = append(fields, strconv.Itoa(v))
		}
		fmt.Fprintln(bw, strings.Join(fields, " "))
	}
	return bw.Flush()
}

// String returns the .jt representation of jt.
func (jt *JoinTree) String() string {
	var sb strings.Builder
	_ = jt.Write(&sb)
	return sb.String()
}

func sortedKeys(set map[int]struct{}) []int {
	res := make([]int, 0, len(set))
	for v := range set {
		res = append(res, v)
	}
	sort.Ints(res)
	return res
}
