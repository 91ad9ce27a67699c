package jointree

import "fmt"

// frame is an entry of the explicit stack used by Visit.
type frame struct {
	id       int
	expanded bool // Have the children of this node already been pushed?
}

// Visit computes a result for each node of jt in postorder, and returns the result at the root.
//
// atLeaf is called with the id of each leaf. atInternal is called for each internal node once all its
// children are resolved, with the results of the children in the order of node.Children.
// A node without children is given an empty slice.
//
// The traversal uses an explicit stack, so deep trees cannot overflow the call stack.
// An unknown node id, or a node reachable twice, is an error.
// The first error returned by a callback stops the traversal.
func Visit[T any](jt *JoinTree, atInternal func(id int, children []T, projected []int) (T, error), atLeaf func(leaf int) (T, error)) (T, error) {
	var (
		zero    T
		stack   = []frame{{id: jt.Root}}
		results []T
		seen    = make(map[int]bool)
	)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if jt.IsLeaf(top.id) {
			if seen[top.id] {
				return zero, fmt.Errorf("leaf %d reached more than once", top.id)
			}
			seen[top.id] = true
			res, err := atLeaf(top.id)
			if err != nil {
				return zero, err
			}
			results = append(results, res)
			continue
		}
		node := jt.nodes[top.id]
		if node == nil {
			return zero, fmt.Errorf("unknown node %d", top.id)
		}
		if top.expanded {
			n := len(node.Children)
			children := make([]T, n)
			copy(children, results[len(results)-n:])
			results = results[:len(results)-n]
			res, err := atInternal(top.id, children, node.Projected)
			if err != nil {
				return zero, err
			}
			results = append(results, res)
			continue
		}
		if seen[top.id] {
			return zero, fmt.Errorf("node %d reached more than once", top.id)
		}
		seen[top.id] = true
		stack = append(stack, frame{id: top.id, expanded: true})
		// Pushed in reverse, so that the first child is resolved first and results line up with Children.
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: node.Children[i]})
		}
	}
	if len(results) != 1 {
		return zero, fmt.Errorf("traversal ended with %d results", len(results))
	}
	return results[0], nil
}
