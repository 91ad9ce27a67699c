/*
Package jointree describes join trees, i.e elimination orders for the clauses of a CNF formula.

The leaves of a join tree are the clauses of the formula. Each internal node joins the results of its children,
then eliminates (projects) a set of variables. A join tree is a valid plan for weighted model counting if each
variable is projected exactly once, at a node above every clause it appears in.

Join trees are read from and written to the .jt format produced by tree-decomposition based planners:

    c pid 4242
    p jt 3 3 5
    4 2 1 e
    5 3 4 e 1 2 3
    c seconds 0.01
    =

Each internal node line gives the node id, its children (in reverse order), the token "e", then the projected variables.
Several trees may follow each other on the same stream, each ended by a line starting with '=',
as a planner emits better and better trees. A Parser reads them one by one.

Width and cost

The cost of a join tree is estimated from the variable sets of the intermediate factors, without any actual computation.
AddWidth is the usual decision-diagram width; TensorWidth accounts for the axes needed to duplicate
variables shared by more than two factors; TensorFlops estimates the amount of arithmetic needed to execute the tree.
*/
package jointree
