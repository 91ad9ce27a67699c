/*
Package formula describes weighted CNF formulas, as consumed by the tensor-based model counter.

A formula is a list of clauses, each clause being a disjunction of DIMACS literals
(a positive int v for the variable v, -v for its negation), along with a weight for each literal.
The weighted model count of a formula is the sum, over all satisfying assignments,
of the product of the weights of the literals made true by the assignment.

Describing a formula

A formula can be parsed from a DIMACS stream (io.Reader). If the io.Reader produces the following content:

    p cnf 2 2
    c weights 0.3 0.7 0.5 0.5
    1 2 0
    -1 -2 0

the programmer can create the Formula by doing:

    f, err := formula.ParseDIMACS(r)

The same formula, without weights, can be built programmatically:

    f, err := formula.ParseSlice([][]int{{1, 2}, {-1, -2}})

Weights

A formula without any weight directive is unweighted: both literals of every variable weigh 1,
and the weighted model count is the number of models.
As soon as a weight directive is found, variables that were not given a weight weigh 0.5 for both literals.
*/
package formula
