// Package plan selects a join tree among the ones a planner streams, and executes it.
//
// A planner writes better and better join trees for a formula on its output until it is killed.
// A Selector reads them under a time budget and keeps the one of smallest tensor width;
// each improvement recaps the budget to the estimated execution time of the new best tree.
// An Executor then computes the weighted model count by contracting tensors along the chosen tree.
// A Runner chains formula parsing, selection and execution, and reports any failure as an error code.
package plan
