package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ALT-F4-LLC/haul/internal/model"
)

// CycleError is returned when the references form a cycle and topological
// sorting is not possible.
type CycleError struct {
	IDs []model.ID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		parts[i] = id.String()
	}
	return fmt.Sprintf("reference cycle among records: %s", strings.Join(parts, ", "))
}

// TopoSort performs a topological sort on the DAG using Kahn's algorithm.
// It returns record positions grouped by level: level 0 holds records that
// reference nothing in the set, level 1 records whose targets are all in
// level 0, and so on. Positions within a level are ascending.
//
// Returns a CycleError listing the records still blocked by a cycle.
func TopoSort(dag *DAG) ([][]int, error) {
	levels, remaining := kahn(dag)
	if len(remaining) > 0 {
		ids := make([]model.ID, len(remaining))
		for i, n := range remaining {
			ids[i] = dag.Nodes[n].Record.ID
		}
		return nil, &CycleError{IDs: ids}
	}
	return levels, nil
}

func kahn(dag *DAG) (levels [][]int, remaining []int) {
	// Build a mutable in-degree map.
	inDegree := make(map[int]int, len(dag.Nodes))
	for id, node := range dag.Nodes {
		inDegree[id] = len(node.Reverse)
	}

	// Seed the queue with nodes that have in-degree 0.
	var queue []int
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Ints(queue)

	for len(queue) > 0 {
		level := make([]int, len(queue))
		copy(level, queue)
		levels = append(levels, level)

		var nextQueue []int
		for _, id := range queue {
			for neighbor := range dag.Nodes[id].Forward {
				inDegree[neighbor]--
				if inDegree[neighbor] == 0 {
					nextQueue = append(nextQueue, neighbor)
				}
			}
		}
		sort.Ints(nextQueue)
		queue = nextQueue
	}

	for id, deg := range inDegree {
		if deg > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Ints(remaining)
	return levels, remaining
}

// Order returns records with referenced records first. Records caught in a
// cycle, and everything that depends on them, follow in their original order.
func Order(records []*model.Record, refs RefsFunc) ([]*model.Record, error) {
	dag, err := Build(records, refs)
	if err != nil {
		return nil, err
	}
	levels, remaining := kahn(dag)

	out := make([]*model.Record, 0, len(records))
	for _, level := range levels {
		for _, n := range level {
			out = append(out, records[n])
		}
	}
	for _, n := range remaining {
		out = append(out, records[n])
	}
	return out, nil
}
