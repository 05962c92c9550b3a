// Package graph orders records by their references so that referenced
// records come before the records that point at them.
package graph

import "github.com/ALT-F4-LLC/haul/internal/model"

// Node wraps a record with forward and reverse dependency edges. Nodes are
// keyed by the record's position in the input slice.
// Forward edges point from a referenced record to the records referencing it.
// Reverse edges point from a referencing record back to its targets.
type Node struct {
	Record  *model.Record
	Forward map[int]struct{} // records that reference this node
	Reverse map[int]struct{} // records this node references
}

// DAG holds the reference graph of a record set.
type DAG struct {
	Nodes map[int]*Node
	index map[model.ID]int
}

// RefsFunc returns the references held by a record.
type RefsFunc func(rec *model.Record) ([]model.Ref, error)

// Build constructs the graph of records. Weak references, references to
// records outside the set and self references are ignored.
func Build(records []*model.Record, refs RefsFunc) (*DAG, error) {
	dag := &DAG{
		Nodes: make(map[int]*Node, len(records)),
		index: make(map[model.ID]int, len(records)),
	}

	for i, rec := range records {
		dag.Nodes[i] = &Node{
			Record:  rec,
			Forward: make(map[int]struct{}),
			Reverse: make(map[int]struct{}),
		}
		dag.index[rec.ID] = i
	}

	for i, rec := range records {
		rs, err := refs(rec)
		if err != nil {
			return nil, err
		}
		for _, ref := range rs {
			if ref.Weak {
				continue
			}
			for _, id := range ref.IDs {
				to, ok := dag.index[id]
				if !ok || to == i {
					continue
				}
				dag.Nodes[to].Forward[i] = struct{}{}
				dag.Nodes[i].Reverse[to] = struct{}{}
			}
		}
	}

	return dag, nil
}

// Index returns the position of the record with id.
func (d *DAG) Index(id model.ID) (int, bool) {
	i, ok := d.index[id]
	return i, ok
}
