// Package trace materializes the flat trace record collection of a product
// into a forest of bill-of-materials trees and renders it.
//
// Build indexes children by parent ID once, so materialization is O(n) and
// child lookup is O(1) per node. Parent links are checked for cycles before
// any tree is built; a cyclic input yields a *CycleError instead of a tree.
package trace

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/passport/pkg/types"
)

// Node is one materialized trace record with its children.
type Node struct {
	Record   types.TraceRecord
	Depth    int // 1 for tree tops
	Children []*Node
}

// ID returns the trace ID of the node's record.
func (n *Node) ID() string { return n.Record.TraceID }

// Forest is the materialized set of trees of one product.
type Forest struct {
	ProductID string

	// Roots are the records with no parent.
	Roots []*Node

	// Dangling are records whose parent is not part of the product's
	// collection. They are neither roots nor children of any root; their own
	// subtrees are materialized below them.
	Dangling []*Node

	nodes map[string]*Node
}

// CycleError reports a cycle among parent links. IDs lists the records on
// the cycle in parent order, starting from the lowest ID.
type CycleError struct {
	IDs []string
}

func (e *CycleError) Error() string {
	path := append(append([]string{}, e.IDs...), e.IDs[0])
	return fmt.Sprintf("%v: %s", types.ErrCycle, strings.Join(path, " -> "))
}

func (e *CycleError) Unwrap() error { return types.ErrCycle }

// Build materializes the records of productID. Records of other products are
// ignored. It returns a *CycleError if parent links loop, and ErrDuplicateID
// if two records share an ID.
func Build(records []types.TraceRecord, productID string) (*Forest, error) {
	byID := make(map[string]types.TraceRecord)
	order := make([]string, 0, len(records))
	for _, r := range records {
		if r.ProductID != productID {
			continue
		}
		if _, dup := byID[r.TraceID]; dup {
			return nil, fmt.Errorf("%w: %s", types.ErrDuplicateID, r.TraceID)
		}
		byID[r.TraceID] = r
		order = append(order, r.TraceID)
	}

	if err := detectCycle(byID, order); err != nil {
		return nil, err
	}

	f := &Forest{
		ProductID: productID,
		nodes:     make(map[string]*Node, len(byID)),
	}
	for _, id := range order {
		f.nodes[id] = &Node{Record: byID[id]}
	}

	for _, id := range order {
		n := f.nodes[id]
		parentID := n.Record.ParentTraceID
		switch parent, ok := f.nodes[parentID]; {
		case parentID == "":
			f.Roots = append(f.Roots, n)
		case ok:
			parent.Children = append(parent.Children, n)
		default:
			f.Dangling = append(f.Dangling, n)
		}
	}

	sortNodes(f.Roots)
	sortNodes(f.Dangling)
	for _, n := range f.nodes {
		sortNodes(n.Children)
	}

	assignDepth(f.Roots)
	assignDepth(f.Dangling)
	return f, nil
}

// detectCycle follows every parent chain once, colouring records as on the
// current path or finished. Reaching a record on the current path means the
// chain loops back on itself.
func detectCycle(byID map[string]types.TraceRecord, order []string) error {
	const (
		onPath = 1
		done   = 2
	)
	state := make(map[string]int, len(byID))
	for _, start := range order {
		var path []string
		cur := start
		looped := false
		for cur != "" {
			if s := state[cur]; s == done {
				break
			} else if s == onPath {
				looped = true
				break
			}
			r, ok := byID[cur]
			if !ok {
				break
			}
			state[cur] = onPath
			path = append(path, cur)
			cur = r.ParentTraceID
		}
		if looped {
			return newCycleError(path, cur)
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return nil
}

func newCycleError(path []string, entry string) *CycleError {
	i := 0
	for path[i] != entry {
		i++
	}
	loop := path[i:]
	lowest := 0
	for j := range loop {
		if loop[j] < loop[lowest] {
			lowest = j
		}
	}
	ids := make([]string, 0, len(loop))
	ids = append(ids, loop[lowest:]...)
	ids = append(ids, loop[:lowest]...)
	return &CycleError{IDs: ids}
}

// assignDepth sets Depth breadth-first starting at 1 for the given tops.
func assignDepth(tops []*Node) {
	queue := make([]*Node, 0, len(tops))
	for _, n := range tops {
		n.Depth = 1
		queue = append(queue, n)
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range n.Children {
			c.Depth = n.Depth + 1
			queue = append(queue, c)
		}
	}
}

// sortNodes orders siblings by tier, material name and ID.
func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].Record, nodes[j].Record
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.MaterialName != b.MaterialName {
			return a.MaterialName < b.MaterialName
		}
		return a.TraceID < b.TraceID
	})
}

// Len returns the number of records in the forest, dangling ones included.
func (f *Forest) Len() int { return len(f.nodes) }

// Lookup returns the node for a trace ID.
func (f *Forest) Lookup(traceID string) (*Node, bool) {
	n, ok := f.nodes[traceID]
	return n, ok
}

// Children returns the direct children of a trace ID, or nil.
func (f *Forest) Children(traceID string) []*Node {
	if n, ok := f.nodes[traceID]; ok {
		return n.Children
	}
	return nil
}

// Descendants returns the IDs of every record below traceID, deepest first,
// so that deleting in order never leaves an orphan behind.
func (f *Forest) Descendants(traceID string) []string {
	n, ok := f.nodes[traceID]
	if !ok {
		return nil
	}
	var out []string
	stack := append([]*Node{}, n.Children...)
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, top.ID())
		stack = append(stack, top.Children...)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Attached returns every node reachable from a root, in walk order.
func (f *Forest) Attached() []*Node {
	var out []*Node
	f.Walk(nil, func(n *Node) {
		out = append(out, n)
	})
	return out
}

// TierMismatches returns the attached records whose declared tier differs
// from their depth in the tree.
func (f *Forest) TierMismatches() []types.TraceRecord {
	var out []types.TraceRecord
	for _, n := range f.Attached() {
		if n.Record.Tier != n.Depth {
			out = append(out, n.Record)
		}
	}
	return out
}

// IsAncestor reports whether ancestorID appears on the parent chain of id
// within records. The walk stops at the first repeated ID, so it terminates
// on cyclic input.
func IsAncestor(records []types.TraceRecord, ancestorID, id string) bool {
	parent := make(map[string]string, len(records))
	for _, r := range records {
		parent[r.TraceID] = r.ParentTraceID
	}
	seen := make(map[string]bool)
	cur := parent[id]
	for cur != "" && !seen[cur] {
		if cur == ancestorID {
			return true
		}
		seen[cur] = true
		cur = parent[cur]
	}
	return false
}
