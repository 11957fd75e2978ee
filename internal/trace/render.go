package trace

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mesh-intelligence/passport/pkg/types"
)

// DefaultExpandLevels is how many levels DefaultExpanded opens.
const DefaultExpandLevels = 2

// ExpandSet holds the IDs of expanded nodes. It is owned by whoever displays
// the tree and passed to the walk, keeping presentation state out of the
// tree itself. A nil ExpandSet means every node is expanded.
type ExpandSet map[string]struct{}

// DefaultExpanded returns an ExpandSet with every attached node at depth
// levels or shallower expanded.
func DefaultExpanded(f *Forest, levels int) ExpandSet {
	set := make(ExpandSet)
	for _, n := range f.Attached() {
		if n.Depth <= levels {
			set[n.ID()] = struct{}{}
		}
	}
	return set
}

// IsExpanded reports whether the node with the given ID shows its children.
func (s ExpandSet) IsExpanded(id string) bool {
	if s == nil {
		return true
	}
	_, ok := s[id]
	return ok
}

// Expand opens the node with the given ID.
func (s ExpandSet) Expand(id string) { s[id] = struct{}{} }

// Collapse closes the node with the given ID.
func (s ExpandSet) Collapse(id string) { delete(s, id) }

// Toggle flips the node with the given ID and reports whether it is now open.
func (s ExpandSet) Toggle(id string) bool {
	if _, ok := s[id]; ok {
		delete(s, id)
		return false
	}
	s[id] = struct{}{}
	return true
}

// Walk visits the visible nodes of every root tree depth-first in sibling
// order. Children of collapsed nodes are skipped. The walk uses an explicit
// stack.
func (f *Forest) Walk(expanded ExpandSet, fn func(n *Node)) {
	stack := make([]*Node, 0, len(f.Roots))
	for i := len(f.Roots) - 1; i >= 0; i-- {
		stack = append(stack, f.Roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		if !expanded.IsExpanded(n.ID()) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Render writes the visible part of the forest as an indented text tree.
// Collapsed nodes with children are marked with the number of hidden
// children. Dangling records are listed after the trees.
func Render(w io.Writer, f *Forest, expanded ExpandSet) error {
	bw := bufio.NewWriter(w)
	if len(f.Roots) == 0 && len(f.Dangling) == 0 {
		fmt.Fprintf(bw, "product %s has no trace records\n", f.ProductID)
		return bw.Flush()
	}
	for _, root := range f.Roots {
		renderNode(bw, root, "", "", expanded, true)
	}
	if len(f.Dangling) > 0 {
		fmt.Fprintln(bw, "unattached (parent missing):")
		for _, n := range f.Dangling {
			renderNode(bw, n, "  ", "  ", expanded, false)
		}
	}
	return bw.Flush()
}

func renderNode(w *bufio.Writer, n *Node, head, tail string, expanded ExpandSet, attached bool) {
	fmt.Fprintf(w, "%s%s\n", head, describe(n, expanded, attached))
	if !expanded.IsExpanded(n.ID()) {
		return
	}
	for i, c := range n.Children {
		if i == len(n.Children)-1 {
			renderNode(w, c, tail+"└── ", tail+"    ", expanded, attached)
		} else {
			renderNode(w, c, tail+"├── ", tail+"│   ", expanded, attached)
		}
	}
}

func describe(n *Node, expanded ExpandSet, attached bool) string {
	r := n.Record
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %g%s %s tier %d · %s", r.MaterialName, r.MaterialType, r.Quantity, r.QuantityUnit, r.OriginCountry, r.Tier, r.ComplianceStatus)
	if r.IsRecycled {
		b.WriteString(" · recycled")
	}
	if r.ConflictMinerals {
		b.WriteString(" · conflict minerals")
	}
	if attached && r.Tier != n.Depth {
		fmt.Fprintf(&b, " · tier mismatch (depth %d)", n.Depth)
	}
	if len(n.Children) > 0 && !expanded.IsExpanded(n.ID()) {
		fmt.Fprintf(&b, " (+%d)", len(n.Children))
	}
	fmt.Fprintf(&b, " <%s>", r.TraceID)
	return b.String()
}

// Nested returns the visible part of the root trees in the public nested
// form. Collapsed nodes carry no children.
func (f *Forest) Nested(expanded ExpandSet) []types.PublicNode {
	out := make([]types.PublicNode, 0, len(f.Roots))
	for _, r := range f.Roots {
		out = append(out, nested(r, expanded))
	}
	return out
}

func nested(n *Node, expanded ExpandSet) types.PublicNode {
	r := n.Record
	pn := types.PublicNode{
		TraceID:          r.TraceID,
		MaterialName:     r.MaterialName,
		MaterialType:     r.MaterialType,
		Tier:             r.Tier,
		OriginCountry:    r.OriginCountry,
		ComplianceStatus: r.ComplianceStatus,
		IsRecycled:       r.IsRecycled,
		ConflictMinerals: r.ConflictMinerals,
	}
	if expanded.IsExpanded(n.ID()) {
		for _, c := range n.Children {
			pn.Children = append(pn.Children, nested(c, expanded))
		}
	}
	return pn
}

// Public builds the public passport projection of the forest. Only records
// attached to a root are published.
func Public(f *Forest, now time.Time) types.PublicDppData {
	data := types.PublicDppData{
		ProductID:    f.ProductID,
		GeneratedAt:  now.UTC(),
		StatusCounts: make(map[types.ComplianceStatus]int),
		Origins:      []string{},
		Materials:    f.Nested(nil),
	}
	origins := make(map[string]bool)
	for _, n := range f.Attached() {
		r := n.Record
		data.MaterialCount++
		data.StatusCounts[r.ComplianceStatus]++
		if r.IsRecycled {
			data.RecycledCount++
		}
		if r.ConflictMinerals {
			data.ConflictMinerals++
		}
		if !origins[r.OriginCountry] {
			origins[r.OriginCountry] = true
			data.Origins = append(data.Origins, r.OriginCountry)
		}
	}
	sort.Strings(data.Origins)
	if data.MaterialCount > 0 {
		data.VerifiedShare = float64(data.StatusCounts[types.StatusVerified]) / float64(data.MaterialCount)
	}
	return data
}
