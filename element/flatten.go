package element

import "strings"

// DefaultExcludedTypes are type-tag fragments marking pure organizational nodes.
var DefaultExcludedTypes = []string{"Collection", "Organization.Model"}

// Flattener walks a node tree and yields its leaf elements.
type Flattener struct {
	// ExcludedTypes are substrings of type tags that are never emitted.
	// Nil means DefaultExcludedTypes.
	ExcludedTypes []string

	// IncludeHosts also emits containers that carry their own id and are not
	// organizational, e.g. a wall hosting doors. They are emitted before their
	// children.
	IncludeHosts bool
}

// Flatten returns the leaf elements reachable from root using the default
// Flattener.
func Flatten(root *Node) []*Node {
	return Flattener{}.Flatten(root)
}

// Flatten returns the leaf elements reachable from root in depth-first source
// order. Each node is visited at most once, so shared subtrees and cycles do not
// produce duplicates.
func (f Flattener) Flatten(root *Node) []*Node {
	var out []*Node
	seen := make(map[*Node]struct{})
	f.walk(root, seen, &out)
	return out
}

func (f Flattener) walk(n *Node, seen map[*Node]struct{}, out *[]*Node) {
	if n == nil {
		return
	}
	if _, ok := seen[n]; ok {
		return
	}
	seen[n] = struct{}{}

	switch n.Kind {
	case KindContainer:
		if f.IncludeHosts && f.emittable(n) {
			*out = append(*out, n)
		}
		for _, child := range n.Children {
			f.walk(child, seen, out)
		}
	case KindSequence:
		for _, item := range n.Children {
			f.walk(item, seen, out)
		}
	case KindLeaf:
		if f.emittable(n) {
			*out = append(*out, n)
		}
	}
}

func (f Flattener) emittable(n *Node) bool {
	if n.ID == "" {
		return false
	}
	excluded := f.ExcludedTypes
	if excluded == nil {
		excluded = DefaultExcludedTypes
	}
	for _, frag := range excluded {
		if frag != "" && strings.Contains(n.Type, frag) {
			return false
		}
	}
	return true
}
