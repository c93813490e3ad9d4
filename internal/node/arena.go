package node

// Entry is one node of an Arena. Parent is -1 for the root.
type Entry struct {
	Index    int
	ID       string
	Title    string
	Depth    int
	Parent   int
	Children []int
	Node     *Node
}

// Arena is a flat, index-addressed view of a tree in depth-first order.
// It gives consumers parent navigation without back-pointers in the tree.
type Arena struct {
	Entries []Entry
	byID    map[string]int
}

// Flatten builds an Arena over root. The tree is not copied; entries point
// at the original nodes.
func Flatten(root *Node) *Arena {
	a := &Arena{byID: make(map[string]int)}
	if root == nil {
		return a
	}
	var visit func(n *Node, parent, depth int) int
	visit = func(n *Node, parent, depth int) int {
		idx := len(a.Entries)
		a.Entries = append(a.Entries, Entry{
			Index:  idx,
			ID:     n.ID,
			Title:  n.Title,
			Depth:  depth,
			Parent: parent,
			Node:   n,
		})
		if _, dup := a.byID[n.ID]; !dup {
			a.byID[n.ID] = idx
		}
		for _, child := range n.Children {
			childIdx := visit(child, idx, depth+1)
			a.Entries[idx].Children = append(a.Entries[idx].Children, childIdx)
		}
		return idx
	}
	visit(root, -1, 0)
	return a
}

// Len returns the number of entries.
func (a *Arena) Len() int {
	return len(a.Entries)
}

// Parent returns the parent index of i, or -1.
func (a *Arena) Parent(i int) int {
	if i < 0 || i >= len(a.Entries) {
		return -1
	}
	return a.Entries[i].Parent
}

// Lookup returns the index of the node with the given id.
func (a *Arena) Lookup(id string) (int, bool) {
	idx, ok := a.byID[id]
	return idx, ok
}

// Path returns the titles from the root down to entry i (a breadcrumb).
func (a *Arena) Path(i int) []string {
	if i < 0 || i >= len(a.Entries) {
		return nil
	}
	var path []string
	for cur := i; cur >= 0; cur = a.Entries[cur].Parent {
		path = append(path, a.Entries[cur].Title)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}
