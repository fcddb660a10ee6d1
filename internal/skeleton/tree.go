// Package skeleton turns a PMX bone list into a traversable hierarchy and
// deforms model vertices with per-bone matrices.
package skeleton

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"mmd-pose-renderer/internal/pmx"
)

// ErrCyclicBoneHierarchy is returned when parent links form a loop.
var ErrCyclicBoneHierarchy = errors.New("cyclic bone hierarchy")

// Node is the render-side view of one bone.
type Node struct {
	Index    int
	Name     string
	RestPos  mgl32.Vec3
	Parent   int   // -1 for roots
	Children []int // indices into Tree.Nodes, in bone order
}

// Tree is an arena of nodes indexed by bone index.
type Tree struct {
	Nodes []Node
	Roots []int

	// Order lists every node depth-first from the roots, parents before
	// children, children in bone order.
	Order []int

	byName map[string]int
}

// Build links bones to their parents. A parent index outside the bone list
// makes the bone a root. When two bones share a name, Lookup returns the
// later one; both remain in the tree.
func Build(bones []pmx.Bone) (*Tree, error) {
	t := &Tree{
		Nodes:  make([]Node, len(bones)),
		byName: make(map[string]int, len(bones)),
	}
	for i, b := range bones {
		t.Nodes[i] = Node{
			Index:   i,
			Name:    b.Name,
			RestPos: mgl32.Vec3(b.Position),
			Parent:  -1,
		}
		t.byName[b.Name] = i
	}
	for i, b := range bones {
		p := b.Parent
		if p < 0 || p >= len(bones) {
			t.Roots = append(t.Roots, i)
			continue
		}
		t.Nodes[i].Parent = p
		t.Nodes[p].Children = append(t.Nodes[p].Children, i)
	}

	// Every node reachable from a root is visited once. Anything left over
	// hangs off a parent loop.
	t.Order = make([]int, 0, len(bones))
	stack := make([]int, 0, len(t.Roots))
	for k := len(t.Roots) - 1; k >= 0; k-- {
		stack = append(stack, t.Roots[k])
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t.Order = append(t.Order, i)
		ch := t.Nodes[i].Children
		for k := len(ch) - 1; k >= 0; k-- {
			stack = append(stack, ch[k])
		}
	}
	if len(t.Order) != len(bones) {
		for i := range t.Nodes {
			if !t.reachesRoot(i) {
				return nil, fmt.Errorf("skeleton: bone %d %q: %w", i, t.Nodes[i].Name, ErrCyclicBoneHierarchy)
			}
		}
		return nil, fmt.Errorf("skeleton: %w", ErrCyclicBoneHierarchy)
	}
	return t, nil
}

func (t *Tree) reachesRoot(i int) bool {
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if t.Nodes[i].Parent < 0 {
			return true
		}
		i = t.Nodes[i].Parent
	}
	return false
}

// Len returns the number of bones.
func (t *Tree) Len() int { return len(t.Nodes) }

// Lookup returns the bone index registered under name.
func (t *Tree) Lookup(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// Depth returns the number of ancestors of bone i.
func (t *Tree) Depth(i int) int {
	d := 0
	for p := t.Nodes[i].Parent; p >= 0; p = t.Nodes[p].Parent {
		d++
	}
	return d
}
