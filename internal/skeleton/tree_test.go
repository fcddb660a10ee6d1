package skeleton

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"mmd-pose-renderer/internal/pmx"
)

func bone(name string, parent int, pos [3]float32) pmx.Bone {
	return pmx.Bone{Name: name, Parent: parent, Position: pos}
}

func TestBuildHierarchy(t *testing.T) {
	bones := []pmx.Bone{
		bone("root", -1, [3]float32{}),
		bone("hip", 0, [3]float32{0, 10, 0}),
		bone("leg", 1, [3]float32{1, 8, 0}),
		bone("stray", 99, [3]float32{}),
		bone("arm", 0, [3]float32{2, 14, 0}),
	}
	tree, err := Build(bones)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Roots) != 2 || tree.Roots[0] != 0 || tree.Roots[1] != 3 {
		t.Fatalf("roots = %v", tree.Roots)
	}

	seen := make(map[int]int)
	for _, n := range tree.Nodes {
		for _, c := range n.Children {
			seen[c]++
		}
	}
	for i := range bones {
		want := 1
		if tree.Nodes[i].Parent < 0 {
			want = 0
		}
		if seen[i] != want {
			t.Errorf("bone %d appears in %d child lists, want %d", i, seen[i], want)
		}
	}

	wantOrder := []int{0, 1, 2, 4, 3}
	for i, idx := range wantOrder {
		if tree.Order[i] != idx {
			t.Fatalf("order = %v, want %v", tree.Order, wantOrder)
		}
	}
	if tree.Nodes[2].RestPos != (mgl32.Vec3{1, 8, 0}) {
		t.Errorf("rest pos = %v", tree.Nodes[2].RestPos)
	}
	if d := tree.Depth(2); d != 2 {
		t.Errorf("depth = %d", d)
	}
}

func TestBuildEmpty(t *testing.T) {
	tree, err := Build(nil)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Len() != 0 || len(tree.Roots) != 0 {
		t.Fatalf("tree = %+v", tree)
	}
}

func TestNameCollisionLaterWins(t *testing.T) {
	tree, err := Build([]pmx.Bone{
		bone("dup", -1, [3]float32{}),
		bone("dup", 0, [3]float32{}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if i, ok := tree.Lookup("dup"); !ok || i != 1 {
		t.Fatalf("lookup = %d %v", i, ok)
	}
	if tree.Len() != 2 {
		t.Fatalf("len = %d", tree.Len())
	}
	if _, ok := tree.Lookup("missing"); ok {
		t.Fatal("found missing bone")
	}
}

func TestBuildRejectsCycles(t *testing.T) {
	tests := []struct {
		name  string
		bones []pmx.Bone
	}{
		{"self", []pmx.Bone{bone("a", 0, [3]float32{})}},
		{"pair", []pmx.Bone{
			bone("root", -1, [3]float32{}),
			bone("a", 2, [3]float32{}),
			bone("b", 1, [3]float32{}),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.bones)
			if !errors.Is(err, ErrCyclicBoneHierarchy) {
				t.Fatalf("expected ErrCyclicBoneHierarchy, got %v", err)
			}
		})
	}
}

func TestSkin(t *testing.T) {
	verts := []pmx.Vertex{
		{Position: [3]float32{1, 0, 0}, Normal: [3]float32{0, 1, 0},
			Weight: pmx.SkinWeight{Kind: pmx.Rigid, Bones: [4]int{1, -1, -1, -1}, Weights: [4]float32{1}}},
		{Position: [3]float32{0, 0, 0}, Normal: [3]float32{0, 1, 0},
			Weight: pmx.SkinWeight{Kind: pmx.Linear2, Bones: [4]int{0, 1, -1, -1}, Weights: [4]float32{0.5, 0.5}}},
		{Position: [3]float32{3, 3, 3}, Normal: [3]float32{0, 0, 1},
			Weight: pmx.SkinWeight{Kind: pmx.Rigid, Bones: [4]int{7, -1, -1, -1}, Weights: [4]float32{1}}},
	}
	mats := []mgl32.Mat4{mgl32.Ident4(), mgl32.Translate3D(0, 2, 0)}

	pos, nrm := Skin(verts, mats)
	if !pos[0].ApproxEqual(mgl32.Vec3{1, 2, 0}) {
		t.Errorf("rigid = %v", pos[0])
	}
	if !pos[1].ApproxEqual(mgl32.Vec3{0, 1, 0}) {
		t.Errorf("linear2 = %v", pos[1])
	}
	if pos[2] != (mgl32.Vec3{3, 3, 3}) || nrm[2] != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("unbound vertex moved: %v %v", pos[2], nrm[2])
	}
	if !nrm[0].ApproxEqual(mgl32.Vec3{0, 1, 0}) {
		t.Errorf("normal = %v", nrm[0])
	}

	// Stored weights are authoritative even when they sum below one.
	partial := []pmx.Vertex{{Position: [3]float32{0, 0, 0},
		Weight: pmx.SkinWeight{Kind: pmx.Linear4, Bones: [4]int{0, 0, 0, 0}, Weights: [4]float32{0.4, 0.3, 0.2, 0}}}}
	if p, _ := Skin(partial, []mgl32.Mat4{mgl32.Translate3D(10, 0, 0)}); !p[0].ApproxEqualThreshold(mgl32.Vec3{9, 0, 0}, 1e-5) {
		t.Errorf("linear4 partial = %v, want stored weights used as is", p[0])
	}

	if IsIdentity(mats) {
		t.Error("translation reported as identity")
	}
	if !IsIdentity([]mgl32.Mat4{mgl32.Ident4()}) {
		t.Error("identity not detected")
	}
}
