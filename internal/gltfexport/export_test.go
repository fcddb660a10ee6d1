package gltfexport

import (
	"errors"
	"image"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"

	"mmd-pose-renderer/internal/pmx"
	"mmd-pose-renderer/internal/pose"
	"mmd-pose-renderer/internal/skeleton"
	"mmd-pose-renderer/internal/vmd"
)

type stubTextures map[string]*image.NRGBA

func (s stubTextures) Resolve(name string) *image.NRGBA { return s[name] }

func armModel() *pmx.Model {
	w := func(b int) pmx.SkinWeight {
		return pmx.SkinWeight{Kind: pmx.Rigid, Bones: [4]int{b, -1, -1, -1}, Weights: [4]float32{1}}
	}
	v := func(x, y, z float32, b int) pmx.Vertex {
		return pmx.Vertex{Position: [3]float32{x, y, z}, Normal: [3]float32{0, 0, -1}, Weight: w(b)}
	}
	return &pmx.Model{
		Name: "arm",
		Vertices: []pmx.Vertex{
			v(0, 0, 1, 0), v(0, 1, 1, 0), v(1, 1, 1, 1),
			{Position: [3]float32{1, 0, 1}, Weight: pmx.SkinWeight{Kind: pmx.Linear2, Bones: [4]int{0, 1}, Weights: [4]float32{0.3, 0.3}}},
		},
		Triangles: []pmx.Triangle{{0, 1, 2}, {0, 2, 3}},
		Textures:  []string{"tex/skin.png"},
		Materials: []pmx.Material{
			{Name: "body", Diffuse: [4]float32{1, 1, 1, 1}, Texture: 0, Toon: -1, VertexCount: 3, Flags: pmx.MaterialDoubleSided},
			{Name: "glass", Diffuse: [4]float32{0.5, 0.5, 1, 0.4}, Texture: 0, Toon: -1, VertexCount: 3},
			{Name: "empty", Texture: -1, Toon: -1},
		},
		Bones: []pmx.Bone{
			{Name: "shoulder", Parent: -1, Position: [3]float32{0, 1, 2}},
			{Name: "elbow", Parent: 0, Position: [3]float32{1, 1, 3}},
		},
	}
}

func posed(t *testing.T, m *pmx.Model) (*skeleton.Tree, *pose.Evaluator) {
	t.Helper()
	tree, err := skeleton.Build(m.Bones)
	if err != nil {
		t.Fatal(err)
	}
	motion := &vmd.Motion{Bones: map[string][]vmd.KeyFrame{
		"elbow": {{Frame: 0, Rotation: mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{0, 1, 0})}},
	}}
	return tree, pose.New(tree, motion, 30)
}

func TestBuildSkinned(t *testing.T) {
	m := armModel()
	tree, ev := posed(t, m)
	tex := stubTextures{"tex/skin.png": image.NewNRGBA(image.Rect(0, 0, 2, 2))}

	doc, err := Build(m, tree, ev, Options{Textures: tex})
	if err != nil {
		t.Fatal(err)
	}

	if len(doc.Meshes) != 1 || len(doc.Meshes[0].Primitives) != 2 {
		t.Fatalf("meshes = %d", len(doc.Meshes))
	}
	if len(doc.Materials) != 2 {
		t.Fatalf("materials = %d", len(doc.Materials))
	}
	if !doc.Materials[0].DoubleSided || doc.Materials[1].DoubleSided {
		t.Error("double sided flag not carried over")
	}
	if doc.Materials[1].AlphaMode != gltf.AlphaBlend {
		t.Errorf("glass alpha mode = %v", doc.Materials[1].AlphaMode)
	}
	if len(doc.Images) != 1 || len(doc.Textures) != 1 {
		t.Errorf("images = %d textures = %d, want one shared", len(doc.Images), len(doc.Textures))
	}

	prim := doc.Meshes[0].Primitives[0]
	for _, attr := range []string{"POSITION", "NORMAL", "TEXCOORD_0", "JOINTS_0", "WEIGHTS_0"} {
		if _, ok := prim.Attributes[attr]; !ok {
			t.Errorf("missing %s", attr)
		}
	}

	if len(doc.Skins) != 1 || len(doc.Skins[0].Joints) != 2 {
		t.Fatalf("skins = %+v", doc.Skins)
	}
	if len(doc.Nodes) != 3 || doc.Nodes[0].Skin == nil {
		t.Fatalf("nodes = %d", len(doc.Nodes))
	}
	root, elbow := doc.Nodes[1], doc.Nodes[2]
	if root.Translation != [3]float32{0, 1, -2} {
		t.Errorf("root translation = %v", root.Translation)
	}
	if elbow.Translation != [3]float32{1, 0, -1} {
		t.Errorf("elbow offset = %v", elbow.Translation)
	}
	if len(root.Children) != 1 || root.Children[0] != 2 {
		t.Errorf("root children = %v", root.Children)
	}
	// A yaw in left-handed space turns the other way once Z is negated.
	s := float32(math.Sqrt2 / 2)
	want := [4]float32{0, -s, 0, s}
	for k := range want {
		if math.Abs(float64(elbow.Rotation[k]-want[k])) > 1e-5 {
			t.Fatalf("elbow rotation = %v, want %v", elbow.Rotation, want)
		}
	}
	if got := doc.Scenes[0].Nodes; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("scene nodes = %v", got)
	}
}

func TestJointDataNormalizes(t *testing.T) {
	m := armModel()
	joints, weights := jointData(m.Vertices, 2)
	if joints[3] != [4]uint16{0, 1, 0, 0} || weights[3] != [4]float32{0.5, 0.5, 0, 0} {
		t.Errorf("linear2 = %v %v", joints[3], weights[3])
	}

	orphan := []pmx.Vertex{{Weight: pmx.SkinWeight{Kind: pmx.Rigid, Bones: [4]int{9}, Weights: [4]float32{1}}}}
	if _, w := jointData(orphan, 2); w[0] != [4]float32{1, 0, 0, 0} {
		t.Errorf("orphan weights = %v", w[0])
	}
}

func TestBuildBaked(t *testing.T) {
	m := armModel()
	tree, ev := posed(t, m)
	doc, err := Build(m, tree, ev, Options{Baked: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Skins) != 0 || doc.Nodes[0].Skin != nil {
		t.Fatal("baked export has a skin")
	}
	if _, ok := doc.Meshes[0].Primitives[0].Attributes["JOINTS_0"]; ok {
		t.Error("baked export has joints")
	}
	if mat := doc.Materials[0]; mat.PBRMetallicRoughness.BaseColorTexture != nil {
		t.Error("texture embedded without a resolver")
	}
}

func TestBuildTooManyBones(t *testing.T) {
	bones := make([]pmx.Bone, math.MaxUint16+2)
	for i := range bones {
		bones[i].Parent = -1
	}
	tree, err := skeleton.Build(bones)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(&pmx.Model{Bones: bones}, tree, pose.New(tree, nil, 30), Options{})
	if !errors.Is(err, ErrTooManyBones) {
		t.Fatalf("err = %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	m := armModel()
	tree, ev := posed(t, m)
	doc, err := Build(m, tree, ev, Options{})
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"arm.glb", "arm.gltf"} {
		path := filepath.Join(t.TempDir(), name)
		if err := Save(doc, path); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		back, err := gltf.Open(path)
		if err != nil {
			t.Fatalf("%s: open: %v", name, err)
		}
		if len(back.Nodes) != len(doc.Nodes) || len(back.Accessors) != len(doc.Accessors) {
			t.Errorf("%s: nodes %d accessors %d", name, len(back.Nodes), len(back.Accessors))
		}
	}

	if err := Save(doc, filepath.Join(t.TempDir(), "missing", "x.glb")); err == nil {
		t.Error("save into missing directory succeeded")
	}
}
