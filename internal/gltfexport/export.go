// Package gltfexport writes a posed model to glTF 2.0.
//
// The model is converted from the left-handed PMX space to glTF's
// right-handed one by negating Z. Bones become a node hierarchy carrying
// the sampled pose, and the mesh is bound to them through a skin so any
// glTF viewer reproduces the frame. With Options.Baked the mesh is written
// already deformed and no skin is emitted.
package gltfexport

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"mmd-pose-renderer/internal/pmx"
	"mmd-pose-renderer/internal/pose"
	"mmd-pose-renderer/internal/skeleton"
	"mmd-pose-renderer/internal/texture"
)

// ErrTooManyBones is returned when the bone count does not fit JOINTS_0.
var ErrTooManyBones = errors.New("gltfexport: more than 65535 bones")

// Options controls what goes into the document.
type Options struct {
	// Textures embeds base color images when set.
	Textures texture.Resolver
	// Baked writes CPU-skinned positions and omits the skin.
	Baked bool
}

// Build creates a document for the pose ev is currently at.
func Build(model *pmx.Model, tree *skeleton.Tree, ev *pose.Evaluator, opts Options) (*gltf.Document, error) {
	if tree.Len() > math.MaxUint16+1 {
		return nil, ErrTooManyBones
	}
	doc := gltf.NewDocument()

	var positions, normals [][3]float32
	if opts.Baked {
		pos, nrm := skeleton.Skin(model.Vertices, ev.SkinMatrices())
		positions = make([][3]float32, len(pos))
		normals = make([][3]float32, len(nrm))
		for i := range pos {
			positions[i] = flip(pos[i])
			normals[i] = flip(nrm[i])
		}
	} else {
		positions = make([][3]float32, len(model.Vertices))
		normals = make([][3]float32, len(model.Vertices))
		for i, v := range model.Vertices {
			positions[i] = flip(v.Position)
			normals[i] = flip(v.Normal)
		}
	}

	attributes := map[string]uint32{}
	if len(positions) > 0 {
		uvs := make([][2]float32, len(model.Vertices))
		for i, v := range model.Vertices {
			uvs[i] = v.UV
		}
		attributes["POSITION"] = modeler.WritePosition(doc, positions)
		attributes["NORMAL"] = modeler.WriteNormal(doc, normals)
		attributes["TEXCOORD_0"] = modeler.WriteTextureCoord(doc, uvs)
		if !opts.Baked && tree.Len() > 0 {
			joints, weights := jointData(model.Vertices, tree.Len())
			attributes["JOINTS_0"] = modeler.WriteJoints(doc, joints)
			attributes["WEIGHTS_0"] = modeler.WriteWeights(doc, weights)
		}
	}

	images := map[int]uint32{}
	mesh := &gltf.Mesh{Name: model.Name}
	for _, run := range model.MaterialRuns() {
		if run.End <= run.Start {
			continue
		}
		mat, err := material(doc, model, run.Material, opts.Textures, images)
		if err != nil {
			return nil, err
		}
		indices := make([]uint32, 0, (run.End-run.Start)*3)
		for _, tri := range model.Triangles[run.Start:run.End] {
			// Negating Z mirrors the mesh, so the winding is reversed too.
			indices = append(indices, uint32(tri[0]), uint32(tri[2]), uint32(tri[1]))
		}
		idx := modeler.WriteIndices(doc, indices)
		mesh.Primitives = append(mesh.Primitives, &gltf.Primitive{
			Indices:    gltf.Index(idx),
			Attributes: attributes,
			Material:   gltf.Index(mat),
		})
	}

	meshNode := uint32(len(doc.Nodes))
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: model.Name})
	if len(mesh.Primitives) > 0 {
		doc.Meshes = append(doc.Meshes, mesh)
		doc.Nodes[meshNode].Mesh = gltf.Index(uint32(len(doc.Meshes) - 1))
	}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, meshNode)

	if tree.Len() == 0 {
		return doc, nil
	}
	first := uint32(len(doc.Nodes))
	joints := make([]uint32, tree.Len())
	for i, n := range tree.Nodes {
		joints[i] = first + uint32(i)
		offset := n.RestPos
		if n.Parent >= 0 {
			offset = offset.Sub(tree.Nodes[n.Parent].RestPos)
		}
		q := ev.LocalRotation(i)
		node := &gltf.Node{
			Name:        n.Name,
			Translation: flip(offset),
			Rotation:    [4]float32{-q.V.X(), -q.V.Y(), q.V.Z(), q.W},
			Scale:       [3]float32{1, 1, 1},
		}
		for _, c := range n.Children {
			node.Children = append(node.Children, first+uint32(c))
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	for _, r := range tree.Roots {
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, first+uint32(r))
	}

	if opts.Baked {
		return doc, nil
	}
	inverse := make([][4][4]float32, tree.Len())
	for i, n := range tree.Nodes {
		p := flip(n.RestPos)
		inverse[i] = [4][4]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {-p[0], -p[1], -p[2], 1}}
	}
	ibm := modeler.WriteAccessor(doc, gltf.TargetNone, inverse)
	doc.Skins = append(doc.Skins, &gltf.Skin{
		Name:                model.Name,
		InverseBindMatrices: gltf.Index(ibm),
		Joints:              joints,
	})
	doc.Nodes[meshNode].Skin = gltf.Index(uint32(len(doc.Skins) - 1))
	return doc, nil
}

func flip(v [3]float32) [3]float32 {
	return [3]float32{v[0], v[1], -v[2]}
}

// jointData packs each vertex's influences into four slots with weights
// summing to one. A vertex with no usable influence is bound to bone 0.
func jointData(verts []pmx.Vertex, bones int) ([][4]uint16, [][4]float32) {
	joints := make([][4]uint16, len(verts))
	weights := make([][4]float32, len(verts))
	for vi, v := range verts {
		var total float32
		slot := 0
		w := v.Weight
		for k := 0; k < w.Influences(); k++ {
			b := w.Bones[k]
			if b < 0 || b >= bones || w.Weights[k] <= 0 {
				continue
			}
			joints[vi][slot] = uint16(b)
			weights[vi][slot] = w.Weights[k]
			total += w.Weights[k]
			slot++
		}
		if total == 0 {
			weights[vi] = [4]float32{1, 0, 0, 0}
			continue
		}
		for k := range weights[vi] {
			weights[vi][k] /= total
		}
	}
	return joints, weights
}

// material appends the glTF material for model material i and returns its
// index. images caches embedded textures by model texture index.
func material(doc *gltf.Document, model *pmx.Model, i int, res texture.Resolver, images map[int]uint32) (uint32, error) {
	mt := &model.Materials[i]
	color := new([4]float32)
	*color = mt.Diffuse

	gm := &gltf.Material{
		Name:        mt.Name,
		DoubleSided: mt.Flags&pmx.MaterialDoubleSided != 0,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: color,
		},
	}
	if mt.Diffuse[3] < 1 {
		gm.AlphaMode = gltf.AlphaBlend
	}

	if res != nil && mt.Texture >= 0 && mt.Texture < len(model.Textures) {
		tex, ok := images[mt.Texture]
		if !ok {
			name := model.Textures[mt.Texture]
			if img := res.Resolve(name); img != nil {
				var buf bytes.Buffer
				if err := png.Encode(&buf, img); err != nil {
					return 0, fmt.Errorf("gltfexport: encode %s: %w", name, err)
				}
				src, err := modeler.WriteImage(doc, filepath.Base(filepath.FromSlash(name)), "image/png", &buf)
				if err != nil {
					return 0, fmt.Errorf("gltfexport: write image %s: %w", name, err)
				}
				tex = uint32(len(doc.Textures))
				doc.Textures = append(doc.Textures, &gltf.Texture{Name: name, Source: gltf.Index(src)})
				images[mt.Texture] = tex
				ok = true
			}
		}
		if ok {
			gm.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{Index: tex}
		}
	}

	doc.Materials = append(doc.Materials, gm)
	return uint32(len(doc.Materials) - 1), nil
}

// Encode writes doc to w, as GLB when binary is set. JSON output embeds
// buffers without a URI as data URIs.
func Encode(w io.Writer, doc *gltf.Document, binary bool) error {
	if !binary {
		for _, b := range doc.Buffers {
			if b.URI == "" {
				b.EmbeddedResource()
			}
		}
	}
	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = binary
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("gltfexport: encode: %w", err)
	}
	return nil
}

// Save writes doc to path. A .glb extension selects the binary container;
// anything else is written as .gltf JSON with embedded buffers.
func Save(doc *gltf.Document, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gltfexport: %w", err)
	}
	err = Encode(f, doc, strings.EqualFold(filepath.Ext(path), ".glb"))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("gltfexport: %w", cerr)
	}
	return err
}
