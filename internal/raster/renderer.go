package raster

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"mmd-pose-renderer/internal/pmx"
	"mmd-pose-renderer/internal/texture"
	"mmd-pose-renderer/internal/viewmatrix"
)

// Framing fixes where the model lands on screen so that consecutive
// frames of an animation do not jitter.
type Framing struct {
	Center [3]float64
	Scale  float64
}

// Scene is one posed frame of a model.
type Scene struct {
	Model *pmx.Model

	// Skinned vertex data, indexed like Model.Vertices. Nil means rest pose.
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3

	World    mgl32.Mat4 // model placement; the zero matrix means identity
	Camera   viewmatrix.Camera
	Textures texture.Resolver // may be nil

	Size        int // output edge length before supersampling
	Supersample int
	Framing     *Framing // nil fits this frame
}

func (s *Scene) renderSize() int {
	ss := s.Supersample
	if ss < 1 {
		ss = 1
	}
	return s.Size * ss
}

func (s *Scene) margin() int {
	return s.renderSize() / 32
}

// viewSpace returns placed and view-rotated positions and normals.
func (s *Scene) viewSpace() ([]mgl64.Vec3, []mgl64.Vec3) {
	m := s.Model
	pos := make([]mgl64.Vec3, len(m.Vertices))
	nrm := make([]mgl64.Vec3, len(m.Vertices))
	for i := range m.Vertices {
		if i < len(s.Positions) {
			pos[i] = widen(s.Positions[i])
		} else {
			pos[i] = widen(m.Vertices[i].Position)
		}
		if i < len(s.Normals) {
			nrm[i] = widen(s.Normals[i])
		} else {
			nrm[i] = widen(m.Vertices[i].Normal)
		}
	}

	world := mgl64.Ident4()
	if s.World != (mgl32.Mat4{}) {
		for i, f := range s.World {
			world[i] = float64(f)
		}
	}
	R := s.Camera.Rotation()
	pos = viewmatrix.Transform(pos, world, R)

	// Normals ignore translation; scale is undone by renormalizing.
	NR := R.Mul3(world.Mat3())
	for i, n := range nrm {
		nrm[i] = unit(NR.Mul3x1(n))
	}
	return pos, nrm
}

func widen(v [3]float32) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

// unit normalizes v, leaving degenerate vectors as they are.
func unit(v mgl64.Vec3) mgl64.Vec3 {
	if l := v.Len(); l > 1e-12 {
		return v.Mul(1 / l)
	}
	return v
}

// Fit computes the framing for this scene's pose, leaving pad (a fraction
// of the model extent) free around it.
func (s *Scene) Fit(pad float64) Framing {
	pos, _ := s.viewSpace()
	center, scale := viewmatrix.Fit(pos, s.renderSize(), s.margin())
	return Framing{Center: center, Scale: scale / (1 + 2*pad)}
}

// RenderModel rasterizes every material run of the scene into a
// supersampled NRGBA image of Size*Supersample pixels.
func RenderModel(s Scene) *image.NRGBA {
	renderSize := s.renderSize()
	m := s.Model
	if m == nil || len(m.Vertices) == 0 || len(m.Triangles) == 0 {
		return image.NewNRGBA(image.Rect(0, 0, renderSize, renderSize))
	}

	pos, nrm := s.viewSpace()
	var f Framing
	if s.Framing != nil {
		f = *s.Framing
	} else {
		f.Center, f.Scale = viewmatrix.Fit(pos, renderSize, s.margin())
	}
	px, py, pz := viewmatrix.ProjectVertices(pos, f.Center, f.Scale, renderSize, s.Camera)

	uvs := make([][2]float32, len(m.Vertices))
	for i := range m.Vertices {
		uvs[i] = m.Vertices[i].UV
	}

	fb := NewFrameBuffer(renderSize, renderSize)
	lc := DefaultLightConfig()

	for _, run := range m.MaterialRuns() {
		mt := &m.Materials[run.Material]
		surf := surfaceFor(m, mt, s.Textures)
		if surf.Alpha <= 0 {
			continue
		}
		for _, tri := range m.Triangles[run.Start:run.End] {
			vi := [3]int(tri)
			if vi[0] >= len(nrm) || vi[1] >= len(nrm) || vi[2] >= len(nrm) {
				continue
			}
			n := unit(nrm[vi[0]].Add(nrm[vi[1]]).Add(nrm[vi[2]]))
			RasterizeTriangle(fb, px, py, pz, uvs, vi, n, &surf, &lc)
		}
	}

	return fb.Image()
}

func surfaceFor(m *pmx.Model, mt *pmx.Material, res texture.Resolver) Surface {
	d := mt.Diffuse
	surf := Surface{
		Color: [4]uint8{clamp255(float64(d[0]) * 255), clamp255(float64(d[1]) * 255), clamp255(float64(d[2]) * 255), 255},
		Alpha: float64(d[3]),
	}
	if res == nil {
		return surf
	}
	if name := textureName(m, mt.Texture); name != "" {
		surf.Tex = res.Resolve(name)
	}
	if mt.SharedToon {
		if tr, ok := res.(texture.ToonResolver); ok {
			surf.Toon = tr.ResolveToon(mt.Toon)
		}
	} else if name := textureName(m, mt.Toon); name != "" {
		surf.Toon = res.Resolve(name)
	}
	return surf
}

func textureName(m *pmx.Model, i int) string {
	if i < 0 || i >= len(m.Textures) {
		return ""
	}
	return m.Textures[i]
}
