package skeleton

import (
	"github.com/go-gl/mathgl/mgl32"

	"mmd-pose-renderer/internal/pmx"
)

// Skin blends each vertex by its bone weights and returns deformed positions
// and normals. Spherical weights are blended linearly like Linear2.
// Weights are used as stored, even when they do not sum to one.
// Influences naming a bone without a matrix are ignored; a vertex with no
// usable influence keeps its rest position.
func Skin(verts []pmx.Vertex, mats []mgl32.Mat4) (pos, nrm []mgl32.Vec3) {
	pos = make([]mgl32.Vec3, len(verts))
	nrm = make([]mgl32.Vec3, len(verts))

	for vi := range verts {
		v := &verts[vi]
		rest := mgl32.Vec3(v.Position)
		restN := mgl32.Vec3(v.Normal)

		var blend mgl32.Mat4
		var total float32
		w := v.Weight
		for k := 0; k < w.Influences(); k++ {
			b := w.Bones[k]
			if b < 0 || b >= len(mats) || w.Weights[k] == 0 {
				continue
			}
			blend = blend.Add(mats[b].Mul(w.Weights[k]))
			total += w.Weights[k]
		}
		if total == 0 {
			pos[vi] = rest
			nrm[vi] = restN
			continue
		}
		pos[vi] = blend.Mul4x1(rest.Vec4(1)).Vec3()
		n := mgl32.TransformNormal(restN, blend)
		if l := n.Len(); l > 1e-6 {
			n = n.Mul(1 / l)
		}
		nrm[vi] = n
	}
	return pos, nrm
}

// IsIdentity reports whether every matrix is close to identity, in which
// case skinning can be skipped.
func IsIdentity(mats []mgl32.Mat4) bool {
	id := mgl32.Ident4()
	for _, m := range mats {
		if !m.ApproxEqualThreshold(id, 1e-6) {
			return false
		}
	}
	return true
}
