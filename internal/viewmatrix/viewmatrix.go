package viewmatrix

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultFOV is the vertical field of view in degrees for perspective renders.
const DefaultFOV = 45

// Camera describes an orbit view around the model. Angles are in degrees.
// Models face -Z in their own space, so a zero yaw looks at the front.
type Camera struct {
	Yaw         float64
	Pitch       float64
	Perspective bool
	FOV         float64
}

// Rotation returns the view rotation: yaw about Y, then pitch about X.
func (c Camera) Rotation() mgl64.Mat3 {
	return mgl64.Rotate3DX(mgl64.DegToRad(c.Pitch)).Mul3(mgl64.Rotate3DY(mgl64.DegToRad(c.Yaw)))
}

// Transform applies the affine placement world, then the view rotation R,
// to every point.
func Transform(verts []mgl64.Vec3, world mgl64.Mat4, R mgl64.Mat3) []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(verts))
	skipWorld := world == mgl64.Ident4()
	for i, v := range verts {
		if !skipWorld {
			v = world.Mul4x1(v.Vec4(1)).Vec3()
		}
		out[i] = R.Mul3x1(v)
	}
	return out
}

// Fit returns the view-space bounding box center and the scale that maps
// the larger of its X/Y extents onto renderSize minus a margin on each side.
func Fit(verts []mgl64.Vec3, renderSize, margin int) ([3]float64, float64) {
	if len(verts) == 0 {
		return [3]float64{}, 1
	}
	allMin := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	allMax := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range verts {
		for k := 0; k < 3; k++ {
			allMin[k] = math.Min(allMin[k], v[k])
			allMax[k] = math.Max(allMax[k], v[k])
		}
	}
	center := [3]float64{
		(allMin[0] + allMax[0]) / 2,
		(allMin[1] + allMax[1]) / 2,
		(allMin[2] + allMax[2]) / 2,
	}
	span := math.Max(allMax[0]-allMin[0], allMax[1]-allMin[1])
	if span < 0.001 {
		span = 0.001
	}
	avail := renderSize - 2*margin
	if avail < 1 {
		avail = 1
	}
	return center, float64(avail) / span
}

// ProjectVertices maps view-space points to screen coordinates.
// Returns px, py, pz where larger pz is closer to the viewer.
func ProjectVertices(verts []mgl64.Vec3, center [3]float64, scale float64, renderSize int, cam Camera) ([]float64, []float64, []float64) {
	n := len(verts)
	px := make([]float64, n)
	py := make([]float64, n)
	pz := make([]float64, n)

	half := float64(renderSize) / 2

	// The camera sits on -Z looking down +Z.
	var perspCamDist, perspZCenter float64
	if cam.Perspective {
		fov := cam.FOV
		if fov <= 0 {
			fov = DefaultFOV
		}
		halfFOV := mgl64.DegToRad(fov / 2)

		zMin, zMax := math.Inf(1), math.Inf(-1)
		var xyMax float64
		for _, t := range verts {
			zMin = math.Min(zMin, t[2])
			zMax = math.Max(zMax, t[2])
			for k := 0; k < 2; k++ {
				xyMax = math.Max(xyMax, math.Abs(t[k]-center[k]))
			}
		}
		perspZCenter = (zMin + zMax) / 2
		if xyMax < 0.001 {
			xyMax = 0.001
		}
		perspCamDist = xyMax / math.Tan(halfFOV)
	}

	for i, t := range verts {
		x, y := t[0]-center[0], t[1]-center[1]
		if cam.Perspective {
			depth := math.Max(perspCamDist+(t[2]-perspZCenter), 0.1)
			factor := perspCamDist / depth
			x *= factor
			y *= factor
		}

		px[i] = x*scale + half
		py[i] = -y*scale + half
		pz[i] = -t[2]
	}

	return px, py, pz
}
