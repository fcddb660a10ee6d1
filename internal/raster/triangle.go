package raster

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Surface is the per-material state a triangle is shaded with.
type Surface struct {
	Tex   *image.NRGBA
	Toon  *image.NRGBA
	Color [4]uint8 // used where there is no texture
	Alpha float64  // multiplies the sampled alpha
}

// cutout is the alpha (0-255) below which a fragment is discarded.
const cutout = 8

// RasterizeTriangle fills one triangle with z-buffering, texture mapping,
// sRGB-correct lighting and ACES tone mapping. Vertex and UV arrays share
// indices. Lighting is flat: normal is the face normal in view space.
// Translucent fragments are blended over what is already in the buffer.
//
// Hot path: no allocation inside the pixel loop.
func RasterizeTriangle(
	fb *FrameBuffer,
	px, py, pz []float64,
	uvs [][2]float32,
	vi [3]int,
	normal mgl64.Vec3,
	surf *Surface,
	lc *LightConfig,
) {
	var x, y, z [3]float64
	for k, i := range vi {
		if i < 0 || i >= len(px) {
			return
		}
		x[k], y[k], z[k] = px[i], py[i], pz[i]
	}

	tex := surf.Tex
	var u, v [3]float64
	if tex != nil {
		for k, i := range vi {
			if i >= len(uvs) {
				tex = nil
				break
			}
			u[k], v[k] = float64(uvs[i][0]), float64(uvs[i][1])
		}
	}

	shade := lc.ComputeShade(normal) * lc.Exposure
	toon := lc.ToonTint(surf.Toon, normal)
	tint := [3]float64{shade * toon[0], shade * toon[1], shade * toon[2]}

	minX := max(int(math.Floor(min(x[0], x[1], x[2]))), 0)
	maxX := min(int(math.Ceil(max(x[0], x[1], x[2]))), fb.Width-1)
	minY := max(int(math.Floor(min(y[0], y[1], y[2]))), 0)
	maxY := min(int(math.Ceil(max(y[0], y[1], y[2]))), fb.Height-1)
	if minX > maxX || minY > maxY {
		return
	}

	// Twice the signed area; the edge functions below are normalized by it,
	// so both windings fill.
	area := (x[1]-x[0])*(y[2]-y[0]) - (x[2]-x[0])*(y[1]-y[0])
	if math.Abs(area) < 1e-8 {
		return
	}
	inv := 1 / area

	for sy := minY; sy <= maxY; sy++ {
		fy := float64(sy)
		row := sy * fb.Width
		for sx := minX; sx <= maxX; sx++ {
			fx := float64(sx)
			b0 := ((x[1]-fx)*(y[2]-fy) - (x[2]-fx)*(y[1]-fy)) * inv
			b1 := ((x[2]-fx)*(y[0]-fy) - (x[0]-fx)*(y[2]-fy)) * inv
			b2 := 1 - b0 - b1
			if b0 < -0.001 || b1 < -0.001 || b2 < -0.001 {
				continue
			}

			depth := b0*z[0] + b1*z[1] + b2*z[2]
			idx := row + sx
			if depth <= fb.ZBuf[idx] {
				continue
			}

			var c [4]uint8
			if tex != nil {
				c[0], c[1], c[2], c[3] = SampleTexture(tex,
					b0*u[0]+b1*u[1]+b2*u[2],
					b0*v[0]+b1*v[1]+b2*v[2])
			} else {
				c = surf.Color
			}
			alpha := float64(c[3]) * surf.Alpha
			if alpha < cutout {
				continue
			}
			fb.ZBuf[idx] = depth
			fb.blend(idx*4, lc.shadePixel(c, tint), alpha/255)
		}
	}
}

// shadePixel lights an sRGB texel and returns the tone-mapped sRGB result
// in [0,1].
func (lc *LightConfig) shadePixel(c [4]uint8, tint [3]float64) [3]float64 {
	var out [3]float64
	for k := range out {
		out[k] = math.Pow(ACESTonemap(srgbToLinear[c[k]]*tint[k]), lc.InvGamma)
	}
	return out
}

// blend composites rgb with coverage a over the pixel at offset off.
func (fb *FrameBuffer) blend(off int, rgb [3]float64, a float64) {
	px := fb.Color[off : off+4 : off+4]
	if a >= 1 || px[3] == 0 {
		px[0], px[1], px[2] = clamp255(rgb[0]*255), clamp255(rgb[1]*255), clamp255(rgb[2]*255)
		px[3] = clamp255(a * 255)
		return
	}
	da := float64(px[3]) / 255
	outA := a + da*(1-a)
	for k := 0; k < 3; k++ {
		dst := float64(px[k]) / 255
		px[k] = clamp255((rgb[k]*a + dst*da*(1-a)) / outA * 255)
	}
	px[3] = clamp255(outA * 255)
}

func clamp255(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
