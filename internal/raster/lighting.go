package raster

import (
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// LightConfig holds precomputed lighting parameters. Directions point from
// the surface towards the light, in view space (camera looking down +Z).
type LightConfig struct {
	LightDir  mgl64.Vec3
	RimDir    mgl64.Vec3
	HalfMain  mgl64.Vec3 // Blinn-Phong half-vector for LightDir
	Ambient   float64
	Hemi      float64
	Direct    float64
	Rim       float64
	SpecInt   float64
	SpecPow   float64
	Exposure  float64
	SRGBGamma float64
	InvGamma  float64
}

// DefaultLightConfig returns a key light above and in front of the model
// with a cool rim from behind.
func DefaultLightConfig() LightConfig {
	lightDir := mgl64.Vec3{0.5, 1, -0.5}.Normalize()
	rimDir := mgl64.Vec3{-0.4, 0.3, 1}.Normalize()
	toViewer := mgl64.Vec3{0, 0, -1}

	return LightConfig{
		LightDir:  lightDir,
		RimDir:    rimDir,
		HalfMain:  lightDir.Add(toViewer).Normalize(),
		Ambient:   0.45,
		Hemi:      0.35,
		Direct:    0.80,
		Rim:       0.25,
		SpecInt:   0.20,
		SpecPow:   16.0,
		Exposure:  1.0,
		SRGBGamma: 2.2,
		InvGamma:  1.0 / 2.2,
	}
}

// ComputeShade returns the combined lighting scalar for a unit normal.
// Front and back faces are lit alike.
func (lc *LightConfig) ComputeShade(normal mgl64.Vec3) float64 {
	ndlMain := math.Abs(normal.Dot(lc.LightDir))
	ndlRim := math.Abs(normal.Dot(lc.RimDir))

	hemi := (1.0-math.Abs(normal[1]))*0.5 + 0.5
	hemiLight := hemi * lc.Hemi

	ndh := math.Abs(normal.Dot(lc.HalfMain))
	spec := math.Pow(ndh, lc.SpecPow) * lc.SpecInt

	return lc.Ambient + hemiLight + ndlMain*lc.Direct + ndlRim*lc.Rim + spec
}

// ToonTint looks up a toon ramp by how directly the key light hits the
// surface and returns the linear per-channel multiplier. A nil ramp is
// neutral.
func (lc *LightConfig) ToonTint(toon *image.NRGBA, normal mgl64.Vec3) [3]float64 {
	if toon == nil {
		return [3]float64{1, 1, 1}
	}
	ndl := math.Abs(normal.Dot(lc.LightDir))
	r, g, b, _ := SampleClamp(toon, 0.5, 0.5-ndl*0.5)
	return [3]float64{srgbToLinear[r], srgbToLinear[g], srgbToLinear[b]}
}

// Precomputed sRGB-to-linear lookup table (256 entries).
var srgbToLinear [256]float64

func init() {
	for i := 0; i < 256; i++ {
		srgbToLinear[i] = math.Pow(float64(i)/255.0, 2.2)
	}
}

// ACESTonemap applies ACES Filmic tone mapping to a linear value.
func ACESTonemap(x float64) float64 {
	return (x * (2.51*x + 0.03)) / (x*(2.43*x+0.59) + 0.14)
}
