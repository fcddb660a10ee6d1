package pose

import "github.com/go-gl/mathgl/mgl32"

// SolveIterations is the refinement budget used by the evaluator.
const SolveIterations = 12

const solveEpsilon = 0.0005

// Solve eases x through the unit cubic Bezier with control points p1 and p2
// (endpoints fixed at (0,0) and (1,1)). It searches for the curve parameter
// whose X equals x and returns the Y at that parameter.
//
// The search halves the residual each step instead of dividing by the
// derivative. Motion assets are tuned against this exact behaviour, so it
// is kept in float32 as is.
func Solve(x float32, p1, p2 mgl32.Vec2, iterations int) float32 {
	if p1.X() == p1.Y() && p2.X() == p2.Y() {
		return x
	}

	k0 := 1 + 3*p1.X() - 3*p2.X()
	k1 := 3*p2.X() - 6*p1.X()
	k2 := 3 * p1.X()

	t := x
	for i := 0; i < iterations; i++ {
		ft := k0*t*t*t + k1*t*t + k2*t - x
		if ft <= solveEpsilon && ft >= -solveEpsilon {
			break
		}
		t -= ft / 2
	}

	r := 1 - t
	return t*t*t + 3*t*t*r*p2.Y() + 3*t*r*r*p1.Y()
}
