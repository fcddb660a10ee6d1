// Package pose samples a motion at a point in time and produces one
// skinning matrix per bone.
package pose

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"mmd-pose-renderer/internal/skeleton"
	"mmd-pose-renderer/internal/vmd"
)

// DefaultFrameRate is the motion sampling rate used when none is given.
const DefaultFrameRate = 30

type track struct {
	bone int
	keys []vmd.KeyFrame
}

// Evaluator owns the mutable pose state for one posed model instance.
// The tree and motion are only read, so several evaluators may share them.
// An Evaluator itself is not safe for concurrent use.
type Evaluator struct {
	tree      *skeleton.Tree
	frameRate float64
	maxFrame  uint32
	tracks    []track

	elapsed float64
	frame   int

	rot   []mgl32.Quat
	local []mgl32.Mat4
	skin  []mgl32.Mat4
	world mgl32.Mat4
}

// New creates an evaluator positioned at time zero. Motion bones that the
// tree does not contain are ignored. motion may be nil, in which case every
// bone stays at rest.
func New(tree *skeleton.Tree, motion *vmd.Motion, frameRate float64) *Evaluator {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	e := &Evaluator{
		tree:      tree,
		frameRate: frameRate,
		rot:       make([]mgl32.Quat, tree.Len()),
		local:     make([]mgl32.Mat4, tree.Len()),
		skin:      make([]mgl32.Mat4, tree.Len()),
		world:     mgl32.Ident4(),
	}
	if motion != nil {
		e.maxFrame = motion.MaxFrame
		for _, name := range motion.BoneNames() {
			if i, ok := tree.Lookup(name); ok {
				e.tracks = append(e.tracks, track{bone: i, keys: motion.Bones[name]})
			}
		}
	}
	e.evaluate()
	return e
}

// Duration returns the motion length in seconds.
func (e *Evaluator) Duration() float64 {
	return float64(e.maxFrame) / e.frameRate
}

// Elapsed returns the current playback time in seconds.
func (e *Evaluator) Elapsed() float64 { return e.elapsed }

// CurrentFrame returns the frame the matrices were last sampled at.
func (e *Evaluator) CurrentFrame() int { return e.frame }

// FrameRate returns the sampling rate in frames per second.
func (e *Evaluator) FrameRate() float64 { return e.frameRate }

// Tick advances playback by dt seconds and recomputes the pose. Once the
// time passes the end of the motion it is pulled back by one duration,
// so a single tick is assumed to be shorter than the motion.
func (e *Evaluator) Tick(dt float64) {
	e.elapsed += dt
	if d := e.Duration(); e.elapsed > d {
		e.elapsed -= d
	}
	e.evaluate()
}

// Seek jumps to an absolute time in seconds without wrapping.
func (e *Evaluator) Seek(seconds float64) {
	e.elapsed = seconds
	e.evaluate()
}

// SeekFrame jumps to the start of a frame. Unlike Seek it never lands on
// the previous frame through rounding.
func (e *Evaluator) SeekFrame(frame int) {
	e.elapsed = float64(frame) / e.frameRate
	e.sampleFrame(frame)
}

// SkinMatrices returns a copy of the per-bone matrices, indexed by bone.
func (e *Evaluator) SkinMatrices() []mgl32.Mat4 {
	out := make([]mgl32.Mat4, len(e.skin))
	copy(out, e.skin)
	return out
}

// LocalMatrix returns the sampled local transform of bone i.
func (e *Evaluator) LocalMatrix(i int) mgl32.Mat4 { return e.local[i] }

// LocalRotation returns the sampled rotation of bone i about its rest
// position.
func (e *Evaluator) LocalRotation(i int) mgl32.Quat { return e.rot[i] }

// SetRestPose places the whole model: translation, then rotation in degrees
// applied as yaw (Y), pitch (X) and roll (Z), then scale. It does not
// change the skinning matrices.
func (e *Evaluator) SetRestPose(position, rotation, scale mgl32.Vec3) {
	rot := mgl32.HomogRotate3DY(mgl32.DegToRad(rotation.Y())).
		Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(rotation.X()))).
		Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(rotation.Z())))
	e.world = mgl32.Translate3D(position.X(), position.Y(), position.Z()).
		Mul4(rot).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// World returns the model placement set by SetRestPose.
func (e *Evaluator) World() mgl32.Mat4 { return e.world }

func (e *Evaluator) evaluate() {
	e.sampleFrame(int(math.Floor(e.frameRate * e.elapsed)))
}

func (e *Evaluator) sampleFrame(frame int) {
	e.frame = frame

	for i := range e.local {
		e.rot[i] = mgl32.QuatIdent()
		e.local[i] = mgl32.Ident4()
	}
	for _, tr := range e.tracks {
		q, ok := sample(tr.keys, e.frame)
		if !ok {
			continue
		}
		p := e.tree.Nodes[tr.bone].RestPos
		e.rot[tr.bone] = q
		e.local[tr.bone] = mgl32.Translate3D(p.X(), p.Y(), p.Z()).
			Mul4(q.Mat4()).
			Mul4(mgl32.Translate3D(-p.X(), -p.Y(), -p.Z()))
	}

	// Order visits parents first.
	for _, i := range e.tree.Order {
		if parent := e.tree.Nodes[i].Parent; parent >= 0 {
			e.skin[i] = e.skin[parent].Mul4(e.local[i])
		} else {
			e.skin[i] = e.local[i]
		}
	}
}

// sample returns the eased rotation of a sorted key list at frame.
// It reports false when frame precedes the first key.
func sample(keys []vmd.KeyFrame, frame int) (mgl32.Quat, bool) {
	prev := -1
	for k := len(keys) - 1; k >= 0; k-- {
		if int64(keys[k].Frame) <= int64(frame) {
			prev = k
			break
		}
	}
	if prev < 0 {
		return mgl32.Quat{}, false
	}
	from := keys[prev]
	if prev+1 >= len(keys) {
		return from.Rotation, true
	}
	to := keys[prev+1]

	span := float32(to.Frame - from.Frame)
	if span <= 0 {
		return to.Rotation, true
	}
	t := float32(int64(frame)-int64(from.Frame)) / span
	t = Solve(t, to.P1, to.P2, SolveIterations)
	return slerp(from.Rotation, to.Rotation, t), true
}

// slerp interpolates along the shorter arc.
func slerp(a, b mgl32.Quat, t float32) mgl32.Quat {
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl32.QuatSlerp(a, b, t)
}
