package vmd

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// KeyFrame is one recorded bone pose.
// P1 and P2 are the rotation easing control points used when interpolating
// from the previous keyframe towards this one.
type KeyFrame struct {
	Frame    uint32
	Position [3]float32 // recorded, not used by the evaluator
	Rotation mgl32.Quat
	P1       mgl32.Vec2
	P2       mgl32.Vec2
}

// Motion maps bone names to keyframes sorted by frame number.
type Motion struct {
	ModelName string
	Bones     map[string][]KeyFrame
	MaxFrame  uint32
}

// BoneNames returns the animated bone names in lexical order.
func (m *Motion) BoneNames() []string {
	names := make([]string, 0, len(m.Bones))
	for name := range m.Bones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeyFrameCount returns the total number of keyframes over all bones.
func (m *Motion) KeyFrameCount() int {
	n := 0
	for _, kfs := range m.Bones {
		n += len(kfs)
	}
	return n
}
