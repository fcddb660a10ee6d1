package pmx

import "mmd-pose-renderer/internal/binreader"

// Header holds the per-file layout parameters declared after the magic.
type Header struct {
	Version  float32
	Encoding binreader.TextEncoding
	ExtraUVs int // additional vec4 UV channels per vertex (0-4)

	// Byte widths (1, 2 or 4) of every indexed reference in the file.
	VertexIndexSize    int
	TextureIndexSize   int
	MaterialIndexSize  int
	BoneIndexSize      int
	MorphIndexSize     int
	RigidBodyIndexSize int
}

// WeightKind is the on-disk skin weight discriminator.
type WeightKind uint8

const (
	Rigid     WeightKind = 0 // one bone, weight 1
	Linear2   WeightKind = 1 // two bones, w and 1-w
	Linear4   WeightKind = 2 // four bones, four stored weights
	Spherical WeightKind = 3 // two bones plus SDEF vectors C, R0, R1
)

func (k WeightKind) String() string {
	switch k {
	case Rigid:
		return "Rigid"
	case Linear2:
		return "Linear2"
	case Linear4:
		return "Linear4"
	case Spherical:
		return "Spherical"
	}
	return "Unknown"
}

// SkinWeight is a tagged union selected by Kind.
// Only the first Influences() entries of Bones/Weights are meaningful;
// C, R0 and R1 are populated for Spherical only.
type SkinWeight struct {
	Kind    WeightKind
	Bones   [4]int
	Weights [4]float32

	C  [3]float32
	R0 [3]float32
	R1 [3]float32
}

// Influences returns how many bone slots the weight kind uses.
func (w SkinWeight) Influences() int {
	switch w.Kind {
	case Rigid:
		return 1
	case Linear2, Spherical:
		return 2
	case Linear4:
		return 4
	}
	return 0
}

// Vertex is one model vertex. Immutable after load.
type Vertex struct {
	Position  [3]float32
	Normal    [3]float32
	UV        [2]float32
	ExtraUVs  [][4]float32
	Weight    SkinWeight
	EdgeScale float32
}

// Triangle holds three vertex indices.
type Triangle [3]int

// MaterialFlags is the per-material draw flag byte.
type MaterialFlags uint8

const (
	MaterialDoubleSided MaterialFlags = 1 << iota
	MaterialGroundShadow
	MaterialSelfShadowMap
	MaterialSelfShadow
	MaterialDrawEdge
)

// Material describes one draw run of the index buffer.
type Material struct {
	Name        string
	NameEnglish string

	Diffuse  [4]float32
	Specular [4]float32 // RGB + specular power
	Ambient  [3]float32
	Flags    MaterialFlags

	EdgeColor [4]float32
	EdgeSize  float32

	Texture       int // index into Model.Textures, -1 for none
	SphereTexture int
	SphereMode    uint8

	// SharedToon selects one of the 10 builtin toon slots (Toon in 0..9);
	// otherwise Toon is an index into Model.Textures.
	SharedToon bool
	Toon       int

	VertexCount int // number of indices this material draws
}

// BoneFlags selects which optional bone blocks were serialized.
type BoneFlags uint16

const (
	BoneTailIsBone         BoneFlags = 0x0001
	BoneRotatable          BoneFlags = 0x0002
	BoneTranslatable       BoneFlags = 0x0004
	BoneVisible            BoneFlags = 0x0008
	BoneEnabled            BoneFlags = 0x0010
	BoneIK                 BoneFlags = 0x0020
	BoneInheritLocal       BoneFlags = 0x0080
	BoneInheritRotation    BoneFlags = 0x0100
	BoneInheritTranslation BoneFlags = 0x0200
	BoneFixedAxis          BoneFlags = 0x0400
	BoneLocalAxis          BoneFlags = 0x0800
	BonePhysicsAfterDeform BoneFlags = 0x1000
	BoneExternalParent     BoneFlags = 0x2000
)

// Has reports whether all bits of f are set.
func (b BoneFlags) Has(f BoneFlags) bool { return b&f == f }

// IKLink is one joint of an IK chain.
type IKLink struct {
	Bone     int
	HasLimit bool
	Lower    [3]float32 // radians, valid when HasLimit
	Upper    [3]float32
}

// IK is the solver descriptor of an IK bone. It is recorded, never evaluated.
type IK struct {
	Target     int
	Loops      int
	LimitAngle float32
	Links      []IKLink
}

// Bone is one entry of the flat bone list. Fields guarded by a flag are
// zero (or -1 for indices) when the flag is clear.
type Bone struct {
	Name        string
	NameEnglish string

	Position [3]float32
	Parent   int // -1 or out of range for roots
	Layer    int // deformation order
	Flags    BoneFlags

	TailBone   int        // BoneTailIsBone set
	TailOffset [3]float32 // BoneTailIsBone clear

	InheritParent int // BoneInheritRotation or BoneInheritTranslation
	InheritRatio  float32

	FixedAxis   [3]float32 // BoneFixedAxis
	LocalX      [3]float32 // BoneLocalAxis
	LocalZ      [3]float32
	ExternalKey int // BoneExternalParent

	IK *IK // BoneIK
}

// Model is a fully parsed PMX document.
type Model struct {
	Header Header

	Name           string
	NameEnglish    string
	Comment        string
	CommentEnglish string

	Vertices  []Vertex
	Triangles []Triangle
	Textures  []string // paths relative to Dir, order significant
	Materials []Material
	Bones     []Bone

	// Dir is the directory that contained the model file; empty for Parse.
	Dir string
}

// MaterialRun is the [Start, End) range of Model.Triangles drawn by one material.
type MaterialRun struct {
	Material int
	Start    int
	End      int
}
