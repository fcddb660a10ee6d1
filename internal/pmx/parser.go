// Package pmx decodes PMX 2.x model files: geometry, skin weights,
// materials and the bone list with its inheritance and IK metadata.
package pmx

import (
	"errors"
	"fmt"
	"path/filepath"

	"mmd-pose-renderer/internal/binreader"
)

var (
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrUnknownWeightType  = errors.New("unknown weight type")
	ErrBadHeader          = errors.New("bad header")
)

const magic = "PMX "

// Load reads and parses a PMX file. The returned model remembers the file's
// directory so texture paths can be resolved against it.
func Load(path string) (*Model, error) {
	raw, err := binreader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pmx: %w", err)
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// Parse decodes a PMX document from memory. Sections are positional, so any
// failure discards the whole model.
func Parse(data []byte) (*Model, error) {
	p := &parser{r: binreader.New(data), m: &Model{}}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"header", p.header},
		{"vertices", p.vertices},
		{"faces", p.faces},
		{"textures", p.textures},
		{"materials", p.materials},
		{"bones", p.bones},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return nil, fmt.Errorf("pmx: %s: %w", s.name, err)
		}
		if err := p.r.Err(); err != nil {
			return nil, fmt.Errorf("pmx: %s: %w", s.name, err)
		}
	}
	return p.m, nil
}

type parser struct {
	r *binreader.Reader
	m *Model
}

func (p *parser) text() string {
	return p.r.Text(p.m.Header.Encoding)
}

func (p *parser) boneIndex() int {
	return p.r.Index(p.m.Header.BoneIndexSize)
}

func (p *parser) textureIndex() int {
	return p.r.Index(p.m.Header.TextureIndexSize)
}

// count reads a section element count.
func (p *parser) count() (int, error) {
	n := int(p.r.I32())
	if err := p.r.Err(); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d: %w", n, binreader.ErrTruncatedInput)
	}
	// Every element is at least one byte; a larger count cannot be satisfied.
	if n > p.r.Remaining() {
		return 0, fmt.Errorf("count %d exceeds %d remaining bytes: %w", n, p.r.Remaining(), binreader.ErrTruncatedInput)
	}
	return n, nil
}

func (p *parser) header() error {
	r := p.r
	tag := r.Bytes(4)
	if r.Err() != nil {
		return r.Err()
	}
	if string(tag) != magic {
		return fmt.Errorf("%q: %w", tag, ErrBadMagic)
	}

	h := &p.m.Header
	h.Version = r.F32()
	if r.Err() != nil {
		return r.Err()
	}
	if !(h.Version >= 2.0) {
		return fmt.Errorf("version %.1f: %w", h.Version, ErrUnsupportedVersion)
	}

	r.Skip(1) // length of the globals block, always 8
	h.Encoding = binreader.TextEncoding(r.U8())
	h.ExtraUVs = int(r.U8())
	h.VertexIndexSize = int(r.U8())
	h.TextureIndexSize = int(r.U8())
	h.MaterialIndexSize = int(r.U8())
	h.BoneIndexSize = int(r.U8())
	h.MorphIndexSize = int(r.U8())
	h.RigidBodyIndexSize = int(r.U8())
	if r.Err() != nil {
		return r.Err()
	}

	if h.Encoding != binreader.UTF16LE && h.Encoding != binreader.UTF8 {
		return fmt.Errorf("text encoding %d: %w", h.Encoding, ErrBadHeader)
	}
	if h.ExtraUVs > 4 {
		return fmt.Errorf("%d additional UVs: %w", h.ExtraUVs, ErrBadHeader)
	}
	for _, size := range []int{h.VertexIndexSize, h.TextureIndexSize, h.MaterialIndexSize,
		h.BoneIndexSize, h.MorphIndexSize, h.RigidBodyIndexSize} {
		if size != 1 && size != 2 && size != 4 {
			return fmt.Errorf("index size %d: %w", size, binreader.ErrBadIndexWidth)
		}
	}

	p.m.Name = p.text()
	p.m.NameEnglish = p.text()
	p.m.Comment = p.text()
	p.m.CommentEnglish = p.text()
	return nil
}

func (p *parser) vertices() error {
	n, err := p.count()
	if err != nil {
		return err
	}
	r := p.r
	extra := p.m.Header.ExtraUVs
	verts := make([]Vertex, n)
	for i := range verts {
		v := &verts[i]
		v.Position = r.Vec3()
		v.Normal = r.Vec3()
		v.UV = r.Vec2()
		if extra > 0 {
			v.ExtraUVs = make([][4]float32, extra)
			for k := range v.ExtraUVs {
				v.ExtraUVs[k] = r.Vec4()
			}
		}
		if err := p.weight(&v.Weight); err != nil {
			return fmt.Errorf("vertex %d: %w", i, err)
		}
		v.EdgeScale = r.F32()
		if r.Err() != nil {
			return r.Err()
		}
	}
	p.m.Vertices = verts
	return nil
}

func (p *parser) weight(w *SkinWeight) error {
	r := p.r
	kind := r.U8()
	if r.Err() != nil {
		return r.Err()
	}
	w.Kind = WeightKind(kind)
	w.Bones = [4]int{-1, -1, -1, -1}

	switch w.Kind {
	case Rigid:
		w.Bones[0] = p.boneIndex()
		w.Weights[0] = 1
	case Linear2:
		w.Bones[0] = p.boneIndex()
		w.Bones[1] = p.boneIndex()
		w.Weights[0] = r.F32()
		w.Weights[1] = 1 - w.Weights[0]
	case Linear4:
		for k := 0; k < 4; k++ {
			w.Bones[k] = p.boneIndex()
		}
		for k := 0; k < 4; k++ {
			w.Weights[k] = r.F32()
		}
	case Spherical:
		w.Bones[0] = p.boneIndex()
		w.Bones[1] = p.boneIndex()
		w.Weights[0] = r.F32()
		w.Weights[1] = 1 - w.Weights[0]
		w.C = r.Vec3()
		w.R0 = r.Vec3()
		w.R1 = r.Vec3()
	default:
		return fmt.Errorf("type %d: %w", kind, ErrUnknownWeightType)
	}
	return nil
}

func (p *parser) faces() error {
	n, err := p.count()
	if err != nil {
		return err
	}
	size := p.m.Header.VertexIndexSize
	tris := make([]Triangle, n/3)
	for i := range tris {
		for k := 0; k < 3; k++ {
			tris[i][k] = p.r.UIndex(size)
		}
	}
	// Trailing indices that do not form a triangle are consumed and dropped.
	for i := 0; i < n%3; i++ {
		p.r.UIndex(size)
	}
	p.m.Triangles = tris
	return nil
}

func (p *parser) textures() error {
	n, err := p.count()
	if err != nil {
		return err
	}
	paths := make([]string, n)
	for i := range paths {
		paths[i] = p.text()
	}
	p.m.Textures = paths
	return nil
}

func (p *parser) materials() error {
	n, err := p.count()
	if err != nil {
		return err
	}
	r := p.r
	mats := make([]Material, n)
	for i := range mats {
		mt := &mats[i]
		mt.Name = p.text()
		mt.NameEnglish = p.text()
		mt.Diffuse = r.Vec4()
		mt.Specular = r.Vec4()
		mt.Ambient = r.Vec3()
		mt.Flags = MaterialFlags(r.U8())
		mt.EdgeColor = r.Vec4()
		mt.EdgeSize = r.F32()
		mt.Texture = p.textureIndex()
		mt.SphereTexture = p.textureIndex()
		mt.SphereMode = r.U8()

		mt.SharedToon = r.U8() != 0
		if mt.SharedToon {
			mt.Toon = int(r.U8())
		} else {
			mt.Toon = p.textureIndex()
		}

		memo := int(r.I32())
		if r.Err() == nil && memo < 0 {
			return fmt.Errorf("material %d: negative memo length %d: %w", i, memo, binreader.ErrTruncatedInput)
		}
		r.Skip(memo)
		mt.VertexCount = int(r.I32())
		if r.Err() != nil {
			return fmt.Errorf("material %d: %w", i, r.Err())
		}
	}
	p.m.Materials = mats
	return nil
}

func (p *parser) bones() error {
	n, err := p.count()
	if err != nil {
		return err
	}
	r := p.r
	bones := make([]Bone, n)
	for i := range bones {
		b := &bones[i]
		b.Name = p.text()
		b.NameEnglish = p.text()
		b.Position = r.Vec3()
		b.Parent = p.boneIndex()
		b.Layer = int(r.I32())
		b.Flags = BoneFlags(r.U16())

		b.TailBone = -1
		if b.Flags.Has(BoneTailIsBone) {
			b.TailBone = p.boneIndex()
		} else {
			b.TailOffset = r.Vec3()
		}

		b.InheritParent = -1
		if b.Flags&(BoneInheritRotation|BoneInheritTranslation) != 0 {
			b.InheritParent = p.boneIndex()
			b.InheritRatio = r.F32()
		}
		if b.Flags.Has(BoneFixedAxis) {
			b.FixedAxis = r.Vec3()
		}
		if b.Flags.Has(BoneLocalAxis) {
			b.LocalX = r.Vec3()
			b.LocalZ = r.Vec3()
		}
		b.ExternalKey = -1
		if b.Flags.Has(BoneExternalParent) {
			b.ExternalKey = int(r.I32())
		}
		if b.Flags.Has(BoneIK) {
			ik, err := p.ik()
			if err != nil {
				return fmt.Errorf("bone %d: %w", i, err)
			}
			b.IK = ik
		}
		if r.Err() != nil {
			return fmt.Errorf("bone %d: %w", i, r.Err())
		}
	}
	p.m.Bones = bones
	return nil
}

func (p *parser) ik() (*IK, error) {
	r := p.r
	ik := &IK{
		Target:     p.boneIndex(),
		Loops:      int(r.I32()),
		LimitAngle: r.F32(),
	}
	n, err := p.count()
	if err != nil {
		return nil, err
	}
	ik.Links = make([]IKLink, n)
	for i := range ik.Links {
		l := &ik.Links[i]
		l.Bone = p.boneIndex()
		l.HasLimit = r.U8() != 0
		if l.HasLimit {
			l.Lower = r.Vec3()
			l.Upper = r.Vec3()
		}
	}
	return ik, nil
}

// MaterialRuns splits Triangles into consecutive per-material ranges using
// each material's VertexCount. Ranges are clamped to the triangle list.
func (m *Model) MaterialRuns() []MaterialRun {
	runs := make([]MaterialRun, 0, len(m.Materials))
	start := 0
	for i, mt := range m.Materials {
		end := start + mt.VertexCount/3
		if end < start {
			end = start
		}
		if end > len(m.Triangles) {
			end = len(m.Triangles)
		}
		runs = append(runs, MaterialRun{Material: i, Start: start, End: end})
		start = end
	}
	return runs
}

// TexturePath returns the filesystem path of texture i relative to the
// model directory, or "" when i does not reference a texture.
func (m *Model) TexturePath(i int) string {
	if i < 0 || i >= len(m.Textures) || m.Textures[i] == "" {
		return ""
	}
	return filepath.Join(m.Dir, filepath.FromSlash(m.Textures[i]))
}
