// Package vmd decodes the bone keyframe section of VMD motion files.
package vmd

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"

	"mmd-pose-renderer/internal/binreader"
)

// ErrUnknownEncoding is returned when Options.Encoding names no known code page.
var ErrUnknownEncoding = errors.New("unknown encoding")

const (
	headerSize    = 50
	signatureSize = 30
	nameSize      = 15
	payloadSize   = 96 // frame, position, rotation, interpolation
	recordSize    = nameSize + payloadSize
	interpSize    = 64
)

// DefaultEncoding is the code page motion files are conventionally authored in.
const DefaultEncoding = "Shift_JIS"

// Options controls how narrow-character names are decoded.
type Options struct {
	// Encoding is an IANA character set name. Empty means DefaultEncoding.
	Encoding string
}

func (o Options) encoding() (encoding.Encoding, error) {
	if o.Encoding == "" || o.Encoding == DefaultEncoding {
		return japanese.ShiftJIS, nil
	}
	enc, err := ianaindex.IANA.Encoding(o.Encoding)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%q: %w", o.Encoding, ErrUnknownEncoding)
	}
	return enc, nil
}

// Load reads and parses a VMD file.
func Load(path string, opts Options) (*Motion, error) {
	raw, err := binreader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vmd: %w", err)
	}
	m, err := Parse(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return m, nil
}

// Parse decodes the bone keyframes of a VMD motion. Each bone's keyframes
// are sorted ascending by frame number; equal frames keep file order.
func Parse(data []byte, opts Options) (*Motion, error) {
	enc, err := opts.encoding()
	if err != nil {
		return nil, fmt.Errorf("vmd: %w", err)
	}
	dec := enc.NewDecoder()
	decode := func(raw []byte) string {
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		s, err := dec.Bytes(raw)
		if err != nil {
			return string(raw)
		}
		return string(s)
	}

	r := binreader.New(data)
	r.Skip(signatureSize)
	modelName := r.Bytes(headerSize - signatureSize)
	count := int(r.U32())
	if r.Err() != nil {
		return nil, fmt.Errorf("vmd: header: %w", r.Err())
	}
	if count > r.Remaining()/recordSize {
		return nil, fmt.Errorf("vmd: %d keyframes need %d bytes, have %d: %w",
			count, count*recordSize, r.Remaining(), binreader.ErrTruncatedInput)
	}

	m := &Motion{
		ModelName: decode(modelName),
		Bones:     make(map[string][]KeyFrame),
	}
	for i := 0; i < count; i++ {
		name := decode(r.Bytes(nameSize))
		kf := KeyFrame{Frame: r.U32(), Position: r.Vec3()}
		q := r.Vec4()
		kf.Rotation = mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
		interp := r.Bytes(interpSize)
		if r.Err() != nil {
			return nil, fmt.Errorf("vmd: keyframe %d: %w", i, r.Err())
		}
		kf.P1 = mgl32.Vec2{float32(interp[3]) / 127, float32(interp[7]) / 127}
		kf.P2 = mgl32.Vec2{float32(interp[11]) / 127, float32(interp[15]) / 127}

		m.Bones[name] = append(m.Bones[name], kf)
		if kf.Frame > m.MaxFrame {
			m.MaxFrame = kf.Frame
		}
	}

	for _, kfs := range m.Bones {
		sort.SliceStable(kfs, func(a, b int) bool { return kfs[a].Frame < kfs[b].Frame })
	}
	return m, nil
}
