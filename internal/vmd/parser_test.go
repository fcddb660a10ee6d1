package vmd

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/japanese"

	"mmd-pose-renderer/internal/binreader"
)

type record struct {
	name   string
	frame  uint32
	quat   [4]float32
	interp [4]byte // bytes 3, 7, 11, 15
}

func sjis(t *testing.T, s string) []byte {
	t.Helper()
	b, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func buildMotion(t *testing.T, model string, recs []record) []byte {
	t.Helper()
	buf := make([]byte, headerSize)
	copy(buf, "Vocaloid Motion Data 0002")
	copy(buf[signatureSize:], sjis(t, model))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(recs)))
	for _, rec := range recs {
		name := make([]byte, nameSize)
		copy(name, sjis(t, rec.name))
		buf = append(buf, name...)
		buf = binary.LittleEndian.AppendUint32(buf, rec.frame)
		for _, v := range []float32{0.5, 1, 1.5} {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		for _, v := range rec.quat {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		interp := make([]byte, interpSize)
		interp[3], interp[7], interp[11], interp[15] = rec.interp[0], rec.interp[1], rec.interp[2], rec.interp[3]
		buf = append(buf, interp...)
	}
	return buf
}

func TestParseSortsAndTracksMaxFrame(t *testing.T) {
	id := [4]float32{0, 0, 0, 1}
	recs := []record{
		{"センター", 30, id, [4]byte{20, 20, 107, 107}},
		{"センター", 0, id, [4]byte{20, 20, 107, 107}},
		{"右腕", 45, id, [4]byte{127, 0, 0, 127}},
		{"センター", 15, id, [4]byte{20, 20, 107, 107}},
		{"右腕", 5, id, [4]byte{0, 0, 127, 127}},
	}
	m, err := Parse(buildMotion(t, "初音ミク", recs), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if m.ModelName != "初音ミク" {
		t.Errorf("model name = %q", m.ModelName)
	}
	if m.MaxFrame != 45 {
		t.Errorf("max frame = %d", m.MaxFrame)
	}
	if len(m.Bones) != 2 || m.KeyFrameCount() != 5 {
		t.Fatalf("bones = %v", m.BoneNames())
	}
	for name, kfs := range m.Bones {
		for i := 1; i < len(kfs); i++ {
			if kfs[i-1].Frame > kfs[i].Frame {
				t.Errorf("%s not sorted: %d before %d", name, kfs[i-1].Frame, kfs[i].Frame)
			}
		}
	}

	arm := m.Bones["右腕"]
	if arm[1].P1.X() != 1 || arm[1].P1.Y() != 0 || arm[1].P2.X() != 0 || arm[1].P2.Y() != 1 {
		t.Errorf("control points = %v %v", arm[1].P1, arm[1].P2)
	}
	if arm[0].Position != [3]float32{0.5, 1, 1.5} {
		t.Errorf("position = %v", arm[0].Position)
	}
	if arm[0].Rotation.W != 1 {
		t.Errorf("rotation = %v", arm[0].Rotation)
	}
}

func TestParseStableForEqualFrames(t *testing.T) {
	recs := []record{
		{"a", 10, [4]float32{0, 0, 0, 1}, [4]byte{}},
		{"a", 10, [4]float32{0, 1, 0, 0}, [4]byte{}},
		{"a", 0, [4]float32{0, 0, 0, 1}, [4]byte{}},
	}
	m, err := Parse(buildMotion(t, "", recs), Options{})
	if err != nil {
		t.Fatal(err)
	}
	kfs := m.Bones["a"]
	if kfs[1].Rotation.W != 1 || kfs[2].Rotation.V.Y() != 1 {
		t.Fatalf("equal frames reordered: %+v", kfs)
	}
}

func TestParseTruncated(t *testing.T) {
	data := buildMotion(t, "m", []record{{"a", 1, [4]float32{0, 0, 0, 1}, [4]byte{}}})
	for _, n := range []int{0, 40, headerSize + 2, len(data) - 1} {
		if _, err := Parse(data[:n], Options{}); !errors.Is(err, binreader.ErrTruncatedInput) {
			t.Errorf("truncated at %d: %v", n, err)
		}
	}
}

func TestUnknownEncoding(t *testing.T) {
	_, err := Parse(buildMotion(t, "", nil), Options{Encoding: "no-such-charset"})
	if !errors.Is(err, ErrUnknownEncoding) {
		t.Fatalf("expected ErrUnknownEncoding, got %v", err)
	}
}

func TestAlternateEncoding(t *testing.T) {
	buf := make([]byte, headerSize)
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	name := make([]byte, nameSize)
	copy(name, []byte{'c', 'a', 'f', 0xe9})
	buf = append(buf, name...)
	buf = append(buf, make([]byte, payloadSize)...)

	m, err := Parse(buf, Options{Encoding: "ISO-8859-1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Bones["café"]; !ok {
		t.Fatalf("bones = %v", m.BoneNames())
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.vmd"), Options{})
	if !errors.Is(err, binreader.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dance.vmd")
	data := buildMotion(t, "", []record{{"頭", 3, [4]float32{0, 0, 0, 1}, [4]byte{}}})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path, Options{Encoding: "Shift_JIS"})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Bones["頭"]) != 1 {
		t.Fatalf("bones = %v", m.BoneNames())
	}
}
