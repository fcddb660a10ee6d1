package texture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/image/bmp"
)

func solid(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func writeImage(t *testing.T, path string, enc func(*bytes.Buffer) error) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := enc(&buf); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func modelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	red := solid(color.NRGBA{255, 0, 0, 255})
	writeImage(t, filepath.Join(dir, "Tex", "Body.PNG"), func(b *bytes.Buffer) error { return png.Encode(b, red) })
	// A BMP saved with a sphere-map extension.
	writeImage(t, filepath.Join(dir, "sph", "metal.spa"), func(b *bytes.Buffer) error { return bmp.Encode(b, red) })
	writeImage(t, filepath.Join(dir, "broken.png"), func(b *bytes.Buffer) error {
		_, err := b.WriteString("not an image")
		return err
	})
	return dir
}

func TestIndexCaseInsensitive(t *testing.T) {
	dir := modelDir(t)
	idx := BuildIndex(dir)
	if idx.Len() != 3 {
		t.Fatalf("len = %d", idx.Len())
	}

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"tex/body.png", filepath.Join(dir, "Tex", "Body.PNG"), true},
		{`TEX\BODY.png`, filepath.Join(dir, "Tex", "Body.PNG"), true},
		{"elsewhere/body.png", filepath.Join(dir, "Tex", "Body.PNG"), true},
		{"missing.png", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := idx.ResolvePath(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ResolvePath(%q) = %q %v, want %q %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLoadTextureSniffsContent(t *testing.T) {
	dir := modelDir(t)
	img, err := LoadTexture(filepath.Join(dir, "sph", "metal.spa"))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 2 || img.Pix[0] != 255 || img.Pix[3] != 255 {
		t.Fatalf("pixel = %v", img.Pix[:4])
	}

	if _, err := LoadTexture(filepath.Join(dir, "nope.png")); err == nil {
		t.Fatal("missing file loaded")
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := decodeByExtension([]byte("x"), ".psd")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestCacheResolve(t *testing.T) {
	dir := modelDir(t)
	toonDir := t.TempDir()
	blue := solid(color.NRGBA{0, 0, 255, 255})
	writeImage(t, filepath.Join(toonDir, "toon04.bmp"), func(b *bytes.Buffer) error { return bmp.Encode(b, blue) })

	c := NewCache(BuildIndex(dir), BuildIndex(toonDir))

	var wg sync.WaitGroup
	results := make([]*image.NRGBA, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Resolve(`tex\body.png`)
		}(i)
	}
	wg.Wait()
	for i, img := range results {
		if img == nil || img != results[0] {
			t.Fatalf("result %d not shared: %p vs %p", i, img, results[0])
		}
	}

	if toon := c.ResolveToon(3); toon == nil || toon.Pix[2] != 255 {
		t.Fatalf("toon = %v", toon)
	}
	if c.Resolve("broken.png") != nil || c.Resolve("gone.png") != nil {
		t.Fatal("expected nil for unusable textures")
	}
	misses := c.Misses()
	if len(misses) != 2 || misses[0] != "broken.png" || misses[1] != "gone.png" {
		t.Fatalf("misses = %v", misses)
	}
}

func TestToonName(t *testing.T) {
	if got := ToonName(0); got != "toon01.bmp" {
		t.Errorf("ToonName(0) = %q", got)
	}
	if got := ToonName(9); got != "toon10.bmp" {
		t.Errorf("ToonName(9) = %q", got)
	}
}
