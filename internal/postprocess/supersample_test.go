package postprocess

import (
	"image"
	"image/color"
	"testing"
)

func TestDownsampleKeepsEdgeColor(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 4; x++ {
			src.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	out := Downsample(src, 4)
	if out.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	// The partially covered boundary column must stay white, not grey.
	for x := 0; x < 4; x++ {
		c := out.NRGBAAt(x, 2)
		if c.A > 0 && c.R < 250 {
			t.Errorf("column %d darkened: %v", x, c)
		}
	}
	if out.NRGBAAt(0, 0).A != 255 || out.NRGBAAt(3, 0).A > 10 {
		t.Errorf("alpha edge = %v %v", out.NRGBAAt(0, 0), out.NRGBAAt(3, 0))
	}
}

func TestDownsampleNoop(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	if Downsample(src, 4) != src {
		t.Fatal("expected same image")
	}
}

func TestComposite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})

	if Composite(src, color.NRGBA{}) != src {
		t.Fatal("transparent background should be a no-op")
	}
	out := Composite(src, color.NRGBA{0, 0, 255, 255})
	if c := out.NRGBAAt(0, 0); c != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("foreground = %v", c)
	}
	if c := out.NRGBAAt(1, 0); c != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("background = %v", c)
	}
}
