package postprocess

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Downsample shrinks a supersampled render to targetSize×targetSize with
// CatmullRom filtering. Filtering happens on premultiplied RGBA so
// transparent edges do not bleed dark halos.
func Downsample(img *image.NRGBA, targetSize int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() <= targetSize && b.Dy() <= targetSize {
		return img
	}

	premul := image.NewRGBA(image.Rect(0, 0, targetSize, targetSize))
	draw.CatmullRom.Scale(premul, premul.Bounds(), img, b, draw.Src, nil)

	out := image.NewNRGBA(premul.Bounds())
	draw.Draw(out, out.Bounds(), premul, image.Point{}, draw.Src)
	return out
}

// Composite flattens img over a solid background. A fully transparent
// background returns img unchanged.
func Composite(img *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	if bg.A == 0 {
		return img
	}
	out := image.NewNRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}
