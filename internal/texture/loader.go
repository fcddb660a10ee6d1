package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// LoadTexture reads an image file and returns it as NRGBA. The extension
// picks the decoder; files whose content disagrees with their extension
// (.spa/.sph sphere maps, renamed JPEGs) fall back to content sniffing.
func LoadTexture(path string) (*image.NRGBA, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("texture: read %s: %w", path, err)
	}
	img, err := Decode(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("texture: decode %s: %w", path, err)
	}
	return toNRGBA(img), nil
}

// Decode decodes raw image bytes, trying the decoder for ext first and
// then the one matching the content signature.
func Decode(raw []byte, ext string) (image.Image, error) {
	img, err := decodeByExtension(raw, ext)
	if err == nil {
		return img, nil
	}
	if sniffed := sniffExtension(raw); sniffed != "" && sniffed != strings.ToLower(ext) {
		if img, sniffErr := decodeByExtension(raw, sniffed); sniffErr == nil {
			return img, nil
		}
	}
	if errors.Is(err, ErrUnsupportedFormat) {
		return nil, fmt.Errorf("%s: %w", ext, ErrUnsupportedFormat)
	}
	return nil, err
}

// sniffExtension guesses the format from magic bytes. TGA has no magic
// and is the fallback for anything unrecognised.
func sniffExtension(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, []byte("\x89PNG\r\n\x1a\n")):
		return ".png"
	case bytes.HasPrefix(raw, []byte{0xff, 0xd8, 0xff}):
		return ".jpg"
	case bytes.HasPrefix(raw, []byte("GIF8")):
		return ".gif"
	case bytes.HasPrefix(raw, []byte("BM")):
		return ".bmp"
	case len(raw) >= 12 && string(raw[:4]) == "RIFF" && string(raw[8:12]) == "WEBP":
		return ".webp"
	}
	return ".tga"
}

func decodeByExtension(raw []byte, ext string) (image.Image, error) {
	r := bytes.NewReader(raw)
	switch strings.ToLower(ext) {
	case ".png":
		return png.Decode(r)
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".bmp":
		return bmp.Decode(r)
	case ".gif":
		return gif.Decode(r)
	case ".webp":
		return webp.Decode(r)
	case ".tga":
		return tga.Decode(r)
	}
	return nil, ErrUnsupportedFormat
}

// toNRGBA converts any image to NRGBA format.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
