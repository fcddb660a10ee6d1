// Package binreader is a forward-only little-endian cursor shared by the PMX and VMD parsers.
package binreader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrTruncatedInput is returned when a read needs more bytes than remain.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrFileNotFound is returned when an asset cannot be opened.
	ErrFileNotFound = errors.New("file not found")
	// ErrBadIndexWidth is returned for an index width other than 1, 2 or 4 bytes.
	ErrBadIndexWidth = errors.New("bad index width")
)

// TextEncoding selects how length-prefixed strings are decoded.
type TextEncoding uint8

const (
	UTF16LE TextEncoding = 0
	UTF8    TextEncoding = 1
)

func (e TextEncoding) String() string {
	switch e {
	case UTF16LE:
		return "UTF-16LE"
	case UTF8:
		return "UTF-8"
	}
	return fmt.Sprintf("TextEncoding(%d)", uint8(e))
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ReadFile loads a whole asset into memory.
// Any failure to open or read the file is reported as ErrFileNotFound.
func ReadFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w (%v)", path, ErrFileNotFound, err)
	}
	return raw, nil
}

// Reader is a sequential cursor over a byte slice.
//
// The first failed read is sticky: it is kept in Err and every later read
// returns a zero value without advancing. Callers check Err once per section.
type Reader struct {
	data []byte
	off  int
	err  error
}

// New returns a Reader positioned at the start of data.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// take consumes n bytes or records ErrTruncatedInput.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.fail(fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, len(r.data)-r.off, ErrTruncatedInput))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Bytes consumes n bytes. The returned slice aliases the input.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) I32() int32 {
	return int32(r.U32())
}

func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

func (r *Reader) Vec2() [2]float32 {
	return [2]float32{r.F32(), r.F32()}
}

func (r *Reader) Vec3() [3]float32 {
	return [3]float32{r.F32(), r.F32(), r.F32()}
}

func (r *Reader) Vec4() [4]float32 {
	return [4]float32{r.F32(), r.F32(), r.F32(), r.F32()}
}

// Index reads a signed index of the given width (1, 2 or 4 bytes).
// Negative values mark "no reference".
func (r *Reader) Index(width int) int {
	switch width {
	case 1:
		return int(int8(r.U8()))
	case 2:
		return int(int16(r.U16()))
	case 4:
		return int(r.I32())
	}
	r.fail(fmt.Errorf("index width %d: %w", width, ErrBadIndexWidth))
	return -1
}

// UIndex reads an unsigned index of the given width. PMX vertex indices use it.
func (r *Reader) UIndex(width int) int {
	switch width {
	case 1:
		return int(r.U8())
	case 2:
		return int(r.U16())
	case 4:
		return int(r.U32())
	}
	r.fail(fmt.Errorf("index width %d: %w", width, ErrBadIndexWidth))
	return 0
}

// Text reads a 4-byte signed length followed by that many bytes of text.
// Decoding stops at an embedded NUL and backslashes become forward slashes.
func (r *Reader) Text(enc TextEncoding) string {
	n := int(r.I32())
	if r.err != nil {
		return ""
	}
	if n < 0 {
		r.fail(fmt.Errorf("negative text length %d at offset %d: %w", n, r.off-4, ErrTruncatedInput))
		return ""
	}
	raw := r.take(n)
	if raw == nil {
		return ""
	}

	var s string
	if enc == UTF8 {
		s = string(raw)
	} else {
		dec, err := utf16le.NewDecoder().Bytes(raw)
		if err != nil {
			r.fail(fmt.Errorf("utf-16 text at offset %d: %w", r.off-n, err))
			return ""
		}
		s = string(dec)
	}

	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "\\", "/")
}
