package capture

import (
	"errors"
	"image"

	"github.com/breeze-rmm/deskcap/internal/dxgi"
)

// Capturer polls one display without blocking.
type Capturer struct {
	inner  *dxgi.Capturer
	width  int
	height int
}

// NewCapturer opens a capture session on d.
func NewCapturer(d *Display) (*Capturer, error) {
	inner, err := dxgi.NewCapturer(d.d)
	if err != nil {
		return nil, err
	}
	return &Capturer{inner: inner, width: d.Width(), height: d.Height()}, nil
}

func (c *Capturer) Width() int  { return c.width }
func (c *Capturer) Height() int { return c.height }

// Fastlane reports whether frames are mapped without a staging copy.
func (c *Capturer) Fastlane() bool { return c.inner.Fastlane() }

// Frame returns the next frame if one is ready and WouldBlock otherwise.
// The frame is valid until the next call to Frame or Close.
func (c *Capturer) Frame() (Frame, error) {
	f, err := c.inner.Frame(0)
	if err != nil {
		var e *dxgi.Error
		if errors.As(err, &e) && e.Kind == dxgi.TimedOut {
			return Frame{}, &dxgi.Error{Op: e.Op, Kind: WouldBlock, Code: e.Code, Err: e.Err}
		}
		return Frame{}, err
	}
	return Frame{view: f, width: c.width, height: c.height}, nil
}

func (c *Capturer) Close() error { return c.inner.Close() }

// Frame is a borrowed BGRA frame.
type Frame struct {
	view   dxgi.Frame
	width  int
	height int
}

// Bytes is the raw frame: Height rows of Stride bytes, each pixel stored as
// B, G, R, A. Nil once the frame is stale.
func (f Frame) Bytes() []byte { return f.view.Bytes() }

func (f Frame) Width() int  { return f.width }
func (f Frame) Height() int { return f.height }

// Stride is the distance in bytes between the starts of two rows.
func (f Frame) Stride() int {
	if f.height == 0 {
		return 0
	}
	return f.view.Len() / f.height
}

// Image copies the frame into a new RGBA image.
func (f Frame) Image() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	if err := f.CopyTo(img); err != nil {
		return nil, err
	}
	return img, nil
}

// CopyTo converts the frame into dst, which must be at least Width x Height.
func (f Frame) CopyTo(dst *image.RGBA) error {
	src := f.Bytes()
	if src == nil {
		return &dxgi.Error{Op: "CopyTo", Kind: dxgi.InvalidData, Err: errStale}
	}
	b := dst.Bounds()
	if b.Dx() < f.width || b.Dy() < f.height {
		return &dxgi.Error{Op: "CopyTo", Kind: dxgi.InvalidData, Err: errSmallImage}
	}
	bgraToRGBA(dst, src, f.Stride(), f.width, f.height)
	return nil
}

var (
	errStale      = errors.New("frame is no longer current")
	errSmallImage = errors.New("destination image is smaller than the frame")
)

// bgraToRGBA swaps B and R row by row, honoring the source stride. Rows or
// columns the source does not cover are left untouched. Desktop alpha is
// undefined, so every pixel is written opaque.
func bgraToRGBA(dst *image.RGBA, src []byte, stride, width, height int) {
	if stride <= 0 {
		return
	}
	if cols := stride / 4; width > cols {
		width = cols
	}
	if rows := len(src) / stride; height > rows {
		height = rows
	}
	rowBytes := width * 4
	for y := 0; y < height; y++ {
		s := src[y*stride : y*stride+rowBytes]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+rowBytes]
		for x := 0; x < rowBytes; x += 4 {
			d[x+0] = s[x+2]
			d[x+1] = s[x+1]
			d[x+2] = s[x+0]
			d[x+3] = 0xff
		}
	}
}
