package capture

import (
	"image"
	"image/png"
	"sync"
)

// ImagePool recycles RGBA images of one resolution. A recording keeps a
// fixed size, so a resolution change simply drops the pooled images.
type ImagePool struct {
	pool sync.Pool
	w, h int
	mu   sync.Mutex
}

func (p *ImagePool) Get(w, h int) *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == w && p.h == h {
		if v := p.pool.Get(); v != nil {
			return v.(*image.RGBA)
		}
		return image.NewRGBA(image.Rect(0, 0, w, h))
	}
	p.w = w
	p.h = h
	p.pool = sync.Pool{}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// Put returns img to the pool if it still matches the pooled resolution.
func (p *ImagePool) Put(img *image.RGBA) {
	b := img.Bounds()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == b.Dx() && p.h == b.Dy() {
		p.pool.Put(img)
	}
}

// encoderBuffers lets concurrent PNG encoders share scratch buffers.
type encoderBuffers struct{ pool sync.Pool }

func (b *encoderBuffers) Get() *png.EncoderBuffer {
	if v := b.pool.Get(); v != nil {
		return v.(*png.EncoderBuffer)
	}
	return nil
}

func (b *encoderBuffers) Put(buf *png.EncoderBuffer) { b.pool.Put(buf) }

// PNGEncoder is a png.Encoder whose scratch buffers are pooled.
var PNGEncoder = &png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       &encoderBuffers{},
}
