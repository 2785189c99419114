package dxgi

import (
	"time"
	"unsafe"

	"github.com/breeze-rmm/deskcap/internal/logging"
)

var log = logging.L("dxgi")

// Capturer is a Desktop Duplication session for one display. It is meant for
// a single polling goroutine; no method is safe for concurrent use.
type Capturer struct {
	device      Device
	context     Context
	duplication Duplication
	path        framePath

	height int
	info   FrameInfo
	data   *byte
	len    int
	pitch  int
	gen    uint64
	closed bool
}

// framePath is how a session turns an acquired frame into CPU-readable
// memory. It is chosen once when the session opens.
type framePath interface {
	// load maps the frame behind res. It owns res and must release it.
	load(c *Capturer, res Resource) (MappedRect, error)
	// unload drops the current mapping. Failures are not reported.
	unload(c *Capturer)
	fastlane() bool
}

// NewCapturer opens a duplication session on d. The session primes itself
// with one zero-timeout acquisition whose outcome is ignored, so a desktop
// that has not produced a frame yet does not fail construction.
func NewCapturer(d *Display) (*Capturer, error) {
	device, context, err := d.backend.CreateDevice(d.adapter)
	if err != nil {
		return nil, &Error{Op: "D3D11CreateDevice", Kind: Other, Err: err}
	}

	duplication, err := d.output.DuplicateOutput(device)
	if err != nil {
		device.Release()
		context.Release()
		return nil, Translate("DuplicateOutput", err)
	}

	desc := duplication.Desc()
	c := &Capturer{
		device:      device,
		context:     context,
		duplication: duplication,
		height:      int(d.Height()),
	}
	if desc.DesktopImageInSystemMemory != 0 {
		c.path = fastlanePath{}
	} else {
		c.path = &stagingPath{}
	}

	log.Debug("duplication session opened",
		logging.KeyDisplay, d.DeviceName(),
		"width", desc.ModeDesc.Width,
		"height", desc.ModeDesc.Height,
		"fastlane", c.path.fastlane(),
	)

	if err := c.loadFrame(0); err != nil {
		log.Debug("initial frame not loaded", logging.KeyError, err)
	}
	return c, nil
}

// Fastlane reports whether the desktop image is mapped straight from system
// memory instead of being copied through a staging texture.
func (c *Capturer) Fastlane() bool { return c.path.fastlane() }

// Height is the cached output height used to size frames.
func (c *Capturer) Height() int { return c.height }

// Pitch is the row stride of the most recently mapped frame, 0 if none.
func (c *Capturer) Pitch() int { return c.pitch }

// Info is the frame metadata reported by the last successful acquisition.
func (c *Capturer) Info() FrameInfo { return c.info }

// Frame releases the previous frame and acquires the next one, waiting up
// to timeout. The returned view is valid until the next Frame or Close.
// A zero timeout polls without blocking.
func (c *Capturer) Frame(timeout time.Duration) (Frame, error) {
	if c.closed {
		return Frame{}, &Error{Op: "Frame", Kind: InvalidData, Err: errClosed}
	}
	c.gen++

	// Release the last frame. None of these failures affect the next cycle.
	c.path.unload(c)
	discard(c.duplication.ReleaseFrame())

	if err := c.loadFrame(timeoutMillis(timeout)); err != nil {
		return Frame{}, err
	}
	return Frame{c: c, gen: c.gen, length: c.len}, nil
}

func (c *Capturer) loadFrame(timeoutMs uint32) error {
	c.data = nil
	c.len = 0
	c.pitch = 0

	res, info, err := c.duplication.AcquireNextFrame(timeoutMs)
	if err != nil {
		return Translate("AcquireNextFrame", err)
	}
	c.info = info

	rect, err := c.path.load(c, res)
	if err != nil {
		return err
	}
	c.data = rect.Bits
	c.pitch = int(rect.Pitch)
	c.len = c.height * c.pitch
	return nil
}

// Close tears the session down: staging surface, duplication, device,
// context. Release failures are not observable and are not reported.
func (c *Capturer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.gen++
	if sp, ok := c.path.(*stagingPath); ok {
		sp.unload(c)
	}
	c.duplication.Release()
	c.device.Release()
	c.context.Release()
	c.data = nil
	c.len = 0
	return nil
}

// fastlanePath maps the desktop image directly.
type fastlanePath struct{}

func (fastlanePath) fastlane() bool { return true }

func (fastlanePath) load(c *Capturer, res Resource) (MappedRect, error) {
	// The resource carries no pixels in this mode.
	res.Release()
	rect, err := c.duplication.MapDesktopSurface()
	if err != nil {
		return MappedRect{}, Translate("MapDesktopSurface", err)
	}
	return rect, nil
}

func (fastlanePath) unload(c *Capturer) {
	discard(c.duplication.UnMapDesktopSurface())
}

// stagingPath copies the GPU frame texture into a CPU-readable staging
// texture and maps it through its surface.
type stagingPath struct {
	surface Surface
}

func (*stagingPath) fastlane() bool { return false }

func (p *stagingPath) load(c *Capturer, res Resource) (MappedRect, error) {
	surface, err := p.copyToCPU(c, res)
	if err != nil {
		return MappedRect{}, err
	}

	rect, err := surface.Map(MapRead)
	if err != nil {
		surface.Release()
		return MappedRect{}, Translate("IDXGISurface::Map", err)
	}
	p.surface = surface
	return rect, nil
}

// copyToCPU clones the frame texture's descriptor as a staging, CPU-read
// texture, copies the frame into it and returns its surface. Everything
// acquired along the way except the surface is released before returning.
func (p *stagingPath) copyToCPU(c *Capturer, res Resource) (Surface, error) {
	defer res.Release()

	texture, err := res.Texture2D()
	if err != nil {
		return nil, Translate("QueryInterface(ID3D11Texture2D)", err)
	}
	defer texture.Release()

	desc := texture.Desc()
	desc.Usage = UsageStaging
	desc.BindFlags = 0
	desc.CPUAccessFlags = CPUAccessRead
	desc.MiscFlags = 0

	readable, err := c.device.CreateTexture2D(&desc)
	if err != nil {
		return nil, Translate("CreateTexture2D", err)
	}
	defer readable.Release()

	readable.SetEvictionPriority(PriorityMaximum)

	surface, err := readable.Surface()
	if err != nil {
		return nil, Translate("QueryInterface(IDXGISurface)", err)
	}

	c.context.CopyResource(readable, texture)
	return surface, nil
}

func (p *stagingPath) unload(c *Capturer) {
	if p.surface == nil {
		return
	}
	discard(p.surface.Unmap())
	p.surface.Release()
	p.surface = nil
}

// discard drops the result of a best-effort release call.
func discard(err error) {
	if err != nil {
		log.Debug("best-effort release failed", logging.KeyError, err)
	}
}

func timeoutMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > maxTimeoutMs {
		return maxTimeoutMs
	}
	return uint32(ms)
}

// Frame is a borrowed view of the session's current frame. It goes stale as
// soon as the session acquires another frame or closes.
type Frame struct {
	c      *Capturer
	gen    uint64
	length int
}

// Valid reports whether the view still refers to the session's live frame.
func (f Frame) Valid() bool {
	return f.c != nil && !f.c.closed && f.c.gen == f.gen && f.c.data != nil
}

// Bytes returns the mapped pixels, height*pitch bytes in the surface's
// native BGRA row layout, or nil once the view is stale.
func (f Frame) Bytes() []byte {
	if !f.Valid() {
		return nil
	}
	return unsafe.Slice(f.c.data, f.length)
}

// Len is the frame length in bytes, known even after the view goes stale.
func (f Frame) Len() int { return f.length }
