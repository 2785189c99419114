// Package dxgitest provides an in-memory dxgi.Backend. It models the parts
// of Desktop Duplication the capture core depends on: adapter and output
// topology, per-object reference counts, one live duplication per output,
// frame availability and the mapped-surface lifecycle. Every native call can
// be made to fail with a chosen status code.
package dxgitest

import (
	"sync"
	"unicode/utf16"

	"github.com/breeze-rmm/deskcap/internal/dxgi"
)

// Operation names accepted by Fail.
const (
	OpNewFactory        = "CreateDXGIFactory1"
	OpEnumAdapters      = "EnumAdapters"
	OpEnumOutputs       = "EnumOutputs"
	OpOutputDesc        = "GetDesc"
	OpOutput1           = "QueryInterface(IDXGIOutput1)"
	OpCreateDevice      = "D3D11CreateDevice"
	OpDuplicateOutput   = "DuplicateOutput"
	OpAcquireNextFrame  = "AcquireNextFrame"
	OpMapDesktopSurface = "MapDesktopSurface"
	OpTexture2D         = "QueryInterface(ID3D11Texture2D)"
	OpCreateTexture2D   = "CreateTexture2D"
	OpSurface           = "QueryInterface(IDXGISurface)"
	OpMap               = "IDXGISurface::Map"
)

// FormatB8G8R8A8 is DXGI_FORMAT_B8G8R8A8_UNORM.
const FormatB8G8R8A8 = 87

// OutputSpec describes one monitor.
type OutputSpec struct {
	Name     string
	Left     int32
	Top      int32
	Width    int32
	Height   int32
	Rotation dxgi.Rotation
	// Pitch is the row stride in bytes. Zero means Width*4.
	Pitch int32
	// Detached outputs report AttachedToDesktop == 0.
	Detached bool
	// NoOutput1 makes the IDXGIOutput1 query fail with E_NOINTERFACE.
	NoOutput1 bool
}

func (o OutputSpec) pitch() int32 {
	if o.Pitch > 0 {
		return o.Pitch
	}
	return o.Width * 4
}

// AdapterSpec describes one adapter and its outputs, in enumeration order.
type AdapterSpec struct {
	Outputs []OutputSpec
}

type outputState struct {
	spec    OutputSpec
	dup     *duplication
	pending int
	seq     int
}

// Backend is a fake native graph. Its zero value has no adapters; build one
// with New or Single.
type Backend struct {
	// Fastlane makes new duplications report the desktop image as living in
	// system memory.
	Fastlane bool
	// Continuous makes every acquisition find a new frame. Otherwise frames
	// must be queued with Present.
	Continuous bool
	// Fill paints a freshly acquired frame. The default sets every byte to
	// the low byte of seq.
	Fill func(seq, pitch int, buf []byte)

	mu           sync.Mutex
	adapters     [][]*outputState
	fail         map[string]uint32
	events       []string
	live         map[string]int
	overReleased int
	staging      dxgi.Texture2DDesc
	priority     uint32
}

// New returns a backend with the given topology.
func New(adapters ...AdapterSpec) *Backend {
	b := &Backend{
		fail: make(map[string]uint32),
		live: make(map[string]int),
	}
	for _, a := range adapters {
		outputs := make([]*outputState, 0, len(a.Outputs))
		for _, o := range a.Outputs {
			outputs = append(outputs, &outputState{spec: o})
		}
		b.adapters = append(b.adapters, outputs)
	}
	return b
}

// Single returns a backend with one adapter driving one width x height
// output named \\.\DISPLAY1.
func Single(width, height int32) *Backend {
	return New(AdapterSpec{Outputs: []OutputSpec{{
		Name:     `\\.\DISPLAY1`,
		Width:    width,
		Height:   height,
		Rotation: dxgi.RotationIdentity,
	}}})
}

// Fail makes every later call to op fail with status. A zero status clears
// the failure.
func (b *Backend) Fail(op string, status uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == dxgi.StatusOK {
		delete(b.fail, op)
		return
	}
	b.fail[op] = status
}

// Present queues n frames on every output.
func (b *Backend) Present(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, outputs := range b.adapters {
		for _, o := range outputs {
			o.pending += n
		}
	}
}

// PresentTo queues n frames on one output.
func (b *Backend) PresentTo(adapter, output, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adapters[adapter][output].pending += n
}

// Events returns the ordered log of releases and frame lifecycle calls,
// formatted as "kind.Method".
func (b *Backend) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

// ResetEvents clears the event log.
func (b *Backend) ResetEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// Live returns the number of outstanding references across all objects.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, v := range b.live {
		n += v
	}
	return n
}

// LiveOf returns the outstanding references on objects of one kind:
// factory, adapter, output, output1, device, context, duplication, resource,
// texture, staging or surface.
func (b *Backend) LiveOf(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live[kind]
}

// OverReleased counts Release calls made on objects with no references left.
func (b *Backend) OverReleased() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overReleased
}

// StagingDesc is the descriptor passed to the most recent CreateTexture2D.
func (b *Backend) StagingDesc() dxgi.Texture2DDesc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.staging
}

// EvictionPriority is the last priority set on any texture.
func (b *Backend) EvictionPriority() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.priority
}

// The helpers below expect b.mu to be held.

func (b *Backend) failure(op string) error {
	return dxgi.Status(b.fail[op])
}

func (b *Backend) record(event string) {
	b.events = append(b.events, event)
}

func (b *Backend) newObject(kind string) object {
	b.live[kind]++
	return object{b: b, kind: kind, refs: 1}
}

// object is the reference-counted part shared by every fake interface.
type object struct {
	b      *Backend
	kind   string
	refs   int
	onFree func() // runs under b.mu when the last reference goes
}

func (o *object) AddRef() {
	o.b.mu.Lock()
	defer o.b.mu.Unlock()
	o.refs++
	o.b.live[o.kind]++
}

func (o *object) Release() {
	o.b.mu.Lock()
	defer o.b.mu.Unlock()
	if o.refs == 0 {
		o.b.overReleased++
		return
	}
	o.refs--
	o.b.live[o.kind]--
	o.b.record(o.kind + ".Release")
	if o.refs == 0 && o.onFree != nil {
		o.onFree()
	}
}

func (b *Backend) NewFactory() (dxgi.Factory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpNewFactory); err != nil {
		return nil, err
	}
	return &factory{object: b.newObject("factory")}, nil
}

func (b *Backend) CreateDevice(a dxgi.Adapter) (dxgi.Device, dxgi.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := a.(*adapter); !ok {
		return nil, nil, dxgi.Status(dxgi.StatusInvalidCall)
	}
	if err := b.failure(OpCreateDevice); err != nil {
		return nil, nil, err
	}
	return &device{object: b.newObject("device")}, &deviceContext{object: b.newObject("context")}, nil
}

type factory struct{ object }

func (f *factory) EnumAdapters(index uint32) (dxgi.Adapter, error) {
	b := f.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpEnumAdapters); err != nil {
		return nil, err
	}
	if int(index) >= len(b.adapters) {
		return nil, dxgi.Status(dxgi.StatusNotFound)
	}
	return &adapter{object: b.newObject("adapter"), outputs: b.adapters[index]}, nil
}

type adapter struct {
	object
	outputs []*outputState
}

func (a *adapter) EnumOutputs(index uint32) (dxgi.Output, error) {
	b := a.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpEnumOutputs); err != nil {
		return nil, err
	}
	if int(index) >= len(a.outputs) {
		return nil, dxgi.Status(dxgi.StatusNotFound)
	}
	return &output{object: b.newObject("output"), state: a.outputs[index]}, nil
}

type output struct {
	object
	state *outputState
}

func (o *output) Desc() (dxgi.OutputDesc, error) {
	b := o.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpOutputDesc); err != nil {
		return dxgi.OutputDesc{}, err
	}
	s := o.state.spec
	desc := dxgi.OutputDesc{
		Left:     s.Left,
		Top:      s.Top,
		Right:    s.Left + s.Width,
		Bottom:   s.Top + s.Height,
		Rotation: s.Rotation,
	}
	if !s.Detached {
		desc.AttachedToDesktop = 1
	}
	copy(desc.DeviceName[:], utf16.Encode([]rune(s.Name)))
	return desc, nil
}

func (o *output) Output1() (dxgi.Output1, error) {
	b := o.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpOutput1); err != nil {
		return nil, err
	}
	if o.state.spec.NoOutput1 {
		return nil, dxgi.Status(dxgi.StatusNoInterface)
	}
	return &output1{object: b.newObject("output1"), state: o.state}, nil
}

type output1 struct {
	object
	state *outputState
}

func (o *output1) DuplicateOutput(d dxgi.Device) (dxgi.Duplication, error) {
	b := o.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := d.(*device); !ok {
		return nil, dxgi.Status(dxgi.StatusInvalidCall)
	}
	if err := b.failure(OpDuplicateOutput); err != nil {
		return nil, err
	}
	state := o.state
	if state.dup != nil {
		return nil, dxgi.Status(dxgi.StatusNotCurrentlyAvailable)
	}
	dup := &duplication{
		object:   b.newObject("duplication"),
		state:    state,
		fastlane: b.Fastlane,
	}
	dup.onFree = func() { state.dup = nil }
	state.dup = dup
	return dup, nil
}

type duplication struct {
	object
	state    *outputState
	fastlane bool
	held     bool
	mapped   bool
	frame    []byte
}

func (d *duplication) Desc() dxgi.DuplDesc {
	d.b.mu.Lock()
	defer d.b.mu.Unlock()
	s := d.state.spec
	desc := dxgi.DuplDesc{
		ModeDesc: dxgi.ModeDesc{
			Width:       uint32(s.Width),
			Height:      uint32(s.Height),
			RefreshRate: dxgi.Rational{Numerator: 60, Denominator: 1},
			Format:      FormatB8G8R8A8,
		},
		Rotation: s.Rotation,
	}
	if d.fastlane {
		desc.DesktopImageInSystemMemory = 1
	}
	return desc
}

func (d *duplication) AcquireNextFrame(timeoutMs uint32) (dxgi.Resource, dxgi.FrameInfo, error) {
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("duplication.AcquireNextFrame")
	if err := b.failure(OpAcquireNextFrame); err != nil {
		return nil, dxgi.FrameInfo{}, err
	}
	if d.held {
		return nil, dxgi.FrameInfo{}, dxgi.Status(dxgi.StatusInvalidCall)
	}
	st := d.state
	if !b.Continuous {
		if st.pending == 0 {
			return nil, dxgi.FrameInfo{}, dxgi.Status(dxgi.StatusWaitTimeout)
		}
		st.pending--
	}
	st.seq++

	pitch := int(st.spec.pitch())
	d.frame = make([]byte, pitch*int(st.spec.Height))
	if b.Fill != nil {
		b.Fill(st.seq, pitch, d.frame)
	} else {
		for i := range d.frame {
			d.frame[i] = byte(st.seq)
		}
	}
	d.held = true

	res := &resource{
		object: b.newObject("resource"),
		spec:   st.spec,
		buf:    d.frame,
	}
	info := dxgi.FrameInfo{LastPresentTime: int64(st.seq), AccumulatedFrames: 1}
	return res, info, nil
}

func (d *duplication) MapDesktopSurface() (dxgi.MappedRect, error) {
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("duplication.MapDesktopSurface")
	if err := b.failure(OpMapDesktopSurface); err != nil {
		return dxgi.MappedRect{}, err
	}
	if !d.fastlane {
		return dxgi.MappedRect{}, dxgi.Status(dxgi.StatusUnsupported)
	}
	if !d.held || d.mapped {
		return dxgi.MappedRect{}, dxgi.Status(dxgi.StatusInvalidCall)
	}
	d.mapped = true
	return mapped(d.frame, d.state.spec.pitch()), nil
}

func (d *duplication) UnMapDesktopSurface() error {
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("duplication.UnMapDesktopSurface")
	if !d.mapped {
		return dxgi.Status(dxgi.StatusInvalidCall)
	}
	d.mapped = false
	return nil
}

func (d *duplication) ReleaseFrame() error {
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("duplication.ReleaseFrame")
	// The desktop surface must be unmapped before its frame goes back.
	if !d.held || d.mapped {
		return dxgi.Status(dxgi.StatusInvalidCall)
	}
	d.held = false
	return nil
}

type resource struct {
	object
	spec OutputSpec
	buf  []byte
}

func (r *resource) Texture2D() (dxgi.Texture2D, error) {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpTexture2D); err != nil {
		return nil, err
	}
	return &texture{
		object: b.newObject("texture"),
		desc: dxgi.Texture2DDesc{
			Width:       uint32(r.spec.Width),
			Height:      uint32(r.spec.Height),
			MipLevels:   1,
			ArraySize:   1,
			Format:      FormatB8G8R8A8,
			SampleCount: 1,
			BindFlags:   0x20,  // D3D11_BIND_RENDER_TARGET
			MiscFlags:   0x800, // D3D11_RESOURCE_MISC_SHARED_KEYEDMUTEX
		},
		buf:   r.buf,
		pitch: r.spec.pitch(),
	}, nil
}

type device struct{ object }

func (d *device) CreateTexture2D(desc *dxgi.Texture2DDesc) (dxgi.Texture2D, error) {
	b := d.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpCreateTexture2D); err != nil {
		return nil, err
	}
	b.staging = *desc
	return &texture{object: b.newObject("staging"), desc: *desc}, nil
}

type deviceContext struct{ object }

func (c *deviceContext) CopyResource(dst, src dxgi.Texture2D) {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("context.CopyResource")
	d, ok1 := dst.(*texture)
	s, ok2 := src.(*texture)
	if !ok1 || !ok2 {
		return
	}
	d.buf = append([]byte(nil), s.buf...)
	d.pitch = s.pitch
}

type texture struct {
	object
	desc  dxgi.Texture2DDesc
	buf   []byte
	pitch int32
}

func (t *texture) Desc() dxgi.Texture2DDesc {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	return t.desc
}

func (t *texture) SetEvictionPriority(priority uint32) {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	t.b.priority = priority
}

func (t *texture) Surface() (dxgi.Surface, error) {
	b := t.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failure(OpSurface); err != nil {
		return nil, err
	}
	return &surface{object: b.newObject("surface"), tex: t}, nil
}

type surface struct {
	object
	tex    *texture
	mapped bool
}

func (s *surface) Map(flags uint32) (dxgi.MappedRect, error) {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("surface.Map")
	if err := b.failure(OpMap); err != nil {
		return dxgi.MappedRect{}, err
	}
	if flags&dxgi.MapRead == 0 || s.mapped || s.tex.buf == nil {
		return dxgi.MappedRect{}, dxgi.Status(dxgi.StatusInvalidCall)
	}
	s.mapped = true
	return mapped(s.tex.buf, s.tex.pitch), nil
}

func (s *surface) Unmap() error {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("surface.Unmap")
	if !s.mapped {
		return dxgi.Status(dxgi.StatusInvalidCall)
	}
	s.mapped = false
	return nil
}

func mapped(buf []byte, pitch int32) dxgi.MappedRect {
	rect := dxgi.MappedRect{Pitch: pitch}
	if len(buf) > 0 {
		rect.Bits = &buf[0]
	}
	return rect
}
