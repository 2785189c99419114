package dxgi

import "unicode/utf16"

// Display is one duplication-capable output. It holds a reference on its
// parent adapter until Close.
type Display struct {
	backend Backend
	adapter Adapter
	output  Output1
	desc    OutputDesc
	closed  bool
}

func (d *Display) Width() int32 {
	return d.desc.Right - d.desc.Left
}

func (d *Display) Height() int32 {
	return d.desc.Bottom - d.desc.Top
}

// Left and Top are the output's origin in desktop coordinates.
func (d *Display) Left() int32 { return d.desc.Left }
func (d *Display) Top() int32  { return d.desc.Top }

func (d *Display) Rotation() Rotation {
	return d.desc.Rotation
}

func (d *Display) AttachedToDesktop() bool {
	return d.desc.AttachedToDesktop != 0
}

// Name returns the raw UTF-16 device name up to the first NUL, or the whole
// buffer when it is not terminated.
func (d *Display) Name() []uint16 {
	s := d.desc.DeviceName[:]
	for i, c := range s {
		if c == 0 {
			return s[:i]
		}
	}
	return s
}

// DeviceName returns Name decoded, e.g. `\\.\DISPLAY1`.
func (d *Display) DeviceName() string {
	return string(utf16.Decode(d.Name()))
}

// Close releases the output and drops the adapter reference. It is safe to
// call more than once.
func (d *Display) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.output.Release()
	d.adapter.Release()
}
