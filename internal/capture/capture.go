// Package capture is the platform-neutral face of the DXGI capture core: a
// display list with a primary shortcut, and a non-blocking capturer whose
// "nothing new yet" answer is always WouldBlock.
package capture

import (
	"image"

	"github.com/breeze-rmm/deskcap/internal/dxgi"
)

// Error kinds callers are expected to branch on. All errors from this
// package match one of the dxgi kinds with errors.Is.
const (
	WouldBlock = dxgi.WouldBlock
	NotFound   = dxgi.NotFound
)

// Display is a capturable monitor.
type Display struct {
	d *dxgi.Display
}

// Primary returns the first display the system enumerates.
func Primary() (*Display, error) {
	return PrimaryFrom(dxgi.DefaultBackend)
}

// PrimaryFrom is Primary over an explicit backend.
func PrimaryFrom(b dxgi.Backend) (*Display, error) {
	ds, err := dxgi.NewDisplaysWith(b)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	d, ok := ds.Next()
	if !ok {
		return nil, &dxgi.Error{Op: "Primary", Kind: NotFound}
	}
	return &Display{d: d}, nil
}

// All returns every display in enumeration order. The caller closes them.
func All() ([]*Display, error) {
	return AllFrom(dxgi.DefaultBackend)
}

// AllFrom is All over an explicit backend.
func AllFrom(b dxgi.Backend) ([]*Display, error) {
	ds, err := dxgi.NewDisplaysWith(b)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	var out []*Display
	for d := range ds.Seq() {
		out = append(out, &Display{d: d})
	}
	return out, nil
}

// CloseAll closes every display in ds.
func CloseAll(ds []*Display) {
	for _, d := range ds {
		d.Close()
	}
}

func (d *Display) Width() int  { return int(d.d.Width()) }
func (d *Display) Height() int { return int(d.d.Height()) }

// Name is the OS device name, e.g. `\\.\DISPLAY1`.
func (d *Display) Name() string { return d.d.DeviceName() }

func (d *Display) Orientation() Orientation {
	return OrientationFromRotation(d.d.Rotation())
}

// Bounds is the display rectangle in desktop coordinates.
func (d *Display) Bounds() image.Rectangle {
	x, y := int(d.d.Left()), int(d.d.Top())
	return image.Rect(x, y, x+d.Width(), y+d.Height())
}

// Close releases the display. Capturers opened on it keep working.
func (d *Display) Close() { d.d.Close() }
