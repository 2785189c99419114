package capture

import "github.com/breeze-rmm/deskcap/internal/dxgi"

// Orientation is how a display is rotated relative to its native scan-out.
type Orientation int

const (
	OrientationUnknown Orientation = iota
	OrientationDefault
	OrientationRotate90
	OrientationRotate180
	OrientationRotate270
)

var orientationNames = [...]string{
	OrientationUnknown:   "unknown",
	OrientationDefault:   "default",
	OrientationRotate90:  "rotate90",
	OrientationRotate180: "rotate180",
	OrientationRotate270: "rotate270",
}

func (o Orientation) String() string {
	if o < 0 || int(o) >= len(orientationNames) {
		return orientationNames[OrientationUnknown]
	}
	return orientationNames[o]
}

// OrientationFromRotation maps a native rotation value. Values outside the
// known set, including the unspecified one, are OrientationUnknown.
func OrientationFromRotation(r dxgi.Rotation) Orientation {
	switch r {
	case dxgi.RotationIdentity:
		return OrientationDefault
	case dxgi.RotationRotate90:
		return OrientationRotate90
	case dxgi.RotationRotate180:
		return OrientationRotate180
	case dxgi.RotationRotate270:
		return OrientationRotate270
	default:
		return OrientationUnknown
	}
}

// Rotation is the native rotation value for o.
func (o Orientation) Rotation() dxgi.Rotation {
	switch o {
	case OrientationDefault:
		return dxgi.RotationIdentity
	case OrientationRotate90:
		return dxgi.RotationRotate90
	case OrientationRotate180:
		return dxgi.RotationRotate180
	case OrientationRotate270:
		return dxgi.RotationRotate270
	default:
		return dxgi.RotationUnspecified
	}
}
