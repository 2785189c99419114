//go:build windows

package dxgi

import (
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
)

// COM vtable calling for the DXGI/D3D11 objects. Every method below calls
// syscall.SyscallN directly so that pointer arguments converted to uintptr
// stay pinned for the duration of the call.

// COM GUIDs for DXGI/D3D11 interfaces
var (
	iidIDXGIFactory1   = ole.NewGUID("{770aae78-f26f-4dba-a829-253c83d1b387}")
	iidIDXGIOutput1    = ole.NewGUID("{00cddea8-939b-4b83-a340-a685226666cc}")
	iidID3D11Texture2D = ole.NewGUID("{6f15aaf2-d208-4e89-9ab4-489535d34f9c}")
	iidIDXGISurface    = ole.NewGUID("{cafcb56c-6ac3-4889-bf47-9e23bbd260ec}")
)

// Vtable indices, fixed by the COM ABI.
// IUnknown:      0=QueryInterface, 1=AddRef, 2=Release
// IDXGIObject:   3..6
// ID3D11DeviceChild: 3..6
const (
	vtblQueryInterface = 0

	dxgiFactoryEnumAdapters = 7  // IDXGIFactory
	dxgiAdapterEnumOutputs  = 7  // IDXGIAdapter
	dxgiOutputGetDesc       = 7  // IDXGIOutput
	dxgiOutput1DuplicateOut = 22 // IDXGIOutput1

	dxgiDuplGetDesc             = 7  // IDXGIOutputDuplication
	dxgiDuplAcquireNextFrame    = 8  // IDXGIOutputDuplication
	dxgiDuplMapDesktopSurface   = 12 // IDXGIOutputDuplication
	dxgiDuplUnMapDesktopSurface = 13 // IDXGIOutputDuplication
	dxgiDuplReleaseFrame        = 14 // IDXGIOutputDuplication

	dxgiSurfaceMap   = 9  // IDXGISurface
	dxgiSurfaceUnmap = 10 // IDXGISurface

	d3d11DeviceCreateTexture2D   = 5  // ID3D11Device
	d3d11ResSetEvictionPriority  = 8  // ID3D11Resource
	d3d11Texture2DGetDesc        = 10 // ID3D11Texture2D
	d3d11CtxCopyResource         = 47 // ID3D11DeviceContext
	d3d11DeviceContextVtblLength = 115
)

// vtable views an interface's function table. The array is sized for the
// largest interface used here; only valid indices are ever read.
type vtable [d3d11DeviceContextVtblLength]uintptr

func vtblFn(obj *ole.IUnknown, idx int) uintptr {
	return (*(**vtable)(unsafe.Pointer(obj)))[idx]
}

func hresult(r uintptr) error {
	return Status(uint32(r))
}

func queryInterface(obj *ole.IUnknown, iid *ole.GUID) (*ole.IUnknown, error) {
	var out *ole.IUnknown
	r, _, _ := syscall.SyscallN(vtblFn(obj, vtblQueryInterface),
		uintptr(unsafe.Pointer(obj)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)),
	)
	if err := hresult(r); err != nil {
		return nil, err
	}
	return out, nil
}

func release(obj *ole.IUnknown) {
	if obj != nil {
		obj.Release()
	}
}
