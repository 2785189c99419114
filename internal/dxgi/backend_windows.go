//go:build windows

package dxgi

import (
	"errors"
	"syscall"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	modDXGI  = windows.NewLazySystemDLL("dxgi.dll")
	modD3D11 = windows.NewLazySystemDLL("d3d11.dll")

	procCreateDXGIFactory1 = modDXGI.NewProc("CreateDXGIFactory1")
	procD3D11CreateDevice  = modD3D11.NewProc("D3D11CreateDevice")
)

const (
	d3dDriverTypeUnknown = 0
	d3d11SDKVersion      = 7
)

// DefaultBackend talks to dxgi.dll and d3d11.dll.
var DefaultBackend Backend = comBackend{}

type comBackend struct{}

func (comBackend) NewFactory() (Factory, error) {
	if err := procCreateDXGIFactory1.Find(); err != nil {
		return nil, &Error{Op: "CreateDXGIFactory1", Kind: ConnectionRefused, Err: err}
	}
	var factory *ole.IUnknown
	r, _, _ := procCreateDXGIFactory1.Call(
		uintptr(unsafe.Pointer(iidIDXGIFactory1)),
		uintptr(unsafe.Pointer(&factory)),
	)
	if err := hresult(r); err != nil {
		return nil, err
	}
	return &comFactory{obj: factory}, nil
}

func (comBackend) CreateDevice(adapter Adapter) (Device, Context, error) {
	a, ok := adapter.(*comAdapter)
	if !ok {
		return nil, nil, errors.New("adapter does not belong to the COM backend")
	}
	if err := procD3D11CreateDevice.Find(); err != nil {
		return nil, nil, err
	}

	var device, context *ole.IUnknown
	var level uint32
	r, _, _ := procD3D11CreateDevice.Call(
		uintptr(unsafe.Pointer(a.obj)),
		d3dDriverTypeUnknown,
		0, // No software rasterizer.
		0, // No device flags.
		0, // Feature levels.
		0, // Feature levels' length.
		d3d11SDKVersion,
		uintptr(unsafe.Pointer(&device)),
		uintptr(unsafe.Pointer(&level)),
		uintptr(unsafe.Pointer(&context)),
	)
	if err := hresult(r); err != nil {
		release(context)
		release(device)
		return nil, nil, err
	}
	return &comDevice{obj: device}, &comContext{obj: context}, nil
}

type comFactory struct{ obj *ole.IUnknown }

func (f *comFactory) EnumAdapters(index uint32) (Adapter, error) {
	var adapter *ole.IUnknown
	r, _, _ := syscall.SyscallN(vtblFn(f.obj, dxgiFactoryEnumAdapters),
		uintptr(unsafe.Pointer(f.obj)),
		uintptr(index),
		uintptr(unsafe.Pointer(&adapter)),
	)
	if err := hresult(r); err != nil {
		return nil, err
	}
	return &comAdapter{obj: adapter}, nil
}

func (f *comFactory) Release() { release(f.obj) }

type comAdapter struct{ obj *ole.IUnknown }

func (a *comAdapter) EnumOutputs(index uint32) (Output, error) {
	var output *ole.IUnknown
	r, _, _ := syscall.SyscallN(vtblFn(a.obj, dxgiAdapterEnumOutputs),
		uintptr(unsafe.Pointer(a.obj)),
		uintptr(index),
		uintptr(unsafe.Pointer(&output)),
	)
	if err := hresult(r); err != nil {
		return nil, err
	}
	return &comOutput{obj: output}, nil
}

func (a *comAdapter) AddRef()  { a.obj.AddRef() }
func (a *comAdapter) Release() { release(a.obj) }

type comOutput struct{ obj *ole.IUnknown }

func (o *comOutput) Desc() (OutputDesc, error) {
	var desc OutputDesc
	r, _, _ := syscall.SyscallN(vtblFn(o.obj, dxgiOutputGetDesc),
		uintptr(unsafe.Pointer(o.obj)),
		uintptr(unsafe.Pointer(&desc)),
	)
	return desc, hresult(r)
}

func (o *comOutput) Output1() (Output1, error) {
	obj, err := queryInterface(o.obj, iidIDXGIOutput1)
	if err != nil {
		return nil, err
	}
	return &comOutput1{obj: obj}, nil
}

func (o *comOutput) Release() { release(o.obj) }

type comOutput1 struct{ obj *ole.IUnknown }

func (o *comOutput1) DuplicateOutput(device Device) (Duplication, error) {
	d, ok := device.(*comDevice)
	if !ok {
		return nil, Status(StatusInvalidCall)
	}
	var dup *ole.IUnknown
	r, _, _ := syscall.SyscallN(vtblFn(o.obj, dxgiOutput1DuplicateOut),
		uintptr(unsafe.Pointer(o.obj)),
		uintptr(unsafe.Pointer(d.obj)),
		uintptr(unsafe.Pointer(&dup)),
	)
	if err := hresult(r); err != nil {
		return nil, err
	}
	return &comDuplication{obj: dup}, nil
}

func (o *comOutput1) Release() { release(o.obj) }

type comDuplication struct{ obj *ole.IUnknown }

func (d *comDuplication) Desc() DuplDesc {
	var desc DuplDesc
	syscall.SyscallN(vtblFn(d.obj, dxgiDuplGetDesc),
		uintptr(unsafe.Pointer(d.obj)),
		uintptr(unsafe.Pointer(&desc)),
	)
	return desc
}

func (d *comDuplication) AcquireNextFrame(timeoutMs uint32) (Resource, FrameInfo, error) {
	var info FrameInfo
	var res *ole.IUnknown
	r, _, _ := syscall.SyscallN(vtblFn(d.obj, dxgiDuplAcquireNextFrame),
		uintptr(unsafe.Pointer(d.obj)),
		uintptr(timeoutMs),
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(&res)),
	)
	if err := hresult(r); err != nil {
		return nil, info, err
	}
	return &comResource{obj: res}, info, nil
}

func (d *comDuplication) MapDesktopSurface() (MappedRect, error) {
	var rect MappedRect
	r, _, _ := syscall.SyscallN(vtblFn(d.obj, dxgiDuplMapDesktopSurface),
		uintptr(unsafe.Pointer(d.obj)),
		uintptr(unsafe.Pointer(&rect)),
	)
	return rect, hresult(r)
}

func (d *comDuplication) UnMapDesktopSurface() error {
	r, _, _ := syscall.SyscallN(vtblFn(d.obj, dxgiDuplUnMapDesktopSurface), uintptr(unsafe.Pointer(d.obj)))
	return hresult(r)
}

func (d *comDuplication) ReleaseFrame() error {
	r, _, _ := syscall.SyscallN(vtblFn(d.obj, dxgiDuplReleaseFrame), uintptr(unsafe.Pointer(d.obj)))
	return hresult(r)
}

func (d *comDuplication) Release() { release(d.obj) }

type comResource struct{ obj *ole.IUnknown }

func (r *comResource) Texture2D() (Texture2D, error) {
	obj, err := queryInterface(r.obj, iidID3D11Texture2D)
	if err != nil {
		return nil, err
	}
	return &comTexture2D{obj: obj}, nil
}

func (r *comResource) Release() { release(r.obj) }

type comDevice struct{ obj *ole.IUnknown }

func (d *comDevice) CreateTexture2D(desc *Texture2DDesc) (Texture2D, error) {
	var tex *ole.IUnknown
	r, _, _ := syscall.SyscallN(vtblFn(d.obj, d3d11DeviceCreateTexture2D),
		uintptr(unsafe.Pointer(d.obj)),
		uintptr(unsafe.Pointer(desc)),
		0, // pInitialData
		uintptr(unsafe.Pointer(&tex)),
	)
	if err := hresult(r); err != nil {
		return nil, err
	}
	return &comTexture2D{obj: tex}, nil
}

func (d *comDevice) Release() { release(d.obj) }

type comContext struct{ obj *ole.IUnknown }

// CopyResource is void: failures surface on the following Map.
func (c *comContext) CopyResource(dst, src Texture2D) {
	d, ok1 := dst.(*comTexture2D)
	s, ok2 := src.(*comTexture2D)
	if !ok1 || !ok2 {
		return
	}
	syscall.SyscallN(vtblFn(c.obj, d3d11CtxCopyResource),
		uintptr(unsafe.Pointer(c.obj)),
		uintptr(unsafe.Pointer(d.obj)),
		uintptr(unsafe.Pointer(s.obj)),
	)
}

func (c *comContext) Release() { release(c.obj) }

type comTexture2D struct{ obj *ole.IUnknown }

func (t *comTexture2D) Desc() Texture2DDesc {
	var desc Texture2DDesc
	syscall.SyscallN(vtblFn(t.obj, d3d11Texture2DGetDesc),
		uintptr(unsafe.Pointer(t.obj)),
		uintptr(unsafe.Pointer(&desc)),
	)
	return desc
}

func (t *comTexture2D) SetEvictionPriority(priority uint32) {
	syscall.SyscallN(vtblFn(t.obj, d3d11ResSetEvictionPriority),
		uintptr(unsafe.Pointer(t.obj)),
		uintptr(priority),
	)
}

func (t *comTexture2D) Surface() (Surface, error) {
	obj, err := queryInterface(t.obj, iidIDXGISurface)
	if err != nil {
		return nil, err
	}
	return &comSurface{obj: obj}, nil
}

func (t *comTexture2D) Release() { release(t.obj) }

type comSurface struct{ obj *ole.IUnknown }

func (s *comSurface) Map(flags uint32) (MappedRect, error) {
	var rect MappedRect
	r, _, _ := syscall.SyscallN(vtblFn(s.obj, dxgiSurfaceMap),
		uintptr(unsafe.Pointer(s.obj)),
		uintptr(unsafe.Pointer(&rect)),
		uintptr(flags),
	)
	return rect, hresult(r)
}

func (s *comSurface) Unmap() error {
	r, _, _ := syscall.SyscallN(vtblFn(s.obj, dxgiSurfaceUnmap), uintptr(unsafe.Pointer(s.obj)))
	return hresult(r)
}

func (s *comSurface) Release() { release(s.obj) }
