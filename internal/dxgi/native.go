package dxgi

// Native object model. Each interface mirrors the subset of a DXGI/D3D11 COM
// interface the capture core calls. Failures are returned as *ole.OleError
// carrying the HRESULT; Translate turns them into portable errors.

// Backend creates the root objects of the native graph.
type Backend interface {
	// NewFactory returns an IDXGIFactory1.
	NewFactory() (Factory, error)
	// CreateDevice calls D3D11CreateDevice bound to adapter with an unknown
	// driver type, no software rasterizer, no flags and default feature levels.
	CreateDevice(adapter Adapter) (Device, Context, error)
}

// Factory is IDXGIFactory1.
type Factory interface {
	EnumAdapters(index uint32) (Adapter, error)
	Release()
}

// Adapter is IDXGIAdapter.
type Adapter interface {
	EnumOutputs(index uint32) (Output, error)
	AddRef()
	Release()
}

// Output is IDXGIOutput.
type Output interface {
	Desc() (OutputDesc, error)
	// Output1 queries for IDXGIOutput1, the version that supports duplication.
	Output1() (Output1, error)
	Release()
}

// Output1 is IDXGIOutput1.
type Output1 interface {
	DuplicateOutput(device Device) (Duplication, error)
	Release()
}

// Duplication is IDXGIOutputDuplication.
type Duplication interface {
	Desc() DuplDesc
	AcquireNextFrame(timeoutMs uint32) (Resource, FrameInfo, error)
	MapDesktopSurface() (MappedRect, error)
	UnMapDesktopSurface() error
	ReleaseFrame() error
	Release()
}

// Resource is the IDXGIResource handed out by AcquireNextFrame.
type Resource interface {
	// Texture2D queries for ID3D11Texture2D.
	Texture2D() (Texture2D, error)
	Release()
}

// Device is ID3D11Device.
type Device interface {
	CreateTexture2D(desc *Texture2DDesc) (Texture2D, error)
	Release()
}

// Context is the immediate ID3D11DeviceContext.
type Context interface {
	CopyResource(dst, src Texture2D)
	Release()
}

// Texture2D is ID3D11Texture2D.
type Texture2D interface {
	Desc() Texture2DDesc
	SetEvictionPriority(priority uint32)
	// Surface queries for IDXGISurface.
	Surface() (Surface, error)
	Release()
}

// Surface is IDXGISurface.
type Surface interface {
	Map(flags uint32) (MappedRect, error)
	Unmap() error
	Release()
}

// OutputDesc matches DXGI_OUTPUT_DESC.
type OutputDesc struct {
	DeviceName        [32]uint16
	Left              int32
	Top               int32
	Right             int32
	Bottom            int32
	AttachedToDesktop int32
	Rotation          Rotation
	Monitor           uintptr
}

// Rational matches DXGI_RATIONAL.
type Rational struct {
	Numerator   uint32
	Denominator uint32
}

// ModeDesc matches DXGI_MODE_DESC.
type ModeDesc struct {
	Width            uint32
	Height           uint32
	RefreshRate      Rational
	Format           uint32
	ScanlineOrdering uint32
	Scaling          uint32
}

// DuplDesc matches DXGI_OUTDUPL_DESC.
type DuplDesc struct {
	ModeDesc                   ModeDesc
	Rotation                   Rotation
	DesktopImageInSystemMemory int32 // BOOL
}

// FrameInfo matches DXGI_OUTDUPL_FRAME_INFO.
type FrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            int32
	ProtectedContentMaskedOut int32
	PointerPositionX          int32
	PointerPositionY          int32
	PointerVisible            int32
	TotalMetadataBufferSize   uint32
	PointerShapeBufferSize    uint32
}

// Texture2DDesc matches D3D11_TEXTURE2D_DESC (44 bytes).
type Texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32 // DXGI_SAMPLE_DESC.Count
	SampleQuality  uint32 // DXGI_SAMPLE_DESC.Quality
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

// MappedRect is a mapped CPU view: DXGI_MAPPED_RECT with the bits pointer
// already typed.
type MappedRect struct {
	Pitch int32
	Bits  *byte
}

// Rotation is DXGI_MODE_ROTATION.
type Rotation uint32

const (
	RotationUnspecified Rotation = 0
	RotationIdentity    Rotation = 1
	RotationRotate90    Rotation = 2
	RotationRotate180   Rotation = 3
	RotationRotate270   Rotation = 4
)

const (
	UsageStaging    = 3          // D3D11_USAGE_STAGING
	CPUAccessRead   = 0x20000    // D3D11_CPU_ACCESS_READ
	MapRead         = 1          // DXGI_MAP_READ
	PriorityMaximum = 0xc8000000 // DXGI_RESOURCE_PRIORITY_MAXIMUM
	maxTimeoutMs    = 0xFFFFFFFE // one below INFINITE
)
