//go:build !windows

package dxgi

import "errors"

// DefaultBackend reports Desktop Duplication as unavailable off Windows.
var DefaultBackend Backend = unsupportedBackend{}

type unsupportedBackend struct{}

func (unsupportedBackend) NewFactory() (Factory, error) {
	return nil, &Error{Op: "CreateDXGIFactory1", Kind: ConnectionRefused, Err: errors.ErrUnsupported}
}

func (unsupportedBackend) CreateDevice(Adapter) (Device, Context, error) {
	return nil, nil, &Error{Op: "D3D11CreateDevice", Kind: ConnectionRefused, Err: errors.ErrUnsupported}
}
