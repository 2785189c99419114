package dxgi_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/breeze-rmm/deskcap/internal/dxgi"
	"github.com/breeze-rmm/deskcap/internal/dxgi/dxgitest"
)

// firstDisplay returns the first display of b and registers cleanup for it
// and its enumerator.
func firstDisplay(t *testing.T, b dxgi.Backend) *dxgi.Display {
	t.Helper()
	ds, err := dxgi.NewDisplaysWith(b)
	if err != nil {
		t.Fatalf("NewDisplaysWith: %v", err)
	}
	t.Cleanup(ds.Close)
	d, ok := ds.Next()
	if !ok {
		t.Fatal("no display")
	}
	t.Cleanup(d.Close)
	return d
}

func openCapturer(t *testing.T, b dxgi.Backend) *dxgi.Capturer {
	t.Helper()
	c, err := dxgi.NewCapturer(firstDisplay(t, b))
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	return c
}

// lifecycle keeps the events that matter for teardown ordering.
func lifecycle(events []string) []string {
	var out []string
	for _, e := range events {
		if strings.HasSuffix(e, ".Release") || e == "surface.Unmap" || e == "duplication.UnMapDesktopSurface" {
			out = append(out, e)
		}
	}
	return out
}

func allBytes(buf []byte, v byte) bool {
	for _, b := range buf {
		if b != v {
			return false
		}
	}
	return true
}

func TestCapturerStagingPath(t *testing.T) {
	b := dxgitest.Single(64, 32)
	b.Present(2)

	c := openCapturer(t, b)
	defer c.Close()
	if c.Fastlane() {
		t.Fatal("expected the staging path")
	}
	if c.Height() != 32 || c.Pitch() != 256 {
		t.Fatalf("height=%d pitch=%d after prime, want 32 and 256", c.Height(), c.Pitch())
	}

	b.ResetEvents()
	f, err := c.Frame(0)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if f.Len() != 32*256 || len(f.Bytes()) != f.Len() {
		t.Fatalf("Len=%d len(Bytes)=%d, want %d", f.Len(), len(f.Bytes()), 32*256)
	}
	if !allBytes(f.Bytes(), 2) {
		t.Fatal("frame does not hold the second presented image")
	}

	want := []string{
		"surface.Unmap",
		"surface.Release",
		"duplication.ReleaseFrame",
		"duplication.AcquireNextFrame",
		"context.CopyResource",
		"staging.Release",
		"texture.Release",
		"resource.Release",
		"surface.Map",
	}
	if got := b.Events(); !slices.Equal(got, want) {
		t.Fatalf("events = %v\nwant     %v", got, want)
	}

	desc := b.StagingDesc()
	if desc.Usage != dxgi.UsageStaging || desc.CPUAccessFlags != dxgi.CPUAccessRead {
		t.Fatalf("staging usage=%d cpu=%#x", desc.Usage, desc.CPUAccessFlags)
	}
	if desc.BindFlags != 0 || desc.MiscFlags != 0 {
		t.Fatalf("staging bind=%#x misc=%#x, want 0", desc.BindFlags, desc.MiscFlags)
	}
	if desc.Width != 64 || desc.Height != 32 || desc.Format != dxgitest.FormatB8G8R8A8 || desc.MipLevels != 1 {
		t.Fatalf("staging descriptor not cloned from the frame: %+v", desc)
	}
	if b.EvictionPriority() != dxgi.PriorityMaximum {
		t.Fatalf("eviction priority = %#x", b.EvictionPriority())
	}
	if n := b.LiveOf("staging") + b.LiveOf("texture") + b.LiveOf("resource"); n != 0 {
		t.Fatalf("%d intermediate references outlived the frame", n)
	}
}

func TestCapturerFastlanePath(t *testing.T) {
	b := dxgitest.Single(64, 32)
	b.Fastlane = true
	b.Present(2)

	c := openCapturer(t, b)
	defer c.Close()
	if !c.Fastlane() {
		t.Fatal("expected the fastlane path")
	}

	b.ResetEvents()
	f, err := c.Frame(0)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !allBytes(f.Bytes(), 2) {
		t.Fatal("frame does not hold the second presented image")
	}
	want := []string{
		"duplication.UnMapDesktopSurface",
		"duplication.ReleaseFrame",
		"duplication.AcquireNextFrame",
		"resource.Release",
		"duplication.MapDesktopSurface",
	}
	if got := b.Events(); !slices.Equal(got, want) {
		t.Fatalf("events = %v\nwant     %v", got, want)
	}
	if b.LiveOf("staging") != 0 || b.LiveOf("surface") != 0 {
		t.Fatal("fastlane must not create staging resources")
	}
}

func TestCapturerFirstPollWithNothingNew(t *testing.T) {
	for _, fastlane := range []bool{false, true} {
		b := dxgitest.Single(64, 32)
		b.Fastlane = fastlane

		c := openCapturer(t, b)
		f, err := c.Frame(0)
		if !errors.Is(err, dxgi.TimedOut) {
			t.Fatalf("fastlane=%v: err = %v, want TimedOut", fastlane, err)
		}
		if f.Valid() || f.Bytes() != nil {
			t.Fatalf("fastlane=%v: failed poll returned a usable view", fastlane)
		}
		if c.Pitch() != 0 {
			t.Fatalf("fastlane=%v: pitch = %d after a failed poll", fastlane, c.Pitch())
		}

		b.Present(1)
		if _, err := c.Frame(0); err != nil {
			t.Fatalf("fastlane=%v: Frame after Present: %v", fastlane, err)
		}
		c.Close()
	}
}

func TestCapturerPrimeFailureIsSwallowed(t *testing.T) {
	b := dxgitest.Single(64, 32)
	b.Fail(dxgitest.OpAcquireNextFrame, dxgi.StatusAccessLost)

	c := openCapturer(t, b)
	defer c.Close()

	if _, err := c.Frame(0); !errors.Is(err, dxgi.ConnectionReset) {
		t.Fatalf("err = %v, want ConnectionReset", err)
	}

	b.Fail(dxgitest.OpAcquireNextFrame, dxgi.StatusOK)
	b.Present(1)
	if _, err := c.Frame(0); err != nil {
		t.Fatalf("Frame after recovery: %v", err)
	}
}

func TestCapturerPitchIsStable(t *testing.T) {
	b := dxgitest.New(dxgitest.AdapterSpec{Outputs: []dxgitest.OutputSpec{{
		Name:   `\\.\DISPLAY1`,
		Width:  70,
		Height: 10,
		Pitch:  320,
	}}})
	b.Continuous = true

	for _, fastlane := range []bool{false, true} {
		b.Fastlane = fastlane
		c := openCapturer(t, b)
		for i := 0; i < 3; i++ {
			f, err := c.Frame(0)
			if err != nil {
				t.Fatalf("frame %d: %v", i, err)
			}
			if c.Pitch() != 320 || f.Len() != 10*320 {
				t.Fatalf("frame %d: pitch=%d len=%d, want 320 and 3200", i, c.Pitch(), f.Len())
			}
			if c.Pitch() < 70*4 {
				t.Fatalf("pitch %d is below width*4", c.Pitch())
			}
		}
		c.Close()
	}
}

func TestCapturerFrameViewInvalidation(t *testing.T) {
	b := dxgitest.Single(8, 8)
	b.Continuous = true
	c := openCapturer(t, b)

	first, err := c.Frame(0)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Valid() {
		t.Fatal("fresh view should be valid")
	}
	second, err := c.Frame(0)
	if err != nil {
		t.Fatal(err)
	}
	if first.Valid() || first.Bytes() != nil {
		t.Fatal("previous view should be stale after the next Frame")
	}
	if first.Len() != 8*32 {
		t.Fatalf("stale view Len = %d", first.Len())
	}
	if !second.Valid() {
		t.Fatal("latest view should be valid")
	}

	c.Close()
	if second.Valid() || second.Bytes() != nil {
		t.Fatal("view should be stale after Close")
	}
}

func TestCapturerInfo(t *testing.T) {
	b := dxgitest.Single(8, 8)
	b.Present(2)
	c := openCapturer(t, b)
	defer c.Close()

	if _, err := c.Frame(0); err != nil {
		t.Fatal(err)
	}
	info := c.Info()
	if info.AccumulatedFrames != 1 || info.LastPresentTime != 2 {
		t.Fatalf("info = %+v", info)
	}
}

func TestCapturerTeardown(t *testing.T) {
	tests := []struct {
		name     string
		fastlane bool
		want     []string
	}{
		{
			name: "staging",
			want: []string{
				"surface.Unmap",
				"surface.Release",
				"duplication.Release",
				"device.Release",
				"context.Release",
			},
		},
		{
			name:     "fastlane",
			fastlane: true,
			want: []string{
				"duplication.Release",
				"device.Release",
				"context.Release",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := dxgitest.Single(16, 16)
			b.Fastlane = tt.fastlane
			b.Present(1)

			ds, err := dxgi.NewDisplaysWith(b)
			if err != nil {
				t.Fatal(err)
			}
			d, _ := ds.Next()
			c, err := dxgi.NewCapturer(d)
			if err != nil {
				t.Fatal(err)
			}

			b.ResetEvents()
			if err := c.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if got := lifecycle(b.Events()); !slices.Equal(got, tt.want) {
				t.Fatalf("teardown = %v\nwant       %v", got, tt.want)
			}
			if err := c.Close(); err != nil {
				t.Fatalf("second Close: %v", err)
			}

			d.Close()
			ds.Close()
			if n := b.Live(); n != 0 {
				t.Fatalf("%d references leaked", n)
			}
			if n := b.OverReleased(); n != 0 {
				t.Fatalf("%d releases on dead objects", n)
			}
		})
	}
}

func TestCapturerStagingFailureRollsBack(t *testing.T) {
	ops := []string{
		dxgitest.OpTexture2D,
		dxgitest.OpCreateTexture2D,
		dxgitest.OpSurface,
		dxgitest.OpMap,
	}
	for _, op := range ops {
		t.Run(op, func(t *testing.T) {
			b := dxgitest.Single(16, 16)
			b.Continuous = true
			c := openCapturer(t, b)

			b.Fail(op, dxgi.StatusAccessDenied)
			_, err := c.Frame(0)
			if !errors.Is(err, dxgi.PermissionDenied) {
				t.Fatalf("err = %v, want PermissionDenied", err)
			}
			if !strings.Contains(err.Error(), op) {
				t.Fatalf("err = %q, want it to name %s", err, op)
			}
			for _, kind := range []string{"resource", "texture", "staging", "surface"} {
				if n := b.LiveOf(kind); n != 0 {
					t.Fatalf("%d %s references survived the failure", n, kind)
				}
			}
			if c.Pitch() != 0 {
				t.Fatalf("pitch = %d after a failed frame", c.Pitch())
			}

			b.Fail(op, dxgi.StatusOK)
			f, err := c.Frame(0)
			if err != nil {
				t.Fatalf("Frame after clearing the failure: %v", err)
			}
			if f.Len() != 16*64 {
				t.Fatalf("Len = %d", f.Len())
			}
			c.Close()
		})
	}
}

func TestNewCapturerFailures(t *testing.T) {
	tests := []struct {
		op     string
		status uint32
		want   dxgi.Kind
	}{
		{dxgitest.OpCreateDevice, dxgi.StatusUnsupported, dxgi.Other},
		{dxgitest.OpDuplicateOutput, dxgi.StatusUnsupported, dxgi.ConnectionRefused},
		{dxgitest.OpDuplicateOutput, dxgi.StatusAccessDenied, dxgi.PermissionDenied},
		{dxgitest.OpDuplicateOutput, dxgi.StatusSessionDisconnected, dxgi.ConnectionAborted},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			b := dxgitest.Single(16, 16)
			b.Fail(tt.op, tt.status)
			d := firstDisplay(t, b)

			c, err := dxgi.NewCapturer(d)
			if c != nil || err == nil {
				t.Fatalf("NewCapturer = %v, %v; want failure", c, err)
			}
			if got := dxgi.KindOf(err); got != tt.want {
				t.Fatalf("kind = %v, want %v (%v)", got, tt.want, err)
			}
			if b.LiveOf("device") != 0 || b.LiveOf("context") != 0 || b.LiveOf("duplication") != 0 {
				t.Fatal("partially built session leaked")
			}
		})
	}
}

func TestCapturerSessionsOpenAndCloseRepeatedly(t *testing.T) {
	b := dxgitest.Single(32, 32)
	d := firstDisplay(t, b)

	const n = 8
	for i := 0; i < n; i++ {
		c, err := dxgi.NewCapturer(d)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		c.Close()
	}

	c, err := dxgi.NewCapturer(d)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dxgi.NewCapturer(d); !errors.Is(err, dxgi.Interrupted) {
		t.Fatalf("second live session: err = %v, want Interrupted", err)
	}
	c.Close()
	if b.LiveOf("duplication") != 0 || b.LiveOf("device") != 0 {
		t.Fatal("sessions leaked native objects")
	}
}

func TestCapturerFrameAfterClose(t *testing.T) {
	b := dxgitest.Single(8, 8)
	c := openCapturer(t, b)
	c.Close()

	_, err := c.Frame(0)
	if !errors.Is(err, dxgi.InvalidData) {
		t.Fatalf("err = %v, want InvalidData", err)
	}
	if n := b.OverReleased(); n != 0 {
		t.Fatalf("%d releases on dead objects", n)
	}
}
