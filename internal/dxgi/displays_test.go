package dxgi_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/breeze-rmm/deskcap/internal/dxgi"
	"github.com/breeze-rmm/deskcap/internal/dxgi/dxgitest"
)

func output(name string, left, width, height int32) dxgitest.OutputSpec {
	return dxgitest.OutputSpec{
		Name:     name,
		Left:     left,
		Width:    width,
		Height:   height,
		Rotation: dxgi.RotationIdentity,
	}
}

func names(t *testing.T, b dxgi.Backend) []string {
	t.Helper()
	ds, err := dxgi.NewDisplaysWith(b)
	if err != nil {
		t.Fatalf("NewDisplaysWith: %v", err)
	}
	defer ds.Close()

	var out []string
	for d := range ds.Seq() {
		out = append(out, d.DeviceName())
		d.Close()
	}
	return out
}

func TestDisplaysEnumerateAdaptersInOrder(t *testing.T) {
	b := dxgitest.New(
		dxgitest.AdapterSpec{Outputs: []dxgitest.OutputSpec{
			output(`\\.\DISPLAY1`, 0, 1920, 1080),
			output(`\\.\DISPLAY2`, 1920, 1280, 1024),
		}},
		dxgitest.AdapterSpec{Outputs: []dxgitest.OutputSpec{
			output(`\\.\DISPLAY3`, 3200, 800, 600),
		}},
	)

	ds, err := dxgi.NewDisplaysWith(b)
	if err != nil {
		t.Fatalf("NewDisplaysWith: %v", err)
	}
	all := ds.All()
	ds.Close()

	want := []struct {
		name          string
		left          int32
		width, height int32
	}{
		{`\\.\DISPLAY1`, 0, 1920, 1080},
		{`\\.\DISPLAY2`, 1920, 1280, 1024},
		{`\\.\DISPLAY3`, 3200, 800, 600},
	}
	if len(all) != len(want) {
		t.Fatalf("got %d displays, want %d", len(all), len(want))
	}
	for i, d := range all {
		w := want[i]
		if d.DeviceName() != w.name {
			t.Errorf("display %d name = %q, want %q", i, d.DeviceName(), w.name)
		}
		if d.Left() != w.left || d.Top() != 0 {
			t.Errorf("display %d origin = (%d,%d), want (%d,0)", i, d.Left(), d.Top(), w.left)
		}
		if d.Width() != w.width || d.Height() != w.height {
			t.Errorf("display %d size = %dx%d, want %dx%d", i, d.Width(), d.Height(), w.width, w.height)
		}
		if d.Width() <= 0 || d.Height() <= 0 {
			t.Errorf("display %d has non-positive size", i)
		}
		if !d.AttachedToDesktop() {
			t.Errorf("display %d should be attached", i)
		}
		if d.Rotation() != dxgi.RotationIdentity {
			t.Errorf("display %d rotation = %d", i, d.Rotation())
		}
		d.Close()
	}

	if n := b.Live(); n != 0 {
		t.Fatalf("%d references leaked", n)
	}
	if n := b.OverReleased(); n != 0 {
		t.Fatalf("%d releases on dead objects", n)
	}
}

func TestDisplaysOrderIsStable(t *testing.T) {
	b := dxgitest.New(
		dxgitest.AdapterSpec{Outputs: []dxgitest.OutputSpec{
			output("A", 0, 10, 10),
			output("B", 10, 10, 10),
		}},
		dxgitest.AdapterSpec{Outputs: []dxgitest.OutputSpec{
			output("C", 20, 10, 10),
		}},
	)
	first := names(t, b)
	second := names(t, b)
	if !slices.Equal(first, second) {
		t.Fatalf("order changed between runs: %v vs %v", first, second)
	}
	if !slices.Equal(first, []string{"A", "B", "C"}) {
		t.Fatalf("names = %v", first)
	}
}

func TestDisplaysTopologies(t *testing.T) {
	tests := []struct {
		name     string
		adapters []dxgitest.AdapterSpec
		want     []string
	}{
		{
			name: "no adapters",
			want: nil,
		},
		{
			name:     "empty first adapter moves to the second",
			adapters: []dxgitest.AdapterSpec{{}, {Outputs: []dxgitest.OutputSpec{output("B0", 0, 1, 1)}}},
			want:     []string{"B0"},
		},
		{
			name: "an empty adapter after the first ends the sequence",
			adapters: []dxgitest.AdapterSpec{
				{Outputs: []dxgitest.OutputSpec{output("A0", 0, 1, 1)}},
				{},
				{Outputs: []dxgitest.OutputSpec{output("C0", 0, 1, 1)}},
			},
			want: []string{"A0"},
		},
		{
			name: "output without duplication support skips the rest of its adapter",
			adapters: []dxgitest.AdapterSpec{
				{Outputs: []dxgitest.OutputSpec{
					output("A0", 0, 1, 1),
					{Name: "A1", Width: 1, Height: 1, NoOutput1: true},
					output("A2", 0, 1, 1),
				}},
				{Outputs: []dxgitest.OutputSpec{output("B0", 0, 1, 1)}},
			},
			want: []string{"A0", "B0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := dxgitest.New(tt.adapters...)
			got := names(t, b)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("names = %v, want %v", got, tt.want)
			}
			if n := b.Live(); n != 0 {
				t.Fatalf("%d references leaked", n)
			}
		})
	}
}

func TestDisplaysNativeFailuresLookEmpty(t *testing.T) {
	for _, op := range []string{dxgitest.OpEnumAdapters, dxgitest.OpEnumOutputs, dxgitest.OpOutput1} {
		t.Run(op, func(t *testing.T) {
			b := dxgitest.Single(640, 480)
			b.Fail(op, dxgi.StatusFail)
			if got := names(t, b); len(got) != 0 {
				t.Fatalf("names = %v, want none", got)
			}
			if n := b.Live(); n != 0 {
				t.Fatalf("%d references leaked", n)
			}
		})
	}
}

func TestDisplaysDescFailureStillYieldsDisplay(t *testing.T) {
	b := dxgitest.Single(640, 480)
	b.Fail(dxgitest.OpOutputDesc, dxgi.StatusFail)

	ds, err := dxgi.NewDisplaysWith(b)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	d, ok := ds.Next()
	if !ok {
		t.Fatal("expected a display")
	}
	defer d.Close()
	if d.Width() != 0 || d.Height() != 0 || d.DeviceName() != "" {
		t.Fatalf("expected a zero descriptor, got %dx%d %q", d.Width(), d.Height(), d.DeviceName())
	}
}

func TestNewDisplaysFactoryFailure(t *testing.T) {
	b := dxgitest.Single(640, 480)
	b.Fail(dxgitest.OpNewFactory, dxgi.StatusUnsupported)

	_, err := dxgi.NewDisplaysWith(b)
	if !errors.Is(err, dxgi.ConnectionRefused) {
		t.Fatalf("err = %v, want ConnectionRefused", err)
	}
	if !strings.Contains(err.Error(), "CreateDXGIFactory1") {
		t.Fatalf("err = %q, want the failing operation named", err)
	}
}

func TestDisplaysEarlyBreakAndClose(t *testing.T) {
	b := dxgitest.New(dxgitest.AdapterSpec{Outputs: []dxgitest.OutputSpec{
		output("A0", 0, 1, 1),
		output("A1", 1, 1, 1),
	}})
	ds, err := dxgi.NewDisplaysWith(b)
	if err != nil {
		t.Fatal(err)
	}
	var kept *dxgi.Display
	for d := range ds.Seq() {
		kept = d
		break
	}
	ds.Close()

	// The display keeps its adapter alive after the enumerator is gone.
	if b.LiveOf("adapter") != 1 || b.LiveOf("output1") != 1 {
		t.Fatalf("adapter=%d output1=%d, want 1 each", b.LiveOf("adapter"), b.LiveOf("output1"))
	}
	kept.Close()
	kept.Close()
	if n := b.Live(); n != 0 {
		t.Fatalf("%d references leaked", n)
	}
	if n := b.OverReleased(); n != 0 {
		t.Fatalf("double Close released %d extra references", n)
	}
}

func TestDisplayName(t *testing.T) {
	long := strings.Repeat("X", 32)
	tests := []struct {
		name string
		want int
	}{
		{`\\.\DISPLAY1`, 12},
		{long, 32},
		{"", 0},
	}
	for _, tt := range tests {
		b := dxgitest.New(dxgitest.AdapterSpec{Outputs: []dxgitest.OutputSpec{output(tt.name, 0, 1, 1)}})
		ds, err := dxgi.NewDisplaysWith(b)
		if err != nil {
			t.Fatal(err)
		}
		d, ok := ds.Next()
		if !ok {
			t.Fatalf("%q: no display", tt.name)
		}
		if got := len(d.Name()); got != tt.want {
			t.Errorf("%q: len(Name()) = %d, want %d", tt.name, got, tt.want)
		}
		if d.DeviceName() != tt.name {
			t.Errorf("DeviceName() = %q, want %q", d.DeviceName(), tt.name)
		}
		d.Close()
		ds.Close()
	}
}
