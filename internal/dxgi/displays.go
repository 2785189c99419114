package dxgi

import "iter"

// Displays walks every output of every adapter, adapter index first. The
// sequence is forward-only: once an adapter index yields nothing, no later
// adapters are probed. Native failures are never surfaced; they only make a
// position look empty.
type Displays struct {
	backend  Backend
	factory  Factory
	adapter  Adapter // current adapter, nil when exhausted
	nadapter uint32  // index of the current adapter
	ndisplay uint32  // index of the next output to fetch
}

// NewDisplays enumerates outputs through DefaultBackend.
func NewDisplays() (*Displays, error) {
	return NewDisplaysWith(DefaultBackend)
}

// NewDisplaysWith enumerates outputs through b.
func NewDisplaysWith(b Backend) (*Displays, error) {
	factory, err := b.NewFactory()
	if err != nil {
		return nil, Translate("CreateDXGIFactory1", err)
	}
	ds := &Displays{backend: b, factory: factory}
	// A failure here leaves adapter nil, which reads as an empty sequence.
	ds.adapter = ds.enumAdapter(0)
	return ds, nil
}

// Next returns the next display. The caller owns it and must Close it.
func (ds *Displays) Next() (*Display, bool) {
	if d, retry := ds.readAndInvalidate(); !retry {
		return d, d != nil
	}

	ds.ndisplay = 0
	ds.nadapter++
	ds.adapter = ds.enumAdapter(ds.nadapter)

	// A fresh adapter with nothing to offer ends the sequence.
	d, _ := ds.readAndInvalidate()
	return d, d != nil
}

// readAndInvalidate fetches the next output of the current adapter. retry is
// true when the adapter ran out and was released, so the caller should move
// on to the next adapter.
func (ds *Displays) readAndInvalidate() (d *Display, retry bool) {
	if ds.adapter == nil {
		return nil, false
	}

	output, err := ds.adapter.EnumOutputs(ds.ndisplay)
	if err != nil || output == nil {
		ds.dropAdapter()
		return nil, true
	}
	ds.ndisplay++

	desc, err := output.Desc()
	if err != nil {
		log.Debug("output descriptor unavailable", "adapter", ds.nadapter, "output", ds.ndisplay-1, "error", err)
	}

	output1, err := output.Output1()
	output.Release()
	if err != nil || output1 == nil {
		ds.dropAdapter()
		return nil, true
	}

	ds.adapter.AddRef()
	return &Display{
		backend: ds.backend,
		adapter: ds.adapter,
		output:  output1,
		desc:    desc,
	}, false
}

func (ds *Displays) enumAdapter(i uint32) Adapter {
	adapter, err := ds.factory.EnumAdapters(i)
	if err != nil {
		return nil
	}
	return adapter
}

func (ds *Displays) dropAdapter() {
	ds.adapter.Release()
	ds.adapter = nil
}

// Seq adapts Next to a range-over-func iterator. Displays the loop body does
// not keep must be closed by it.
func (ds *Displays) Seq() iter.Seq[*Display] {
	return func(yield func(*Display) bool) {
		for {
			d, ok := ds.Next()
			if !ok || !yield(d) {
				return
			}
		}
	}
}

// All drains the remaining sequence.
func (ds *Displays) All() []*Display {
	var out []*Display
	for d := range ds.Seq() {
		out = append(out, d)
	}
	return out
}

// Close releases the factory and the current adapter, if any. Displays
// already handed out stay valid.
func (ds *Displays) Close() {
	if ds.adapter != nil {
		ds.dropAdapter()
	}
	if ds.factory != nil {
		ds.factory.Release()
		ds.factory = nil
	}
}
