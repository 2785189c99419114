package capture

import (
	"context"
	"errors"
	"time"
)

// FrameSource is anything that hands out frames without blocking.
type FrameSource interface {
	Frame() (Frame, error)
}

// Poll asks src for a frame every interval until one arrives, a non-WouldBlock
// error occurs, or ctx is done.
func Poll(ctx context.Context, src FrameSource, interval time.Duration) (Frame, error) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		f, err := src.Frame()
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, WouldBlock) {
			return Frame{}, err
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
