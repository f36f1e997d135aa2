package client

import (
	"context"
	"time"
)

// CapturedChunk is one complete segment emitted by a recorder.
type CapturedChunk struct {
	Data       []byte
	DurationMs int64
}

// CaptureSource abstracts a segmenting device recorder: once started it
// emits a complete chunk every interval until stopped, then closes its
// channel and releases the underlying tracks.
type CaptureSource interface {
	Start(ctx context.Context, interval time.Duration) (<-chan CapturedChunk, error)
	Pause()
	Resume()
	Stop()
}

// ScreenSource decorates a screen-share capture source with an explicit
// end-of-share notification. The platform ends a share when the user
// revokes it; the decorator observes the channel closing before Stop was
// requested and reports it, instead of patching any shared global.
type ScreenSource struct {
	inner   CaptureSource
	onEnded func()
	stopped chan struct{}
}

func NewScreenSource(inner CaptureSource, onEnded func()) *ScreenSource {
	return &ScreenSource{
		inner:   inner,
		onEnded: onEnded,
		stopped: make(chan struct{}),
	}
}

func (s *ScreenSource) Start(ctx context.Context, interval time.Duration) (<-chan CapturedChunk, error) {
	upstream, err := s.inner.Start(ctx, interval)
	if err != nil {
		return nil, err
	}

	out := make(chan CapturedChunk)
	go func() {
		defer close(out)
		for chunk := range upstream {
			out <- chunk
		}
		select {
		case <-s.stopped:
			// normal stop, no notification
		default:
			if s.onEnded != nil {
				s.onEnded()
			}
		}
	}()
	return out, nil
}

func (s *ScreenSource) Pause()  { s.inner.Pause() }
func (s *ScreenSource) Resume() { s.inner.Resume() }

func (s *ScreenSource) Stop() {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
	s.inner.Stop()
}
