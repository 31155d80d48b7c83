package observer

import (
	"context"
	"time"

	"github.com/go-rod/rod"
)

// Frames is a source of paint frames. Next blocks until the next frame.
type Frames interface {
	Next(ctx context.Context) error
}

// TickerFrames approximates frames with a fixed interval. Default 16ms.
type TickerFrames struct {
	Interval time.Duration
}

func (f TickerFrames) Next(ctx context.Context) error {
	d := f.Interval
	if d <= 0 {
		d = 16 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PageFrames waits for requestAnimationFrame in the page itself. Chrome
// does not run animation frames in hidden tabs, so Next blocks for as long
// as the tab stays in the background.
type PageFrames struct {
	Page *rod.Page
}

func (f PageFrames) Next(ctx context.Context) error {
	_, err := f.Page.Context(ctx).Eval(`() => new Promise(r => requestAnimationFrame(() => r()))`)
	return err
}

// scheduler coalesces requests into at most one run per class per frame.
// It is owned by the observer loop goroutine.
type scheduler struct {
	frames  Frames
	pending Class
	armed   bool
	ready   chan error
}

func newScheduler(frames Frames) *scheduler {
	return &scheduler{frames: frames, ready: make(chan error, 1)}
}

// request adds c to the pending set and arms a frame wait if none is
// in flight.
func (s *scheduler) request(ctx context.Context, c Class) {
	s.pending |= c
	if s.armed || s.pending == 0 {
		return
	}
	s.armed = true
	go func() {
		err := s.frames.Next(ctx)
		select {
		case s.ready <- err:
		case <-ctx.Done():
		}
	}()
}

// take returns and clears the pending set once the armed frame arrived.
func (s *scheduler) take() Class {
	due := s.pending
	s.pending = 0
	s.armed = false
	return due
}

// drop forgets pending work without disarming an in-flight frame wait.
func (s *scheduler) drop() {
	s.pending = 0
}
