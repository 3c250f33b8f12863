// Package mock provides a test double for the audio.Capture interface.
//
// Use Capture to feed a scripted sequence of frames into the pipeline:
//
//	cap := &mock.Capture{FramesCh: make(chan audio.AudioFrame, 64)}
//	_ = cap.Start(ctx)
//	cap.FramesCh <- frame
//	cap.Stop() // closes the frame channel
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/canning1295/RealTimeTranslate/pkg/audio"
)

// Capture is a mock implementation of audio.Capture. Tests own FramesCh and
// send frames on it directly; Stop closes the channel exactly once.
type Capture struct {
	mu sync.Mutex

	// FramesCh is the channel returned by Frames. If nil, Start initialises it
	// with a buffer of 64.
	FramesCh chan audio.AudioFrame

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by the first Stop call.
	StopErr error

	// StartCalls counts Start invocations.
	StartCalls int

	// StopCalls counts Stop invocations.
	StopCalls int

	started bool
	stopped bool
}

// Compile-time assertion that Capture satisfies audio.Capture.
var _ audio.Capture = (*Capture)(nil)

// Start marks the capture as started and returns StartErr.
func (c *Capture) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	if c.StartErr != nil {
		return c.StartErr
	}
	if c.started {
		return errors.New("mock capture: already started")
	}
	if c.FramesCh == nil {
		c.FramesCh = make(chan audio.AudioFrame, 64)
	}
	c.started = true
	return nil
}

// Frames returns FramesCh.
func (c *Capture) Frames() <-chan audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FramesCh == nil {
		c.FramesCh = make(chan audio.AudioFrame, 64)
	}
	return c.FramesCh
}

// Stop closes FramesCh on the first call and returns StopErr.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCalls++
	if c.stopped {
		return nil
	}
	c.stopped = true
	if c.FramesCh != nil {
		close(c.FramesCh)
	}
	return c.StopErr
}
