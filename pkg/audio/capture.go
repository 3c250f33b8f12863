package audio

import "context"

// Capture is the abstraction over any continuous audio source (microphone
// device, network stream, or a recorded file replayed in real time).
//
// Lifecycle: Start begins frame delivery, Frames exposes the delivery channel,
// and Stop ends the stream. Implementations must close the Frames channel
// after Stop returns (or when the Start context is cancelled) so that the
// consumer's receive loop terminates; a closed channel is the only
// end-of-stream signal.
//
// Capture implementations must never block on the consumer for longer than
// one frame period — if the consumer falls behind, frames may be dropped by
// the implementation, but delivery order must be preserved for the frames
// that are delivered.
//
// All methods must be safe for concurrent use.
type Capture interface {
	// Start begins producing frames. It returns an error if the underlying
	// source cannot be opened or if the capture was already started.
	// Cancelling ctx stops the capture as if Stop had been called.
	Start(ctx context.Context) error

	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when the capture stops.
	Frames() <-chan AudioFrame

	// Stop ends frame delivery and releases the underlying source. It is safe
	// to call multiple times; subsequent calls return nil.
	Stop() error
}
