package chunker

// SampleBuffer is the growable arena backing one open utterance. It starts at
// a fixed capacity and doubles whenever an incoming frame would overflow it —
// samples are never truncated or dropped. Growth is managed explicitly rather
// than relying on append so the doubling policy is observable in tests.
//
// SampleBuffer is not safe for concurrent use; the owning Chunker is the only
// writer.
type SampleBuffer struct {
	data    []int16
	n       int
	initCap int
}

// defaultBufferCapacity pre-sizes a buffer for one second of 16 kHz mono
// audio, which covers most short utterances without growing.
const defaultBufferCapacity = 16000

// NewSampleBuffer creates a buffer with the given initial capacity in
// samples. Non-positive capacities select the default.
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &SampleBuffer{data: make([]int16, capacity), initCap: capacity}
}

// Append copies samples into the buffer, doubling the backing array as many
// times as needed to fit.
func (b *SampleBuffer) Append(samples []int16) {
	need := b.n + len(samples)
	if need > len(b.data) {
		newCap := len(b.data)
		if newCap == 0 {
			newCap = defaultBufferCapacity
		}
		for newCap < need {
			newCap *= 2
		}
		grown := make([]int16, newCap)
		copy(grown, b.data[:b.n])
		b.data = grown
	}
	copy(b.data[b.n:], samples)
	b.n += len(samples)
}

// Len returns the number of samples held.
func (b *SampleBuffer) Len() int { return b.n }

// Cap returns the current backing capacity in samples.
func (b *SampleBuffer) Cap() int { return len(b.data) }

// Take returns the accumulated samples and resets the buffer to its initial
// state with a fresh backing array, so the returned slice is exclusively
// owned by the caller.
func (b *SampleBuffer) Take() []int16 {
	out := b.data[:b.n:b.n]
	b.data = make([]int16, b.initCap)
	b.n = 0
	return out
}

// Reset discards accumulated samples without reallocating.
func (b *SampleBuffer) Reset() { b.n = 0 }
