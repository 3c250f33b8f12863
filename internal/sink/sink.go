// Package sink provides the ordered, append/update-only log of per-utterance
// results that downstream consumers (UI, persistence) observe.
//
// The sink stores one [Utterance] snapshot per sequence number and fans out
// every published snapshot to subscribers. It performs no reordering of its
// own — the pipeline coordinator is the sole publisher and already serialises
// updates into visibility order — so the event stream any subscriber sees is
// non-decreasing in sequence number by construction.
package sink

import (
	"log/slog"
	"strings"
	"sync"
)

// Stage names a pipeline stage for status reporting.
type Stage string

const (
	StageTranscribe Stage = "transcribing"
	StageTranslate  Stage = "translating"
	StageSynthesize Stage = "synthesizing"
)

// Status is the visible lifecycle state of an utterance. Values move forward
// through pending → transcribing → translating → synthesizing → done, except
// failure, which is terminal from any state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = Status(StageTranscribe)
	StatusTranslating  Status = Status(StageTranslate)
	StatusSynthesizing Status = Status(StageSynthesize)
	StatusDone         Status = "done"
)

// Failed returns the terminal failure status for the given stage,
// e.g. "failed:translating".
func Failed(stage Stage) Status {
	return Status("failed:" + string(stage))
}

// StatusCancelled marks an utterance whose processing was cancelled by an
// external request (session stop under the abort policy).
var StatusCancelled = Status("failed:cancelled")

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || strings.HasPrefix(string(s), "failed:")
}

// rank orders non-terminal statuses for the forward-only invariant.
var rank = map[Status]int{
	StatusPending:      0,
	StatusTranscribing: 1,
	StatusTranslating:  2,
	StatusSynthesizing: 3,
	StatusDone:         4,
}

// Utterance is an immutable snapshot of one utterance's visible state.
type Utterance struct {
	// Seq is the utterance sequence number assigned by the chunker.
	Seq uint64

	// SourceText is the transcription result. Empty until transcription
	// completes, and permanently empty if transcription fails.
	SourceText string

	// Translation is the translated text accumulated so far.
	Translation string

	// TranslationDone is set once the token stream completed naturally.
	TranslationDone bool

	// AudioRef locates the synthesized audio clip. Empty until synthesis
	// completes, and permanently empty if synthesis fails or is superseded.
	AudioRef string

	// Status is the visible lifecycle state.
	Status Status

	// ErrKind carries the fault classification when Status is a failure.
	ErrKind string

	// Retries is the number of retry attempts consumed across stages.
	Retries int
}

// Event is one element of a subscriber's stream.
type Event struct {
	Seq       uint64
	Utterance Utterance
}

// Subscription is a live feed of sink events. The channel first replays a
// snapshot of all current entries, then delivers each published update.
type Subscription struct {
	// C delivers events. Closed when the subscription or the sink is closed.
	C <-chan Event

	ch   chan Event
	once sync.Once
	s    *Sink
}

// Close detaches the subscription and closes its channel.
func (sub *Subscription) Close() {
	sub.s.unsubscribe(sub)
}

// Sink is the append/update-only result store. All methods are safe for
// concurrent use, though in practice the coordinator is the only publisher.
type Sink struct {
	mu      sync.Mutex
	entries map[uint64]Utterance
	order   []uint64
	subs    map[*Subscription]struct{}
	closed  bool
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{
		entries: make(map[uint64]Utterance),
		subs:    make(map[*Subscription]struct{}),
	}
}

// Publish upserts the snapshot for u.Seq and fans it out to subscribers.
// A status that would move backwards from the stored snapshot is rejected
// with a log message rather than corrupting the forward-only invariant;
// failure statuses are accepted from any state.
func (s *Sink) Publish(u Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	prev, exists := s.entries[u.Seq]
	if exists && !u.Status.Terminal() && prev.Status.Terminal() {
		slog.Error("dropping sink update for finalized utterance",
			"seq", u.Seq, "have", prev.Status, "got", u.Status)
		return
	}
	if exists && !u.Status.Terminal() && rank[u.Status] < rank[prev.Status] {
		slog.Error("dropping backwards sink status transition",
			"seq", u.Seq, "have", prev.Status, "got", u.Status)
		return
	}
	if !exists {
		s.order = append(s.order, u.Seq)
	}
	s.entries[u.Seq] = u

	ev := Event{Seq: u.Seq, Utterance: u}
	for sub := range s.subs {
		deliver(sub.ch, ev)
	}
}

// Get returns the stored snapshot for seq.
func (s *Sink) Get(seq uint64) (Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.entries[seq]
	return u, ok
}

// All returns every stored utterance in sequence order. Used by persistence
// consumers at session end.
func (s *Sink) All() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Utterance, 0, len(s.order))
	for _, seq := range s.order {
		out = append(out, s.entries[seq])
	}
	return out
}

// Subscribe registers a new subscriber. Its channel first replays the current
// entries in sequence order, then receives live updates. buffer sizes the
// channel; values below the replay size are raised so the replay never blocks.
//
// A subscriber that stops draining loses its oldest buffered events — the
// sink never blocks the pipeline on a slow consumer. Snapshots are
// cumulative, so skipped intermediate events do not lose information.
func (s *Sink) Subscribe(buffer int) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if buffer < len(s.order)+16 {
		buffer = len(s.order) + 16
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{ch: ch, C: ch, s: s}

	for _, seq := range s.order {
		ch <- Event{Seq: seq, Utterance: s.entries[seq]}
	}
	if s.closed {
		close(ch)
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// unsubscribe detaches sub and closes its channel exactly once.
func (s *Sink) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
	}
	s.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Reset clears all entries for a new session. Existing subscribers are
// closed; consumers re-subscribe after a reset.
func (s *Sink) Reset() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[*Subscription]struct{})
	s.entries = make(map[uint64]Utterance)
	s.order = nil
	s.mu.Unlock()

	for sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Close marks the sink closed and closes all subscriber channels. Stored
// entries remain readable via Get and All.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[*Subscription]struct{})
	s.mu.Unlock()

	for sub := range subs {
		sub.once.Do(func() { close(sub.ch) })
	}
}

// deliver sends ev without ever blocking: when the buffer is full the oldest
// buffered event is discarded to make room.
func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
