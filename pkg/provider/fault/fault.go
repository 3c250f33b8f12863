// Package fault defines the error taxonomy shared by all provider clients.
//
// Every transcription, translation, and synthesis client wraps its failures in
// an [*Error] carrying a [Kind]. The retry controller keys its decisions off
// the kind alone: [Kind.Transient] failures are retried with backoff,
// permanent ones surface immediately, and [Cancelled] is never treated as a
// failure at all.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a provider failure.
type Kind int

const (
	// Unknown covers failures that could not be classified. Treated as permanent.
	Unknown Kind = iota

	// Unauthorized: invalid or missing credentials (HTTP 401/403). Permanent.
	Unauthorized

	// RateLimited: the provider rejected the call due to rate limits (HTTP 429). Transient.
	RateLimited

	// ServerError: the provider failed internally (HTTP 5xx). Transient.
	ServerError

	// Network: the provider could not be reached. Transient.
	Network

	// Timeout: the call exceeded its deadline. Transient.
	Timeout

	// InvalidInput: the request was malformed or rejected by content policy
	// (HTTP 400/422). Permanent.
	InvalidInput

	// VoiceUnavailable: the requested synthesis voice does not exist.
	// Permanent for the requested voice, but recoverable by retrying with a
	// default voice.
	VoiceUnavailable

	// Cancelled: the call was cancelled cooperatively. Not a failure.
	Cancelled
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case InvalidInput:
		return "invalid_input"
	case VoiceUnavailable:
		return "voice_unavailable"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Transient reports whether a failure of this kind is worth retrying.
func (k Kind) Transient() bool {
	switch k {
	case RateLimited, ServerError, Network, Timeout:
		return true
	}
	return false
}

// Error is a classified provider failure.
type Error struct {
	// Kind classifies the failure for the retry controller.
	Kind Kind

	// Op names the failing operation in "package: operation" form.
	Op string

	// Err is the underlying cause. May be nil.
	Err error
}

// New wraps err as an [*Error] of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the [Kind] from err. Context cancellation and deadline
// errors are recognised even when no [*Error] is present in the chain;
// anything else unclassified reports [Unknown].
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return Timeout
		}
		return Network
	}
	return Unknown
}

// Transient reports whether err should be retried.
func Transient(err error) bool {
	return KindOf(err).Transient()
}

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == Cancelled
}

// FromStatus classifies an HTTP response status into an [*Error]. Statuses
// below 400 return nil.
func FromStatus(op string, status int, err error) *Error {
	switch {
	case status < http.StatusBadRequest:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(Unauthorized, op, err)
	case status == http.StatusTooManyRequests:
		return New(RateLimited, op, err)
	case status >= http.StatusInternalServerError:
		return New(ServerError, op, err)
	case status == http.StatusNotFound:
		return New(VoiceUnavailable, op, err)
	default:
		return New(InvalidInput, op, err)
	}
}
