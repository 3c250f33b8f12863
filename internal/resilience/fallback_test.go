package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/fault"
)

// twoProviderGroup builds a group with an "openai" primary and a "whisper"
// fallback, breakers tuned by maxFailures.
func twoProviderGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("openai", "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  maxFailures,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("whisper", "whisper")
	return fg
}

func TestFallbackGroup_HealthyPrimaryHandlesEverything(t *testing.T) {
	fg := twoProviderGroup(3)

	var used string
	if err := fg.Execute(func(p string) error {
		used = p
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "openai" {
		t.Fatalf("served by %q, want the primary", used)
	}
}

func TestFallbackGroup_FailoverOnPrimaryError(t *testing.T) {
	fg := twoProviderGroup(3)

	var used string
	err := fg.Execute(func(p string) error {
		if p == "openai" {
			return errTest
		}
		used = p
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "whisper" {
		t.Fatalf("served by %q, want the fallback", used)
	}
}

func TestFallbackGroup_EveryProviderDown(t *testing.T) {
	fg := twoProviderGroup(3)

	err := fg.Execute(func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsPrimary(t *testing.T) {
	fg := twoProviderGroup(2)

	failPrimary := func(p string) error {
		if p == "openai" {
			return errTest
		}
		return nil
	}
	_ = fg.Execute(failPrimary)
	_ = fg.Execute(failPrimary)

	// Primary breaker is now open; the next call must not reach it.
	var attempts []string
	if err := fg.Execute(func(p string) error {
		attempts = append(attempts, p)
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(attempts) != 1 || attempts[0] != "whisper" {
		t.Fatalf("attempts = %v, want [whisper]", attempts)
	}
}

func TestFallbackGroup_CancellationDoesNotFailOver(t *testing.T) {
	fg := twoProviderGroup(3)

	var attempts []string
	err := fg.Execute(func(p string) error {
		attempts = append(attempts, p)
		return context.Canceled
	})
	if !fault.IsCancelled(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %v; cancellation must stop the chain", attempts)
	}
}

func TestExecuteWithResult(t *testing.T) {
	type transcript struct{ text string }

	fg := NewFallbackGroup("openai", "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("whisper", "whisper")

	t.Run("primary result wins", func(t *testing.T) {
		got, err := ExecuteWithResult(fg, func(p string) (transcript, error) {
			return transcript{text: "hello from " + p}, nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithResult: %v", err)
		}
		if got.text != "hello from openai" {
			t.Errorf("text = %q, want the primary's result", got.text)
		}
	})

	t.Run("fallback result on primary failure", func(t *testing.T) {
		got, err := ExecuteWithResult(fg, func(p string) (transcript, error) {
			if p == "openai" {
				return transcript{}, errTest
			}
			return transcript{text: "hello from " + p}, nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithResult: %v", err)
		}
		if got.text != "hello from whisper" {
			t.Errorf("text = %q, want the fallback's result", got.text)
		}
	})

	t.Run("zero value when all fail", func(t *testing.T) {
		got, err := ExecuteWithResult(fg, func(string) (transcript, error) {
			return transcript{text: "partial"}, errTest
		})
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
		if got.text != "" {
			t.Errorf("result = %+v, want the zero value", got)
		}
	})
}

func TestFallbackGroup_ExhaustionKeepsFaultKind(t *testing.T) {
	fg := twoProviderGroup(5)

	err := fg.Execute(func(string) error {
		return fault.New(fault.RateLimited, "transcribe", errTest)
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if kind := fault.KindOf(err); kind != fault.RateLimited {
		t.Fatalf("kind = %v, want RateLimited to survive the wrap", kind)
	}
	if !fault.Transient(err) {
		t.Fatal("exhausted-chain error must stay transient for the retrier")
	}
}

func TestRetrier_RetriesExhaustedFallbackChain(t *testing.T) {
	fg := twoProviderGroup(10)
	r := NewRetrier("transcribe", RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond})

	attempts := 0
	retries, err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return fg.Execute(func(string) error {
			if attempts < 2 {
				return fault.New(fault.ServerError, "transcribe", errTest)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 2 || retries != 1 {
		t.Fatalf("attempts = %d retries = %d, want the second pass to succeed after one retry", attempts, retries)
	}
}
