package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestExecuteReturnsUnderlyingResult(t *testing.T) {
	b := New[string](DefaultConfig("test-dep"))

	got, err := b.Execute(func() (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
}

func TestExecutePropagatesUnderlyingError(t *testing.T) {
	b := New[string](DefaultConfig("test-dep"))
	want := errors.New("upstream failed")

	_, err := b.Execute(func() (string, error) {
		return "", want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestExecuteTripsOpenAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test-dep")
	cfg.FailureThreshold = 2
	b := New[string](cfg)

	failing := func() (string, error) { return "", errors.New("boom") }

	for i := 0; i < int(cfg.FailureThreshold); i++ {
		if _, err := b.Execute(failing); err == nil {
			t.Fatal("expected the failing call to return an error")
		}
	}

	if _, err := b.Execute(func() (string, error) { return "unreachable", nil }); err == nil {
		t.Fatal("expected the breaker to be open and fail fast")
	}
	if b.State() != "open" {
		t.Fatalf("expected state open, got %q", b.State())
	}
}

func TestDefaultConfigAppliesNamedDefaults(t *testing.T) {
	cfg := DefaultConfig("cover-fetch")
	if cfg.Name != "cover-fetch" {
		t.Fatalf("expected name cover-fetch, got %q", cfg.Name)
	}
	if cfg.MaxRequests != 3 || cfg.FailureThreshold != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Timeout != 10*time.Second {
		t.Fatalf("expected 10s timeout default, got %v", cfg.Timeout)
	}
}
