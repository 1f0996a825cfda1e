package syncerr

import (
	"errors"
	"testing"
)

func TestConstructorsSetKind(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want Kind
	}{
		{"NotFound", NotFound("x"), KindNotFound},
		{"Validation", Validation("x"), KindValidation},
		{"Unauthorized", Unauthorized("x"), KindUnauthorized},
		{"CapabilityUnavailable", CapabilityUnavailable("x"), KindCapabilityUnavailable},
		{"RateLimited", RateLimited("x"), KindRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Kind != tc.want {
				t.Fatalf("expected kind %v, got %v", tc.want, tc.err.Kind)
			}
		})
	}
}

func TestUpstreamAttachesCode(t *testing.T) {
	err := Upstream("VIDEO_PRIVATE", "video is private")
	if err.Kind != KindUpstreamFailure {
		t.Fatalf("expected upstream_failure kind, got %v", err.Kind)
	}
	if err.Code != "VIDEO_PRIVATE" {
		t.Fatalf("expected code VIDEO_PRIVATE, got %q", err.Code)
	}
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindUpstreamFailure, cause, "failed")

	kind, ok := KindOf(wrapped)
	if !ok || kind != KindUpstreamFailure {
		t.Fatalf("expected to extract upstream_failure kind, got %v,%v", kind, ok)
	}
	if !errors.Is(wrapped, wrapped) {
		t.Fatal("expected wrapped error to compare equal to itself")
	}
	if errors.Unwrap(wrapped) != cause {
		t.Fatal("expected Unwrap to return the original cause")
	}
}

func TestKindOfPlainErrorReturnsFalse(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatal("expected KindOf to report false for a non-syncerr error")
	}
}

func TestErrorMessageFallsBackToKind(t *testing.T) {
	err := &Error{Kind: KindNotFound}
	if err.Error() != string(KindNotFound) {
		t.Fatalf("expected message to fall back to kind, got %q", err.Error())
	}
}
