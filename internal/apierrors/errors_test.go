package apierrors

import (
	"errors"
	"testing"
)

func TestRetryableTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", NewValidation("bad config"), false},
		{"not_found", NewNotFound("asset", int64(1)), false},
		{"authorization", NewAuthorization("owner mismatch"), false},
		{"processing", NewProcessing("stderr output", "ffmpeg failed"), false},
		{"timeout", NewTimeout("exceeded budget"), false},
		{"transient", NewTransient(errors.New("conn reset"), "store unavailable"), true},
		{"cancelled", NewCancelled("context done"), false},
		{"plain error", errors.New("unclassified"), false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("%s: Retryable() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	cause := errors.New("field required")
	err := WrapValidation(cause, "missing subtitle source")
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to unwrap to cause")
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

func TestProcessingErrorCarriesStderr(t *testing.T) {
	err := NewProcessing("moov atom not found", "probe failed for asset %d", 42)
	if err.Stderr != "moov atom not found" {
		t.Errorf("Stderr = %q", err.Stderr)
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := NewNotFound("job", int64(99))
	want := "job 99 not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout dialing redis")
	err := NewTransient(cause, "cache set failed")
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to unwrap to cause")
	}
	if !err.Retryable() {
		t.Error("TransientError must be retryable")
	}
}
