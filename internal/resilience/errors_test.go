package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient_TransientError(t *testing.T) {
	err := NewTransientError(errors.New("too many requests"), 429)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}

	wrapped := fmt.Errorf("fetch apollo: %w", err)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error must not be transient")
	}
}

func TestIsTransient_Syscall(t *testing.T) {
	if !IsTransient(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)) {
		t.Error("expected ECONNREFUSED to be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"read tcp: connection reset by peer", true},
		{"Get https://api: TLS handshake timeout", true},
		{"lookup api.pdl.io: no such host", true},
		{"400 bad request", false},
		{"invalid api key", false},
	}
	for _, tc := range cases {
		if got := IsTransient(errors.New(tc.msg)); got != tc.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(NewTransientError(errors.New("429"), 429)) {
		t.Error("expected 429 to report rate limited")
	}
	if IsRateLimited(NewTransientError(errors.New("503"), 503)) {
		t.Error("503 is transient but not rate limited")
	}
	if IsRateLimited(errors.New("plain")) {
		t.Error("plain error is not rate limited")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be non-transient", code)
		}
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("x"), 503)); got != "transient" {
		t.Errorf("expected transient, got %s", got)
	}
	if got := ClassifyError(errors.New("schema mismatch")); got != "permanent" {
		t.Errorf("expected permanent, got %s", got)
	}
}
