package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   error
	}{
		{name: "unauthorized", status: 401, want: ErrAuthentication},
		{name: "forbidden", status: 403, want: ErrAuthentication},
		{name: "not found", status: 404, want: ErrNotFound},
		{name: "server error", status: 502, want: ErrTransient},
		{name: "rate limited", status: 429, want: ErrTransient},
		{name: "timeout", err: fmt.Errorf("wrapped: %w", context.DeadlineExceeded), want: ErrTransient},
		{name: "canceled", err: context.Canceled, want: ErrTransient},
		{name: "quota", err: kv.ErrQuotaExceeded, want: ErrQuotaExceeded},
		{name: "config", err: ErrConfiguration, want: ErrConfiguration},
		{name: "bad request", status: 400, err: errors.New("bad"), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.status, tt.err)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := errors.New("bad credentials")
	err := newError(KindGitHub, "load", 401, cause)

	if !errors.Is(err, ErrAuthentication) {
		t.Error("Expected error to match ErrAuthentication")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected error to match its cause")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("Did not expect ErrNotFound")
	}

	var be *BackendError
	if !errors.As(err, &be) || be.Backend != KindGitHub || be.Status != 401 {
		t.Errorf("Unexpected backend error %+v", be)
	}
	if msg := err.Error(); msg != "github load (HTTP 401): bad credentials" {
		t.Errorf("Unexpected message %q", msg)
	}
}
