package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

// Error classes shared by every adapter. Test with errors.Is.
var (
	ErrConfiguration  = errors.New("backend not configured")
	ErrAuthentication = errors.New("backend authentication failed")
	ErrNotFound       = errors.New("remote object not found")
	ErrTransient      = errors.New("backend unreachable")
	ErrQuotaExceeded  = errors.New("local storage full")
)

// BackendError carries the backend, operation and HTTP status of a failure.
// errors.Is matches both its class and the underlying cause.
type BackendError struct {
	Backend Kind
	Op      string
	Status  int
	Class   error
	Err     error
}

func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Backend, e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	if e.Class != nil {
		return msg + ": " + e.Class.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() []error {
	var errs []error
	if e.Class != nil {
		errs = append(errs, e.Class)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// newError classifies a failure by status code first, then by cause.
func newError(backend Kind, op string, status int, err error) *BackendError {
	return &BackendError{Backend: backend, Op: op, Status: status, Class: classify(status, err), Err: err}
}

func classify(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrTransient
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, kv.ErrQuotaExceeded) {
		return ErrQuotaExceeded
	}
	if errors.Is(err, ErrConfiguration) {
		return ErrConfiguration
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransient
	}
	return nil
}

// IsNotFound reports whether err means the remote object is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
