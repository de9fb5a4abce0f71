package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrAttributionVerification covers every organic re-check failure
	ErrAttributionVerification = errors.New("attribution verification failed")
	// ErrConfigFetch covers every session-config failure
	ErrConfigFetch = errors.New("session config fetch failed")
)

// FailureKind classifies a session-config failure
type FailureKind string

const (
	KindTransport FailureKind = "transport"
	KindStatus    FailureKind = "status"
	KindMalformed FailureKind = "malformed"
)

// FetchError describes why a remote call failed
type FetchError struct {
	Call       string
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s: unexpected status %d", e.Call, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Call, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Call, e.Kind)
	}
}

// Unwrap exposes both the call sentinel and the cause
func (e *FetchError) Unwrap() []error {
	errs := []error{sentinelFor(e.Call)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func sentinelFor(call string) error {
	if call == CallOrganic {
		return ErrAttributionVerification
	}
	return ErrConfigFetch
}

// KindOf returns the failure kind of err, or "" when err is not a FetchError
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
