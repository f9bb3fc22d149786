package despacho

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoCredentials is returned when a pool is built without any tokens.
var ErrNoCredentials = errors.New("despacho: credential pool is empty")

// FailKind classifies why a dispatch failed after the whole pool was
// considered.
type FailKind int

const (
	// FailRateLimited means every credential in the pool was rate limited.
	FailRateLimited FailKind = iota
	// FailRejected means the API refused the content; retrying the same
	// payload will not help.
	FailRejected
	// FailConnectivity means a session could not be established or a
	// transport-level error ended the attempt.
	FailConnectivity
	// FailConfig means the dispatch could not start at all.
	FailConfig
)

func (k FailKind) String() string {
	switch k {
	case FailRateLimited:
		return "rate_limited"
	case FailRejected:
		return "rejected"
	case FailConnectivity:
		return "connectivity"
	default:
		return "config"
	}
}

// DispatchError is the terminal error of a failed dispatch. Wait carries
// the last server-advised backoff for FailRateLimited, zero otherwise.
type DispatchError struct {
	Kind FailKind
	Wait time.Duration
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("despacho: dispatch failed (%s)", e.Kind)
	}
	return fmt.Sprintf("despacho: dispatch failed (%s): %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a dispatch failure caused by
// exhausting the pool on rate limits. Callers use this to decide whether
// requeueing the payload is worthwhile.
func IsRateLimited(err error) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Kind == FailRateLimited
}
