package etl

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport is a network failure or an unreadable body. Not retried.
	KindTransport
	// KindRateLimited is HTTP 429 after the attempt budget is spent.
	KindRateLimited
	// KindHTTP is any other non-2xx status. Not retried.
	KindHTTP
	// KindSchemaMismatch means the payload key was absent; zero records.
	KindSchemaMismatch
	// KindKeyDerivation means a record had no resolvable upsert key.
	KindKeyDerivation
	// KindWrite is a failed batched write.
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport_error"
	case KindRateLimited:
		return "rate_limited"
	case KindHTTP:
		return "http_error"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindKeyDerivation:
		return "key_derivation"
	case KindWrite:
		return "write_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether a failure of this kind abandons the endpoint.
func (k Kind) Terminal() bool {
	switch k {
	case KindSchemaMismatch, KindKeyDerivation:
		return false
	default:
		return true
	}
}

// Error carries a Kind plus whatever detail the failing step had.
type Error struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Endpoint != "" {
		msg = e.Endpoint + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
		if e.Body != "" {
			msg += ": " + e.Body
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
