package llm

import "fmt"

// FailureKind classifies how a streaming request terminated.
type FailureKind int

const (
	KindSensitiveDataBlocked FailureKind = iota
	KindMissingCredential
	KindTimeout
	KindConnectionFailure
	KindAuthenticationFailure
	KindRateLimited
	KindInvalidRequest
	KindUnknown
	// KindCanceled is local cooperative cancellation. It is never shown to
	// the user; the overlay that asked for the stream is already gone.
	KindCanceled
)

func (k FailureKind) String() string {
	switch k {
	case KindSensitiveDataBlocked:
		return "SensitiveDataBlocked"
	case KindMissingCredential:
		return "MissingCredential"
	case KindTimeout:
		return "Timeout"
	case KindConnectionFailure:
		return "ConnectionFailure"
	case KindAuthenticationFailure:
		return "AuthenticationFailure"
	case KindRateLimited:
		return "RateLimited"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// StreamError is the terminal state of a failed streaming request. The
// human-readable explanation of the failure travels through emitted chunks,
// not through this error; StreamError exists so callers can branch on the
// classification.
type StreamError struct {
	Kind FailureKind
	Err  error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("stream failed (%s)", e.Kind)
}

func (e *StreamError) Unwrap() error { return e.Err }
