package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies bridge protocol failures. The set is wire-stable: values are
// matched by applications deciding whether to retry, surface or drop.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidURI
	KindBadJSONRPCRequest
	KindSessionInvalid
	KindSessionRequestTimeout
	KindHmacMismatch
	KindDecryptionFailed
	KindSecurity
	KindTooManyMessages
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURI:
		return "invalid uri"
	case KindBadJSONRPCRequest:
		return "bad json-rpc request"
	case KindSessionInvalid:
		return "session invalid"
	case KindSessionRequestTimeout:
		return "session request timeout"
	case KindHmacMismatch:
		return "hmac mismatch"
	case KindDecryptionFailed:
		return "decryption failed"
	case KindSecurity:
		return "security"
	case KindTooManyMessages:
		return "too many messages"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.kind.String() + ": " + e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// NewKind returns a kind-tagged error with the supplied message and the caller stack.
func NewKind(kind Kind, message string) error {
	return &kindError{
		kind: kind,
		err: &fundamental{
			msg:   message,
			stack: callers(),
		},
	}
}

// KindErrorf returns a kind-tagged error with a formatted message and the caller stack.
func KindErrorf(kind Kind, format string, args ...interface{}) error {
	return &kindError{
		kind: kind,
		err: &fundamental{
			msg:   fmt.Sprintf(format, args...),
			stack: callers(),
		},
	}
}

// WithKind tags err with kind, keeping err in the chain.
// Returns nil when err is nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the outermost kind tagged on err, or KindUnknown.
func KindOf(err error) Kind {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// IsKind reports whether any error in err's chain carries kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if ke, ok := err.(*kindError); ok && ke.kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}
