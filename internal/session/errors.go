package session

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/RenatoCabral2022/facestream/internal/download"
)

// ErrorKind classifies session failures.
type ErrorKind int

const (
	KindMalformed ErrorKind = iota + 1
	KindProtocol
	KindTransport
	KindTimeout
	KindService
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindService:
		return "service"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrMalformed = errors.New("malformed message")
	ErrProtocol  = errors.New("protocol error")
	ErrTransport = errors.New("transport error")
	ErrTimeout   = errors.New("timeout")
	ErrService   = errors.New("service error")
	ErrCancelled = errors.New("cancelled")

	errIdle = errors.New("no message received within idle timeout")
)

// Error is the error returned by a failed or cancelled request.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindMalformed:
		return ErrMalformed
	case KindProtocol:
		return ErrProtocol
	case KindTransport:
		return ErrTransport
	case KindTimeout:
		return ErrTimeout
	case KindService:
		return ErrService
	case KindCancelled:
		return ErrCancelled
	}
	return nil
}

// KindOf returns the kind of err, or zero when err is not a session error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ServiceMessage returns the verbatim service message carried by err.
func ServiceMessage(err error) (string, bool) {
	var se *download.ServiceError
	if errors.As(err, &se) {
		return se.Message, true
	}
	return "", false
}

// classify maps an error raised anywhere in a session to the taxonomy.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var se *download.ServiceError
	switch {
	case errors.As(err, &se):
		return &Error{Kind: KindService, Err: err}
	case errors.Is(err, download.ErrMalformed):
		return &Error{Kind: KindMalformed, Err: err}
	case errors.Is(err, download.ErrProtocol):
		return &Error{Kind: KindProtocol, Err: err}
	case errors.Is(err, errIdle), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Err: err}
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Canceled:
			return &Error{Kind: KindCancelled, Err: err}
		case codes.DeadlineExceeded:
			return &Error{Kind: KindTimeout, Err: err}
		}
	}
	return &Error{Kind: KindTransport, Err: err}
}
