// Package download reconstructs the animation stream received from the
// service into an ordered frame list.
package download

import (
	"errors"
	"fmt"
	"math"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

var (
	// ErrMalformed marks messages that could not be decoded.
	ErrMalformed = wire.ErrMalformed
	// ErrProtocol marks well-formed messages that arrived in an order or
	// shape the stream contract does not allow.
	ErrProtocol = errors.New("protocol violation")
	// ErrUsedAfterResult is returned when the reader is fed after Result.
	ErrUsedAfterResult = errors.New("reader used after result")
)

// ServiceError is an ERROR status reported by the service.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "service error: " + e.Message
}

// Class is the category a received message falls into.
type Class int

const (
	ClassMalformed Class = iota
	ClassHeader
	ClassFrame
	ClassEvent
	ClassStatus
)

func (c Class) String() string {
	switch c {
	case ClassHeader:
		return "header"
	case ClassFrame:
		return "frame"
	case ClassEvent:
		return "event"
	case ClassStatus:
		return "status"
	default:
		return "malformed"
	}
}

// Classify returns the class of a decoded download message. Upload messages
// received from the service are malformed.
func Classify(m wire.Message) Class {
	switch m.(type) {
	case *wire.AnimationHeader:
		return ClassHeader
	case *wire.AnimationFrame:
		return ClassFrame
	case *wire.Event:
		return ClassEvent
	case *wire.Status:
		return ClassStatus
	default:
		return ClassMalformed
	}
}

// Result is the outcome of one download stream.
type Result struct {
	Header   *wire.AnimationHeader
	Frames   []*wire.AnimationFrame
	Status   *wire.Status
	Warnings []string
	// Trailing counts messages received after the terminal status.
	Trailing int
	// Drained reports whether END_OF_A2F_AUDIO_PROCESSING was seen.
	Drained bool
	Err     error
}

// Reader consumes download messages in arrival order. It is not safe for
// concurrent use; the goroutine receiving from the transport owns it.
type Reader struct {
	header   *wire.AnimationHeader
	frames   []*wire.AnimationFrame
	status   *wire.Status
	warnings []string
	trailing int
	drained  bool
	err      error
	closed   bool
	taken    bool
}

// NewReader returns an empty reader awaiting the animation header.
func NewReader() *Reader {
	return &Reader{}
}

// HandleRaw decodes b and handles the resulting message.
func (r *Reader) HandleRaw(b []byte) error {
	if r.taken {
		return ErrUsedAfterResult
	}
	m, err := wire.Decode(b)
	if err != nil {
		if r.terminal() {
			r.trailing++
			return nil
		}
		return r.fail(err)
	}
	return r.Handle(m)
}

// Handle applies one decoded message. A non-nil error means the stream has
// failed; the same error is returned for every later call.
func (r *Reader) Handle(m wire.Message) error {
	if r.taken {
		return ErrUsedAfterResult
	}
	if r.terminal() {
		r.trailing++
		return r.err
	}

	switch v := m.(type) {
	case *wire.AnimationHeader:
		if r.header != nil {
			return r.fail(fmt.Errorf("%w: duplicate animation header", ErrProtocol))
		}
		if len(v.ChannelNames) == 0 {
			return r.fail(fmt.Errorf("%w: animation header declares no channels", ErrProtocol))
		}
		r.header = v
	case *wire.AnimationFrame:
		if r.header == nil {
			return r.fail(fmt.Errorf("%w: frame before animation header", ErrProtocol))
		}
		if len(v.Weights) != len(r.header.ChannelNames) {
			return r.fail(fmt.Errorf("%w: frame has %d weights, header declares %d channels",
				ErrProtocol, len(v.Weights), len(r.header.ChannelNames)))
		}
		if math.IsNaN(v.TimeCode) || math.IsInf(v.TimeCode, 0) {
			return r.fail(fmt.Errorf("%w: frame time code %v", ErrProtocol, v.TimeCode))
		}
		if n := len(r.frames); n > 0 && v.TimeCode < r.frames[n-1].TimeCode {
			return r.fail(fmt.Errorf("%w: frame time code %.6f after %.6f", ErrProtocol, v.TimeCode, r.frames[n-1].TimeCode))
		}
		r.frames = append(r.frames, v)
	case *wire.Event:
		if r.header == nil {
			return r.fail(fmt.Errorf("%w: event %v before animation header", ErrProtocol, v.Type))
		}
		if v.Type == wire.EventEndOfAudioProcessing {
			r.drained = true
		}
	case *wire.Status:
		return r.handleStatus(v)
	default:
		return r.fail(fmt.Errorf("%w: unexpected %s message from service", ErrMalformed, m.Kind()))
	}
	return nil
}

func (r *Reader) handleStatus(s *wire.Status) error {
	switch s.Code {
	case wire.StatusError:
		if r.drained {
			r.warnings = append(r.warnings, s.Code.String()+": "+s.Message)
			return nil
		}
		r.status = s
		return r.fail(&ServiceError{Message: s.Message})
	case wire.StatusSuccess:
		if r.header == nil {
			return r.fail(fmt.Errorf("%w: status %v before animation header", ErrProtocol, s.Code))
		}
		r.status = s
		return nil
	default:
		if r.header == nil {
			return r.fail(fmt.Errorf("%w: status %v before animation header", ErrProtocol, s.Code))
		}
		r.warnings = append(r.warnings, s.Code.String()+": "+s.Message)
		return nil
	}
}

func (r *Reader) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return r.err
}

func (r *Reader) terminal() bool {
	return r.err != nil || r.status != nil
}

// Done reports whether a terminal status or a failure has been recorded.
func (r *Reader) Done() bool {
	return r.terminal()
}

// HasHeader reports whether the animation header has arrived.
func (r *Reader) HasHeader() bool {
	return r.header != nil
}

// FrameCount returns the number of accepted frames.
func (r *Reader) FrameCount() int {
	return len(r.frames)
}

// Err returns the recorded failure, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close records that the transport closed cleanly. A stream that closes
// after the header completes even without a SUCCESS status.
func (r *Reader) Close() error {
	if r.closed || r.taken {
		return r.err
	}
	r.closed = true
	if r.err == nil && r.header == nil {
		r.err = fmt.Errorf("%w: stream closed before animation header", ErrProtocol)
	}
	return r.err
}

// Result hands the accumulated state to the caller. On failure the frame list
// is withheld. The reader must not be used afterwards.
func (r *Reader) Result() Result {
	res := Result{
		Header:   r.header,
		Status:   r.status,
		Warnings: r.warnings,
		Trailing: r.trailing,
		Drained:  r.drained,
		Err:      r.err,
	}
	if r.err == nil {
		res.Frames = r.frames
	}
	r.taken = true
	r.frames = nil
	return res
}
