// Package wire defines the messages exchanged with the animation service and
// their binary encoding.
//
// Upload messages (client to service) are AudioStreamHeader, AudioChunk and
// EndOfAudio. Download messages (service to client) are AnimationHeader,
// AnimationFrame, Event and Status. Every message is encoded as a protobuf
// wire-format envelope holding exactly one length-delimited field whose field
// number is the message Kind.
package wire

import "fmt"

// Kind identifies a message type. The value doubles as the envelope field number.
type Kind uint8

const (
	KindAudioStreamHeader Kind = iota + 1
	KindAudioChunk
	KindEndOfAudio
	KindAnimationHeader
	KindAnimationFrame
	KindEvent
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindAudioStreamHeader:
		return "audio_stream_header"
	case KindAudioChunk:
		return "audio_chunk"
	case KindEndOfAudio:
		return "end_of_audio"
	case KindAnimationHeader:
		return "animation_header"
	case KindAnimationFrame:
		return "animation_frame"
	case KindEvent:
		return "event"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is implemented by every wire message type.
type Message interface {
	Kind() Kind
}

// AudioFormat is the sample encoding tag of an AudioHeader.
type AudioFormat uint32

const (
	AudioFormatUnspecified AudioFormat = iota
	AudioFormatPCM
)

// AudioHeader describes the PCM audio carried by a stream.
type AudioHeader struct {
	Format        AudioFormat
	ChannelCount  uint32
	SampleRate    uint32
	BitsPerSample uint32
}

// BytesPerSecond returns the byte rate of the described audio.
func (h AudioHeader) BytesPerSecond() int {
	return int(h.SampleRate) * int(h.ChannelCount) * int(h.BitsPerSample) / 8
}

// FrameSize returns the size in bytes of one sample across all channels.
func (h AudioHeader) FrameSize() int {
	return int(h.ChannelCount) * int(h.BitsPerSample) / 8
}

// EmotionPostProcessing holds the emotion post-processing parameters of a request.
type EmotionPostProcessing struct {
	EmotionContrast          float32
	LiveBlendCoef            float32
	EnablePreferredEmotion   bool
	PreferredEmotionStrength float32
	EmotionStrength          float32
	MaxEmotions              int32
}

// AudioStreamHeader opens an upload. It must be the first message sent.
type AudioStreamHeader struct {
	Audio                 AudioHeader
	FaceParams            map[string]float32
	EmotionPostProcessing EmotionPostProcessing
	BlendShapeMultipliers map[string]float32
	BlendShapeOffsets     map[string]float32
}

func (*AudioStreamHeader) Kind() Kind { return KindAudioStreamHeader }

// EmotionKey is an emotion vector pinned to a position in the audio.
type EmotionKey struct {
	TimeCode float64
	Weights  map[string]float32
}

// AudioChunk carries a contiguous slice of PCM bytes.
type AudioChunk struct {
	Samples []byte
	Emotion *EmotionKey
}

func (*AudioChunk) Kind() Kind { return KindAudioChunk }

// EndOfAudio closes the upload. No chunk may follow it.
type EndOfAudio struct{}

func (*EndOfAudio) Kind() Kind { return KindEndOfAudio }

// AnimationHeader is the first download message. Frames reference
// ChannelNames by position.
type AnimationHeader struct {
	Audio        AudioHeader
	ChannelNames []string
	JointNames   []string
	StartEpoch   float64
}

func (*AnimationHeader) Kind() Kind { return KindAnimationHeader }

// AudioEcho is the slice of input audio the service echoes alongside a frame.
type AudioEcho struct {
	TimeCode float64
	Samples  []byte
}

// AnimationFrame carries one time-coded set of blend-shape weights.
type AnimationFrame struct {
	TimeCode float64
	Weights  []float32
	Emotions map[string]float32
	Audio    *AudioEcho
}

func (*AnimationFrame) Kind() Kind { return KindAnimationFrame }

// EventType enumerates service events.
type EventType uint32

const (
	EventUnspecified EventType = iota
	EventEndOfAudioProcessing
)

func (e EventType) String() string {
	switch e {
	case EventEndOfAudioProcessing:
		return "END_OF_A2F_AUDIO_PROCESSING"
	default:
		return fmt.Sprintf("EVENT(%d)", uint32(e))
	}
}

// Event is an out-of-band notification from the service.
type Event struct {
	Type EventType
}

func (*Event) Kind() Kind { return KindEvent }

// StatusCode is the severity of a Status message.
type StatusCode uint32

const (
	StatusSuccess StatusCode = iota
	StatusInfo
	StatusWarning
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInfo:
		return "INFO"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("STATUS(%d)", uint32(c))
	}
}

// Terminal reports whether the code ends a stream.
func (c StatusCode) Terminal() bool {
	return c == StatusSuccess || c == StatusError
}

// Status reports progress, warnings, or the outcome of a stream.
type Status struct {
	Code    StatusCode
	Message string
}

func (*Status) Kind() Kind { return KindStatus }

// Raw is an undecoded envelope as carried by the transport.
type Raw []byte
