package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned by Decode for buffers that are not a complete,
// well-formed message.
var ErrMalformed = errors.New("malformed message")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Encode serializes m. Map entries are written in key order so the output is
// deterministic.
func Encode(m Message) ([]byte, error) {
	var body []byte
	switch v := m.(type) {
	case *AudioStreamHeader:
		body = appendAudioStreamHeader(nil, v)
	case *AudioChunk:
		body = appendAudioChunk(nil, v)
	case *EndOfAudio:
		body = []byte{}
	case *AnimationHeader:
		body = appendAnimationHeader(nil, v)
	case *AnimationFrame:
		body = appendAnimationFrame(nil, v)
	case *Event:
		body = appendFixed32(nil, 1, uint32(v.Type))
	case *Status:
		if v.Code > StatusError {
			return nil, fmt.Errorf("wire: encode status code %d", v.Code)
		}
		body = appendFixed32(nil, 1, uint32(v.Code))
		body = appendString(body, 2, v.Message)
	case nil:
		return nil, errors.New("wire: encode nil message")
	default:
		return nil, fmt.Errorf("wire: encode unsupported message %T", m)
	}
	out := protowire.AppendTag(make([]byte, 0, len(body)+8), protowire.Number(m.Kind()), protowire.BytesType)
	return protowire.AppendBytes(out, body), nil
}

// Decode parses a single envelope. The input must contain exactly one message
// field and nothing else.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, malformed("empty buffer")
	}
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, malformed("envelope tag: %v", protowire.ParseError(n))
	}
	if typ != protowire.BytesType {
		return nil, malformed("envelope field %d has wire type %d", num, typ)
	}
	body, m := protowire.ConsumeBytes(b[n:])
	if m < 0 {
		return nil, malformed("envelope body: %v", protowire.ParseError(m))
	}
	if rest := len(b) - n - m; rest != 0 {
		return nil, malformed("%d trailing bytes after envelope", rest)
	}

	switch Kind(num) {
	case KindAudioStreamHeader:
		return decodeAudioStreamHeader(body)
	case KindAudioChunk:
		return decodeAudioChunk(body)
	case KindEndOfAudio:
		if err := skipAll(body); err != nil {
			return nil, err
		}
		return &EndOfAudio{}, nil
	case KindAnimationHeader:
		return decodeAnimationHeader(body)
	case KindAnimationFrame:
		return decodeAnimationFrame(body)
	case KindEvent:
		ev := &Event{}
		err := eachField(body, func(f field) (int, error) {
			if f.num == 1 {
				v, n, err := f.fixed32()
				ev.Type = EventType(v)
				return n, err
			}
			return f.skip()
		})
		if err != nil {
			return nil, err
		}
		return ev, nil
	case KindStatus:
		st := &Status{}
		err := eachField(body, func(f field) (int, error) {
			switch f.num {
			case 1:
				v, n, err := f.fixed32()
				st.Code = StatusCode(v)
				return n, err
			case 2:
				return f.string(&st.Message)
			}
			return f.skip()
		})
		if err != nil {
			return nil, err
		}
		if st.Code > StatusError {
			return nil, malformed("status code %d", st.Code)
		}
		return st, nil
	default:
		return nil, malformed("unknown message kind %d", num)
	}
}

// Encoding helpers.

func appendFixed32(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func appendFloat32(b []byte, num protowire.Number, v float32) []byte {
	return appendFixed32(b, num, math.Float32bits(v))
}

func appendFloat64(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMap writes one {1: key, 2: value} entry per key, sorted by key.
func appendMap(b []byte, num protowire.Number, m map[string]float32) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		entry := appendString(nil, 1, k)
		entry = appendFloat32(entry, 2, m[k])
		b = appendBytes(b, num, entry)
	}
	return b
}

func appendAudioHeader(b []byte, h AudioHeader) []byte {
	b = appendFixed32(b, 1, uint32(h.Format))
	b = appendFixed32(b, 2, h.ChannelCount)
	b = appendFixed32(b, 3, h.SampleRate)
	return appendFixed32(b, 4, h.BitsPerSample)
}

func appendAudioStreamHeader(b []byte, h *AudioStreamHeader) []byte {
	b = appendBytes(b, 1, appendAudioHeader(nil, h.Audio))
	b = appendMap(b, 2, h.FaceParams)

	e := h.EmotionPostProcessing
	var ep []byte
	ep = appendFloat32(ep, 1, e.EmotionContrast)
	ep = appendFloat32(ep, 2, e.LiveBlendCoef)
	var enable uint32
	if e.EnablePreferredEmotion {
		enable = 1
	}
	ep = appendFixed32(ep, 3, enable)
	ep = appendFloat32(ep, 4, e.PreferredEmotionStrength)
	ep = appendFloat32(ep, 5, e.EmotionStrength)
	ep = appendFixed32(ep, 6, uint32(e.MaxEmotions))
	b = appendBytes(b, 3, ep)

	b = appendMap(b, 4, h.BlendShapeMultipliers)
	return appendMap(b, 5, h.BlendShapeOffsets)
}

func appendAudioChunk(b []byte, c *AudioChunk) []byte {
	b = appendBytes(b, 1, c.Samples)
	if c.Emotion != nil {
		e := appendFloat64(nil, 1, c.Emotion.TimeCode)
		e = appendMap(e, 2, c.Emotion.Weights)
		b = appendBytes(b, 2, e)
	}
	return b
}

func appendAnimationHeader(b []byte, h *AnimationHeader) []byte {
	b = appendBytes(b, 1, appendAudioHeader(nil, h.Audio))
	for _, name := range h.ChannelNames {
		b = appendString(b, 2, name)
	}
	for _, name := range h.JointNames {
		b = appendString(b, 3, name)
	}
	return appendFloat64(b, 4, h.StartEpoch)
}

func appendAnimationFrame(b []byte, f *AnimationFrame) []byte {
	b = appendFloat64(b, 1, f.TimeCode)
	if len(f.Weights) > 0 {
		packed := make([]byte, 0, 4*len(f.Weights))
		for _, w := range f.Weights {
			packed = protowire.AppendFixed32(packed, math.Float32bits(w))
		}
		b = appendBytes(b, 2, packed)
	}
	b = appendMap(b, 3, f.Emotions)
	if f.Audio != nil {
		a := appendFloat64(nil, 1, f.Audio.TimeCode)
		a = appendBytes(a, 2, f.Audio.Samples)
		b = appendBytes(b, 4, a)
	}
	return b
}

// Decoding helpers.

type field struct {
	num protowire.Number
	typ protowire.Type
	buf []byte
}

func (f field) wrongType(want protowire.Type) error {
	return malformed("field %d has wire type %d, want %d", f.num, f.typ, want)
}

func (f field) fixed32() (uint32, int, error) {
	if f.typ != protowire.Fixed32Type {
		return 0, 0, f.wrongType(protowire.Fixed32Type)
	}
	v, n := protowire.ConsumeFixed32(f.buf)
	if n < 0 {
		return 0, 0, malformed("field %d: %v", f.num, protowire.ParseError(n))
	}
	return v, n, nil
}

func (f field) float32(dst *float32) (int, error) {
	v, n, err := f.fixed32()
	*dst = math.Float32frombits(v)
	return n, err
}

func (f field) float64(dst *float64) (int, error) {
	if f.typ != protowire.Fixed64Type {
		return 0, f.wrongType(protowire.Fixed64Type)
	}
	v, n := protowire.ConsumeFixed64(f.buf)
	if n < 0 {
		return 0, malformed("field %d: %v", f.num, protowire.ParseError(n))
	}
	*dst = math.Float64frombits(v)
	return n, nil
}

// bytes returns a view into the input; callers copy what they keep.
func (f field) bytes() ([]byte, int, error) {
	if f.typ != protowire.BytesType {
		return nil, 0, f.wrongType(protowire.BytesType)
	}
	v, n := protowire.ConsumeBytes(f.buf)
	if n < 0 {
		return nil, 0, malformed("field %d: %v", f.num, protowire.ParseError(n))
	}
	return v, n, nil
}

func (f field) string(dst *string) (int, error) {
	v, n, err := f.bytes()
	if err != nil {
		return 0, err
	}
	*dst = string(v)
	return n, nil
}

func (f field) skip() (int, error) {
	n := protowire.ConsumeFieldValue(f.num, f.typ, f.buf)
	if n < 0 {
		return 0, malformed("field %d: %v", f.num, protowire.ParseError(n))
	}
	return n, nil
}

func eachField(b []byte, fn func(f field) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(field{num: num, typ: typ, buf: b})
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func skipAll(b []byte) error {
	return eachField(b, func(f field) (int, error) { return f.skip() })
}

func decodeMapEntry(f field, dst *map[string]float32) (int, error) {
	entry, n, err := f.bytes()
	if err != nil {
		return 0, err
	}
	var (
		key    string
		value  float32
		hasKey bool
	)
	err = eachField(entry, func(e field) (int, error) {
		switch e.num {
		case 1:
			hasKey = true
			return e.string(&key)
		case 2:
			return e.float32(&value)
		}
		return e.skip()
	})
	if err != nil {
		return 0, err
	}
	if !hasKey {
		return 0, malformed("map entry in field %d has no key", f.num)
	}
	if *dst == nil {
		*dst = make(map[string]float32)
	}
	(*dst)[key] = value
	return n, nil
}

func decodeAudioHeader(f field, dst *AudioHeader) (int, error) {
	body, n, err := f.bytes()
	if err != nil {
		return 0, err
	}
	err = eachField(body, func(h field) (int, error) {
		var target *uint32
		switch h.num {
		case 1:
			v, n, err := h.fixed32()
			dst.Format = AudioFormat(v)
			return n, err
		case 2:
			target = &dst.ChannelCount
		case 3:
			target = &dst.SampleRate
		case 4:
			target = &dst.BitsPerSample
		default:
			return h.skip()
		}
		v, n, err := h.fixed32()
		*target = v
		return n, err
	})
	return n, err
}

func decodeAudioStreamHeader(body []byte) (*AudioStreamHeader, error) {
	h := &AudioStreamHeader{}
	err := eachField(body, func(f field) (int, error) {
		switch f.num {
		case 1:
			return decodeAudioHeader(f, &h.Audio)
		case 2:
			return decodeMapEntry(f, &h.FaceParams)
		case 3:
			return decodeEmotionPostProcessing(f, &h.EmotionPostProcessing)
		case 4:
			return decodeMapEntry(f, &h.BlendShapeMultipliers)
		case 5:
			return decodeMapEntry(f, &h.BlendShapeOffsets)
		}
		return f.skip()
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func decodeEmotionPostProcessing(f field, dst *EmotionPostProcessing) (int, error) {
	body, n, err := f.bytes()
	if err != nil {
		return 0, err
	}
	err = eachField(body, func(e field) (int, error) {
		switch e.num {
		case 1:
			return e.float32(&dst.EmotionContrast)
		case 2:
			return e.float32(&dst.LiveBlendCoef)
		case 3:
			v, n, err := e.fixed32()
			dst.EnablePreferredEmotion = v != 0
			return n, err
		case 4:
			return e.float32(&dst.PreferredEmotionStrength)
		case 5:
			return e.float32(&dst.EmotionStrength)
		case 6:
			v, n, err := e.fixed32()
			dst.MaxEmotions = int32(v)
			return n, err
		}
		return e.skip()
	})
	return n, err
}

func decodeAudioChunk(body []byte) (*AudioChunk, error) {
	c := &AudioChunk{}
	err := eachField(body, func(f field) (int, error) {
		switch f.num {
		case 1:
			v, n, err := f.bytes()
			c.Samples = bytes.Clone(v)
			return n, err
		case 2:
			e, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			key := &EmotionKey{}
			err = eachField(e, func(k field) (int, error) {
				switch k.num {
				case 1:
					return k.float64(&key.TimeCode)
				case 2:
					return decodeMapEntry(k, &key.Weights)
				}
				return k.skip()
			})
			c.Emotion = key
			return n, err
		}
		return f.skip()
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func decodeAnimationHeader(body []byte) (*AnimationHeader, error) {
	h := &AnimationHeader{}
	err := eachField(body, func(f field) (int, error) {
		var s string
		switch f.num {
		case 1:
			return decodeAudioHeader(f, &h.Audio)
		case 2:
			n, err := f.string(&s)
			h.ChannelNames = append(h.ChannelNames, s)
			return n, err
		case 3:
			n, err := f.string(&s)
			h.JointNames = append(h.JointNames, s)
			return n, err
		case 4:
			return f.float64(&h.StartEpoch)
		}
		return f.skip()
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func decodeAnimationFrame(body []byte) (*AnimationFrame, error) {
	fr := &AnimationFrame{}
	err := eachField(body, func(f field) (int, error) {
		switch f.num {
		case 1:
			return f.float64(&fr.TimeCode)
		case 2:
			packed, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			if len(packed)%4 != 0 {
				return 0, malformed("packed weights length %d is not a multiple of 4", len(packed))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeFixed32(packed)
				if m < 0 {
					return 0, malformed("weights: %v", protowire.ParseError(m))
				}
				fr.Weights = append(fr.Weights, math.Float32frombits(v))
				packed = packed[m:]
			}
			return n, nil
		case 3:
			return decodeMapEntry(f, &fr.Emotions)
		case 4:
			a, n, err := f.bytes()
			if err != nil {
				return 0, err
			}
			echo := &AudioEcho{}
			err = eachField(a, func(e field) (int, error) {
				switch e.num {
				case 1:
					return e.float64(&echo.TimeCode)
				case 2:
					v, n, err := e.bytes()
					echo.Samples = bytes.Clone(v)
					return n, err
				}
				return e.skip()
			})
			fr.Audio = echo
			return n, err
		}
		return f.skip()
	})
	if err != nil {
		return nil, err
	}
	return fr, nil
}
