// Package params holds the face, emotion and blend-shape parameters sent with
// an animation request.
package params

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/RenatoCabral2022/facestream/internal/wire"
)

// Face holds the face shaping parameters.
type Face struct {
	SkinStrength       float32 `yaml:"skin_strength" json:"skinStrength"`
	UpperFaceStrength  float32 `yaml:"upper_face_strength" json:"upperFaceStrength"`
	LowerFaceStrength  float32 `yaml:"lower_face_strength" json:"lowerFaceStrength"`
	EyelidOpenOffset   float32 `yaml:"eyelid_open_offset" json:"eyelidOpenOffset"`
	BlinkStrength      float32 `yaml:"blink_strength" json:"blinkStrength"`
	LipOpenOffset      float32 `yaml:"lip_open_offset" json:"lipOpenOffset"`
	UpperFaceSmoothing float32 `yaml:"upper_face_smoothing" json:"upperFaceSmoothing"`
	LowerFaceSmoothing float32 `yaml:"lower_face_smoothing" json:"lowerFaceSmoothing"`
	FaceMaskLevel      float32 `yaml:"face_mask_level" json:"faceMaskLevel"`
	FaceMaskSoftness   float32 `yaml:"face_mask_softness" json:"faceMaskSoftness"`
	TongueStrength     float32 `yaml:"tongue_strength" json:"tongueStrength"`
	TongueHeightOffset float32 `yaml:"tongue_height_offset" json:"tongueHeightOffset"`
	TongueDepthOffset  float32 `yaml:"tongue_depth_offset" json:"tongueDepthOffset"`
}

// DefaultFace returns the service's default face parameters.
func DefaultFace() Face {
	return Face{
		SkinStrength:       1,
		UpperFaceStrength:  1,
		LowerFaceStrength:  1,
		BlinkStrength:      1,
		UpperFaceSmoothing: 0.001,
		LowerFaceSmoothing: 0.006,
		FaceMaskLevel:      0.6,
		FaceMaskSoftness:   0.0085,
		TongueStrength:     1.3,
	}
}

// Map returns the parameters keyed by their service names.
func (f Face) Map() map[string]float32 {
	return map[string]float32{
		"skinStrength":       f.SkinStrength,
		"upperFaceStrength":  f.UpperFaceStrength,
		"lowerFaceStrength":  f.LowerFaceStrength,
		"eyelidOpenOffset":   f.EyelidOpenOffset,
		"blinkStrength":      f.BlinkStrength,
		"lipOpenOffset":      f.LipOpenOffset,
		"upperFaceSmoothing": f.UpperFaceSmoothing,
		"lowerFaceSmoothing": f.LowerFaceSmoothing,
		"faceMaskLevel":      f.FaceMaskLevel,
		"faceMaskSoftness":   f.FaceMaskSoftness,
		"tongueStrength":     f.TongueStrength,
		"tongueHeightOffset": f.TongueHeightOffset,
		"tongueDepthOffset":  f.TongueDepthOffset,
	}
}

// Emotion holds the emotion post-processing parameters.
type Emotion struct {
	EmotionContrast          float32 `yaml:"emotion_contrast" json:"emotion_contrast"`
	LiveBlendCoef            float32 `yaml:"live_blend_coef" json:"live_blend_coef"`
	EnablePreferredEmotion   bool    `yaml:"enable_preferred_emotion" json:"enable_preferred_emotion"`
	PreferredEmotionStrength float32 `yaml:"preferred_emotion_strength" json:"preferred_emotion_strength"`
	EmotionStrength          float32 `yaml:"emotion_strength" json:"emotion_strength"`
	MaxEmotions              int32   `yaml:"max_emotions" json:"max_emotions"`
}

// DefaultEmotion returns the service's default post-processing parameters.
func DefaultEmotion() Emotion {
	return Emotion{
		EmotionContrast:          1,
		LiveBlendCoef:            0.7,
		EnablePreferredEmotion:   true,
		PreferredEmotionStrength: 1,
		EmotionStrength:          0.6,
		MaxEmotions:              6,
	}
}

// Map returns the parameters keyed by their service names. Booleans and
// integers are widened to float32.
func (e Emotion) Map() map[string]float32 {
	var enable float32
	if e.EnablePreferredEmotion {
		enable = 1
	}
	return map[string]float32{
		"emotion_contrast":           e.EmotionContrast,
		"live_blend_coef":            e.LiveBlendCoef,
		"enable_preferred_emotion":   enable,
		"preferred_emotion_strength": e.PreferredEmotionStrength,
		"emotion_strength":           e.EmotionStrength,
		"max_emotions":               float32(e.MaxEmotions),
	}
}

func (e Emotion) wire() wire.EmotionPostProcessing {
	return wire.EmotionPostProcessing{
		EmotionContrast:          e.EmotionContrast,
		LiveBlendCoef:            e.LiveBlendCoef,
		EnablePreferredEmotion:   e.EnablePreferredEmotion,
		PreferredEmotionStrength: e.PreferredEmotionStrength,
		EmotionStrength:          e.EmotionStrength,
		MaxEmotions:              e.MaxEmotions,
	}
}

// EmotionState is an emotion vector, each value in [0, 1].
type EmotionState struct {
	Amazement   float32 `yaml:"amazement" json:"amazement"`
	Anger       float32 `yaml:"anger" json:"anger"`
	Cheekiness  float32 `yaml:"cheekiness" json:"cheekiness"`
	Disgust     float32 `yaml:"disgust" json:"disgust"`
	Fear        float32 `yaml:"fear" json:"fear"`
	Grief       float32 `yaml:"grief" json:"grief"`
	Joy         float32 `yaml:"joy" json:"joy"`
	OutOfBreath float32 `yaml:"out_of_breath" json:"out_of_breath"`
	Pain        float32 `yaml:"pain" json:"pain"`
	Sadness     float32 `yaml:"sadness" json:"sadness"`
}

// Map returns the emotion vector keyed by the names the service accepts on
// upload.
func (s EmotionState) Map() map[string]float32 {
	return map[string]float32{
		"amazement":     s.Amazement,
		"anger":         s.Anger,
		"cheekiness":    s.Cheekiness,
		"disgust":       s.Disgust,
		"fear":          s.Fear,
		"grief":         s.Grief,
		"joy":           s.Joy,
		"out_of_breath": s.OutOfBreath,
		"pain":          s.Pain,
		"sadness":       s.Sadness,
	}
}

// Set bundles every parameter of one request.
type Set struct {
	Face    Face    `yaml:"face" json:"face"`
	Emotion Emotion `yaml:"emotion" json:"emotion"`
	// Preferred is attached to every audio chunk when non-nil.
	Preferred   *EmotionState `yaml:"preferred_emotion,omitempty" json:"preferredEmotion,omitempty"`
	Multipliers Weights       `yaml:"blendshape_multipliers,omitempty" json:"blendshapeMultipliers,omitempty"`
	Offsets     Weights       `yaml:"blendshape_offsets,omitempty" json:"blendshapeOffsets,omitempty"`
}

// Default returns the default parameter set.
func Default() Set {
	return Set{Face: DefaultFace(), Emotion: DefaultEmotion()}
}

// PreferredEmotion returns the per-chunk emotion vector, or nil.
func (s Set) PreferredEmotion() map[string]float32 {
	if s.Preferred == nil {
		return nil
	}
	return s.Preferred.Map()
}

// StreamHeader builds the upload header for audio.
func (s Set) StreamHeader(audio wire.AudioHeader) wire.AudioStreamHeader {
	return wire.AudioStreamHeader{
		Audio:                 audio,
		FaceParams:            s.Face.Map(),
		EmotionPostProcessing: s.Emotion.wire(),
		BlendShapeMultipliers: s.Multipliers.Map(),
		BlendShapeOffsets:     s.Offsets.Map(),
	}
}

// Fingerprint hashes every value that influences the service output. Equal
// sets hash equally regardless of map or insertion order.
func (s Set) Fingerprint() uint64 {
	d := xxhash.New()
	writeMap(d, "face", s.Face.Map())
	writeMap(d, "emotion", s.Emotion.Map())
	if s.Preferred != nil {
		writeMap(d, "preferred", s.Preferred.Map())
	}
	writeMap(d, "multipliers", s.Multipliers.Map())
	writeMap(d, "offsets", s.Offsets.Map())
	return d.Sum64()
}

func writeMap(d *xxhash.Digest, section string, m map[string]float32) {
	d.WriteString(section)
	d.Write([]byte{0})
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var buf [4]byte
	for _, k := range keys {
		d.WriteString(k)
		d.Write([]byte{0})
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(m[k]))
		d.Write(buf[:])
	}
}
