package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/RenatoCabral2022/facestream/internal/audio"
	"github.com/RenatoCabral2022/facestream/internal/params"
	"github.com/RenatoCabral2022/facestream/internal/session"
)

var (
	reqPCM      string
	reqRate     int
	reqChannels int
	reqPad      bool
	reqFloat    bool
	reqParams   string
	reqOut      string
)

type requestSummary struct {
	State    string   `json:"state"`
	Frames   int      `json:"frames"`
	Channels int      `json:"channels"`
	Joints   []string `json:"joints"`
	Duration float64  `json:"duration"`
	Warnings []string `json:"warnings,omitempty"`
	Output   string   `json:"output,omitempty"`
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request animation for a raw PCM file",
	Long: `Send one raw signed 16-bit little-endian PCM file to the animation
service and print a summary. With --out the received animation is written
as msgpack.

Example parameter file (params.yaml):
  face:
    skin_strength: 1.2
  emotion:
    emotion_strength: 0.8
  blendshape_multipliers:
    - name: JawOpen
      value: 1.5

Examples:
  facestream request --pcm speech.raw
  facestream request --pcm speech.raw --rate 48000 --params params.yaml --out speech.anim`,
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := os.ReadFile(reqPCM)
		if err != nil {
			return err
		}
		if reqFloat {
			if samples, err = floatToPCM16(samples); err != nil {
				return err
			}
		}
		buf := audio.Buffer{Header: audio.PCM16Header(reqRate, reqChannels), Samples: samples}
		if reqRate > audio.DefaultSampleRate && reqChannels == 1 {
			in, err := audio.BytesToInt16(samples)
			if err != nil {
				return err
			}
			out, err := audio.Downsample(in, reqRate, audio.DefaultSampleRate)
			if err != nil {
				return err
			}
			buf = audio.NewMono16(audio.DefaultSampleRate, audio.Int16ToBytes(out))
		}
		if reqPad {
			buf = buf.PadFront(audio.DefaultPadding)
		}

		p := cfg.Params
		if reqParams != "" {
			if p, err = loadParams(reqParams); err != nil {
				return err
			}
		}

		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		player := session.NewPlayer(client, cfg.Session(), nil, logger)
		defer player.Close()

		anim, err := player.RequestAnimation(cmd.Context(), session.Request{Audio: buf, Params: p})
		if err != nil {
			if msg, ok := session.ServiceMessage(err); ok {
				logger.Error("service reported an error", zap.String("message", msg))
			}
			return err
		}

		summary := requestSummary{
			State:    player.State().String(),
			Frames:   anim.Len(),
			Channels: len(anim.Channels()),
			Joints:   anim.Header.JointNames,
			Duration: anim.Length(),
			Warnings: player.Warnings(),
		}
		if reqOut != "" {
			data, err := msgpack.Marshal(anim)
			if err != nil {
				return err
			}
			if err := os.WriteFile(reqOut, data, 0o644); err != nil {
				return err
			}
			summary.Output = reqOut
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// floatToPCM16 converts little-endian float32 samples to s16le.
func floatToPCM16(data []byte) ([]byte, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 input has %d trailing bytes", len(data)%4)
	}
	in := make([]float32, len(data)/4)
	for i := range in {
		in[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return audio.Int16ToBytes(audio.FloatToInt16(in)), nil
}

func loadParams(path string) (params.Set, error) {
	p := params.Default()
	f, err := os.Open(path)
	if err != nil {
		return p, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&p); err != nil {
		return p, fmt.Errorf("decode %s: %w", path, err)
	}
	return p, nil
}

func init() {
	f := requestCmd.Flags()
	f.StringVar(&reqPCM, "pcm", "", "raw s16le PCM file")
	f.IntVar(&reqRate, "rate", audio.DefaultSampleRate, "sample rate of the PCM file; mono input above 16 kHz is downsampled")
	f.IntVar(&reqChannels, "channels", 1, "channel count of the PCM file")
	f.BoolVar(&reqFloat, "f32", false, "the file holds float32 little-endian samples in [-1, 1]")
	f.BoolVar(&reqPad, "pad", false, "prepend silence before the audio")
	f.StringVar(&reqParams, "params", "", "YAML parameter file")
	f.StringVar(&reqOut, "out", "", "write the animation as msgpack to this file")
	requestCmd.MarkFlagRequired("pcm")
}
