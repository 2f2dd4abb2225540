package audio

import (
	"errors"
	"fmt"
)

var ErrUpsample = errors.New("upsampling is not supported")

// Downsample converts mono int16 samples from one rate to a lower one. When
// the ratio is a whole number each group of samples is averaged; otherwise the
// nearest preceding sample is taken.
func Downsample(in []int16, from, to int) ([]int16, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	if to > from {
		return nil, fmt.Errorf("%w: %d -> %d", ErrUpsample, from, to)
	}
	if to == from {
		return in, nil
	}

	if from%to == 0 {
		ratio := from / to
		out := make([]int16, len(in)/ratio)
		for i := range out {
			var sum int32
			for _, s := range in[i*ratio : (i+1)*ratio] {
				sum += int32(s)
			}
			out[i] = int16(sum / int32(ratio))
		}
		return out, nil
	}

	out := make([]int16, len(in)*to/from)
	for i := range out {
		k := min(i*from/to, len(in)-1)
		out[i] = in[k]
	}
	return out, nil
}
