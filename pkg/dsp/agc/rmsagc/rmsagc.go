package rmsagc

import (
	"math"

	"github.com/norasector/berscope/pkg/stream"
)

// RMSAGC normalises soft decisions to a target RMS level around zero, so a
// fixed slicer threshold works regardless of the demodulator's output scale.
// The DC offset and power are tracked with single-pole averages.
type RMSAGC struct {
	alpha  float64
	beta   float64
	target float64
	mean   float64
	power  float64
}

func NewRMSAGC(alpha float64, target float64) *RMSAGC {
	return &RMSAGC{
		alpha:  alpha,
		beta:   1 - alpha,
		target: target,
		power:  1.0,
	}
}

func (r *RMSAGC) PredictOutputSize(inputSize int) int {
	return inputSize
}

func (r *RMSAGC) WorkBuffer(input []float32, _ []stream.Tag, output []float32) (int, error) {
	for i := 0; i < len(input); i++ {
		r.mean = r.beta*r.mean + r.alpha*float64(input[i])
		cur := float64(input[i]) - r.mean
		r.power = r.beta*r.power + r.alpha*cur*cur
		if r.power > 0 {
			output[i] = float32(r.target * cur / math.Sqrt(r.power))
		} else {
			output[i] = float32(r.target * cur)
		}
	}

	return len(input), nil
}

func (r *RMSAGC) Work(data []float32) []float32 {
	ret := make([]float32, len(data))
	r.WorkBuffer(data, nil, ret)
	return ret
}
