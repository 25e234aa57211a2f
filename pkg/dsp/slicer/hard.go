package slicer

import "github.com/norasector/berscope/pkg/stream"

// HardDecision maps soft values onto 0/1 bit decisions around a threshold.
type HardDecision struct {
	threshold float32
	invert    bool
}

func NewHardDecision(threshold float32, invert bool) *HardDecision {
	return &HardDecision{
		threshold: threshold,
		invert:    invert,
	}
}

func (h *HardDecision) slice(f float32) float32 {
	one := f >= h.threshold
	if h.invert {
		one = !one
	}
	if one {
		return 1
	}
	return 0
}

func (h *HardDecision) WorkBuffer(input []float32, _ []stream.Tag, output []float32) (int, error) {
	for i := 0; i < len(input); i++ {
		output[i] = h.slice(input[i])
	}
	return len(input), nil
}

func (h *HardDecision) Work(items []float32) []float32 {
	ret := make([]float32, len(items))
	h.WorkBuffer(items, nil, ret)
	return ret
}

func (h *HardDecision) PredictOutputSize(inputSize int) int {
	return inputSize
}
