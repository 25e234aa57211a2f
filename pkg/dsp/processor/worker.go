package processor

import (
	"github.com/norasector/berscope/pkg/dsp/viz"
	"github.com/norasector/berscope/pkg/stream"
)

type DSPWorker struct {
	Name        string
	DisplayName string
	Rate        int

	worker FFWorker

	outputBuffer []float32

	timeDomain *viz.TimeDomainPlotter
	vizSize    int
	plotType   viz.PlotType
	noPlot     bool

	plotOptions []viz.PlotOptions
}

type DSPWorkerOption func(r *DSPWorker)

func WithPlotOptions(opts []viz.PlotOptions) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotOptions = append(r.plotOptions, opts...)
	}
}

func WithVizLength(length int) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.vizSize = length
	}
}

func WithPlotType(plotType viz.PlotType) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotType = plotType
	}
}

// WithoutPlot keeps the block out of the visualisation server.
func WithoutPlot() DSPWorkerOption {
	return func(r *DSPWorker) {
		r.noPlot = true
	}
}

func NewDSPWorkerFF(name, displayName string, rate int, worker FFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := &DSPWorker{
		Name:        name,
		DisplayName: displayName,
		Rate:        rate,
		worker:      worker,
	}

	for _, opt := range opts {
		opt(ret)
	}

	return ret
}

// FFWorker is a float in, float out block. tags are the stream markers that
// fall inside input, with offsets relative to input[0].
type FFWorker interface {
	WorkBuffer(input []float32, tags []stream.Tag, output []float32) (int, error)
	PredictOutputSize(int) int
}
