package processor

import (
	"errors"
	"fmt"

	"github.com/norasector/berscope/pkg/dsp/viz"
	"github.com/norasector/berscope/pkg/stream"
	"github.com/norasector/berscope/pkg/util"
)

const defaultVizLength = 256

type Processor struct {
	Name        string
	InputName   string
	blocks      []*DSPWorker
	vizServer   *viz.Server
	initialized bool
	inputPlot   *viz.TimeDomainPlotter
}

func NewProcessor(name, inputName string, vizServer *viz.Server) *Processor {
	return &Processor{
		Name:      name,
		InputName: inputName,
		vizServer: vizServer,
	}
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
}

func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	if len(p.blocks) < 1 {
		return errors.New("must specify at least 1 block")
	}

	vizIndex := 0
	nextIndexString := func(s string) string {
		vizIndex++
		return fmt.Sprintf("%02d. %s", vizIndex, s)
	}

	for i := 1; i < len(p.blocks); i++ {
		if p.blocks[i-1].Rate != p.blocks[i].Rate {
			return fmt.Errorf("cur: %s next %s rate mismatch (%d %d)",
				p.blocks[i-1].Name, p.blocks[i].Name, p.blocks[i-1].Rate, p.blocks[i].Rate)
		}
	}

	if p.vizServer != nil {
		p.inputPlot = viz.NewTimeDomainPlotter(nextIndexString(p.InputName), defaultVizLength)
		p.inputPlot.SetPlotType(viz.PlotTypeLines)
		p.vizServer.Register(p.Name, p.inputPlot)

		for _, block := range p.blocks {
			if block.noPlot {
				continue
			}
			vizLength := defaultVizLength
			if block.vizSize > 0 {
				vizLength = block.vizSize
			}
			block.timeDomain = viz.NewTimeDomainPlotter(nextIndexString(block.DisplayName), vizLength)
			if block.plotType != viz.PlotTypeDefault {
				block.timeDomain.SetPlotType(block.plotType)
			}
			for _, opt := range block.plotOptions {
				block.timeDomain.AddPlotOption(opt)
			}
			p.vizServer.Register(p.Name, block.timeDomain)
		}
	}

	p.initialized = true

	return nil
}

// Process runs a segment through every block in order. Each block sees the
// segment's tags; blocks are sample-preserving, so offsets stay valid.
// Per-block durations are recorded in metrics as <name>_duration.
func (p *Processor) Process(input *stream.SegmentFloat32, metrics map[string]interface{}) (*stream.SegmentFloat32, error) {
	if !p.initialized {
		if err := p.Initialize(); err != nil {
			return nil, err
		}
	}
	if len(input.Data) == 0 {
		return nil, errors.New("must specify input")
	}

	if p.inputPlot != nil {
		p.inputPlot.AppendFloat(input.Data)
	}

	data := input.Data
	for _, block := range p.blocks {
		size := block.worker.PredictOutputSize(len(data))
		if cap(block.outputBuffer) < size {
			block.outputBuffer = make([]float32, size)
		}
		out := block.outputBuffer[:size]

		var length int
		var err error
		metrics[fmt.Sprintf("%s_duration", block.Name)] = util.TimeMicroseconds(func() {
			length, err = block.worker.WorkBuffer(data, input.Tags, out)
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", block.Name, err)
		}
		if length != len(data) {
			return nil, fmt.Errorf("%s: produced %d samples from %d", block.Name, length, len(data))
		}

		data = out[:length]
		if block.timeDomain != nil {
			block.timeDomain.AppendFloat(data)
		}
	}

	output := make([]float32, len(data))
	copy(output, data)

	return &stream.SegmentFloat32{
		SegmentNumber: input.SegmentNumber,
		SampleRate:    input.SampleRate,
		Data:          output,
		Tags:          input.Tags,
	}, nil
}
