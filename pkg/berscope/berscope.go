package berscope

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/berscope/pkg/backplane"
	"github.com/norasector/berscope/pkg/ber"
	"github.com/norasector/berscope/pkg/berscope/source"
	"github.com/norasector/berscope/pkg/dsp/agc/rmsagc"
	"github.com/norasector/berscope/pkg/dsp/processor"
	"github.com/norasector/berscope/pkg/dsp/slicer"
	"github.com/norasector/berscope/pkg/dsp/viz"
	"github.com/norasector/berscope/pkg/stream"
	"github.com/norasector/berscope/pkg/util"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/plot"
)

const rateHistoryLength = 256

// burstBitsAxes labels the BER block's plot; idle blocks show as zeros.
func burstBitsAxes(p *plot.Plot) {
	p.Y.Label.Text = "Bit (0 when idle)"
	p.X.Label.Text = "bit"
}

// Harness feeds blocks from a source through the BER block and fans burst
// reports out to the configured outputs.
type Harness struct {
	source      source.Source
	reader      backplane.Reader
	opts        Options
	writeAPI    api.WriteAPI
	vizServer   *viz.Server
	logger      zerolog.Logger
	segmentChan chan *stream.SegmentFloat32
	calculator  *ber.Calculator
	proc        *processor.Processor
	ratePlot    *viz.RateHistoryPlotter

	mu          sync.Mutex
	summary     Summary
	finished    bool
	outputsDone sync.WaitGroup
	cancel      context.CancelFunc
	ctx         context.Context
}

type HarnessOption func(h *Harness) error

func WithInfluxDB(influxClient api.WriteAPI) HarnessOption {
	return func(h *Harness) error {
		h.writeAPI = influxClient
		return nil
	}
}

func WithImageServer(vizServer *viz.Server) HarnessOption {
	return func(h *Harness) error {
		h.vizServer = vizServer
		return nil
	}
}

func WithLogger(logger zerolog.Logger) HarnessOption {
	return func(h *Harness) error {
		h.logger = logger
		return nil
	}
}

func NewHarness(src source.Source, reader backplane.Reader, options Options, opts ...HarnessOption) (*Harness, error) {
	h := &Harness{
		source:      src,
		reader:      reader,
		opts:        options,
		segmentChan: make(chan *stream.SegmentFloat32, 1),
		writeAPI:    &util.MockWriteAPI{}, // overwritten with option
		logger:      log.Logger,
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}

	if h.opts.SampleRate <= 0 {
		return nil, fmt.Errorf("must specify sample rate")
	}

	seed := h.opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	calc, err := ber.NewCalculator(reader, h.opts.Calculator,
		ber.WithLogger(h.logger),
		ber.WithRand(rand.New(rand.NewSource(seed))),
		ber.WithMeasurementHandler(h.handleMeasurement),
		ber.WithBurstHandler(h.handleBurst),
	)
	if err != nil {
		return nil, err
	}
	h.calculator = calc

	bucket := fmt.Sprintf("channel-%d", h.opts.Calculator.ChannelID)
	h.proc = processor.NewProcessor(bucket, "Bits", h.vizServer)
	if h.opts.Slicer.Enabled && h.opts.Slicer.AGC {
		h.proc.AddBlock(processor.NewDSPWorkerFF("agc", "AGC", h.opts.SampleRate,
			rmsagc.NewRMSAGC(h.opts.Slicer.AGCAlpha, 1),
			processor.WithPlotType(viz.PlotTypeLines)))
	}
	if h.opts.Slicer.Enabled {
		h.proc.AddBlock(processor.NewDSPWorkerFF("slicer", "Hard decisions", h.opts.SampleRate,
			slicer.NewHardDecision(h.opts.Slicer.Threshold, h.opts.Slicer.Invert),
			processor.WithPlotType(viz.PlotTypeLines)))
	}
	h.proc.AddBlock(processor.NewDSPWorkerFF("ber", "Burst bits", h.opts.SampleRate, calc,
		processor.WithPlotType(viz.PlotTypeLines),
		processor.WithPlotOptions([]viz.PlotOptions{burstBitsAxes})))
	if err := h.proc.Initialize(); err != nil {
		return nil, err
	}

	h.ratePlot = viz.NewRateHistoryPlotter("BER history", rateHistoryLength)
	if h.vizServer != nil {
		h.vizServer.Register(bucket, h.ratePlot)
	}

	return h, nil
}

// Calculator exposes the BER block so callers can inspect its state.
func (h *Harness) Calculator() *ber.Calculator {
	return h.calculator
}

func (h *Harness) Summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

func (h *Harness) Stop() error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.vizServer != nil {
		h.vizServer.Stop(context.TODO())
	}
	return h.source.Stop()
}

// Start runs until ctx is cancelled, something fails, or the source runs
// dry. A source running dry is a clean exit.
func (h *Harness) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	h.ctx, h.cancel = context.WithCancel(ctx)

	eg.Go(func() error {
		defer close(h.segmentChan)
		return h.source.Start(h.ctx, h.segmentChan)
	})

	if h.vizServer != nil {
		eg.Go(func() error {
			return h.vizServer.Run(h.ctx)
		})
		eg.Go(func() error {
			<-h.ctx.Done()
			h.vizServer.Stop(context.Background())
			return nil
		})
	}

	for _, output := range h.opts.Outputs {
		thisOutput := output
		h.outputsDone.Add(1)
		eg.Go(func() error {
			defer h.outputsDone.Done()
			return thisOutput.Start(h.ctx)
		})
	}

	eg.Go(h.processSegments)

	h.logger.Info().
		Int("channel_id", h.opts.Calculator.ChannelID).
		Int("sample_rate", h.opts.SampleRate).
		Bool("full_preamble", h.opts.Calculator.FullPreamble).
		Msg("Starting")

	err := eg.Wait()

	h.mu.Lock()
	finished := h.finished
	h.mu.Unlock()
	if finished && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Harness) processSegments() error {
	for {
		select {
		case <-h.ctx.Done():
			return h.ctx.Err()
		case seg, ok := <-h.segmentChan:
			if !ok {
				if err := h.ctx.Err(); err != nil {
					return err
				}
				h.logger.Info().Msg("source finished")
				h.mu.Lock()
				h.finished = true
				h.mu.Unlock()
				// let every output write what it has queued before shutting down
				for _, output := range h.opts.Outputs {
					output.Close()
				}
				h.outputsDone.Wait()
				h.cancel()
				return nil
			}

			metrics := make(map[string]interface{})
			start := time.Now()
			if _, err := h.proc.Process(seg, metrics); err != nil {
				return err
			}
			metrics["samples"] = len(seg.Data)
			metrics["tags"] = len(seg.Tags)
			metrics["active"] = h.calculator.State().Gate.Active()
			metrics["duration"] = time.Since(start).Microseconds()

			h.writeAPI.WritePoint(influxdb2.NewPoint("ber.segment.processed",
				map[string]string{
					"channel_id": strconv.Itoa(h.opts.Calculator.ChannelID),
				},
				metrics, time.Now()))
		}
	}
}

func (h *Harness) handleMeasurement(m ber.Measurement) {
	h.ratePlot.Append(m.Rate())

	h.writeAPI.WritePoint(influxdb2.NewPoint("ber.measurement",
		map[string]string{
			"channel_id": strconv.Itoa(h.opts.Calculator.ChannelID),
			"frame_id":   strconv.Itoa(m.FrameID),
		},
		map[string]interface{}{
			"offset":        m.Offset,
			"candidates":    len(m.Candidates),
			"error_count":   m.ErrorCount,
			"bits_compared": m.BitsCompared,
			"bits_checked":  m.BitsChecked,
			"error_rate":    m.Rate(),
		}, time.Now()))
}

func (h *Harness) handleBurst(r ber.BurstReport) {
	h.mu.Lock()
	h.summary.Bursts++
	h.summary.Measurements += r.Measurements
	h.summary.ErrorCount += r.ErrorCount
	h.summary.BitsCompared += r.BitsCompared
	h.summary.BitsReceived += r.BitsReceived
	h.mu.Unlock()

	h.writeAPI.WritePoint(influxdb2.NewPoint("ber.burst",
		map[string]string{
			"channel_id": strconv.Itoa(r.ChannelID),
			"frame_id":   strconv.Itoa(r.FrameID),
		},
		map[string]interface{}{
			"bits_received": r.BitsReceived,
			"expected_bits": r.ExpectedBits,
			"measurements":  r.Measurements,
			"error_count":   r.ErrorCount,
			"bits_compared": r.BitsCompared,
			"error_rate":    r.Rate(),
			"duration_us":   r.Ended.Sub(r.Started).Microseconds(),
		}, time.Now()))

	// Blocks on slow outputs; a report is only dropped on shutdown.
	dropped := 0
	for _, output := range h.opts.Outputs {
		report := r
		select {
		case output.Receive() <- &report:
		case <-h.ctx.Done():
			dropped++
		}
	}
	if dropped > 0 {
		h.mu.Lock()
		h.summary.DroppedReports += dropped
		h.mu.Unlock()
		h.logger.Warn().Int("dropped_outputs", dropped).Msg("dropped burst report")
	}
}
