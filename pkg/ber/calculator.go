package ber

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/berscope/pkg/backplane"
	"github.com/norasector/berscope/pkg/stream"
	"github.com/norasector/berscope/pkg/util"
)

const DefaultWindowLength = 64

type Options struct {
	ChannelID       int
	FullPreamble    bool
	WindowLength    int
	RefreshInterval int
}

// Measurement is one successful preamble match and comparison within a block.
type Measurement struct {
	FrameID    int
	Window     PreambleWindow
	Candidates []int
	Comparison
}

// BurstReport summarises a burst when its end marker arrives.
type BurstReport struct {
	ChannelID    int
	FrameID      int
	BitsReceived int
	ExpectedBits int
	Measurements int
	ErrorCount   int
	BitsCompared int
	Started      time.Time
	Ended        time.Time
}

func (b BurstReport) Rate() float64 {
	if b.BitsCompared == 0 {
		return 0
	}
	return float64(b.ErrorCount) / float64(b.BitsCompared)
}

// State is everything a Calculator carries between invocations.
type State struct {
	Channel  backplane.ChannelHeader
	Frame    *ReferenceFrame
	Window   PreambleWindow
	Template []float32
	Gate     BurstGate
	Refresh  RefreshMonitor

	// rejectedID is the last frame id that failed to load, so a bad frame is
	// not reloaded on every poll.
	rejectedID int
	rejected   bool
	burst      BurstReport
}

// Calculator is the BER block. It is not safe for concurrent use; the host
// calls WorkBuffer from a single goroutine.
type Calculator struct {
	reader backplane.Reader
	opts   Options
	rng    *rand.Rand
	logger zerolog.Logger
	state  *State

	onMeasurement func(Measurement)
	onBurst       func(BurstReport)
}

type CalculatorOption func(c *Calculator)

func WithLogger(logger zerolog.Logger) CalculatorOption {
	return func(c *Calculator) {
		c.logger = logger
	}
}

// WithRand sets the source used to place subset preamble windows.
func WithRand(rng *rand.Rand) CalculatorOption {
	return func(c *Calculator) {
		c.rng = rng
	}
}

func WithMeasurementHandler(fn func(Measurement)) CalculatorOption {
	return func(c *Calculator) {
		c.onMeasurement = fn
	}
}

func WithBurstHandler(fn func(BurstReport)) CalculatorOption {
	return func(c *Calculator) {
		c.onBurst = fn
	}
}

// NewCalculator reads the active frame from the backplane and returns a
// calculator ready for WorkBuffer. Only backplane read failures are returned
// as errors; a malformed frame is logged and leaves the calculator without a
// reference until a valid one is published.
func NewCalculator(reader backplane.Reader, opts Options, options ...CalculatorOption) (*Calculator, error) {
	if opts.WindowLength == 0 {
		opts.WindowLength = DefaultWindowLength
	}
	if opts.WindowLength < 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", opts.WindowLength)
	}

	c := &Calculator{
		reader: reader,
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: log.Logger,
		state: &State{
			Refresh: NewRefreshMonitor(opts.RefreshInterval),
		},
	}

	for _, opt := range options {
		opt(c)
	}

	if err := c.reload(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Calculator) State() *State {
	return c.state
}

func (c *Calculator) PredictOutputSize(inputSize int) int {
	return inputSize
}

// WorkBuffer runs one invocation over input, writing the pass-through (or
// zeroed, outside a burst) samples to output. tags are the markers inside
// input. The returned error is only ever a backplane read failure.
func (c *Calculator) WorkBuffer(input []float32, tags []stream.Tag, output []float32) (int, error) {
	st := c.state

	if st.Refresh.Tick() {
		if err := c.poll(); err != nil {
			return 0, err
		}
	}

	if len(tags) > 0 {
		ordered := make([]stream.Tag, len(tags))
		copy(ordered, tags)
		stream.SortTags(ordered)
		for _, ev := range st.Gate.Observe(ordered) {
			c.handleGateEvent(ev)
		}
	}

	if !st.Gate.Active() {
		for i := range output[:len(input)] {
			output[i] = 0
		}
		return len(input), nil
	}

	st.Gate.Accumulate(len(input))
	copy(output, input)

	if st.Frame == nil || len(input) <= st.Window.Length() {
		return len(input), nil
	}

	candidates := Locate(input, st.Template)
	if len(candidates) == 0 {
		return len(input), nil
	}

	m := Measurement{
		FrameID:    st.Frame.ID,
		Window:     st.Window,
		Candidates: candidates,
		Comparison: Compare(input, candidates[0], st.Frame, st.Window),
	}

	st.burst.Measurements++
	st.burst.ErrorCount += m.ErrorCount
	st.burst.BitsCompared += m.BitsCompared

	c.logger.Info().
		Int("frame_id", m.FrameID).
		Ints("candidates", m.Candidates).
		Int("error_count", m.ErrorCount).
		Int("bits_compared", m.BitsCompared).
		Int("bits_checked", m.BitsChecked).
		Float64("error_rate", m.Rate()).
		Msg("correlated preamble")

	if c.onMeasurement != nil {
		c.onMeasurement(m)
	}

	return len(input), nil
}

func (c *Calculator) handleGateEvent(ev GateEvent) {
	st := c.state

	switch ev.Kind {
	case GateBurstBegin:
		c.logger.Info().
			Int("offset", ev.Offset).
			Bool("already_active", ev.From == BurstActive).
			Msg("attempting demod on burst")
		if ev.From == BurstIdle {
			st.burst = BurstReport{
				ChannelID: c.opts.ChannelID,
				Started:   time.Now(),
			}
			if st.Frame != nil {
				st.burst.FrameID = st.Frame.ID
				st.burst.ExpectedBits = st.Frame.TotalBits
			}
		}

	case GateBurstEnd:
		report := st.burst
		report.BitsReceived = ev.Bits
		report.Ended = time.Now()
		if report.Started.IsZero() {
			report.ChannelID = c.opts.ChannelID
			report.Started = report.Ended
		}

		c.logger.Info().
			Int("offset", ev.Offset).
			Int("bits_received", report.BitsReceived).
			Int("bits_expected", report.ExpectedBits).
			Int("measurements", report.Measurements).
			Int("error_count", report.ErrorCount).
			Float64("error_rate", report.Rate()).
			Msg("stopping demod, burst ended")

		st.burst = BurstReport{}
		if c.onBurst != nil {
			c.onBurst(report)
		}
	}
}

// poll checks whether the backplane has a new active frame.
func (c *Calculator) poll() error {
	ch, err := c.reader.ReadChannelHeader()
	if err != nil {
		return fmt.Errorf("polling backplane: %w", err)
	}
	fh, err := c.reader.ReadFrameHeader(ch.FrameOffset())
	if err != nil {
		return fmt.Errorf("polling backplane: %w", err)
	}

	st := c.state
	if st.Frame != nil && fh.FrameID == st.Frame.ID {
		return nil
	}
	if st.rejected && fh.FrameID == st.rejectedID {
		return nil
	}

	c.logger.Info().Int("frame_id", fh.FrameID).Msg("new frame, updating from channel backplane")
	return c.reload()
}

// reload reads the active frame and replaces the reference and window. A
// frame that fails validation leaves the previous reference in effect.
func (c *Calculator) reload() error {
	ch, fh, vector, err := backplane.ReadActiveFrame(c.reader)
	if err != nil {
		return fmt.Errorf("reading backplane: %w", err)
	}

	c.logger.Info().
		Int("channel_id", ch.ChannelID).
		Int("active_pointer", ch.ActivePointer).
		Int("source", ch.Source).
		Str("center_freq", util.MHzToString(ch.CenterFreqHz)).
		Str("sample_rate", util.KspsToString(ch.SampleRateHz)).
		Msg("channel info")

	c.logger.Info().
		Int("frame_id", fh.FrameID).
		Int("frame_index", ch.FrameOffset()).
		Int("length", fh.Length).
		Int("type", fh.Type).
		Int("instances", fh.NumberOfInstances).
		Int("preamble_length", fh.PreambleLength).
		Msg("frame info")

	st := c.state

	frame, err := Load(RecordFromBackplane(fh, vector))
	if err != nil {
		c.reject(fh.FrameID, err)
		return nil
	}

	window, err := SelectWindow(frame, c.opts.FullPreamble, c.opts.WindowLength, c.rng)
	if err != nil {
		c.reject(fh.FrameID, err)
		return nil
	}

	st.Channel = ch
	st.Frame = frame
	st.Window = window
	st.Template = window.Template(frame)
	st.rejected = false

	c.logger.Info().
		Int("frame_id", frame.ID).
		Int("preamble_bits", len(frame.Preamble)).
		Int("payload_bits", len(frame.Payload)).
		Int("total_bits", frame.TotalBits).
		Int("window_start", window.Start).
		Int("window_stop", window.Stop).
		Msg("using preamble window")

	return nil
}

func (c *Calculator) reject(frameID int, err error) {
	c.state.rejected = true
	c.state.rejectedID = frameID
	ev := c.logger.Warn().Err(err).Int("frame_id", frameID)
	if c.state.Frame != nil {
		ev = ev.Int("retained_frame_id", c.state.Frame.ID)
	}
	ev.Msg("rejected reference frame")
}
