package ber

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norasector/berscope/pkg/backplane"
	"github.com/norasector/berscope/pkg/stream"
)

const testSegmentSize = 1024

var (
	testPreamble = []byte{0xB3, 0x5A}
	testPayload  = []byte{0x00, 0xFF, 0x0F, 0xF0}
)

func vectorOf(parts ...[]byte) []int32 {
	var ret []int32
	for _, p := range parts {
		for _, b := range p {
			ret = append(ret, int32(b))
		}
	}
	return ret
}

func encodeFrame(t *testing.T, frameID, preambleLength, instances int, vector []int32) []byte {
	img, err := backplane.Encode(
		backplane.ChannelHeader{ChannelID: 2, CenterFreqHz: 433.92e6, SampleRateHz: 96e3},
		backplane.FrameHeader{FrameID: frameID, NumberOfInstances: instances, PreambleLength: preambleLength},
		vector,
		testSegmentSize,
	)
	require.NoError(t, err)
	return img
}

type failingReader struct {
	backplane.Reader
	fail bool
}

var errBackplaneGone = errors.New("backplane gone")

func (f *failingReader) ReadChannelHeader() (backplane.ChannelHeader, error) {
	if f.fail {
		return backplane.ChannelHeader{}, errBackplaneGone
	}
	return f.Reader.ReadChannelHeader()
}

type harness struct {
	image        []byte
	calc         *Calculator
	measurements []Measurement
	bursts       []BurstReport
}

func newHarness(t *testing.T, opts Options, reader func(backplane.Reader) backplane.Reader) *harness {
	h := &harness{
		image: encodeFrame(t, 1, len(testPreamble), 2, vectorOf(testPreamble, testPayload)),
	}
	var r backplane.Reader = backplane.FromBytes(h.image)
	if reader != nil {
		r = reader(r)
	}

	calc, err := NewCalculator(r, opts,
		WithLogger(zerolog.Nop()),
		WithRand(rand.New(rand.NewSource(1))),
		WithMeasurementHandler(func(m Measurement) { h.measurements = append(h.measurements, m) }),
		WithBurstHandler(func(b BurstReport) { h.bursts = append(h.bursts, b) }),
	)
	require.NoError(t, err)
	h.calc = calc
	return h
}

func (h *harness) publish(img []byte) {
	copy(h.image, img)
}

func (h *harness) work(t *testing.T, in []float32, tags ...stream.Tag) []float32 {
	out := make([]float32, len(in))
	for i := range out {
		out[i] = -1
	}
	n, err := h.calc.WorkBuffer(in, tags, out)
	require.NoError(t, err)
	require.Equal(t, len(in), n)
	return out
}

// burstBlock is lead zero bits followed by the transmitted vector repeated
// for every instance, with the listed absolute positions flipped.
func burstBlock(lead int, flips ...int) []float32 {
	one := UnpackBits(append(append([]byte(nil), testPreamble...), testPayload...))
	ret := make([]float32, lead)
	ret = append(ret, one...)
	ret = append(ret, one...)
	for _, pos := range flips {
		ret[pos] = 1 - ret[pos]
	}
	return ret
}

func TestCalculatorEndToEnd(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true}, nil)

	st := h.calc.State()
	require.NotNil(t, st.Frame)
	assert.Equal(t, 16, len(st.Frame.Preamble))
	assert.Equal(t, 32, len(st.Frame.Payload))
	assert.Equal(t, 96, st.Frame.TotalBits)
	assert.Equal(t, PreambleWindow{Start: 0, Stop: 16}, st.Window)

	const lead = 10
	in := burstBlock(lead, lead+20, lead+40, lead+70)
	out := h.work(t, in, begin(0))

	assert.Equal(t, in, out, "active blocks pass through")
	require.Len(t, h.measurements, 1)
	m := h.measurements[0]
	assert.Equal(t, lead, m.Candidates[0])
	assert.Equal(t, lead, m.Offset)
	assert.Equal(t, 3, m.ErrorCount)
	assert.Equal(t, len(in)-lead, m.BitsCompared)
	assert.Equal(t, 3.0/float64(len(in)-lead), m.Rate())
}

func TestCalculatorIdleZeroesOutput(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true}, nil)

	in := burstBlock(4)
	out := h.work(t, in)

	assert.Equal(t, make([]float32, len(in)), out)
	assert.Empty(t, h.measurements)
	assert.Equal(t, BurstIdle, h.calc.State().Gate.State())
}

func TestCalculatorEndMarkerZeroesBlock(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true}, nil)

	h.work(t, burstBlock(0), begin(0))
	out := h.work(t, burstBlock(0), end(50))

	assert.Equal(t, make([]float32, len(out)), out)
	assert.Len(t, h.measurements, 1)
}

func TestCalculatorBurstReport(t *testing.T) {
	h := newHarness(t, Options{ChannelID: 2, FullPreamble: true}, nil)

	h.work(t, burstBlock(6, 40), begin(0))
	h.work(t, burstBlock(6))
	h.work(t, burstBlock(6, 30, 31), begin(3))
	h.work(t, burstBlock(6), end(0))

	require.Len(t, h.bursts, 1)
	r := h.bursts[0]
	assert.Equal(t, 2, r.ChannelID)
	assert.Equal(t, 1, r.FrameID)
	assert.Equal(t, 3*102, r.BitsReceived)
	assert.Equal(t, 96, r.ExpectedBits)
	assert.Equal(t, 3, r.Measurements)
	assert.Equal(t, 3, r.ErrorCount)
	assert.Equal(t, 3*96, r.BitsCompared)
	assert.False(t, r.Started.After(r.Ended))

	h.work(t, burstBlock(6), end(0))
	require.Len(t, h.bursts, 2)
	assert.Equal(t, 0, h.bursts[1].BitsReceived)
	assert.Equal(t, 0, h.bursts[1].Measurements)
}

func TestCalculatorUnsortedTags(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true}, nil)

	tags := []stream.Tag{begin(40), end(2)}
	h.work(t, burstBlock(0), tags...)

	assert.True(t, h.calc.State().Gate.Active())
	assert.Equal(t, []stream.Tag{begin(40), end(2)}, tags, "caller's tags untouched")
}

func TestCalculatorShortBlockSkipsLocator(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true}, nil)

	h.work(t, burstBlock(0)[:16], begin(0))
	assert.Empty(t, h.measurements)
	assert.Equal(t, 16, h.calc.State().Gate.Bits())
}

func TestCalculatorRefresh(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true}, nil)
	in := burstBlock(0)

	h.work(t, in)
	h.publish(encodeFrame(t, 2, 1, 3, vectorOf([]byte{0xC3}, testPayload)))

	for call := 2; call <= 100; call++ {
		h.work(t, in)
		require.Equal(t, 1, h.calc.State().Frame.ID, "call %d", call)
	}

	h.work(t, in)
	st := h.calc.State()
	assert.Equal(t, 2, st.Frame.ID)
	assert.Equal(t, 8, len(st.Frame.Preamble))
	assert.Equal(t, 3*5*8, st.Frame.TotalBits)
	assert.Equal(t, PreambleWindow{Start: 0, Stop: 8}, st.Window)
	assert.Equal(t, UnpackBits([]byte{0xC3}), st.Template)
}

func TestCalculatorRefreshWhileActive(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true, RefreshInterval: 2}, nil)

	h.work(t, burstBlock(0), begin(0))
	h.publish(encodeFrame(t, 5, 2, 1, vectorOf(testPreamble, testPayload)))
	h.work(t, burstBlock(0))
	assert.Equal(t, 1, h.calc.State().Frame.ID)
	h.work(t, burstBlock(0))
	assert.Equal(t, 5, h.calc.State().Frame.ID)
	assert.Equal(t, 5, h.measurements[2].FrameID)
}

func TestCalculatorRejectsMalformedRefresh(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true, RefreshInterval: 1}, nil)

	h.publish(encodeFrame(t, 2, 9, 1, vectorOf(testPreamble, testPayload)))
	h.work(t, burstBlock(0))

	st := h.calc.State()
	require.NotNil(t, st.Frame)
	assert.Equal(t, 1, st.Frame.ID)
	assert.Equal(t, PreambleWindow{Start: 0, Stop: 16}, st.Window)

	// still usable
	h.work(t, burstBlock(0), begin(0))
	assert.Len(t, h.measurements, 1)

	h.publish(encodeFrame(t, 3, 2, 1, vectorOf(testPreamble, testPayload)))
	h.work(t, burstBlock(0))
	assert.Equal(t, 3, h.calc.State().Frame.ID)
}

func TestCalculatorRejectedRefreshKeepsChannel(t *testing.T) {
	h := newHarness(t, Options{FullPreamble: true, RefreshInterval: 1}, nil)
	require.Equal(t, 433.92e6, h.calc.State().Channel.CenterFreqHz)

	img, err := backplane.Encode(
		backplane.ChannelHeader{ChannelID: 5, CenterFreqHz: 868e6, SampleRateHz: 48e3},
		backplane.FrameHeader{FrameID: 2, NumberOfInstances: 1, PreambleLength: 9},
		vectorOf(testPreamble, testPayload),
		testSegmentSize,
	)
	require.NoError(t, err)
	h.publish(img)
	h.work(t, burstBlock(0))

	st := h.calc.State()
	assert.Equal(t, 1, st.Frame.ID)
	assert.Equal(t, 2, st.Channel.ChannelID)
	assert.Equal(t, 433.92e6, st.Channel.CenterFreqHz)
	assert.Equal(t, 96e3, st.Channel.SampleRateHz)
}

func TestCalculatorRejectsShortPreambleForWindow(t *testing.T) {
	h := newHarness(t, Options{WindowLength: 64}, nil)
	assert.Nil(t, h.calc.State().Frame)

	h.work(t, burstBlock(0), begin(0))
	assert.Empty(t, h.measurements)
	assert.True(t, h.calc.State().Gate.Active())
}

// prbs7 returns n bits of the x^7 + x^6 + 1 maximal length sequence.
func prbs7(n int) []float32 {
	ret := make([]float32, n)
	state := 0x7f
	for i := range ret {
		bit := ((state >> 6) ^ (state >> 5)) & 1
		state = ((state << 1) | bit) & 0x7f
		ret[i] = float32(bit)
	}
	return ret
}

func TestCalculatorSubsetWindow(t *testing.T) {
	preamble := PackBits(prbs7(96))
	payload := make([]byte, 4)

	h := &harness{image: encodeFrame(t, 4, len(preamble), 2, vectorOf(preamble, payload))}
	calc, err := NewCalculator(backplane.FromBytes(h.image), Options{WindowLength: 16},
		WithLogger(zerolog.Nop()),
		WithRand(rand.New(rand.NewSource(99))),
		WithMeasurementHandler(func(m Measurement) { h.measurements = append(h.measurements, m) }),
	)
	require.NoError(t, err)
	h.calc = calc

	w := calc.State().Window
	require.Equal(t, 16, w.Length())
	require.GreaterOrEqual(t, w.Start, 20)
	require.Less(t, w.Start, 96-16-20)

	const lead = 12
	one := UnpackBits(append(append([]byte(nil), preamble...), payload...))
	in := make([]float32, lead)
	in = append(in, one...)
	in = append(in, one...)
	in[lead+w.Stop+30] = 1 - in[lead+w.Stop+30]

	h.work(t, in, begin(0))

	require.Len(t, h.measurements, 1)
	m := h.measurements[0]
	assert.Equal(t, lead+w.Start, m.Offset)
	assert.Equal(t, 1, m.ErrorCount)
	assert.Equal(t, len(in)-lead-w.Start, m.BitsCompared)
}

func TestCalculatorBackplaneFailure(t *testing.T) {
	var fr *failingReader
	h := newHarness(t, Options{FullPreamble: true, RefreshInterval: 2}, func(r backplane.Reader) backplane.Reader {
		fr = &failingReader{Reader: r}
		return fr
	})

	h.work(t, burstBlock(0))
	fr.fail = true
	h.work(t, burstBlock(0))

	in := burstBlock(0)
	_, err := h.calc.WorkBuffer(in, nil, make([]float32, len(in)))
	assert.True(t, errors.Is(err, errBackplaneGone), "got %v", err)
}

func TestNewCalculatorBackplaneFailure(t *testing.T) {
	_, err := NewCalculator(&failingReader{fail: true}, Options{}, WithLogger(zerolog.Nop()))
	assert.True(t, errors.Is(err, errBackplaneGone))
}

func TestNewCalculatorNegativeWindow(t *testing.T) {
	_, err := NewCalculator(backplane.FromBytes(nil), Options{WindowLength: -1})
	assert.Error(t, err)
}
