package synthetic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norasector/berscope/pkg/backplane"
	"github.com/norasector/berscope/pkg/ber"
	"github.com/norasector/berscope/pkg/stream"
)

var (
	testPreamble = []int32{0xB3, 0x5A}
	testPayload  = []int32{0x00, 0xFF, 0x0F, 0xF0}
)

func testReader(t *testing.T, instances int, vector []int32) backplane.Reader {
	img, err := backplane.Encode(
		backplane.ChannelHeader{ChannelID: 1},
		backplane.FrameHeader{FrameID: 7, NumberOfInstances: instances, PreambleLength: len(testPreamble)},
		vector,
		512,
	)
	require.NoError(t, err)
	return backplane.FromBytes(img)
}

func referenceBits(t *testing.T) []float32 {
	f, err := ber.Load(ber.FrameRecord{
		FrameID:           7,
		Length:            6,
		NumberOfInstances: 2,
		PreambleLength:    2,
		Vector:            append(append([]int32{}, testPreamble...), testPayload...),
	})
	require.NoError(t, err)
	return f.Bits()
}

// run drains the source and returns the concatenated stream with absolute
// tag offsets.
func run(t *testing.T, src *SyntheticSource) ([]float32, []stream.Tag, int) {
	ch := make(chan *stream.SegmentFloat32, 64)
	require.NoError(t, src.Start(context.Background(), ch))
	close(ch)

	var data []float32
	var tags []stream.Tag
	blocks := 0
	for seg := range ch {
		blocks++
		for _, tag := range seg.Tags {
			tags = append(tags, stream.Tag{Offset: len(data) + tag.Offset, Key: tag.Key})
		}
		data = append(data, seg.Data...)
	}
	return data, tags, blocks
}

func TestSyntheticSourceCleanBursts(t *testing.T) {
	vector := append(append([]int32{}, testPreamble...), testPayload...)
	src, err := NewSyntheticSource(testReader(t, 2, vector), Options{
		BlockSize: 64,
		LeadBits:  5,
		GapBits:   3,
		Bursts:    2,
		Seed:      1,
	})
	require.NoError(t, err)

	data, tags, blocks := run(t, src)
	assert.Equal(t, 4, blocks)
	require.Len(t, data, 208)
	assert.Equal(t, []stream.Tag{
		{Offset: 0, Key: stream.TagBeginBurst},
		{Offset: 101, Key: stream.TagEndBurst},
		{Offset: 104, Key: stream.TagBeginBurst},
		{Offset: 205, Key: stream.TagEndBurst},
	}, tags)

	ref := referenceBits(t)
	for _, burst := range []int{0, 104} {
		body := data[burst+5 : burst+101]
		assert.Equal(t, ref, body[:48])
		assert.Equal(t, ref, body[48:])
		assert.Equal(t, []float32{0, 0, 0}, data[burst+101:burst+104])
	}
	assert.Zero(t, src.Flipped())
}

func TestSyntheticSourceFlipsEveryBit(t *testing.T) {
	vector := append(append([]int32{}, testPreamble...), testPayload...)
	src, err := NewSyntheticSource(testReader(t, 1, vector), Options{
		BlockSize:    16,
		BitErrorRate: 1,
		Bursts:       1,
	})
	require.NoError(t, err)

	data, tags, _ := run(t, src)
	ref := referenceBits(t)
	require.Len(t, data, 49)
	for i, b := range ref {
		assert.Equal(t, 1-b, data[i])
	}
	assert.Equal(t, 48, src.Flipped())
	assert.Equal(t, []stream.Tag{
		{Offset: 0, Key: stream.TagBeginBurst},
		{Offset: 48, Key: stream.TagEndBurst},
	}, tags)
}

func TestSyntheticSourceRejectsBadReference(t *testing.T) {
	src, err := NewSyntheticSource(testReader(t, 1, []int32{0x1ff}), Options{BlockSize: 8, Bursts: 1})
	require.NoError(t, err)
	err = src.Start(context.Background(), make(chan *stream.SegmentFloat32, 1))
	assert.ErrorIs(t, err, ErrNoReference)

	src, err = NewSyntheticSource(testReader(t, 0, []int32{0x12}), Options{BlockSize: 8, Bursts: 1})
	require.NoError(t, err)
	err = src.Start(context.Background(), make(chan *stream.SegmentFloat32, 1))
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestNewSyntheticSourceValidates(t *testing.T) {
	r := testReader(t, 1, []int32{0x12})
	_, err := NewSyntheticSource(r, Options{})
	assert.Error(t, err)
	_, err = NewSyntheticSource(r, Options{BlockSize: 8, BitErrorRate: 1.5})
	assert.Error(t, err)
}
