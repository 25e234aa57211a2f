package synthetic

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/norasector/berscope/pkg/backplane"
	"github.com/norasector/berscope/pkg/ber"
	"github.com/norasector/berscope/pkg/stream"
)

var ErrNoReference = errors.New("no valid reference frame on backplane")

type Options struct {
	BlockSize  int
	SampleRate int
	// BitErrorRate is the probability of flipping each transmitted bit.
	BitErrorRate float64
	// LeadBits of noise follow the begin marker before the first preamble.
	LeadBits int
	// GapBits of idle zeros follow each end marker; at least one is sent.
	GapBits int
	// Bursts to generate; zero runs until cancelled.
	Bursts      int
	TimeBetween time.Duration
	Seed        int64
}

// SyntheticSource transmits the backplane's active reference frame in
// bursts, flipping bits at random, so the BER block can be exercised without
// a radio. The reference is re-read before every burst.
type SyntheticSource struct {
	reader backplane.Reader
	opts   Options
	rng    *rand.Rand

	pending     []float32
	pendingTags []stream.Tag
	position    int
	segNum      int
	flipped     int
}

func NewSyntheticSource(reader backplane.Reader, opts Options) (*SyntheticSource, error) {
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", opts.BlockSize)
	}
	if opts.BitErrorRate < 0 || opts.BitErrorRate > 1 {
		return nil, fmt.Errorf("bit error rate %f outside [0, 1]", opts.BitErrorRate)
	}
	return &SyntheticSource{
		reader: reader,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// Flipped is the number of bits corrupted so far.
func (s *SyntheticSource) Flipped() int {
	return s.flipped
}

func (s *SyntheticSource) reference() (*ber.ReferenceFrame, error) {
	_, fh, vector, err := backplane.ReadActiveFrame(s.reader)
	if err != nil {
		return nil, err
	}
	f, err := ber.Load(ber.RecordFromBackplane(fh, vector))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoReference, err)
	}
	return f, nil
}

// appendBurst queues one burst: begin marker, lead noise, every instance of
// the frame with flips, end marker, then the idle gap.
func (s *SyntheticSource) appendBurst(f *ber.ReferenceFrame) {
	begin := s.position + len(s.pending)
	s.pendingTags = append(s.pendingTags, stream.Tag{Offset: begin, Key: stream.TagBeginBurst})

	for i := 0; i < s.opts.LeadBits; i++ {
		s.pending = append(s.pending, float32(s.rng.Intn(2)))
	}

	bits := f.Bits()
	for inst := 0; inst < f.Instances; inst++ {
		for _, b := range bits {
			if s.opts.BitErrorRate > 0 && s.rng.Float64() < s.opts.BitErrorRate {
				b = 1 - b
				s.flipped++
			}
			s.pending = append(s.pending, b)
		}
	}

	end := s.position + len(s.pending)
	s.pendingTags = append(s.pendingTags, stream.Tag{Offset: end, Key: stream.TagEndBurst})

	// at least one idle bit so the end marker lands inside a block
	gap := s.opts.GapBits
	if gap < 1 {
		gap = 1
	}
	s.pending = append(s.pending, make([]float32, gap)...)
}

// next cuts a block of up to n bits off the queue.
func (s *SyntheticSource) next(n int) *stream.SegmentFloat32 {
	if n > len(s.pending) {
		n = len(s.pending)
	}
	s.segNum++
	seg := &stream.SegmentFloat32{
		SegmentNumber: s.segNum,
		SampleRate:    s.opts.SampleRate,
		Data:          make([]float32, n),
		Tags:          stream.TagsInWindow(s.pendingTags, s.position, n),
	}
	copy(seg.Data, s.pending[:n])
	s.pending = s.pending[n:]
	s.position += n

	kept := s.pendingTags[:0]
	for _, t := range s.pendingTags {
		if t.Offset >= s.position {
			kept = append(kept, t)
		}
	}
	s.pendingTags = kept

	return seg
}

func (s *SyntheticSource) Start(ctx context.Context, segments chan<- *stream.SegmentFloat32) error {
	var tick <-chan time.Time
	if s.opts.TimeBetween > 0 {
		ticker := time.NewTicker(s.opts.TimeBetween)
		defer ticker.Stop()
		tick = ticker.C
	}

	bursts := 0
	for {
		for len(s.pending) < s.opts.BlockSize && (s.opts.Bursts == 0 || bursts < s.opts.Bursts) {
			f, err := s.reference()
			if err != nil {
				return err
			}
			if f.Length() == 0 || f.Instances == 0 {
				return fmt.Errorf("%w: frame %d is empty", ErrNoReference, f.ID)
			}
			s.appendBurst(f)
			bursts++
			log.Debug().Int("frame_id", f.ID).Int("burst", bursts).Msg("queued synthetic burst")
		}
		if len(s.pending) == 0 {
			return nil
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		seg := s.next(s.opts.BlockSize)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case segments <- seg:
		}
	}
}

func (s *SyntheticSource) Stop() error {
	return nil
}
