package file

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/norasector/berscope/pkg/stream"
)

const sampleBytes = 4

// FileSource plays back a recording of little-endian float32 bit decisions.
// Burst markers come from a YAML sidecar listing absolute sample offsets:
//
//   - offset: 1200
//     key: Begin Burst
//   - offset: 9800
//     key: End Burst
type FileSource struct {
	readFile    *os.File
	blockSize   int
	sampleRate  int
	timeBetween time.Duration
	tags        []stream.Tag
}

func NewFileSource(file, tagsFile string, blockSize, sampleRate int, timeBetween time.Duration) (*FileSource, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	var tags []stream.Tag
	if tagsFile != "" {
		contents, err := os.ReadFile(tagsFile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(contents, &tags); err != nil {
			return nil, fmt.Errorf("parsing tags %s: %w", tagsFile, err)
		}
		stream.SortTags(tags)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	return &FileSource{
		readFile:    f,
		blockSize:   blockSize,
		sampleRate:  sampleRate,
		timeBetween: timeBetween,
		tags:        tags,
	}, nil
}

func (f *FileSource) Start(ctx context.Context, segments chan<- *stream.SegmentFloat32) error {
	var tick <-chan time.Time
	if f.timeBetween > 0 {
		ticker := time.NewTicker(f.timeBetween)
		defer ticker.Stop()
		tick = ticker.C
	}

	buf := make([]byte, f.blockSize*sampleBytes)
	position := 0
	segNum := 0

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		n, err := io.ReadFull(f.readFile, buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return err
		}

		samples := n / sampleBytes
		if samples == 0 {
			return nil
		}

		segNum++
		seg := &stream.SegmentFloat32{
			SegmentNumber: segNum,
			SampleRate:    f.sampleRate,
			Data:          make([]float32, samples),
			Tags:          stream.TagsInWindow(f.tags, position, samples),
		}
		for i := range seg.Data {
			seg.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*sampleBytes:]))
		}
		position += samples

		select {
		case <-ctx.Done():
			return ctx.Err()
		case segments <- seg:
		}

		if err != nil {
			// short final read
			return nil
		}
	}
}

func (f *FileSource) Stop() error {
	return f.readFile.Close()
}

// WriteRecording writes bit decisions as little-endian float32 values.
func WriteRecording(w io.Writer, bits []float32) error {
	return binary.Write(w, binary.LittleEndian, bits)
}
