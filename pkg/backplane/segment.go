package backplane

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Segment is a Reader over a byte region, usually a read-only shared
// mapping of the backplane file.
type Segment struct {
	data   []byte
	mapped bool
}

// Open maps the backplane segment at path read-only.
func Open(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening backplane segment %s", path)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if st.Size() < ChannelHeaderSize {
		return nil, errors.Errorf("backplane segment %s too small (%d bytes)", path, st.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping backplane segment %s", path)
	}

	return &Segment{data: data, mapped: true}, nil
}

// FromBytes wraps an in-memory segment image.
func FromBytes(b []byte) *Segment {
	return &Segment{data: b}
}

func (s *Segment) Close() error {
	if !s.mapped || s.data == nil {
		return nil
	}
	err := unix.Munmap(s.data)
	s.data = nil
	return errors.WithStack(err)
}

func (s *Segment) Size() int {
	return len(s.data)
}

func (s *Segment) span(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(s.data) {
		return nil, errors.Errorf("backplane read [%d:%d] outside segment of %d bytes", offset, offset+length, len(s.data))
	}
	return s.data[offset : offset+length], nil
}

func (s *Segment) ReadChannelHeader() (ChannelHeader, error) {
	b, err := s.span(0, ChannelHeaderSize)
	if err != nil {
		return ChannelHeader{}, errors.Wrap(err, "reading channel header")
	}

	return ChannelHeader{
		ChannelID:     int(binary.LittleEndian.Uint32(b[0:])),
		ActivePointer: int(binary.LittleEndian.Uint32(b[4:])),
		Source:        int(binary.LittleEndian.Uint32(b[8:])),
		CenterFreqHz:  math.Float64frombits(binary.LittleEndian.Uint64(b[16:])),
		SampleRateHz:  math.Float64frombits(binary.LittleEndian.Uint64(b[24:])),
	}, nil
}

func (s *Segment) ReadFrameHeader(offset int) (FrameHeader, error) {
	b, err := s.span(offset, FrameHeaderSize)
	if err != nil {
		return FrameHeader{}, errors.Wrap(err, "reading frame header")
	}

	return FrameHeader{
		FrameID:           int(binary.LittleEndian.Uint32(b[0:])),
		Length:            int(binary.LittleEndian.Uint32(b[4:])),
		Type:              int(binary.LittleEndian.Uint32(b[8:])),
		NumberOfInstances: int(binary.LittleEndian.Uint32(b[12:])),
		PreambleLength:    int(binary.LittleEndian.Uint32(b[16:])),
		DataIndex:         int(binary.LittleEndian.Uint32(b[20:])),
	}, nil
}

func (s *Segment) ReadInt32Vector(length, dataIndex int) ([]int32, error) {
	b, err := s.span(dataIndex, length*vectorElementSize)
	if err != nil {
		return nil, errors.Wrap(err, "reading transmit vector")
	}

	ret := make([]int32, length)
	for i := range ret {
		ret[i] = int32(binary.LittleEndian.Uint32(b[i*vectorElementSize:]))
	}
	return ret, nil
}
