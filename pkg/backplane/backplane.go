// Package backplane reads the channel backplane: a shared memory segment,
// maintained by the transmit side, that holds channel metadata, the active
// frame header and the raw transmitted vector for that frame.
//
// Segment layout (all fields little-endian):
//
//	channel header (ChannelHeaderSize bytes)
//	  0  uint32  channel id
//	  4  uint32  active pointer (byte offset of the active frame header, 0 = directly after this header)
//	  8  uint32  source
//	 12  uint32  reserved
//	 16  float64 center frequency (Hz)
//	 24  float64 sample rate (Hz)
//	frame header (FrameHeaderSize bytes)
//	  0  uint32  frame id
//	  4  uint32  length (vector elements)
//	  8  uint32  type
//	 12  uint32  number of instances
//	 16  uint32  preamble length (vector elements)
//	 20  uint32  data index (byte offset of the vector)
//	vector: length int32 values starting at data index
package backplane

import (
	"fmt"
)

const (
	ChannelHeaderSize = 32
	FrameHeaderSize   = 24
	vectorElementSize = 4
)

// Reader is the read side of a backplane segment. Reads return the latest
// committed values; there is no synchronisation with the writer.
type Reader interface {
	ReadChannelHeader() (ChannelHeader, error)
	ReadFrameHeader(offset int) (FrameHeader, error)
	ReadInt32Vector(length, dataIndex int) ([]int32, error)
}

type ChannelHeader struct {
	ChannelID     int
	ActivePointer int
	Source        int
	CenterFreqHz  float64
	SampleRateHz  float64
}

// FrameOffset returns the byte offset of the active frame header.
func (c ChannelHeader) FrameOffset() int {
	if c.ActivePointer == 0 {
		return ChannelHeaderSize
	}
	return c.ActivePointer
}

type FrameHeader struct {
	FrameID           int
	Length            int
	Type              int
	NumberOfInstances int
	PreambleLength    int
	DataIndex         int
}

// SegmentPath returns the path of the segment for a channel.
func SegmentPath(base string, channelID int) string {
	return fmt.Sprintf("%s.%d", base, channelID)
}

// ReadActiveFrame reads the channel header, the active frame header and its
// transmitted vector.
func ReadActiveFrame(r Reader) (ChannelHeader, FrameHeader, []int32, error) {
	ch, err := r.ReadChannelHeader()
	if err != nil {
		return ChannelHeader{}, FrameHeader{}, nil, err
	}
	fh, err := r.ReadFrameHeader(ch.FrameOffset())
	if err != nil {
		return ch, FrameHeader{}, nil, err
	}
	vec, err := r.ReadInt32Vector(fh.Length, fh.DataIndex)
	if err != nil {
		return ch, fh, nil, err
	}
	return ch, fh, vec, nil
}
