package ber

import (
	"errors"
	"fmt"

	"github.com/norasector/berscope/pkg/backplane"
)

const bitsPerElement = 8

var (
	ErrMalformedFrame = errors.New("malformed reference frame")
	ErrInvalidWindow  = errors.New("invalid preamble window")
)

// FrameRecord is a frame as decoded from the backplane. Length and
// PreambleLength count vector elements, each of which holds one byte.
type FrameRecord struct {
	FrameID           int
	Type              int
	Length            int
	NumberOfInstances int
	PreambleLength    int
	Vector            []int32
}

func RecordFromBackplane(fh backplane.FrameHeader, vector []int32) FrameRecord {
	return FrameRecord{
		FrameID:           fh.FrameID,
		Type:              fh.Type,
		Length:            fh.Length,
		NumberOfInstances: fh.NumberOfInstances,
		PreambleLength:    fh.PreambleLength,
		Vector:            vector,
	}
}

// ReferenceFrame is the transmitted bit sequence for one frame id. It is
// never modified after Load; a refresh replaces it.
type ReferenceFrame struct {
	ID        int
	Type      int
	Preamble  []float32
	Payload   []float32
	Instances int
	// TotalBits is the number of bits expected over one burst.
	TotalBits int
}

// Length is the number of bits in one instance of the transmitted vector.
func (f *ReferenceFrame) Length() int {
	return len(f.Preamble) + len(f.Payload)
}

// Bits returns one instance of the transmitted vector, preamble first.
func (f *ReferenceFrame) Bits() []float32 {
	ret := make([]float32, 0, f.Length())
	ret = append(ret, f.Preamble...)
	return append(ret, f.Payload...)
}

// Load builds a ReferenceFrame from a backplane record.
func Load(rec FrameRecord) (*ReferenceFrame, error) {
	switch {
	case rec.Length < 0 || rec.PreambleLength < 0 || rec.NumberOfInstances < 0:
		return nil, fmt.Errorf("%w: negative header field (length %d, preamble %d, instances %d)",
			ErrMalformedFrame, rec.Length, rec.PreambleLength, rec.NumberOfInstances)
	case rec.PreambleLength > rec.Length:
		return nil, fmt.Errorf("%w: preamble length %d exceeds frame length %d",
			ErrMalformedFrame, rec.PreambleLength, rec.Length)
	case len(rec.Vector) < rec.Length:
		return nil, fmt.Errorf("%w: vector holds %d elements, header says %d",
			ErrMalformedFrame, len(rec.Vector), rec.Length)
	}

	raw := make([]byte, rec.Length)
	for i, v := range rec.Vector[:rec.Length] {
		if v < 0 || v > 0xff {
			return nil, fmt.Errorf("%w: element %d value %d is not a byte", ErrMalformedFrame, i, v)
		}
		raw[i] = byte(v)
	}

	return &ReferenceFrame{
		ID:        rec.FrameID,
		Type:      rec.Type,
		Preamble:  UnpackBits(raw[:rec.PreambleLength]),
		Payload:   UnpackBits(raw[rec.PreambleLength:]),
		Instances: rec.NumberOfInstances,
		TotalBits: rec.Length * bitsPerElement * rec.NumberOfInstances,
	}, nil
}

// UnpackBits expands each byte into 8 bit values, most significant bit first.
func UnpackBits(b []byte) []float32 {
	ret := make([]float32, len(b)*bitsPerElement)
	n := 0
	for _, v := range b {
		for j := bitsPerElement - 1; j >= 0; j-- {
			ret[n] = float32((v >> uint(j)) & 0x01)
			n++
		}
	}
	return ret
}

// PackBits is the inverse of UnpackBits. Any value other than 0 counts as a
// one; a trailing partial byte is padded with zeros.
func PackBits(bits []float32) []byte {
	ret := make([]byte, (len(bits)+bitsPerElement-1)/bitsPerElement)
	for i, bit := range bits {
		if bit != 0 {
			ret[i/bitsPerElement] |= 0x80 >> uint(i%bitsPerElement)
		}
	}
	return ret
}
