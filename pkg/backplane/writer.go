package backplane

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
)

// Encode builds a segment image holding one frame. The frame header is placed
// directly after the channel header and the vector directly after the frame
// header; ActivePointer and DataIndex are filled in accordingly. When size is
// larger than the encoded frame the image is zero padded to size, so a writer
// can keep the segment length constant across frame updates.
func Encode(ch ChannelHeader, fh FrameHeader, vector []int32, size int) ([]byte, error) {
	ch.ActivePointer = ChannelHeaderSize
	fh.DataIndex = ChannelHeaderSize + FrameHeaderSize
	fh.Length = len(vector)

	need := fh.DataIndex + len(vector)*vectorElementSize
	if size == 0 {
		size = need
	}
	if size < need {
		return nil, errors.Errorf("segment size %d smaller than frame (%d bytes)", size, need)
	}

	b := make([]byte, size)

	binary.LittleEndian.PutUint32(b[0:], uint32(ch.ChannelID))
	binary.LittleEndian.PutUint32(b[4:], uint32(ch.ActivePointer))
	binary.LittleEndian.PutUint32(b[8:], uint32(ch.Source))
	binary.LittleEndian.PutUint64(b[16:], math.Float64bits(ch.CenterFreqHz))
	binary.LittleEndian.PutUint64(b[24:], math.Float64bits(ch.SampleRateHz))

	f := b[ch.ActivePointer:]
	binary.LittleEndian.PutUint32(f[0:], uint32(fh.FrameID))
	binary.LittleEndian.PutUint32(f[4:], uint32(fh.Length))
	binary.LittleEndian.PutUint32(f[8:], uint32(fh.Type))
	binary.LittleEndian.PutUint32(f[12:], uint32(fh.NumberOfInstances))
	binary.LittleEndian.PutUint32(f[16:], uint32(fh.PreambleLength))
	binary.LittleEndian.PutUint32(f[20:], uint32(fh.DataIndex))

	for i, v := range vector {
		binary.LittleEndian.PutUint32(b[fh.DataIndex+i*vectorElementSize:], uint32(v))
	}

	return b, nil
}

// WriteSegment writes a segment image to path in place. An existing file is
// overwritten without being replaced, so readers holding a mapping of it see
// the new contents.
func WriteSegment(path string, image []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	if st.Size() != int64(len(image)) {
		if err := f.Truncate(int64(len(image))); err != nil {
			f.Close()
			return errors.Wrapf(err, "resizing %s", path)
		}
	}

	if _, err := f.WriteAt(image, 0); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.WithStack(f.Close())
}
