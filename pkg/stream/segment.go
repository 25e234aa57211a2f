package stream

import "sort"

// Marker names recognised on the bit stream.
const (
	TagBeginBurst = "Begin Burst"
	TagEndBurst   = "End Burst"
)

// Tag is a named marker attached to a sample position within a segment.
// Offset is relative to the first sample of the segment it is attached to.
type Tag struct {
	Offset int    `yaml:"offset"`
	Key    string `yaml:"key"`
}

// SegmentFloat32 is one block of bit decisions (one float per bit) handed to
// the processing pipeline, along with any markers that fall inside it.
type SegmentFloat32 struct {
	SegmentNumber int
	SampleRate    int
	Data          []float32
	Tags          []Tag
}

// SortTags orders tags by offset, keeping the original order of tags that
// share an offset.
func SortTags(tags []Tag) {
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Offset < tags[j].Offset
	})
}

// TagsInWindow returns the tags whose absolute offset lies in
// [start, start+length), rebased so that offsets are relative to start.
// tags must be sorted by offset.
func TagsInWindow(tags []Tag, start, length int) []Tag {
	lo := sort.Search(len(tags), func(i int) bool { return tags[i].Offset >= start })
	hi := sort.Search(len(tags), func(i int) bool { return tags[i].Offset >= start+length })
	if lo >= hi {
		return nil
	}

	ret := make([]Tag, 0, hi-lo)
	for _, tag := range tags[lo:hi] {
		ret = append(ret, Tag{Offset: tag.Offset - start, Key: tag.Key})
	}
	return ret
}
