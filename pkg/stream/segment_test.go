package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortTagsStable(t *testing.T) {
	tags := []Tag{
		{Offset: 10, Key: TagEndBurst},
		{Offset: 3, Key: TagBeginBurst},
		{Offset: 10, Key: TagBeginBurst},
	}
	SortTags(tags)

	assert.Equal(t, []Tag{
		{Offset: 3, Key: TagBeginBurst},
		{Offset: 10, Key: TagEndBurst},
		{Offset: 10, Key: TagBeginBurst},
	}, tags)
}

func TestTagsInWindow(t *testing.T) {
	tags := []Tag{
		{Offset: 0, Key: TagBeginBurst},
		{Offset: 99, Key: "other"},
		{Offset: 100, Key: TagEndBurst},
		{Offset: 250, Key: TagBeginBurst},
	}

	tests := []struct {
		name          string
		start, length int
		want          []Tag
	}{
		{"first", 0, 100, []Tag{{0, TagBeginBurst}, {99, "other"}}},
		{"boundary", 100, 100, []Tag{{0, TagEndBurst}}},
		{"empty", 101, 100, nil},
		{"last", 200, 100, []Tag{{50, TagBeginBurst}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TagsInWindow(tags, tt.start, tt.length))
		})
	}
}
