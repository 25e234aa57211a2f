package ber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func bits(s string) []float32 {
	ret := make([]float32, 0, len(s))
	for _, c := range s {
		switch c {
		case '0':
			ret = append(ret, 0)
		case '1':
			ret = append(ret, 1)
		}
	}
	return ret
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name     string
		seq      string
		template string
		want     []int
	}{
		{"start", "1101 0000", "1101", []int{0}},
		{"middle", "0001 1010 00", "1101", []int{3}},
		{"end", "0000 1101", "1101", []int{4}},
		{"repeated", "1101 1101 1101", "1101", []int{0, 4, 8}},
		{"overlapping", "10101", "101", []int{0, 2}},
		{"absent", "0000 0000", "1101", nil},
		// every window of ones reaches the template energy
		{"equal energy", "1111 1111", "1010", nil},
		{"equal energy near miss", "1111 1010 1110", "1010", []int{4}},
		{"short block", "110", "1101", nil},
		{"zero template", "1010", "00", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Locate(bits(tt.seq), bits(tt.template)))
		})
	}
}

func TestLocateEmptyTemplate(t *testing.T) {
	assert.Nil(t, Locate(bits("0101"), nil))
}

func TestLocateFindsEmbedded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bit := rapid.SampledFrom([]float32{0, 1})
		template := rapid.SliceOfN(bit, 1, 64).Draw(t, "template")
		seq := rapid.SliceOfN(bit, 0, 256).Draw(t, "seq")
		k := rapid.IntRange(0, len(seq)).Draw(t, "k")

		embedded := make([]float32, 0, len(seq)+len(template))
		embedded = append(embedded, seq[:k]...)
		embedded = append(embedded, template...)
		embedded = append(embedded, seq[k:]...)

		got := Locate(embedded, template)
		found := false
		for i, off := range got {
			if off == k {
				found = true
			}
			if i > 0 && got[i-1] >= off {
				t.Fatalf("offsets not ascending: %v", got)
			}
			if !equalBits(embedded[off:off+len(template)], template) {
				t.Fatalf("offset %d is not a verbatim match", off)
			}
		}
		if !found {
			t.Fatalf("offset %d missing from %v", k, got)
		}
	})
}
