package ber

import (
	"gonum.org/v1/gonum/blas/blas32"
)

func vec(f []float32) blas32.Vector {
	return blas32.Vector{N: len(f), Inc: 1, Data: f}
}

// Locate returns, in ascending order, every offset in seq at which template
// appears verbatim.
//
// Candidates are the offsets where the sliding correlation equals the
// template's self energy. For 0/1 data a different pattern can reach the
// same value (any window with ones everywhere the template has them), so
// each candidate is confirmed element by element.
func Locate(seq, template []float32) []int {
	m := len(template)
	if m == 0 || len(seq) < m {
		return nil
	}

	tv := vec(template)
	target := blas32.Dot(tv, tv)

	var ret []int
	for i := 0; i+m <= len(seq); i++ {
		if blas32.Dot(vec(seq[i:i+m]), tv) != target {
			continue
		}
		if equalBits(seq[i:i+m], template) {
			ret = append(ret, i)
		}
	}
	return ret
}

func equalBits(a, b []float32) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
