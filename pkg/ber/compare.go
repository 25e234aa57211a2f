package ber

// Comparison is the result of walking one block against the reference.
type Comparison struct {
	// Offset is the verified preamble match the walk started from.
	Offset     int
	ErrorCount int
	// BitsCompared is the rate denominator: every bit from the match offset
	// to the end of the block, matched window included.
	BitsCompared int
	// BitsChecked is the number of positions actually compared.
	BitsChecked int
}

func (c Comparison) Rate() float64 {
	if c.BitsCompared == 0 {
		return 0
	}
	return float64(c.ErrorCount) / float64(c.BitsCompared)
}

// Compare counts mismatches between incoming and the repeating reference
// pattern, starting one past the end of the window matched at startOffset.
//
// The reference for incoming[lastMatchEnd+1] is preamble[w.Stop+1]. From
// there the walk takes the rest of the preamble, then the whole payload, then
// the whole preamble from index 0, and so on until the block is exhausted.
func Compare(incoming []float32, startOffset int, f *ReferenceFrame, w PreambleWindow) Comparison {
	ret := Comparison{
		Offset:       startOffset,
		BitsCompared: len(incoming) - startOffset,
	}

	cycle := f.Length()
	if cycle == 0 {
		return ret
	}

	lastMatchEnd := startOffset + w.Length()
	bitsLeftToCheck := len(incoming) - lastMatchEnd
	inputIndex := lastMatchEnd + 1
	refIndex := (w.Stop + 1) % cycle

	for bitsLeftToCheck > 1 {
		var want float32
		if refIndex < len(f.Preamble) {
			want = f.Preamble[refIndex]
		} else {
			want = f.Payload[refIndex-len(f.Preamble)]
		}

		if incoming[inputIndex] != want {
			ret.ErrorCount++
		}
		ret.BitsChecked++

		bitsLeftToCheck--
		inputIndex++
		refIndex++
		if refIndex == cycle {
			refIndex = 0
		}
	}

	return ret
}
