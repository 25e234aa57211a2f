package berscope

import (
	"github.com/norasector/berscope/pkg/ber"
	"github.com/norasector/berscope/pkg/berscope/config"
)

type Options struct {
	SampleRate int
	Calculator ber.Options
	Slicer     config.Slicer
	// Seed places subset preamble windows; zero seeds from the clock.
	Seed    int64
	Outputs []ReportOutput
}

// Summary accumulates every burst seen since Start.
type Summary struct {
	Bursts       int
	Measurements int
	ErrorCount   int
	BitsCompared int
	BitsReceived int
	// DroppedReports counts reports not handed to an output because the
	// harness was stopping.
	DroppedReports int
}

func (s Summary) Rate() float64 {
	if s.BitsCompared == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.BitsCompared)
}
