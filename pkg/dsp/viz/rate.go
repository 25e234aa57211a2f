package viz

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

// rateFloor stands in for a zero error rate on the log axis.
const rateFloor = 1e-7

// RateHistoryPlotter plots the most recent error rates on a log10 scale.
type RateHistoryPlotter struct {
	mu          sync.Mutex
	rates       []float64
	size        int
	name        string
	plotOptions []PlotOptions
}

func NewRateHistoryPlotter(name string, size int) *RateHistoryPlotter {
	return &RateHistoryPlotter{
		rates: make([]float64, 0, size),
		size:  size,
		name:  name,
	}
}

func (r *RateHistoryPlotter) Name() string {
	return r.name
}

func (r *RateHistoryPlotter) AddPlotOption(opt PlotOptions) {
	r.plotOptions = append(r.plotOptions, opt)
}

func (r *RateHistoryPlotter) Append(rate float64) {
	r.mu.Lock()
	r.rates = append(r.rates, rate)
	if len(r.rates) > r.size {
		r.rates = append(r.rates[:0], r.rates[len(r.rates)-r.size:]...)
	}
	r.mu.Unlock()
}

// Len reports how many rates are held.
func (r *RateHistoryPlotter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rates)
}

func (r *RateHistoryPlotter) GetImage() *ImageContainer {
	r.mu.Lock()
	if len(r.rates) < 2 {
		r.mu.Unlock()
		return nil
	}
	pts := make(plotter.XYs, len(r.rates))
	for i, rate := range r.rates {
		pts[i] = plotter.XY{X: float64(i), Y: math.Log10(math.Max(rate, rateFloor))}
	}
	r.mu.Unlock()

	p := plotWithDefaults()
	p.Title.Text = r.name
	p.Y.Label.Text = "log10(BER)"
	p.Y.Min = math.Log10(rateFloor)
	p.Y.Max = 0
	p.X.Label.Text = "measurement"

	for _, opt := range r.plotOptions {
		opt(p)
	}

	p.Add(plotter.NewGrid())
	if err := plotutil.AddLinePoints(p, "BER", pts); err != nil {
		log.Warn().Err(err).Str("plot", r.name).Msg("error building plot")
		return nil
	}

	img, err := renderPNG(r.name, p)
	if err != nil {
		log.Warn().Err(err).Str("plot", r.name).Msg("error rendering plot")
		return nil
	}
	return img
}

var _ Producer = (*RateHistoryPlotter)(nil)
var _ Producer = (*TimeDomainPlotter)(nil)

