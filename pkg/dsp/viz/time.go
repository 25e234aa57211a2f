package viz

import (
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

// TimeDomainPlotter keeps the last size samples of a float stream. Bit
// decision streams are the common case, hence the default y range.
type TimeDomainPlotter struct {
	mu          sync.Mutex
	bufFloat    []float32
	size        int
	name        string
	yMin, yMax  float64
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions
}

func NewTimeDomainPlotter(name string, size int) *TimeDomainPlotter {
	return &TimeDomainPlotter{
		bufFloat: make([]float32, 0, size),
		size:     size,
		name:     name,
		yMin:     -0.25,
		yMax:     1.25,
		plotFunc: plotutil.AddScatters,
	}
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	switch tp {
	case PlotTypeLines:
		t.plotFunc = plotutil.AddLines
	default:
		t.plotFunc = plotutil.AddScatters
	}
}

func (t *TimeDomainPlotter) SetYRange(min, max float64) {
	t.mu.Lock()
	t.yMin, t.yMax = min, max
	t.mu.Unlock()
}

func (t *TimeDomainPlotter) AppendFloat(f []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(f) >= t.size {
		t.bufFloat = append(t.bufFloat[:0], f[len(f)-t.size:]...)
		return
	}

	t.bufFloat = append(t.bufFloat, f...)
	if len(t.bufFloat) > t.size {
		t.bufFloat = append(t.bufFloat[:0], t.bufFloat[len(t.bufFloat)-t.size:]...)
	}
}

func (t *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	t.plotOptions = append(t.plotOptions, opt)
}

func (t *TimeDomainPlotter) GetImage() *ImageContainer {
	t.mu.Lock()
	if len(t.bufFloat) < t.size {
		t.mu.Unlock()
		return nil
	}
	pts := make(plotter.XYs, t.size)
	for i := range pts {
		pts[i] = plotter.XY{X: float64(i), Y: float64(t.bufFloat[i])}
	}
	yMin, yMax := t.yMin, t.yMax
	t.mu.Unlock()

	p := plotWithDefaults()

	p.Title.Text = t.name
	p.Y.Label.Text = "Bit"
	p.Y.Min = yMin
	p.Y.Max = yMax
	p.X.Label.Text = "n"

	for _, opt := range t.plotOptions {
		opt(p)
	}

	p.Add(plotter.NewGrid())

	if err := t.plotFunc(p, "b(n)", pts); err != nil {
		log.Warn().Err(err).Str("plot", t.name).Msg("error building plot")
		return nil
	}

	img, err := renderPNG(t.name, p)
	if err != nil {
		log.Warn().Err(err).Str("plot", t.name).Msg("error rendering plot")
		return nil
	}
	return img
}
