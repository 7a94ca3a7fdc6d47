// Package plotting renders the per-trace diagnostic figures: the fit over
// the data, residuals against fitted values and a normal QQ plot.
package plotting

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/kacperjurak/burstfit"
)

const (
	width  = 8 * vg.Inch
	height = 5 * vg.Inch

	// points per sample interval of the smooth fitted curve
	oversample = 4
)

var (
	dataColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fitColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	guideColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// Figure is a rendered diagnostic and the file suffix it is stored under.
type Figure struct {
	Suffix string
	Plot   *plot.Plot
}

// FileName returns the file a figure of trace is saved to.
func (f Figure) FileName(trace string) string {
	return trace + f.Suffix
}

// Diagnostics builds all figures of one fitted trace.
func Diagnostics(name string, tr burstfit.Trace, model *burstfit.Model, res *burstfit.FitResult) ([]Figure, error) {
	fit, err := FitOverlay(name, tr, model, res.Amplitudes)
	if err != nil {
		return nil, err
	}
	resid, err := Residuals(name, res)
	if err != nil {
		return nil, err
	}
	qq, err := QQ(name, res.Residuals)
	if err != nil {
		return nil, err
	}
	return []Figure{
		{Suffix: "-fit.png", Plot: fit},
		{Suffix: "-residuals.png", Plot: resid},
		{Suffix: "-qq.png", Plot: qq},
	}, nil
}

// FitOverlay plots the samples with the fitted burst waveform on top. Time
// is shown in nanoseconds.
func FitOverlay(name string, tr burstfit.Trace, model *burstfit.Model, amps []float64) (*plot.Plot, error) {
	if tr.Len() == 0 {
		return nil, fmt.Errorf("plotting: %s: empty trace", name)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: %d-pulse fit", name, model.Pulses())
	p.X.Label.Text = "Time (ns)"
	p.Y.Label.Text = "Signal (V)"
	p.Add(plotter.NewGrid())

	data := make(plotter.XYs, tr.Len())
	for i := range data {
		data[i].X = tr.Times[i] * 1e9
		data[i].Y = tr.Values[i]
	}
	scatter, err := plotter.NewScatter(data)
	if err != nil {
		return nil, fmt.Errorf("plotting: %s: %w", name, err)
	}
	scatter.GlyphStyle.Color = dataColor
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	scatter.Shape = draw.CircleGlyph{}

	curve := make(plotter.XYs, 0, tr.Len()*oversample)
	for i := 0; i < tr.Len()-1; i++ {
		step := (tr.Times[i+1] - tr.Times[i]) / oversample
		for k := 0; k < oversample; k++ {
			t := tr.Times[i] + float64(k)*step
			curve = append(curve, plotter.XY{X: t * 1e9, Y: model.Waveform(t, amps)})
		}
	}
	last := tr.Times[tr.Len()-1]
	curve = append(curve, plotter.XY{X: last * 1e9, Y: model.Waveform(last, amps)})

	line, err := plotter.NewLine(curve)
	if err != nil {
		return nil, fmt.Errorf("plotting: %s: %w", name, err)
	}
	line.Color = fitColor
	line.Width = vg.Points(1.5)

	p.Add(scatter, line)
	p.Legend.Add("data", scatter)
	p.Legend.Add("fit", line)
	p.Legend.Top = true
	return p, nil
}

// Residuals plots residuals against fitted values with their least-squares
// trend line.
func Residuals(name string, res *burstfit.FitResult) (*plot.Plot, error) {
	n := len(res.Fitted)
	if n == 0 || n != len(res.Residuals) {
		return nil, fmt.Errorf("plotting: %s: %d fitted values for %d residuals", name, n, len(res.Residuals))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: residuals (R² = %.4f)", name, res.RSquared)
	p.X.Label.Text = "Fitted (V)"
	p.Y.Label.Text = "Residual (V)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, n)
	for i := range pts {
		pts[i].X = res.Fitted[i]
		pts[i].Y = res.Residuals[i]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("plotting: %s: %w", name, err)
	}
	scatter.GlyphStyle.Color = dataColor
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.Shape = draw.CircleGlyph{}
	p.Add(scatter)

	lo, hi := floats.Min(res.Fitted), floats.Max(res.Fitted)
	alpha, beta := burstfit.ResidualTrend(res.Fitted, res.Residuals)
	trend, err := plotter.NewLine(plotter.XYs{
		{X: lo, Y: alpha + beta*lo},
		{X: hi, Y: alpha + beta*hi},
	})
	if err != nil {
		return nil, fmt.Errorf("plotting: %s: %w", name, err)
	}
	trend.Color = fitColor
	trend.Width = vg.Points(1.5)

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.Color = guideColor
	zero.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(zero, trend)
	p.Legend.Add(fmt.Sprintf("trend %.3g + %.3g·x", alpha, beta), trend)
	p.Legend.Top = true
	return p, nil
}

// QQ plots standardized residuals against standard normal quantiles.
func QQ(name string, residuals []float64) (*plot.Plot, error) {
	theoretical, sample := burstfit.NormalQQ(residuals)
	if len(sample) == 0 {
		return nil, fmt.Errorf("plotting: %s: no residuals", name)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: normal QQ", name)
	p.X.Label.Text = "Theoretical quantile"
	p.Y.Label.Text = "Standardized residual"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(sample))
	for i := range pts {
		pts[i].X = theoretical[i]
		pts[i].Y = sample[i]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("plotting: %s: %w", name, err)
	}
	scatter.GlyphStyle.Color = dataColor
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.Shape = draw.CircleGlyph{}

	lo, hi := theoretical[0], theoretical[len(theoretical)-1]
	ref, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, fmt.Errorf("plotting: %s: %w", name, err)
	}
	ref.Color = guideColor
	ref.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(ref, scatter)
	return p, nil
}

// Render encodes p as PNG.
func Render(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("plotting: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("plotting: %w", err)
	}
	return nil
}
