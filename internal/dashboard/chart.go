package dashboard

import (
	"fmt"
	"math"
)

// Chart geometry, in SVG user units.
const (
	chartWidth       = 640.0
	chartLabelWidth  = 230.0
	chartTextMargin  = 80.0
	chartTopMargin   = 10.0
	chartAxisHeight  = 36.0
	chartBarFraction = 0.7
)

// blues is the ColorBrewer 9-class Blues ramp, light to dark.
var blues = [][3]float64{
	{247, 251, 255},
	{222, 235, 247},
	{198, 219, 239},
	{158, 202, 225},
	{107, 174, 214},
	{66, 146, 198},
	{33, 113, 181},
	{8, 81, 156},
	{8, 48, 107},
}

// Bar is one horizontal bar with its SVG placement precomputed.
type Bar struct {
	Label string  // y-axis label (principle)
	Text  string  // text at the bar end (legal section)
	Value float64 // progress percent, clamped to [0,100]
	Color string

	Y      float64
	Height float64
	Width  float64
	LabelY float64
}

// Tick is one x-axis gridline.
type Tick struct {
	X     float64
	Label string
}

// BarChart is a horizontal bar chart of policy progress.
type BarChart struct {
	Bars      []Bar
	Ticks     []Tick
	AxisLabel string

	ViewWidth  float64
	ViewHeight float64
	PlotX      float64
	PlotWidth  float64
	PlotBottom float64
}

// NewBarChart lays out one bar per row, in row order, top to bottom. Bar
// length is the progress percent on a fixed 0–100 axis; colour runs along
// the Blues ramp between the smallest and largest value present.
func NewBarChart(rows []PolicyProgress, height int) BarChart {
	if height <= 0 {
		height = 350
	}
	c := BarChart{
		AxisLabel:  "Implementation %",
		ViewWidth:  chartWidth,
		ViewHeight: float64(height),
		PlotX:      chartLabelWidth,
		PlotWidth:  chartWidth - chartLabelWidth - chartTextMargin,
		PlotBottom: float64(height) - chartAxisHeight,
	}

	for v := 0; v <= 100; v += 20 {
		c.Ticks = append(c.Ticks, Tick{
			X:     c.PlotX + c.PlotWidth*float64(v)/100,
			Label: fmt.Sprintf("%d", v),
		})
	}

	if len(rows) == 0 {
		return c
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		v := clamp(r.Progress, 0, 100)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	band := (c.PlotBottom - chartTopMargin) / float64(len(rows))
	barHeight := band * chartBarFraction
	for i, r := range rows {
		v := clamp(r.Progress, 0, 100)
		y := chartTopMargin + band*float64(i) + (band-barHeight)/2
		c.Bars = append(c.Bars, Bar{
			Label:  r.Principle,
			Text:   r.Section,
			Value:  v,
			Color:  BluesColor(scale(v, lo, hi)),
			Y:      y,
			Height: barHeight,
			Width:  c.PlotWidth * v / 100,
			LabelY: y + barHeight/2,
		})
	}
	return c
}

// BluesColor returns the hex colour at position t in [0,1] along the Blues ramp.
func BluesColor(t float64) string {
	t = clamp(t, 0, 1)
	pos := t * float64(len(blues)-1)
	i := int(math.Floor(pos))
	if i >= len(blues)-1 {
		c := blues[len(blues)-1]
		return hexColor(c[0], c[1], c[2])
	}
	f := pos - float64(i)
	a, b := blues[i], blues[i+1]
	return hexColor(
		a[0]+(b[0]-a[0])*f,
		a[1]+(b[1]-a[1])*f,
		a[2]+(b[2]-a[2])*f,
	)
}

func hexColor(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", int(math.Round(r)), int(math.Round(g)), int(math.Round(b)))
}

// scale maps v from [lo,hi] onto [0,1]. A single distinct value takes the
// darkest colour.
func scale(v, lo, hi float64) float64 {
	if hi <= lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
