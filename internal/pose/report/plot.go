package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
)

var nan = math.NaN()

// PlotWidth and PlotHeight size the PNG session plot.
const (
	PlotWidth  = 12 * vg.Inch
	PlotHeight = 5 * vg.Inch
)

var channelColors = map[string]color.Color{
	"left":    color.RGBA{R: 0x1a, G: 0x73, B: 0xe8, A: 255},
	"right":   color.RGBA{R: 0x93, G: 0x34, B: 0xe6, A: 255},
	"average": color.RGBA{A: 255},
}

// hexColor parses "#rrggbb".
func hexColor(s string) color.Color {
	if len(s) != 7 || s[0] != '#' {
		return color.Gray{Y: 0x80}
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.Gray{Y: 0x80}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// segments splits a channel at missing values; plotter lines reject NaN.
func segments(s series) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i, v := range s.value {
		if math.IsNaN(v) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: s.offset[i], Y: v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// NewPlot builds the angle-over-time plot for sess with dashed zone
// thresholds.
func NewPlot(sess *sampler.Session, zones l3geometry.Zones) (*plot.Plot, error) {
	if sess == nil {
		return nil, sampler.ErrNoSession
	}
	p := plot.New()
	subject := sess.SubjectID
	if subject == "" {
		subject = "anon"
	}
	p.Title.Text = fmt.Sprintf("Hip abduction - %s (%s)", subject, sess.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (deg)"
	p.X.Min = 0
	p.X.Max = math.Max(sess.DurationMs/1000, 0.001)
	p.Y.Min = 0
	p.Y.Max = zones.CautionMax + 15

	thresholds := []struct {
		deg  float64
		zone l3geometry.Zone
	}{
		{zones.NominalMin, l3geometry.ZoneNominal},
		{zones.NominalMax, l3geometry.ZoneNominal},
		{zones.CautionMax, l3geometry.ZoneCaution},
	}
	for _, th := range thresholds {
		deg := th.deg
		f := plotter.NewFunction(func(float64) float64 { return deg })
		f.Color = hexColor(th.zone.Color())
		f.Width = vg.Points(1)
		f.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(f)
	}

	for _, ch := range channels(sess) {
		first := true
		for _, pts := range segments(ch) {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			line.Color = channelColors[ch.name]
			line.Width = vg.Points(1)
			if ch.name == "average" {
				line.Width = vg.Points(1.5)
			}
			p.Add(line)
			if first {
				p.Legend.Add(ch.name, line)
				first = false
			}
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePNG renders the session plot as PNG.
func WritePNG(w io.Writer, sess *sampler.Session, zones l3geometry.Zones) error {
	p, err := NewPlot(sess, zones)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG renders the session plot to a file.
func SavePNG(path string, sess *sampler.Session, zones l3geometry.Zones) error {
	p, err := NewPlot(sess, zones)
	if err != nil {
		return err
	}
	if err := p.Save(PlotWidth, PlotHeight, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
