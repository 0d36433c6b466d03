package main

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/units"
)

// plotTrackGeometry saves the session's track polyline as a single PNG,
// one point per sess.TrackGeometry vertex.
func plotTrackGeometry(sess *session.Session, outDir string) error {
	if len(sess.TrackGeometry) == 0 {
		return fmt.Errorf("session has no track geometry")
	}

	pts := make(plotter.XYs, len(sess.TrackGeometry))
	for i, p := range sess.TrackGeometry {
		pts[i] = plotter.XY{X: float64(p.X), Y: float64(p.Y)}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s track geometry", sess.Key.String())
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build track line: %w", err)
	}
	line.Color = color.RGBA{R: 0x20, G: 0x90, B: 0xd0, A: 0xff}
	line.Width = vg.Points(1.5)
	p.Add(line)

	out := filepath.Join(outDir, "track_geometry.png")
	if err := p.Save(10*vg.Inch, 10*vg.Inch, out); err != nil {
		return fmt.Errorf("save track geometry plot: %w", err)
	}
	return nil
}

// plotSpeedTraces saves one PNG with each driver's speed over session
// time, one line per driver code, colored via an HSL sweep the way
// gridplotter's generateColors spreads azimuth-bin lines. speedUnit is
// one of units.ValidUnits; frame.DriverSample.Speed is stored in km/h and
// is converted through m/s en route, matching units.ConvertSpeed's
// mps-to-target contract.
func plotSpeedTraces(sess *session.Session, outDir string, speedUnit string) error {
	if len(sess.Frames) == 0 {
		return fmt.Errorf("session has no frames")
	}
	if !units.IsValid(speedUnit) {
		return fmt.Errorf("invalid speed unit %q, want one of: %s", speedUnit, units.GetValidUnitsString())
	}

	series := make(map[string]plotter.XYs)
	for _, f := range sess.Frames {
		for code, d := range f.Drivers {
			mps := float64(d.Speed) / 3.6
			series[code] = append(series[code], plotter.XY{X: f.T, Y: units.ConvertSpeed(mps, speedUnit)})
		}
	}

	codes := make([]string, 0, len(series))
	for code := range series {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s driver speed", sess.Key.String())
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = fmt.Sprintf("speed (%s)", speedUnit)
	p.Legend.Top = true
	p.Legend.Left = false

	colors := traceColors(len(codes))
	for i, code := range codes {
		line, err := plotter.NewLine(series[code])
		if err != nil {
			return fmt.Errorf("build speed line for %s: %w", code, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(code, line)
	}

	out := filepath.Join(outDir, "speed_traces.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, out); err != nil {
		return fmt.Errorf("save speed traces plot: %w", err)
	}
	return nil
}

// traceColors spreads n colors evenly around the HSL hue circle.
func traceColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		out[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	return out
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
