// Package report renders diagnostic output for calibration runs: a PNG
// plot of the ratio curve with the robust-fit inliers and outliers marked,
// and an HTML summary chart for browser inspection.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/beamline-data/saxsabs/internal/calibrate"
)

// SavePlot writes a diagnostic PNG for a calibration result: the per-point
// reference/measured ratio against q, with points rejected by the outlier
// filter drawn in red and the accepted K-factor as a horizontal line.
func SavePlot(result *calibrate.Result, standard, file string) error {
	if result == nil || len(result.Grid) == 0 {
		return fmt.Errorf("no calibration points to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Calibration vs %s (K=%.4g ± %.2g)", standard, result.KFactor, result.KStd)
	p.X.Label.Text = "q (1/Å)"
	p.Y.Label.Text = "I_ref / I_meas"

	inPts := make(plotter.XYs, 0, len(result.Grid))
	outPts := make(plotter.XYs, 0, len(result.Grid))
	for i, q := range result.Grid {
		r := result.Ratios[i]
		// Points below the positive-intensity floor carry a NaN ratio and
		// cannot be drawn.
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		pt := plotter.XY{X: q, Y: r}
		if result.InlierMask[i] {
			inPts = append(inPts, pt)
		} else {
			outPts = append(outPts, pt)
		}
	}

	if len(inPts) > 0 {
		in, err := plotter.NewScatter(inPts)
		if err != nil {
			return err
		}
		in.GlyphStyle.Color = color.RGBA{R: 0x26, G: 0x82, B: 0x8e, A: 255}
		in.GlyphStyle.Radius = vg.Points(2)
		p.Add(in)
		p.Legend.Add("accepted", in)
	}
	if len(outPts) > 0 {
		out, err := plotter.NewScatter(outPts)
		if err != nil {
			return err
		}
		out.GlyphStyle.Color = color.RGBA{R: 0xd6, G: 0x2a, B: 0x2a, A: 255}
		out.GlyphStyle.Radius = vg.Points(2)
		p.Add(out)
		p.Legend.Add("rejected", out)
	}

	kLine, err := plotter.NewLine(plotter.XYs{
		{X: result.QMinOverlap, Y: result.KFactor},
		{X: result.QMaxOverlap, Y: result.KFactor},
	})
	if err != nil {
		return err
	}
	kLine.Color = color.RGBA{R: 0x44, G: 0x44, B: 0x44, A: 255}
	kLine.Width = vg.Points(1)
	p.Add(kLine)
	p.Legend.Add("K", kLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 5*vg.Inch, file); err != nil {
		return fmt.Errorf("save calibration plot: %w", err)
	}
	return nil
}

// MakeOutputDir creates a timestamped directory for report artifacts,
// named after the input file when one is given.
func MakeOutputDir(baseDir, inputFile string) (string, error) {
	ts := time.Now().Format("20060102_150405")
	dir := filepath.Join(baseDir, "run_"+ts)
	if inputFile != "" {
		base := filepath.Base(inputFile)
		ext := filepath.Ext(base)
		dir = filepath.Join(baseDir, base[:len(base)-len(ext)], ts)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	return dir, nil
}
