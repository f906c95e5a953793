package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/beamline-data/saxsabs/internal/calibrate"
)

// RenderChart writes an interactive HTML scatter chart of the ratio curve
// for a calibration result. Accepted and rejected points are separate
// series so they can be toggled in the browser.
func RenderChart(result *calibrate.Result, standard string, w io.Writer) error {
	if result == nil || len(result.Grid) == 0 {
		return fmt.Errorf("no calibration points to chart")
	}

	accepted := make([]opts.ScatterData, 0, len(result.Grid))
	rejected := make([]opts.ScatterData, 0, len(result.Grid))
	for i, q := range result.Grid {
		r := result.Ratios[i]
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		d := opts.ScatterData{Value: []interface{}{q, r}}
		if result.InlierMask[i] {
			accepted = append(accepted, d)
		} else {
			rejected = append(rejected, d)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Absolute Intensity Calibration", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Calibration vs %s", standard),
			Subtitle: fmt.Sprintf("K=%.6g ± %.3g, %d/%d points used", result.KFactor, result.KStd, result.PointsUsed, result.PointsTotal),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "q (1/Å)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "I_ref / I_meas", NameLocation: "middle", NameGap: 40}),
	)

	scatter.AddSeries("accepted", accepted, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	if len(rejected) > 0 {
		scatter.AddSeries("rejected", rejected, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
