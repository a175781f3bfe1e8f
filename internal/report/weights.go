package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/hypotrack/internal/fsutil"
)

// RenderWeights writes an HTML page with one bar per weight, labeled by
// its description.
func RenderWeights(w io.Writer, title string, descriptions []string, weights []float64) error {
	if len(descriptions) != len(weights) {
		return fmt.Errorf("%d descriptions for %d weights", len(descriptions), len(weights))
	}

	data := make([]opts.BarData, len(weights))
	for i, v := range weights {
		data[i] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d weights", len(weights))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(descriptions).
		AddSeries("weight", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(len(weights) <= 20), Position: "top"}),
		)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render weights chart: %w", err)
	}
	return nil
}

// SaveWeightsChart renders the weights chart to path, replacing any
// existing file.
func SaveWeightsChart(path, title string, descriptions []string, weights []float64) error {
	return fsutil.WriteAtomic(fsutil.OSFileSystem{}, path, func(w io.Writer) error {
		return RenderWeights(w, title, descriptions, weights)
	})
}
