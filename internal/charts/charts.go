// Package charts renders SLO timeseries into PNG line charts and stores them
// on disk for the Slack message image blocks to reference.
package charts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/linnemanlabs/herald/internal/prom"
)

// ErrNoData is returned when the queried timeseries carry no points to plot.
var ErrNoData = errors.New("no data to chart")

const (
	chartWidth  = 1180
	chartHeight = 400
	strokeWidth = 4.0
)

var seriesColors = []string{
	"c00eae", "23304a", "cf3411", "5f4509", "1e6378", "446e02",
	"117548", "943e5c", "661c28", "802677", "4f18f4",
}

// Service renders and stores alert trend charts.
type Service struct {
	storageDir string
	logger     log.Logger
}

// New creates a chart service storing PNGs under storageDir.
func New(storageDir string, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{storageDir: storageDir, logger: logger}
}

// CreateAndStore renders a chart for the SLO and writes it to the storage
// directory, returning the generated filename.
func (s *Service) CreateAndStore(ctx context.Context, slo string, tr prom.TimeRange, series []prom.Timeseries) (string, error) {
	filename := fmt.Sprintf("%s-%s.png", ulid.Make(), slo)

	s.logger.Info(ctx, "creating chart", "slo", slo, "filename", filename)

	image, err := Render(slo, tr, series)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(s.storageDir, filename), image, 0o644); err != nil {
		return "", fmt.Errorf("store chart: %w", err)
	}

	return filename, nil
}

// Path resolves a stored chart filename to its on-disk path. Filenames that
// try to escape the storage directory are rejected.
func (s *Service) Path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid chart filename %q", filename)
	}
	return filepath.Join(s.storageDir, filename), nil
}

// Render draws a PNG line chart for the given series. The y-axis format
// follows the SLO class: latency SLOs plot durations, success-rate SLOs plot
// percentages.
func Render(slo string, tr prom.TimeRange, series []prom.Timeseries) ([]byte, error) {
	chartSeries := buildSeries(series)
	if len(chartSeries) == 0 {
		return nil, ErrNoData
	}
	plotted := make([]chart.Series, len(chartSeries))
	for i, s := range chartSeries {
		plotted[i] = s
	}

	graph := chart.Chart{
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{FillColor: drawing.ColorWhite},
		Canvas:     chart.Style{FillColor: drawing.ColorWhite},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
			Range: &chart.ContinuousRange{
				Min: float64(tr.From.UnixNano()),
				Max: float64(tr.To.UnixNano()),
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: yFormatter(slo),
		},
		Series: plotted,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// buildSeries converts the queried timeseries into plottable chart series,
// skipping empty ones. Palette colors are assigned by plotted position, so
// skipped series do not consume a slot.
func buildSeries(series []prom.Timeseries) []chart.TimeSeries {
	chartSeries := make([]chart.TimeSeries, 0, len(series))
	for _, ts := range series {
		if len(ts.Points) == 0 {
			continue
		}

		xs := make([]time.Time, len(ts.Points))
		ys := make([]float64, len(ts.Points))
		for j, p := range ts.Points {
			xs[j] = p.Time
			ys[j] = p.Value
		}

		chartSeries = append(chartSeries, chart.TimeSeries{
			Name:    seriesName(ts),
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(seriesColors[len(chartSeries)%len(seriesColors)]),
				StrokeWidth: strokeWidth,
			},
		})
	}
	return chartSeries
}

func yFormatter(slo string) chart.ValueFormatter {
	switch {
	case strings.HasPrefix(slo, "latency-"):
		return formatDuration
	case strings.HasPrefix(slo, "success-rate-"):
		return formatPercent
	default:
		return chart.FloatValueFormatter
	}
}

func formatPercent(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.2f%%", f*100)
}

func formatDuration(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	if f < 1 {
		return fmt.Sprintf("%.0fms", f*1000)
	}
	return fmt.Sprintf("%.2fs", f)
}

// seriesName builds a legend label from the series name and its most
// distinguishing labels.
func seriesName(ts prom.Timeseries) string {
	if fn, ok := ts.Labels["function"]; ok {
		if mod, ok := ts.Labels["module"]; ok {
			return mod + "::" + fn
		}
		return fn
	}
	if ts.Name != "" {
		return ts.Name
	}
	return "series"
}
