package datalog

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ExportChartHTML renders the recorded session as a standalone HTML line
// chart with command, feedback, and error traces
func (l *Logger) ExportChartHTML(path, title string) error {
	points := l.points()
	if len(points) == 0 {
		return fmt.Errorf("nothing recorded")
	}

	xs := make([]string, len(points))
	cmd := make([]opts.LineData, len(points))
	fb := make([]opts.LineData, len(points))
	errs := make([]opts.LineData, len(points))
	for i, p := range points {
		xs[i] = fmt.Sprintf("%.2f", p.Time)
		cmd[i] = opts.LineData{Value: p.CmdRaw}
		fb[i] = opts.LineData{Value: p.Feedback}
		errs[i] = opts.LineData{Value: p.Error}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RPM"}),
	)
	line.SetXAxis(xs).
		AddSeries("Command", cmd).
		AddSeries("Feedback", fb).
		AddSeries("Error", errs)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating chart file: %w", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return fmt.Errorf("error rendering chart: %w", err)
	}
	l.log.Info("exported chart", "path", path, "points", len(points))
	return nil
}
