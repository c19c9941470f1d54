// Package chart renders trend series as PNG line charts.
package chart

import (
	"errors"

	"github.com/vicanso/go-charts/v2"

	"github.com/i474232898/air-health-tracker/internal/airquality"
)

// ErrNotEnoughPoints is returned when a series is too short to draw.
var ErrNotEnoughPoints = errors.New("not enough data points")

// RenderTrend draws AQI on the left axis and the asthma-rate estimate on the right.
func RenderTrend(title string, points []airquality.TrendPoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, ErrNotEnoughPoints
	}

	labels := make([]string, len(points))
	aqi := make([]float64, len(points))
	rate := make([]float64, len(points))
	aqiMax := 0.0
	for i, p := range points {
		labels[i] = p.Date
		if len(p.Date) == len(airquality.DateLayout) {
			labels[i] = p.Date[5:] // MM-DD
		}
		aqi[i] = float64(p.AQI)
		rate[i] = p.AsthmaRate
		if aqi[i] > aqiMax {
			aqiMax = aqi[i]
		}
	}

	aqiMin := 0.0
	// Round up to the next EPA band edge.
	aqiTop := 50.0
	for aqiTop < aqiMax {
		aqiTop += 50
	}
	rateMin, rateMax := airquality.MinAsthmaRate, airquality.MaxAsthmaRate

	seriesList := charts.NewSeriesListDataFromValues([][]float64{aqi, rate}, charts.ChartTypeLine)
	names := []string{"AQI", "Asthma rate"}
	for i := range seriesList {
		seriesList[i].Name = names[i]
		seriesList[i].AxisIndex = i
	}

	split := len(labels)
	if split > 10 {
		split = 10
	}

	painter, err := charts.Render(
		charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc(title, "AQI and estimated asthma rate (%)"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: split}),
		charts.YAxisOptionFunc(
			charts.YAxisOption{Min: &aqiMin, Max: &aqiTop, DivideCount: 5},
			charts.YAxisOption{Min: &rateMin, Max: &rateMax, DivideCount: 5, Position: charts.PositionRight},
		),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}
