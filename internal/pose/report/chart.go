package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/units"
)

// AssetsHost serves the echarts javascript. Deployments without internet
// access point it at a local copy.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// NewChart builds an interactive line chart of the session's angles.
// Records without a measurement become gaps. Times in the subtitle are
// shown in tz.
func NewChart(sess *sampler.Session, zones l3geometry.Zones, tz string) (*charts.Line, error) {
	sum, err := Summarize(sess, zones, tz)
	if err != nil {
		return nil, err
	}

	chs := channels(sess)
	x := make([]string, len(sess.Records))
	for i, r := range sess.Records {
		x[i] = strconv.FormatFloat(r.OffsetMs/1000, 'f', 2, 64)
	}

	subject := sess.SubjectID
	if subject == "" {
		subject = "anon"
	}
	subtitle := fmt.Sprintf("%s %s  valid=%d/%d  mean=%.2f°",
		sum.StartedAt.Format("2006-01-02 15:04:05"), sum.Timezone, sum.Valid, sum.Records, sum.Average.Mean)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hip abduction " + subject, Width: "100%", Height: "560px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Hip abduction - " + subject, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Angle (deg)", Min: 0, Max: zones.CautionMax + 15}),
	)
	line.SetXAxis(x)

	for _, ch := range chs {
		data := make([]opts.LineData, len(ch.value))
		for i, v := range ch.value {
			if math.IsNaN(v) {
				data[i] = opts.LineData{Value: "-"}
				continue
			}
			data[i] = opts.LineData{Value: units.Round(v, units.AnglePlaces)}
		}
		seriesOpts := []charts.SeriesOpts{
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), ConnectNulls: opts.Bool(false)}),
		}
		if ch.name == "average" {
			seriesOpts = append(seriesOpts,
				charts.WithMarkLineNameYAxisItemOpts(
					opts.MarkLineNameYAxisItem{Name: "nominal min", YAxis: zones.NominalMin},
					opts.MarkLineNameYAxisItem{Name: "nominal max", YAxis: zones.NominalMax},
					opts.MarkLineNameYAxisItem{Name: "caution max", YAxis: zones.CautionMax},
				),
			)
		}
		line.AddSeries(ch.name, data, seriesOpts...)
	}
	return line, nil
}

// WriteHTML renders the session chart as a standalone HTML page.
func WriteHTML(w io.Writer, sess *sampler.Session, zones l3geometry.Zones, tz string) error {
	line, err := NewChart(sess, zones, tz)
	if err != nil {
		return err
	}
	return line.Render(w)
}
