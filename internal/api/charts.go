package api

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/wellclear/internal/alertdb"
	"github.com/banshee-data/wellclear/internal/httputil"
	"github.com/banshee-data/wellclear/internal/monitor"
)

// PairCounter is implemented by alert sources that can total the whole
// alert history per pair, such as *alertdb.DB.
type PairCounter interface {
	PairCounts() ([]alertdb.PairCount, error)
}

var _ PairCounter = (*alertdb.DB)(nil)

type pairTotal struct {
	pair  string
	count int64
}

// countPairs tallies alerts per ownship/intruder pair, most frequent first.
func countPairs(alerts []monitor.Alert) []pairTotal {
	counts := make(map[string]int64)
	for _, a := range alerts {
		counts[a.Ownship.ID+"/"+a.Intruder.ID]++
	}
	out := make([]pairTotal, 0, len(counts))
	for p, n := range counts {
		out = append(out, pairTotal{p, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].pair < out[j].pair
	})
	return out
}

// pairTotals returns per-pair totals and the number of alerts behind them.
// Sources without a PairCounter are counted over the recent window only.
func (s *Server) pairTotals() ([]pairTotal, int64, error) {
	if pc, ok := s.alerts.(PairCounter); ok {
		counts, err := pc.PairCounts()
		if err != nil {
			return nil, 0, err
		}
		totals := make([]pairTotal, 0, len(counts))
		var n int64
		for _, c := range counts {
			totals = append(totals, pairTotal{c.String(), c.Count})
			n += c.Count
		}
		return totals, n, nil
	}

	alerts, err := s.recentAlerts(maxAlertLimit)
	if err != nil {
		return nil, 0, err
	}
	return countPairs(alerts), int64(len(alerts)), nil
}

// alertChart renders a bar chart of violations per pair.
func (s *Server) alertChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	totals, total, err := s.pairTotals()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load alerts: %v", err))
		return
	}

	x := make([]string, 0, len(totals))
	y := make([]opts.BarData, 0, len(totals))
	for _, t := range totals {
		x = append(x, t.pair)
		y = append(y, opts.BarData{Value: t.count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Well-Clear Alerts", Theme: "dark", Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Well-clear violations by pair",
			Subtitle: fmt.Sprintf("alerts=%d pairs=%d at %s", total, len(totals), time.Now().Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "ownship/intruder"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "alerts"}),
	)
	bar.SetXAxis(x).
		AddSeries("alerts", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
