// Package debugviz is an optional, unauthenticated debug HTTP surface
// over the Session Store: quick go-echarts renderings of a cached
// session's track geometry and per-driver gap-to-leader trace, for
// visually sanity-checking a build without the replay client.
//
// Grounded on internal/lidar/monitor/echarts_handlers.go's debug chart
// handlers: a small dashboard page linking to individual chart
// endpoints, each building an opts.* series from whatever's currently
// held in memory and rendering straight to the response writer.
package debugviz

import (
	"fmt"
	"html"
	"math"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/raceplay.report/internal/obslog"
	"github.com/banshee-data/raceplay.report/internal/session"
	"github.com/banshee-data/raceplay.report/internal/store"
)

var log = obslog.For(obslog.ComponentDebugViz)

const assetsPrefix = "/assets/"

// Handler serves the debug dashboard and chart endpoints for sessions
// already present in st. It never triggers a load — a session must be
// requested (and finished loading) through the normal dispatch path
// first; an unknown or still-loading key is a 404.
type Handler struct {
	store *store.Store
}

// New builds a debugviz Handler over st.
func New(st *store.Store) *Handler {
	return &Handler{store: st}
}

// Routes registers the debug endpoints onto mux under prefix "/debug".
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/session", h.handleDashboard)
	mux.HandleFunc("/debug/session/track", h.handleTrackChart)
	mux.HandleFunc("/debug/session/gap", h.handleGapChart)
}

func keyFromQuery(r *http.Request) session.Key {
	q := r.URL.Query()
	var year, round int
	fmt.Sscanf(q.Get("year"), "%d", &year)
	fmt.Sscanf(q.Get("round"), "%d", &round)
	return session.Key{Year: year, Round: round, SessionType: session.Type(q.Get("session_type"))}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func (h *Handler) lookupLoaded(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	key := keyFromQuery(r)
	sess, ok := h.store.Lookup(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no session cached for that key")
		return nil, false
	}
	if !sess.IsLoaded() {
		writeError(w, http.StatusNotFound, "session is still loading")
		return nil, false
	}
	if err := sess.LoadError(); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("session failed to load: %v", err))
		return nil, false
	}
	return sess, true
}

// handleDashboard renders a small page linking to the individual charts
// for the requested key, carrying the query string through.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	qs := html.EscapeString(r.URL.RawQuery)
	doc := fmt.Sprintf(dashboardHTML, qs, qs)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// handleTrackChart renders the session's track geometry as a polyline
// scatter, useful for spotting a bad track-geometry extraction at a
// glance.
func (h *Handler) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupLoaded(w, r)
	if !ok {
		return
	}
	if len(sess.TrackGeometry) == 0 {
		writeError(w, http.StatusNotFound, "session has no track geometry")
		return
	}

	data := make([]opts.ScatterData, 0, len(sess.TrackGeometry))
	maxAbs := 0.0
	for _, p := range sess.TrackGeometry {
		x, y := float64(p.X), float64(p.Y)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y}})
	}
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track Geometry", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: assetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Track Geometry", Subtitle: fmt.Sprintf("%s points=%d", sess.Key.String(), len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("track", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	if err := scatter.Render(w); err != nil {
		log.Error().Err(err).Msg("failed to render track chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

// handleGapChart renders each driver's gap-to-leader over session time
// as a line series, one line per driver code.
func (h *Handler) handleGapChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupLoaded(w, r)
	if !ok {
		return
	}
	if len(sess.Frames) == 0 {
		writeError(w, http.StatusNotFound, "session has no frames")
		return
	}

	xAxis := make([]string, len(sess.Frames))
	series := make(map[string][]opts.LineData)
	for i, f := range sess.Frames {
		xAxis[i] = fmt.Sprintf("%.1f", f.T)
		for code, d := range f.Drivers {
			val := interface{}(nil)
			if d.GapToLeader != nil {
				val = *d.GapToLeader
			}
			series[code] = append(series[code], opts.LineData{Value: val})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gap to Leader", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: assetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Gap to Leader", Subtitle: sess.Key.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "gap (s)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis)
	for _, code := range sortedDriverCodes(sess) {
		line.AddSeries(code, series[code], charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	page := components.NewPage()
	page.SetAssetsHost(assetsPrefix)
	page.AddCharts(line)
	if err := page.Render(w); err != nil {
		log.Error().Err(err).Msg("failed to render gap chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}

func sortedDriverCodes(sess *session.Session) []string {
	codes := make([]string, 0, len(sess.DriverNumbers))
	for code := range sess.DriverNumbers {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

const dashboardHTML = `<!DOCTYPE html>
<html><head><title>Session Debug</title></head>
<body>
<h1>Session Debug</h1>
<ul>
<li><a href="/debug/session/track?%s">Track geometry</a></li>
<li><a href="/debug/session/gap?%s">Gap to leader</a></li>
</ul>
</body></html>`
