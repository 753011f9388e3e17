package http

import (
	"net/http"
	"sort"
	"strings"

	"cruscotto/internal/cache"
	"cruscotto/internal/core"
	"cruscotto/internal/log"
	"cruscotto/internal/middleware/ratelimit"
	"cruscotto/internal/middleware/security"
	"cruscotto/internal/middleware/trace"
	"cruscotto/internal/palette"
	"cruscotto/internal/series"
	"cruscotto/internal/source"
)

type seriesResponse struct {
	From          string            `json:"from"`
	To            string            `json:"to"`
	Granularity   core.Granularity  `json:"granularity"`
	Buckets       []series.Bucket   `json:"buckets"`
	Subcategories []string          `json:"subcategories"`
	Colors        map[string]string `json:"colors"`
	Skipped       int               `json:"skipped"`
}

type categoriesResponse struct {
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	Categories []source.CategoryTotal `json:"categories"`
}

type paletteResponse struct {
	BaseColor     string            `json:"base_color"`
	Subcategories []string          `json:"subcategories"`
	Colors        map[string]string `json:"colors"`
}

type metricsResponse struct {
	HTTP      trace.Metrics             `json:"http"`
	RateLimit ratelimit.Metrics         `json:"rate_limit"`
	Security  security.DetectionMetrics `json:"security"`
	Caches    map[string]int            `json:"cache_sizes"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		ServiceUnavailableError("no data source configured").Write(w)
		return
	}
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ServiceUnavailableError("data source not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// handleSeries serves the stacked-chart payload: bucketed magnitudes per
// subcategory plus a color for each subcategory.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	win, err := parseWindow(q, s.now(), DefaultWindowDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	base := s.baseColor(q.Get("color"))
	if _, err := palette.ParseColor(base); err != nil {
		writeError(w, r, err)
		return
	}

	records, err := s.source.ListTransactions(ctx, win)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := s.aggregator.Aggregate(records, win)
	colors, err := s.palette.Derive(res.Subcategories, base)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger := log.FromContext(ctx)
	logger.DebugContext(ctx, "Series aggregated",
		log.FieldOperation, log.OpAggregate,
		log.FieldWindow, win.String(),
		log.FieldGranularity, res.Granularity,
		log.FieldRecords, len(records),
		log.FieldBuckets, len(res.Buckets))
	if res.Skipped > 0 {
		logger.WarnContext(ctx, "Records with unparsable dates skipped",
			log.FieldWindow, win.String(),
			log.FieldSkipped, res.Skipped)
	}

	NewJSONResponse().Body(seriesResponse{
		From:          core.FormatDate(win.From),
		To:            core.FormatDate(win.To),
		Granularity:   res.Granularity,
		Buckets:       res.Buckets,
		Subcategories: res.Subcategories,
		Colors:        colors,
		Skipped:       res.Skipped,
	}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r.URL.Query(), s.now(), DefaultWindowDays)
	if err != nil {
		writeError(w, r, err)
		return
	}

	totals, err := s.source.CategoryTotals(r.Context(), win)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if totals == nil {
		totals = []source.CategoryTotal{}
	}

	NewJSONResponse().Body(categoriesResponse{
		From:       core.FormatDate(win.From),
		To:         core.FormatDate(win.To),
		Categories: totals,
	}).Write(w)
}

// handlePalette derives colors for an explicit, ordered subcategory list.
func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subs := parseList(q.Get("subcategories"))
	base := s.baseColor(q.Get("color"))

	colors, err := s.palette.Derive(subs, base)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).DebugContext(r.Context(), "Palette derived",
		log.FieldOperation, log.OpDerive,
		log.FieldBaseColor, base,
		"subcategories", len(subs))

	NewJSONResponse().Body(paletteResponse{
		BaseColor:     base,
		Subcategories: subs,
		Colors:        colors,
	}).Write(w)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("cache"); name != "" {
		c, ok := s.caches[name]
		if !ok {
			s.unknownCache(w, r, name)
			return
		}
		NewJSONResponse().Body(c.Stats()).Write(w)
		return
	}

	out := make(map[string]cache.Stats, len(s.caches))
	for name, c := range s.caches {
		out[name] = c.Stats()
	}
	NewJSONResponse().Body(out).Write(w)
}

// handleCacheDelete removes one key. Without ?cache= every cache is tried.
func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		BadRequestError("missing key parameter").
			RequestID(trace.GetRequestID(r.Context())).
			Write(w)
		return
	}

	targets, ok := s.selectCaches(q.Get("cache"))
	if !ok {
		s.unknownCache(w, r, q.Get("cache"))
		return
	}

	deleted := false
	for _, name := range targets {
		if s.caches[name].Delete(key) {
			deleted = true
		}
	}
	if !deleted {
		NotFoundError("key not cached").
			RequestID(trace.GetRequestID(r.Context())).
			Write(w)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Cache entry deleted",
		log.FieldOperation, log.OpInvalidate,
		log.FieldCacheKey, key)
	NoContent().Write(w)
}

// handleCacheClear empties the named cache, or all of them.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	targets, ok := s.selectCaches(r.URL.Query().Get("cache"))
	if !ok {
		s.unknownCache(w, r, r.URL.Query().Get("cache"))
		return
	}

	for _, name := range targets {
		s.caches[name].Clear()
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Caches cleared",
		log.FieldOperation, log.OpInvalidate,
		"caches", strings.Join(targets, ","))
	NoContent().Write(w)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	sizes := make(map[string]int, len(s.caches))
	for name, c := range s.caches {
		sizes[name] = c.Stats().Size
	}
	NewJSONResponse().Body(metricsResponse{
		HTTP:      s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Caches:    sizes,
	}).Write(w)
}

func (s *Server) baseColor(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return s.defaultColor
}

// selectCaches returns the sorted names addressed by name; empty means all.
func (s *Server) selectCaches(name string) ([]string, bool) {
	if name != "" {
		if _, ok := s.caches[name]; !ok {
			return nil, false
		}
		return []string{name}, true
	}
	names := make([]string, 0, len(s.caches))
	for n := range s.caches {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, true
}

func (s *Server) unknownCache(w http.ResponseWriter, r *http.Request, name string) {
	NotFoundError("unknown cache " + name).
		RequestID(trace.GetRequestID(r.Context())).
		Write(w)
}
