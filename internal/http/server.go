package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cruscotto/internal/cache"
	"cruscotto/internal/log"
	"cruscotto/internal/middleware/ratelimit"
	"cruscotto/internal/middleware/security"
	"cruscotto/internal/middleware/trace"
	"cruscotto/internal/palette"
	"cruscotto/internal/series"
	"cruscotto/internal/source"
)

// DefaultWindowDays is the span served when a request names no window.
const DefaultWindowDays = 90

// Options wires the server to its data source and caches.
type Options struct {
	Source source.Source
	// Caches are exposed by the cache admin endpoints under their map key.
	Caches  map[string]cache.Admin
	Palette *palette.Memo
	// Aggregator controls bucketing; the zero value starts weeks on Sunday.
	Aggregator       series.Aggregator
	DefaultBaseColor string
	// Ready backs /readyz. Nil means always ready.
	Ready     func(ctx context.Context) error
	Logger    *log.Logger
	RateLimit ratelimit.Config
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server is the dashboard data API.
type Server struct {
	http.Server

	source       source.Source
	caches       map[string]cache.Admin
	palette      *palette.Memo
	aggregator   series.Aggregator
	defaultColor string
	ready        func(ctx context.Context) error
	logger       *log.Logger
	now          func() time.Time

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	memo := opts.Palette
	if memo == nil {
		memo = palette.NewMemo(0)
	}
	color := opts.DefaultBaseColor
	if color == "" {
		color = "#ec4899"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rl := opts.RateLimit
	if rl.RequestsPerMinute <= 0 {
		rl = ratelimit.DefaultConfig()
	}

	detector := security.NewDetector()
	s := &Server{
		source:       opts.Source,
		caches:       opts.Caches,
		palette:      memo,
		aggregator:   opts.Aggregator,
		defaultColor: color,
		ready:        opts.Ready,
		logger:       logger.WithComponent(log.ComponentHTTP),
		now:          now,
		tracer:       trace.NewMiddleware(logger, detector.ExtractClientIP),
		limiter:      ratelimit.NewLimiter(rl),
		detector:     detector,
	}
	if s.caches == nil {
		s.caches = map[string]cache.Admin{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/palette", s.handlePalette)

	mux.HandleFunc("GET /api/cache", s.handleCacheStats)
	mux.HandleFunc("DELETE /api/cache", s.handleCacheDelete)
	mux.HandleFunc("POST /api/cache/clear", s.handleCacheClear)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimit)

	var handler http.Handler = mux
	handler = limited(handler)
	handler = headers.Middleware(handler)
	handler = detector.Middleware(s.logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r))
	TooManyRequestsError("rate limit exceeded, please try again later").
		RequestID(trace.GetRequestID(r.Context())).
		Write(w)
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
// Only the first call does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
