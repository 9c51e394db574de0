package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mentorledger/internal/cache"
	"mentorledger/internal/core"
	applog "mentorledger/internal/log"
	"mentorledger/internal/middleware/ratelimit"
	"mentorledger/internal/middleware/security"
	"mentorledger/internal/middleware/trace"
	"mentorledger/internal/services"
)

const totalsCacheKey = "portfolio"

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the server. Zero values select the defaults.
type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	TotalsCacheTTL     time.Duration
	Logger             *applog.Logger
	Readiness          Pinger
	Now                func() time.Time
}

type Server struct {
	http.Server
	ledgers   *services.LedgerService
	readiness Pinger
	now       func() time.Time

	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	// portfolio totals are cached until the next mutation
	totalsCache *cache.LRUCache[core.PortfolioTotals]
	totalsGroup singleflight.Group
	totalsGen   atomic.Uint64
	caches      *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires the API routes and middleware chain.
func NewServer(addr string, ledgers *services.LedgerService, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.TotalsCacheTTL <= 0 {
		opts.TotalsCacheTTL = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.WithComponent(applog.ComponentHTTP)

	ips := security.NewClientIPResolver()
	for _, cidr := range opts.TrustedProxies {
		if err := ips.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
	}

	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		ledgers:     ledgers,
		readiness:   opts.Readiness,
		now:         opts.Now,
		limiter:     ratelimit.NewLimiter(limitCfg),
		tracer:      trace.NewMiddleware(ips.ExtractClientIP, logger),
		totalsCache: cache.NewLRUCache[core.PortfolioTotals](1, opts.TotalsCacheTTL),
		caches:      cache.NewManager(),
	}
	s.caches.Register("portfolio_totals", s.totalsCache)
	s.caches.StartCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/currencies", handleCurrencies)
	mux.HandleFunc("PUT /api/enrollments/{id}", s.handleRegisterEnrollment)
	mux.HandleFunc("GET /api/enrollments/{id}/ledger", s.handleEnrollmentLedger)

	mux.HandleFunc("POST /api/ledgers", s.handleCreateLedger)
	mux.HandleFunc("GET /api/ledgers", s.handleListLedgers)
	mux.HandleFunc("GET /api/ledgers/{id}", s.handleGetLedger)
	mux.HandleFunc("PATCH /api/ledgers/{id}", s.handleUpdateLedger)
	mux.HandleFunc("DELETE /api/ledgers/{id}", s.handleDeleteLedger)

	mux.HandleFunc("POST /api/installments/{id}/toggle", s.handleToggleInstallment)
	mux.HandleFunc("PATCH /api/installments/{id}", s.handleEditInstallment)

	mux.HandleFunc("GET /api/portfolio/totals", s.handlePortfolioTotals)
	mux.HandleFunc("GET /api/portfolio/export.xlsx", s.handlePortfolioExport)

	limited := s.limiter.Middleware(ips.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldComponent, applog.ComponentRateLimit,
			applog.FieldClientIP, ips.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	var handler http.Handler = mux
	handler = limited(handler)
	handler = headers.Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 15 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s, nil
}

// Shutdown stops background goroutines and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.caches.Stop()
	})
	return s.Server.Shutdown(ctx)
}

// Metrics exposes the request counters of the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.readiness.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "store not ready").Write(w)
			return
		}
	}
	m := s.Metrics()
	NewJSONResponse().JSON(map[string]interface{}{
		"status":           "ready",
		"total_requests":   m.TotalRequests,
		"server_errors":    m.ServerErrors,
		"last_response_us": m.LastResponseTime,
	}).Write(w)
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now().UTC())
}

// fail writes the error response for err and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string, fields applog.LogFields) {
	if t := errorType(err); t == applog.ErrorTypeInternal {
		requestEvents(r).LogError(r.Context(), "Request failed", err, op, fields)
	} else {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op, applog.FieldError, err, "error_type", t)
	}
	ErrorFor(err).Write(w)
}

// requestEvents logs through the logger bound to the request.
func requestEvents(r *http.Request) *applog.StructuredLogger {
	return applog.NewStructuredLogger(applog.FromContext(r.Context()))
}

// invalidateTotals drops cached portfolio totals after a mutation.
func (s *Server) invalidateTotals() {
	s.totalsGen.Add(1)
	s.totalsCache.Purge()
}

// portfolioTotals serves cached totals, collapsing concurrent misses into a
// single load. Loads are keyed by generation, so a request that follows a
// mutation never joins a load that started before it. A load that raced
// with a mutation is returned but not cached.
func (s *Server) portfolioTotals(ctx context.Context) (core.PortfolioTotals, error) {
	if t, ok := s.totalsCache.Get(totalsCacheKey); ok {
		return t, nil
	}
	gen := s.totalsGen.Load()
	// shared by every joined caller, so one client going away must not cancel it
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.totalsGroup.Do(fmt.Sprintf("%s:%d", totalsCacheKey, gen), func() (interface{}, error) {
		t, err := s.ledgers.PortfolioTotals(loadCtx)
		if err != nil {
			return core.PortfolioTotals{}, err
		}
		if s.totalsGen.Load() == gen {
			s.totalsCache.Set(totalsCacheKey, t)
		}
		return t, nil
	})
	if err != nil {
		return core.PortfolioTotals{}, err
	}
	return v.(core.PortfolioTotals), nil
}
