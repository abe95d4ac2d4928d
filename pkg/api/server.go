package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/verseforge/verseforge/pkg/config"
	"github.com/verseforge/verseforge/pkg/imagestore"
	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metrics"
	"github.com/verseforge/verseforge/pkg/model"
	"github.com/verseforge/verseforge/pkg/moderation"
	"github.com/verseforge/verseforge/pkg/ratelimit"
	"github.com/verseforge/verseforge/pkg/telemetry"
	"github.com/verseforge/verseforge/pkg/types"
	"github.com/verseforge/verseforge/pkg/validate"
	"github.com/verseforge/verseforge/pkg/verse"
)

// CacheView is the cache surface the handlers need directly. Metadata
// reads, including the idempotency precheck, go through the image store;
// this covers only the daily verse pointer.
type CacheView interface {
	GetDailyVerse(ctx context.Context) (string, bool)
	SetDailyVerse(ctx context.Context, imageID string)
}

// Server carries the wired request pipeline
type Server struct {
	cfg       *config.Config
	validator *validate.Validator
	resolver  *verse.Resolver
	client    model.Client
	gate      *moderation.Gate
	reviews   *moderation.Service
	images    *imagestore.Store
	cache     CacheView
	limiter   *ratelimit.Coordinator
	tracker   *telemetry.Tracker
	logger    zerolog.Logger

	// generating collapses concurrent duplicates of one requestId onto
	// a single model invocation.
	generating singleflight.Group
}

func NewServer(
	cfg *config.Config,
	validator *validate.Validator,
	resolver *verse.Resolver,
	client model.Client,
	gate *moderation.Gate,
	reviews *moderation.Service,
	images *imagestore.Store,
	cache CacheView,
	limiter *ratelimit.Coordinator,
	tracker *telemetry.Tracker,
) *Server {
	return &Server{
		cfg:       cfg,
		validator: validator,
		resolver:  resolver,
		client:    client,
		gate:      gate,
		reviews:   reviews,
		images:    images,
		cache:     cache,
		limiter:   limiter,
		tracker:   tracker,
		logger:    log.WithComponent("api"),
	}
}

// Router builds the HTTP surface
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return s.cfg.OriginAllowed(origin)
		},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:             86400,
		OptionsPassthrough: true,
	}))
	r.Use(preflight204)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Get("/daily-verse", s.handleDailyVerse)
		r.Get("/verses/search", s.handleVerseSearch)
		r.Get("/images/{id}", s.handleImageMetadata)
		r.Get("/images/{id}/data", s.handleImageData)
		r.Get("/images/{id}/share", s.handleImageShare)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/moderate", s.handleModerate)
			r.Get("/moderation/pending", s.handlePendingModeration)
		})
	})

	if s.cfg.IsDevelopment() {
		r.Post("/internal/set-daily-verse", s.handleSetDailyVerse)
	}

	return r
}

// preflight204 terminates any OPTIONS request that the CORS middleware
// passed through with an empty 204.
func preflight204(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns panics into the 500 envelope instead of a dropped
// connection.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				writeError(w, r, types.E(types.CodeInternal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe records request metrics and the per-operation telemetry log
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		duration := time.Since(start)

		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())

		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("operation", r.Method+" "+route).
			Int("status", status).
			Dur("duration", duration).
			Msg("request complete")
	})
}

// requireAdmin guards the admin surface with the bearer admin token:
// missing credentials are 401, wrong credentials 403.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, r, types.E(types.CodeUnauthorized, "missing authorization"))
			return
		}
		token, ok := bearerToken(auth)
		if !ok || s.cfg.AdminToken == "" || token != s.cfg.AdminToken {
			writeError(w, r, types.E(types.CodeForbidden, "invalid admin token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}

// identity derives the rate-limit identity and tier for a request.
// Authenticated subjects bucket by user, anonymous traffic by client IP
// (CF-Connecting-IP when fronted by the CDN, RealIP otherwise).
func (s *Server) identity(r *http.Request) (identity string, tier ratelimit.Tier, userID string) {
	if userID = r.Header.Get("X-User-Id"); userID != "" {
		return "user:" + userID, ratelimit.TierAuthenticated, userID
	}
	ip := r.Header.Get("CF-Connecting-IP")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return "ip:" + ip, ratelimit.TierAnonymous, ""
}
