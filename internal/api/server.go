package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/collector"
	"github.com/IntelliTrade-io/IntelliTrade/internal/config"
	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
)

// requestTimeout bounds one API-triggered collection run. Collection is
// politeness-throttled, so a full run against slow agencies takes minutes,
// not seconds.
const requestTimeout = 5 * time.Minute

const dateLayout = "2006-01-02"

// Runner executes one collection over a window.
type Runner interface {
	Collect(ctx context.Context, window calendar.Window) (collector.Result, error)
}

// Server wires HTTP handlers to the collector.
type Server struct {
	router chi.Router
	runner Runner
	clock  calendar.Clock
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, clock calendar.Clock, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		runner: runner,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	// Probes and the scrape endpoint stay open; only the data surface is
	// keyed.
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/calendar", s.getCalendar)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// calendarResponse is the /v1/calendar payload: the merged feed plus the
// health report so callers can tell a full answer from a degraded one.
type calendarResponse struct {
	Events []calendar.Event      `json:"events"`
	Health calendar.HealthReport `json:"health"`
}

func (s *Server) getCalendar(w http.ResponseWriter, r *http.Request) {
	window, err := s.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.runner.Collect(r.Context(), window)
	if err != nil {
		s.logger.Error("collection run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := result.Events
	if events == nil {
		events = []calendar.Event{}
	}
	writeJSON(w, http.StatusOK, calendarResponse{Events: events, Health: result.Report})
}

// parseWindow reads since/until query parameters (YYYY-MM-DD, both
// inclusive). Defaults cover today through today plus the configured window.
func (s *Server) parseWindow(r *http.Request) (calendar.Window, error) {
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	since := today
	untilDay := today.AddDate(0, 0, s.cfg.Collector.WindowDays)

	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return calendar.Window{}, fmt.Errorf("invalid since %q: expected YYYY-MM-DD", raw)
		}
		since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return calendar.Window{}, fmt.Errorf("invalid until %q: expected YYYY-MM-DD", raw)
		}
		untilDay = t
	}

	until := untilDay.Add(24*time.Hour - time.Second)
	if until.Before(since) {
		return calendar.Window{}, fmt.Errorf("until %s precedes since %s",
			untilDay.Format(dateLayout), since.Format(dateLayout))
	}
	return calendar.Window{Since: since, Until: until}, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
