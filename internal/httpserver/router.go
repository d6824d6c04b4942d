package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carelink/internal/config"
	"carelink/internal/domain"
	"carelink/internal/observability/metrics"
	"carelink/internal/realtime"
	"carelink/internal/security"
	"carelink/internal/service"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Hub           *realtime.Hub
	Verifier      security.Verifier
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Notifier      *service.NotificationService
	// WS serves the websocket upgrade at /ws.
	WS      http.Handler
	Metrics http.Handler
	Log     *slog.Logger
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.WithMetrics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The upgrade hijacks the connection, so /ws stays out of the timeout group.
	r.Method(http.MethodGet, "/ws", deps.WS)

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "version": "1.0.0"})
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
		r.Method(http.MethodGet, "/metrics", metricsHandler)

		r.Route("/api", func(r chi.Router) {
			if cfg.APIRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.APIRateLimit, time.Minute))
			}
			r.Use(AuthMiddleware(deps.Verifier, deps.Log))

			r.Get("/presence", handlePresence(deps.Hub))
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(deps.Conversations))
				r.Post("/", handleResolveConversation(deps.Conversations))
				r.Get("/{conversationID}/messages", handleListMessages(deps.Messages))
				r.Post("/{conversationID}/seen", handleMarkSeen(deps.Messages))
			})
		})

		r.Route("/internal", func(r chi.Router) {
			if cfg.APIRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.APIRateLimit, time.Minute))
			}
			r.Use(InternalKeyMiddleware(cfg.InternalAPIKey))
			r.Post("/notifications", handleNotify(deps.Notifier))
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
