package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vocalwrite/internal/polish"
	"vocalwrite/internal/ports"
	"vocalwrite/internal/providers/tencent"
)

const maxPolishBody = 1 << 20

// RequestObserver counts served API requests.
type RequestObserver interface {
	RequestServed(ctx context.Context, route string, status int)
}

// Config controls the backend router.
type Config struct {
	// MasterAPIKey guards /api/*. An empty key leaves the API open.
	MasterAPIKey string
	// Metrics is mounted at /metrics when set.
	Metrics  http.Handler
	Observer RequestObserver
}

type handlers struct {
	signer   ports.SignedURLSource
	polisher ports.Polisher
	logger   *slog.Logger
}

// NewRouter serves signing, polishing, health and metrics for the desktop app.
func NewRouter(cfg Config, signer ports.SignedURLSource, polisher ports.Polisher, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{signer: signer, polisher: polisher, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method Not Allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not Found"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.Observer != nil {
			r.Use(observe(cfg.Observer))
		}
		r.Use(requireAPIKey(cfg.MasterAPIKey))
		r.Get("/generate-signature", h.generateSignature)
		r.Post("/polish-text", h.polishText)
	})

	return r
}

func (h *handlers) generateSignature(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": tencent.ErrNotConfigured.Error()})
		return
	}
	url, err := h.signer.SignedURL(r.Context())
	if err != nil {
		h.logger.Error("signature generation failed", slog.String("error", err.Error()))
		if errors.Is(err, tencent.ErrNotConfigured) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to generate signature"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (h *handlers) polishText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPolishBody)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Text is required"})
		return
	}
	if h.polisher == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "polishing is not configured"})
		return
	}

	started := time.Now()
	polished, err := h.polisher.Polish(r.Context(), body.Text)
	if err != nil {
		h.logger.Error("polish failed", slog.String("error", err.Error()))
		if errors.Is(err, polish.ErrEmptyText) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Text is required"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to get a valid response from LLM API"})
		return
	}
	h.logger.Info("polish served", slog.Duration("elapsed", time.Since(started)))
	writeJSON(w, http.StatusOK, map[string]any{"polishedText": polished})
}

func requireAPIKey(masterKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if masterKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or missing API key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func observe(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			observer.RequestServed(r.Context(), route, status)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
