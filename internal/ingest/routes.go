package ingest

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/MonilMehta/fyp/internal/tracking"
)

// maxBodyBytes caps how much of a telemetry body is read and stored.
const maxBodyBytes = 64 << 10

// Handler serves the disguise surface. Every route logs an access
// event through the pipeline and returns an innocuous payload whose
// shape never depends on the tracking outcome.
type Handler struct {
	pipeline     *Pipeline
	beaconSecret string
}

// NewHandler creates a Handler. beaconSecret signs /api/beacon tokens;
// empty disables the beacon route's token validation entirely (it
// rejects all tokens).
func NewHandler(pipeline *Pipeline, beaconSecret string) *Handler {
	return &Handler{pipeline: pipeline, beaconSecret: beaconSecret}
}

// RegisterRoutes mounts all disguise endpoints on the router. Paths
// are designed to look like normal SaaS traffic.
func (h *Handler) RegisterRoutes(r chi.Router) {
	getHead := func(pattern string, fn http.HandlerFunc) {
		r.Get(pattern, fn)
		r.Head(pattern, fn)
	}

	getHead("/assets/media/{filename}", h.handleMediaAsset)
	getHead("/assets/static/*", h.handleStaticAsset)

	getHead("/config/runtime.json", h.handleConfig(configRuntime))
	getHead("/config/ui-flags.json", h.handleConfig(configUIFlags))
	getHead("/config/doc-settings.json", h.handleConfig(configDocSettings))

	r.Post("/telemetry/metrics", h.handleTelemetry)
	r.Post("/telemetry/client", h.handleTelemetry)
	r.Post("/telemetry/events", h.handleTelemetry)

	getHead("/fonts/{fontname}", h.handleFont)
	getHead("/themes/{themename}", h.handleTheme)

	getHead("/health/ping", h.handlePing)
	getHead("/status/ready", h.handleReady)
	getHead("/prefetch/init", h.handlePrefetch)

	r.Get("/api/beacon", h.handleBeacon)
	r.Post("/api/beacon", h.handleBeacon)
}

// capture runs the pipeline for the current request.
func (h *Handler) capture(r *http.Request, category tracking.EndpointCategory, body []byte, cid string, occurredAt time.Time) {
	h.pipeline.Ingest(r.Context(), Request{
		Category:   category,
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Body:       body,
		Headers:    r.Header,
		RemoteAddr: r.RemoteAddr,
		CID:        cid,
		OccurredAt: occurredAt,
	})
}

func (h *Handler) handleMediaAsset(w http.ResponseWriter, r *http.Request) {
	h.capture(r, tracking.CategoryAsset, nil, "", time.Time{})

	filename := chi.URLParam(r, "filename")
	switch {
	case strings.HasSuffix(filename, ".png"),
		strings.HasSuffix(filename, ".svg"),
		strings.HasSuffix(filename, ".gif"),
		strings.HasSuffix(filename, ".jpg"),
		strings.HasSuffix(filename, ".jpeg"),
		strings.HasSuffix(filename, ".webp"):
		writePNG(w)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleStaticAsset(w http.ResponseWriter, r *http.Request) {
	h.capture(r, tracking.CategoryAsset, nil, "", time.Time{})
	writePNG(w)
}

func (h *Handler) handleConfig(payload any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.capture(r, tracking.CategoryConfig, nil, "", time.Time{})
		writeConfigJSON(w, payload)
	}
}

func (h *Handler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	// The body is stored as received; malformed or missing JSON must
	// never fail the request.
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))

	h.capture(r, tracking.CategoryTelemetry, body, "", time.Time{})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleFont(w http.ResponseWriter, r *http.Request) {
	h.capture(r, tracking.CategoryFont, nil, "", time.Time{})
	writeWOFF2(w)
}

func (h *Handler) handleTheme(w http.ResponseWriter, r *http.Request) {
	h.capture(r, tracking.CategoryTheme, nil, "", time.Time{})
	writeCSS(w, strings.TrimSuffix(chi.URLParam(r, "themename"), ".css"))
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	h.capture(r, tracking.CategoryHealth, nil, "", time.Time{})
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	h.capture(r, tracking.CategoryHealth, nil, "", time.Time{})
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "healthy": true})
}

func (h *Handler) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	h.capture(r, tracking.CategoryHealth, nil, "", time.Time{})
	writeJSON(w, http.StatusOK, map[string]any{
		"preload": []string{},
		"cache":   true,
		"ttl":     3600,
	})
}

// handleBeacon accepts an HS256 JWT carrying the cid (claim "uuid" or
// "cid") and an optional "ts"/"timestamp" claim used as the event
// time. Unlike the rest of the disguise surface this endpoint is
// strict about its token: clients that reach it are ours.
func (h *Handler) handleBeacon(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		token = r.PostFormValue("token")
	}
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Token required"})
		return
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(h.beaconSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid token"})
		return
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid token"})
		return
	}

	cid, _ := claims["uuid"].(string)
	if cid == "" {
		cid, _ = claims["cid"].(string)
	}

	var occurredAt time.Time
	for _, key := range []string{"timestamp", "ts"} {
		switch v := claims[key].(type) {
		case float64:
			occurredAt = time.Unix(int64(v), 0).UTC()
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				occurredAt = t.UTC()
			}
		}
		if !occurredAt.IsZero() {
			break
		}
	}

	h.capture(r, tracking.CategoryTelemetry, nil, cid, occurredAt)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
