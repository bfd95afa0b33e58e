package tracking

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// EventSink receives decoded tracking events. *Publisher implements it.
type EventSink interface {
	Publish(ctx context.Context, evt Event)
}

type Handler struct {
	injector *Injector
	sink     EventSink
}

// NewHandler creates the HTTP handler for the tracking endpoints. sink may
// be nil, in which case events are only logged.
func NewHandler(injector *Injector, sink EventSink) *Handler {
	return &Handler{injector: injector, sink: sink}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track/open/{key}", h.HandleOpen)
	r.Get("/track/click/{campaignID}", h.HandleClick)
	r.Get("/health", h.HandleHealth)
	return r
}

// HandleOpen records an open event and serves the pixel. The pixel is served
// even for invalid signatures so broken requests render invisibly in clients.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sig := r.URL.Query().Get("s")

	if key == "" || !h.injector.Verify(key, sig) {
		h.servePixel(w)
		return
	}

	evt := Event{
		EventType: EventOpen,
		LogID:     key,
		IPAddress: realIP(r),
		UserAgent: r.UserAgent(),
		Timestamp: time.Now().UTC(),
	}
	h.publish(r, evt)

	log.Printf("OPEN key=%s", key)
	h.servePixel(w)
}

// HandleClick verifies the signed redirect and forwards to the original URL.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	q := r.URL.Query()
	originalURL := q.Get("url")
	logID := q.Get("lid")
	sig := q.Get("s")

	if originalURL == "" {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	if !h.injector.Verify(campaignID+"|"+logID+"|"+originalURL, sig) {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	evt := Event{
		EventType:  EventClick,
		CampaignID: campaignID,
		LogID:      logID,
		LinkURL:    originalURL,
		IPAddress:  realIP(r),
		UserAgent:  r.UserAgent(),
		Timestamp:  time.Now().UTC(),
	}
	h.publish(r, evt)

	log.Printf("CLICK campaign=%s log=%s url=%s", campaignID, logID, originalURL)
	http.Redirect(w, r, originalURL, http.StatusTemporaryRedirect)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) publish(r *http.Request, evt Event) {
	if h.sink == nil {
		return
	}
	h.sink.Publish(r.Context(), evt)
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
