package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Publish(_ context.Context, evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureSink) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func newTestHandler() (*Injector, *captureSink, http.Handler) {
	in := NewInjector("https://track.example.com", "secret")
	sink := &captureSink{}
	return in, sink, NewHandler(in, sink).Routes()
}

func TestHandleOpenServesPixelAndPublishes(t *testing.T) {
	in, sink, router := newTestHandler()

	u, _ := url.Parse(in.PixelURL("camp-1", "log-1"))
	req := httptest.NewRequest("GET", u.RequestURI(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q, want image/gif", ct)
	}
	events := sink.all()
	if len(events) != 1 || events[0].EventType != EventOpen || events[0].LogID != "log-1" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestHandleOpenBadSignatureStillServesPixel(t *testing.T) {
	_, sink, router := newTestHandler()

	req := httptest.NewRequest("GET", "/track/open/log-1?s=forged", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(sink.all()) != 0 {
		t.Error("forged open published an event")
	}
}

func TestHandleClickRedirectsToOriginalURL(t *testing.T) {
	in, sink, router := newTestHandler()
	orig := "https://example.com/offer?id=42"

	u, _ := url.Parse(in.ClickURL("camp-1", "log-1", orig))
	req := httptest.NewRequest("GET", u.RequestURI(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != orig {
		t.Errorf("Location = %q, want %q", loc, orig)
	}
	events := sink.all()
	if len(events) != 1 || events[0].EventType != EventClick || events[0].LinkURL != orig {
		t.Errorf("unexpected events: %+v", events)
	}
	if events[0].CampaignID != "camp-1" || events[0].LogID != "log-1" {
		t.Errorf("event ids wrong: %+v", events[0])
	}
}

func TestHandleClickRejectsTamperedURL(t *testing.T) {
	in, sink, router := newTestHandler()

	u, _ := url.Parse(in.ClickURL("camp-1", "log-1", "https://example.com"))
	q := u.Query()
	q.Set("url", "https://evil.example.com")
	u.RawQuery = q.Encode()

	req := httptest.NewRequest("GET", u.RequestURI(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(sink.all()) != 0 {
		t.Error("tampered click published an event")
	}
}

func TestHandleClickMissingURL(t *testing.T) {
	_, _, router := newTestHandler()

	req := httptest.NewRequest("GET", "/track/click/camp-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
