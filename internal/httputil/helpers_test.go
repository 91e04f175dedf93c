package httputil

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func mustCIDR(t *testing.T, s string) *net.IPNet {
	t.Helper()
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		t.Fatalf("parse cidr: %v", err)
	}
	return n
}

func TestHostURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://portal.local:5004/click", nil)
	if got := HostURL(req); got != "http://portal.local:5004/" {
		t.Errorf("expected http://portal.local:5004/, got %q", got)
	}

	req.TLS = &tls.ConnectionState{}
	if got := HostURL(req); got != "https://portal.local:5004/" {
		t.Errorf("expected https scheme with TLS, got %q", got)
	}
}

func TestHostURL_ForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/click", nil)
	req.Host = "10.0.0.5:5004"
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "abc.ngrok.io")

	// Untrusted peer: headers ignored.
	if got := HostURL(req); got != "http://10.0.0.5:5004/" {
		t.Errorf("untrusted forwarded headers must be ignored, got %q", got)
	}

	req = req.WithContext(WithTrustedProxies(req.Context(), []*net.IPNet{mustCIDR(t, "10.0.0.0/8")}))
	if got := HostURL(req); got != "https://abc.ngrok.io/" {
		t.Errorf("expected forwarded URL from trusted proxy, got %q", got)
	}
}

func TestClientIPFromHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.10")

	if got := ClientIPFromHeadersWithTrustedProxies(req, nil); got != "192.0.2.10" {
		t.Errorf("expected remote addr without trusted proxies, got %q", got)
	}
	trusted := []*net.IPNet{mustCIDR(t, "192.0.2.0/24")}
	if got := ClientIPFromHeadersWithTrustedProxies(req, trusted); got != "203.0.113.7" {
		t.Errorf("expected XFF client from trusted proxy, got %q", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var gotID string
	var gotLogger *zerolog.Logger
	h := RequestIDMiddleware(zerolog.Nop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetRequestID(r.Context())
		gotLogger = GetLogger(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if gotID != "abc123" {
		t.Errorf("expected propagated request id, got %q", gotID)
	}
	if w.Header().Get("X-Request-ID") != "abc123" {
		t.Error("expected X-Request-ID response header")
	}
	if gotLogger == nil {
		t.Error("expected logger in context")
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(gotID) != 32 {
		t.Errorf("expected generated 32-char id, got %q", gotID)
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusTeapot, map[string]string{"status": "ok"})

	if w.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	var m map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil || m["status"] != "ok" {
		t.Errorf("unexpected body %q (err=%v)", w.Body.String(), err)
	}
}
