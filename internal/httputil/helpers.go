package httputil

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	loggerKey
	trustedProxiesKey
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// GenerateRequestID creates a new random request ID
func GenerateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}

func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger retrieves the request-scoped logger, or a disabled one outside a request.
func GetLogger(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok {
		return logger
	}
	nopLogger := zerolog.Nop()
	return &nopLogger
}

func WithTrustedProxies(ctx context.Context, trustedProxies []*net.IPNet) context.Context {
	return context.WithValue(ctx, trustedProxiesKey, trustedProxies)
}

func GetTrustedProxies(ctx context.Context) []*net.IPNet {
	if proxies, ok := ctx.Value(trustedProxiesKey).([]*net.IPNet); ok {
		return proxies
	}
	return nil
}

// RequestIDMiddleware extracts or generates a request ID and stores it, a
// request-scoped logger, and the trusted proxy list in the request context.
func RequestIDMiddleware(logger zerolog.Logger, trustedProxies []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > 128 {
				requestID = GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := logger.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Logger()

			ctx := WithRequestID(r.Context(), requestID)
			ctx = WithLogger(ctx, &reqLogger)
			ctx = WithTrustedProxies(ctx, trustedProxies)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromHeaders extracts the client IP, trusting X-Forwarded-For only
// when the immediate peer is one of the trusted proxies from the context.
func ClientIPFromHeaders(r *http.Request) string {
	return ClientIPFromHeadersWithTrustedProxies(r, GetTrustedProxies(r.Context()))
}

func ClientIPFromHeadersWithTrustedProxies(r *http.Request, trustedProxies []*net.IPNet) string {
	remoteHost, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteHost = r.RemoteAddr
	}
	remoteIP := net.ParseIP(remoteHost)
	if remoteIP == nil {
		return ""
	}

	trusted := false
	for _, ipNet := range trustedProxies {
		if ipNet.Contains(remoteIP) {
			trusted = true
			break
		}
	}
	if trusted {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			cand := strings.TrimSpace(strings.Split(xff, ",")[0])
			if ip := net.ParseIP(cand); ip != nil {
				return ip.String()
			}
		}
	}
	return remoteIP.String()
}

// Scheme returns the scheme the client used to reach this service. The
// X-Forwarded-Proto header is honoured only from trusted proxies.
func Scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if fromTrustedProxy(r) {
		switch strings.ToLower(r.Header.Get("X-Forwarded-Proto")) {
		case "https":
			return "https"
		case "http":
			return "http"
		}
	}
	return "http"
}

// HostURL returns the root URL of the host that served r, with a trailing
// slash, e.g. "http://portal.local:5004/".
func HostURL(r *http.Request) string {
	host := r.Host
	if fromTrustedProxy(r) {
		if fh := r.Header.Get("X-Forwarded-Host"); fh != "" {
			host = strings.TrimSpace(strings.Split(fh, ",")[0])
		}
	}
	return Scheme(r) + "://" + host + "/"
}

func fromTrustedProxy(r *http.Request) bool {
	proxies := GetTrustedProxies(r.Context())
	if len(proxies) == 0 {
		return false
	}
	remoteHost, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteHost = r.RemoteAddr
	}
	ip := net.ParseIP(remoteHost)
	if ip == nil {
		return false
	}
	for _, n := range proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// WriteJSON writes a JSON response using a pooled buffer.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("json encode failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}
