package main

import (
	"context"
	"net/http"
	"time"

	"splashgate/portal-service/internal/circuitbreaker"
	"splashgate/portal-service/internal/httputil"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var startTime = time.Now()

// Middleware wraps an http.Handler and returns a new handler
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so that Chain(mw1, mw2)(h) == mw1(mw2(h)).
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

func withCommonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; form-action 'self' https: http:; frame-ancestors 'none'")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pinger interface {
	Ping(ctx context.Context) error
}

type readiness struct {
	store    pinger // nil for the in-memory store
	breakers []*circuitbreaker.CircuitBreaker
	network  string
}

// ServeHTTP reports "degraded" with 503 when the session backend is down; an
// open breaker degrades /success only and is reported without failing.
func (rd *readiness) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type status struct {
		Status     string            `json:"status"` // "ok" | "degraded"
		Network    string            `json:"network_id"`
		Components map[string]string `json:"components"`
	}
	st := status{Status: "ok", Network: rd.network, Components: map[string]string{}}
	code := http.StatusOK

	st.Components["session_store"] = "ok"
	if rd.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rd.store.Ping(ctx); err != nil {
			st.Components["session_store"] = "unreachable"
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	for _, cb := range rd.breakers {
		st.Components[cb.Name()] = cb.State().String()
	}
	httputil.WriteJSON(w, code, st)
}

// handleAdminStats aggregates the handshake metrics into a JSON summary.
func handleAdminStats(g prometheus.Gatherer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mfs, err := g.Gather()
		if err != nil {
			httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "metrics_error"})
			return
		}
		findMF := func(name string) *dto.MetricFamily {
			for _, mf := range mfs {
				if mf.GetName() == name {
					return mf
				}
			}
			return nil
		}
		label := func(m *dto.Metric, name string) string {
			for _, l := range m.GetLabel() {
				if l.GetName() == name {
					return l.GetValue()
				}
			}
			return ""
		}

		stats := map[string]map[string]any{
			"handshake":     {},
			"controller":    {},
			"notifications": {},
			"system":        {},
		}

		if mf := findMF("splashgate_handshake_steps_total"); mf != nil {
			for _, m := range mf.GetMetric() {
				stats["handshake"][label(m, "step")+"_"+label(m, "result")] = m.GetCounter().GetValue()
			}
		}
		if mf := findMF("splashgate_sessions_active"); mf != nil && len(mf.GetMetric()) > 0 {
			stats["handshake"]["active_sessions"] = mf.GetMetric()[0].GetGauge().GetValue()
		}
		if mf := findMF("splashgate_rate_limit_hits_total"); mf != nil {
			total := 0.0
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			stats["handshake"]["rate_limited"] = total
		}
		if mf := findMF("splashgate_controller_requests_total"); mf != nil {
			for _, m := range mf.GetMetric() {
				key := label(m, "result")
				prev, _ := stats["controller"][key].(float64)
				stats["controller"][key] = prev + m.GetCounter().GetValue()
			}
		}
		if mf := findMF("splashgate_circuit_state"); mf != nil {
			for _, m := range mf.GetMetric() {
				stats["controller"]["circuit_"+label(m, "backend")] = circuitbreaker.State(m.GetGauge().GetValue()).String()
			}
		}
		if mf := findMF("splashgate_notifications_total"); mf != nil {
			for _, m := range mf.GetMetric() {
				stats["notifications"][label(m, "sink")+"_"+label(m, "result")] = m.GetCounter().GetValue()
			}
		}
		if mf := findMF("go_goroutines"); mf != nil && len(mf.GetMetric()) > 0 {
			stats["system"]["goroutines"] = mf.GetMetric()[0].GetGauge().GetValue()
		}
		stats["system"]["uptime_sec"] = time.Since(startTime).Seconds()

		httputil.WriteJSON(w, http.StatusOK, stats)
	}
}
