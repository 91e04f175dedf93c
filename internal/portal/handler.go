// Package portal serves the three-step external captive portal handshake:
// /click stores the controller's grant parameters, /login redirects the
// client to the grant URL, and /success reports the login and lets the
// client continue.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"splashgate/portal-service/internal/circuitbreaker"
	"splashgate/portal-service/internal/httputil"
	"splashgate/portal-service/internal/meraki"
	"splashgate/portal-service/internal/metrics"
	"splashgate/portal-service/internal/notify"
	"splashgate/portal-service/internal/rate"
	"splashgate/portal-service/internal/session"
	"splashgate/portal-service/internal/token"
	"splashgate/portal-service/internal/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const sessionParam = "session"

// Session token carriers.
const (
	CarrierCookie = "cookie"
	CarrierQuery  = "query"
)

// LoginAttemptSource is the controller call made by /success.
type LoginAttemptSource interface {
	GetSplashLoginAttempts(ctx context.Context, networkID string) ([]meraki.LoginAttempt, error)
}

type Options struct {
	Carrier       string
	CookieName    string
	TTL           time.Duration
	ClickRPSLimit float64
	// AnonKey keys the HMAC used to log client IPs and MACs.
	AnonKey []byte
}

type Handler struct {
	network  meraki.NetworkIdentity
	ctrl     LoginAttemptSource
	notifier notify.Notifier
	store    session.Store
	keyring  *token.Keyring
	renderer *Renderer
	opts     Options

	ctrlBreaker   *circuitbreaker.CircuitBreaker
	notifyBreaker *circuitbreaker.CircuitBreaker
	clickRPS      *rate.SlidingRPS
}

type Deps struct {
	Network       meraki.NetworkIdentity
	Controller    LoginAttemptSource
	Notifier      notify.Notifier
	Store         session.Store
	Keyring       *token.Keyring
	Renderer      *Renderer
	CtrlBreaker   *circuitbreaker.CircuitBreaker
	NotifyBreaker *circuitbreaker.CircuitBreaker
	ClickRPS      *rate.SlidingRPS
}

func NewHandler(d Deps, opts Options) *Handler {
	if opts.Carrier == "" {
		opts.Carrier = CarrierCookie
	}
	if opts.CookieName == "" {
		opts.CookieName = "splashgate_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if d.CtrlBreaker == nil {
		d.CtrlBreaker = circuitbreaker.New("controller", circuitbreaker.DefaultConfig())
	}
	if d.NotifyBreaker == nil {
		d.NotifyBreaker = circuitbreaker.New("notifier", circuitbreaker.DefaultConfig())
	}
	return &Handler{
		network:       d.Network,
		ctrl:          d.Controller,
		notifier:      d.Notifier,
		store:         d.Store,
		keyring:       d.Keyring,
		renderer:      d.Renderer,
		opts:          opts,
		ctrlBreaker:   d.CtrlBreaker,
		notifyBreaker: d.NotifyBreaker,
		clickRPS:      d.ClickRPS,
	}
}

// Register mounts the handshake endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/click", h.Click)
	mux.HandleFunc("/login", h.Login)
	mux.HandleFunc("/success", h.Success)
}

// Click handles GET /click?base_grant_url=...&user_continue_url=...
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	defer observeStep("click", time.Now())
	logger := httputil.GetLogger(r.Context())

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := httputil.ClientIPFromHeaders(r)
	if h.clickRPS != nil && h.opts.ClickRPSLimit > 0 {
		if rps := h.clickRPS.Add(clientIP); rps > h.opts.ClickRPSLimit {
			metrics.RateLimitHits.WithLabelValues("click").Inc()
			metrics.HandshakeSteps.WithLabelValues("click", "rate_limited").Inc()
			logger.Warn().
				Str("client", util.HMACIP(clientIP, h.opts.AnonKey)).
				Float64("rps", rps).
				Msg("click rate limit exceeded")
			w.Header().Set("Retry-After", "10")
			h.fail(w, r, http.StatusTooManyRequests, "Too many requests",
				"Please wait a few seconds and try again.")
			return
		}
	}

	q := r.URL.Query()
	baseGrantURL := q.Get("base_grant_url")
	if !isAbsoluteHTTPURL(baseGrantURL) {
		metrics.HandshakeSteps.WithLabelValues("click", "bad_request").Inc()
		logger.Warn().Str("base_grant_url", baseGrantURL).Msg("invalid base_grant_url")
		h.fail(w, r, http.StatusBadRequest, "Invalid request",
			"The wireless network did not supply a valid sign-in address. Please reconnect to the network.")
		return
	}

	state := session.HandshakeState{
		BaseGrantURL:    baseGrantURL,
		UserContinueURL: q.Get("user_continue_url"),
		NodeMAC:         q.Get("node_mac"),
		ClientIP:        q.Get("client_ip"),
		ClientMAC:       q.Get("client_mac"),
	}

	id := uuid.NewString()
	tok, err := h.keyring.Mint(id, h.opts.TTL)
	if err != nil {
		metrics.HandshakeSteps.WithLabelValues("click", "error").Inc()
		logger.Error().Err(err).Msg("session token mint failed")
		h.fail(w, r, http.StatusInternalServerError, "Something went wrong", "Please reconnect to the network.")
		return
	}

	state.SuccessURL = httputil.HostURL(r) + "success"
	if h.opts.Carrier == CarrierQuery {
		state.SuccessURL += "?" + sessionParam + "=" + url.QueryEscape(tok)
	}

	if err := h.store.Put(r.Context(), id, state); err != nil {
		metrics.HandshakeSteps.WithLabelValues("click", "error").Inc()
		logger.Error().Err(err).Msg("session store put failed")
		h.fail(w, r, http.StatusServiceUnavailable, "Temporarily unavailable", "Please try again in a moment.")
		return
	}

	if h.opts.Carrier == CarrierCookie {
		http.SetCookie(w, h.sessionCookie(r, tok))
	}

	metrics.HandshakeSteps.WithLabelValues("click", "ok").Inc()
	logger.Info().
		Str("session_id", id).
		Str("client_mac", util.HMACMAC(state.ClientMAC, h.opts.AnonKey)).
		Str("client_ip", util.HMACIP(state.ClientIP, h.opts.AnonKey)).
		Str("node_mac", state.NodeMAC).
		Msg("handshake started")

	h.renderer.Click(w, ClickPage{
		ClientIP:        state.ClientIP,
		ClientMAC:       state.ClientMAC,
		NodeMAC:         state.NodeMAC,
		UserContinueURL: state.UserContinueURL,
		SessionToken:    tok,
	})
}

// Login handles POST /login and redirects to the controller's grant URL.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	defer observeStep("login", time.Now())
	logger := httputil.GetLogger(r.Context())

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 4*1024)

	id, state, err := h.lookup(r)
	if err != nil {
		h.lookupFailed(w, r, "login", err)
		return
	}

	location := GrantRedirectURL(state.BaseGrantURL, state.SuccessURL)
	metrics.HandshakeSteps.WithLabelValues("login", "ok").Inc()
	logger.Info().Str("session_id", id).Msg("redirecting to grant url")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// Success handles GET /success: it reports the network's splash login
// attempts and links the client to the page it originally asked for.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	defer observeStep("success", time.Now())
	logger := httputil.GetLogger(r.Context())

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, state, err := h.lookup(r)
	if err != nil {
		h.lookupFailed(w, r, "success", err)
		return
	}

	var attempts []meraki.LoginAttempt
	err = h.ctrlBreaker.Do(func() error {
		var ferr error
		attempts, ferr = h.ctrl.GetSplashLoginAttempts(r.Context(), h.network.ID)
		return ferr
	})
	if err != nil {
		metrics.HandshakeSteps.WithLabelValues("success", "upstream_error").Inc()
		logger.Error().Err(err).Str("network_id", h.network.ID).Msg("fetch splash login attempts failed")
		h.fail(w, r, http.StatusBadGateway, "Unable to complete sign-in",
			"The wireless controller could not be reached. Please restart the connection process.")
		return
	}

	h.report(r.Context(), logger, attempts)

	metrics.HandshakeSteps.WithLabelValues("success", "ok").Inc()
	logger.Info().
		Str("session_id", id).
		Int("login_attempts", len(attempts)).
		Msg("handshake completed")
	h.renderer.Success(w, SuccessPage{UserContinueURL: state.UserContinueURL})
}

// report sends the login attempts to the notifier. Failures are logged only;
// the client already has network access at this point.
func (h *Handler) report(ctx context.Context, logger *zerolog.Logger, attempts []meraki.LoginAttempt) {
	if h.notifier == nil {
		return
	}
	if attempts == nil {
		attempts = []meraki.LoginAttempt{}
	}
	markdown, err := notify.FormatLoginReport(attempts)
	if err != nil {
		metrics.Notifications.WithLabelValues(h.notifier.Name(), "error").Inc()
		logger.Error().Err(err).Msg("format login report failed")
		return
	}
	err = h.notifyBreaker.Do(func() error {
		return h.notifier.Notify(ctx, markdown)
	})
	if err != nil {
		metrics.Notifications.WithLabelValues(h.notifier.Name(), "error").Inc()
		logger.Warn().Err(err).Str("sink", h.notifier.Name()).Msg("login report not delivered")
		return
	}
	metrics.Notifications.WithLabelValues(h.notifier.Name(), "ok").Inc()
}

// lookup resolves the session token (query, then form, then cookie) and
// loads the handshake state it refers to. Token failures wrap
// session.ErrNoActiveHandshake.
func (h *Handler) lookup(r *http.Request) (string, session.HandshakeState, error) {
	tok := r.URL.Query().Get(sessionParam)
	if tok == "" && r.Method == http.MethodPost {
		tok = r.PostFormValue(sessionParam)
	}
	if tok == "" {
		if c, err := r.Cookie(h.opts.CookieName); err == nil {
			tok = c.Value
		}
	}
	if tok == "" {
		return "", session.HandshakeState{}, fmt.Errorf("%w: no session token", session.ErrNoActiveHandshake)
	}
	id, err := h.keyring.SessionID(tok)
	if err != nil {
		return "", session.HandshakeState{}, fmt.Errorf("%w: %v", session.ErrNoActiveHandshake, err)
	}
	state, err := h.store.Get(r.Context(), id)
	return id, state, err
}

// lookupFailed renders 400 for a missing handshake and 503 when the store
// itself is unreachable.
func (h *Handler) lookupFailed(w http.ResponseWriter, r *http.Request, step string, err error) {
	if !errors.Is(err, session.ErrNoActiveHandshake) {
		metrics.HandshakeSteps.WithLabelValues(step, "error").Inc()
		httputil.GetLogger(r.Context()).Error().Err(err).Msg("session store get failed")
		h.fail(w, r, http.StatusServiceUnavailable, "Temporarily unavailable", "Please try again in a moment.")
		return
	}
	metrics.HandshakeSteps.WithLabelValues(step, "no_handshake").Inc()
	httputil.GetLogger(r.Context()).Info().Err(err).Msg("no active handshake")
	h.fail(w, r, http.StatusBadRequest, "Session not found",
		"Your sign-in session has expired or was not started. Please restart the connection process.")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, code int, title, msg string) {
	h.renderer.Error(w, code, ErrorPage{
		Title:     title,
		Message:   msg,
		RequestID: httputil.GetRequestID(r.Context()),
	})
}

func (h *Handler) sessionCookie(r *http.Request, tok string) *http.Cookie {
	return &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(h.opts.TTL / time.Second),
		HttpOnly: true,
		Secure:   httputil.Scheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

// GrantRedirectURL appends continue_url to the controller's grant URL. The
// success URL is appended as-is; the controller matches it literally.
func GrantRedirectURL(baseGrantURL, successURL string) string {
	sep := "?"
	if strings.Contains(baseGrantURL, "?") {
		sep = "&"
	}
	return baseGrantURL + sep + "continue_url=" + successURL
}

func observeStep(step string, start time.Time) {
	metrics.HandshakeDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

func isAbsoluteHTTPURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
