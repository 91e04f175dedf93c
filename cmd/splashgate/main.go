package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"splashgate/portal-service/internal/circuitbreaker"
	"splashgate/portal-service/internal/config"
	"splashgate/portal-service/internal/httputil"
	"splashgate/portal-service/internal/meraki"
	"splashgate/portal-service/internal/metrics"
	"splashgate/portal-service/internal/notify"
	"splashgate/portal-service/internal/portal"
	"splashgate/portal-service/internal/provision"
	"splashgate/portal-service/internal/rate"
	"splashgate/portal-service/internal/session"
	"splashgate/portal-service/internal/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	args, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, cfgErr.Error())
			fmt.Fprintln(os.Stderr, usageLine)
		}
		os.Exit(2)
	}

	// Config path: CLI flag > env var > ./config.yaml (missing file means defaults)
	cfgPath := args.ConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("SPLASHGATE_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "./config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Logging.Level == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	metrics.MustRegister()

	log.Info().Msg("=== splashgate configuration summary ===")
	log.Info().
		Str("config_path", cfgPath).
		Str("log_level", cfg.Logging.Level).
		Str("listen", cfg.Server.Listen).
		Int("trusted_proxies", len(cfg.TrustedProxies())).
		Msg("server configuration")
	log.Info().
		Str("network", args.NetworkName).
		Str("ssid", args.SSIDName).
		Str("password", maskSecret(args.SSIDPass)).
		Int("ssid_number", cfg.Controller.SSIDNumber).
		Str("controller", cfg.Controller.BaseURL).
		Msg("provisioning target")
	log.Info().
		Str("public_url_mode", cfg.Portal.PublicURLMode).
		Str("session_backend", cfg.Session.Backend).
		Str("session_carrier", cfg.Session.Carrier).
		Int("session_ttl_sec", cfg.Session.TTLSec).
		Float64("click_rps_limit", cfg.Rate.ClickRPSLimit).
		Str("notifier", cfg.Notifier.Kind).
		Msg("portal configuration")

	// Session tokens
	var kr *token.Keyring
	if len(cfg.Token.Keys) == 0 {
		log.Warn().Msg("token.keys not set; generating ephemeral signing key (sessions will not survive restart)")
		kr, err = token.NewEphemeralKeyring(cfg.Token.Issuer)
	} else {
		kr, err = token.NewKeyring(cfg.Token.Keys, cfg.Token.CurrentKID, cfg.Token.Issuer)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create keyring")
	}

	// Session store
	var store session.Store
	rd := &readiness{}
	switch cfg.Session.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		rs := session.NewRedisStore(rdb, cfg.Session.RedisPrefix, cfg.SessionTTL())
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rs.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Session.RedisAddr).Msg("redis unreachable")
		}
		store = rs
		rd.store = rs
	default:
		store = session.NewMemoryStore(cfg.SessionTTL(), cfg.Session.Capacity)
	}

	// Controller client and provisioning. Provisioning calls are not behind
	// the breaker: any failure here is fatal anyway.
	ctrl := meraki.NewClient(cfg.Controller.BaseURL, cfg.Controller.APIKey, cfg.ControllerTimeout())

	var resolver provision.PublicURLResolver
	switch cfg.Portal.PublicURLMode {
	case "tunnel":
		resolver = provision.NewTunnelResolver(cfg.Portal.TunnelAPIURL, cfg.Portal.TunnelProto, cfg.ControllerTimeout())
	default:
		resolver = provision.StaticResolver{URL: cfg.Portal.BaseURL}
	}

	provCtx, stopProv := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	prov := &provision.Provisioner{
		Controller:   ctrl,
		Resolver:     resolver,
		SSIDNumber:   cfg.Controller.SSIDNumber,
		WalledGarden: cfg.Controller.WalledGardenRanges,
	}
	network, err := prov.Run(provCtx, provision.Request{
		NetworkName:  args.NetworkName,
		SSIDName:     args.SSIDName,
		SSIDPassword: args.SSIDPass,
	})
	stopProv()
	if err != nil {
		log.Fatal().Err(err).Msg("provisioning failed")
	}
	log.Info().Str("network", network.Name).Str("network_id", network.ID).Msg("controller provisioned")

	// Notification sink
	var sink notify.Notifier
	switch cfg.Notifier.Kind {
	case "webex":
		sink = notify.NewWebex(cfg.Notifier.Webex.BaseURL, cfg.Notifier.Webex.AccessToken, cfg.Notifier.Webex.RoomID, cfg.NotifierTimeout())
	default:
		sink = &notify.Log{Logger: log.Logger}
	}

	breakerCfg := circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          time.Duration(cfg.Breaker.TimeoutSec) * time.Second,
	}
	ctrlBreaker := circuitbreaker.New("controller", breakerCfg)
	notifyBreaker := circuitbreaker.New("notifier", breakerCfg)
	rd.breakers = []*circuitbreaker.CircuitBreaker{ctrlBreaker, notifyBreaker}
	rd.network = network.ID

	renderer, err := portal.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse templates")
	}

	anonKey := make([]byte, 32)
	rand.Read(anonKey)

	handshake := portal.NewHandler(portal.Deps{
		Network:       network,
		Controller:    ctrl,
		Notifier:      sink,
		Store:         store,
		Keyring:       kr,
		Renderer:      renderer,
		CtrlBreaker:   ctrlBreaker,
		NotifyBreaker: notifyBreaker,
		ClickRPS:      rate.NewSlidingRPS(cfg.Rate.WindowSec),
	}, portal.Options{
		Carrier:       cfg.Session.Carrier,
		CookieName:    cfg.Session.CookieName,
		TTL:           cfg.SessionTTL(),
		ClickRPSLimit: cfg.Rate.ClickRPSLimit,
		AnonKey:       anonKey,
	})

	mux := http.NewServeMux()
	handshake.Register(mux)
	mux.HandleFunc("/healthz", handleHealth)
	mux.Handle("/readyz", rd)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/admin/stats", handleAdminStats(prometheus.DefaultGatherer))

	handler := Chain(
		httputil.RequestIDMiddleware(log.Logger, cfg.TrustedProxies()),
		withCommonHeaders,
	)(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:       90 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", cfg.Server.Listen).
			Str("network_id", network.ID).
			Msg("splashgate portal listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal().Err(err).Msg("server error")
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed, forcing close")
			srv.Close()
		}
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("session store close failed")
		}
		log.Info().Msg("shutdown complete")
	}
}
