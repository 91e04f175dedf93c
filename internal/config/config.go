package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigurationError reports a missing or invalid setting. It is used both for
// the YAML file and for required command-line parameters.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

type ServerCfg struct {
	Listen            string   `yaml:"listen"`
	ReadTimeoutMs     int      `yaml:"read_timeout_ms"`
	WriteTimeoutMs    int      `yaml:"write_timeout_ms"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`

	trustedProxies []*net.IPNet
}

type LoggingCfg struct {
	Level string `yaml:"level"` // info|debug
}

type ControllerCfg struct {
	BaseURL            string   `yaml:"base_url"`
	APIKey             string   `yaml:"api_key"`
	TimeoutMs          int      `yaml:"timeout_ms"`
	SSIDNumber         int      `yaml:"ssid_number"`
	WalledGardenRanges []string `yaml:"walled_garden_ranges"`
}

type PortalCfg struct {
	PublicURLMode string `yaml:"public_url_mode"` // static | tunnel
	BaseURL       string `yaml:"base_url"`
	TunnelAPIURL  string `yaml:"tunnel_api_url"`
	TunnelProto   string `yaml:"tunnel_proto"`
}

type SessionCfg struct {
	Backend       string `yaml:"backend"` // memory | redis
	TTLSec        int    `yaml:"ttl_sec"`
	Capacity      int    `yaml:"capacity"`
	Carrier       string `yaml:"carrier"` // cookie | query
	CookieName    string `yaml:"cookie_name"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

type TokenCfg struct {
	Keys       map[string]string `yaml:"keys"`
	CurrentKID string            `yaml:"current_kid"`
	Issuer     string            `yaml:"issuer"`
}

type RateCfg struct {
	ClickRPSLimit float64 `yaml:"click_rps_limit"`
	WindowSec     int     `yaml:"window_sec"`
}

type BreakerCfg struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	TimeoutSec       int `yaml:"timeout_sec"`
}

type WebexCfg struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	RoomID      string `yaml:"room_id"`
}

type NotifierCfg struct {
	Kind      string   `yaml:"kind"` // webex | log
	TimeoutMs int      `yaml:"timeout_ms"`
	Webex     WebexCfg `yaml:"webex"`
}

type Config struct {
	Server     ServerCfg     `yaml:"server"`
	Logging    LoggingCfg    `yaml:"logging"`
	Controller ControllerCfg `yaml:"controller"`
	Portal     PortalCfg     `yaml:"portal"`
	Session    SessionCfg    `yaml:"session"`
	Token      TokenCfg      `yaml:"token"`
	Rate       RateCfg       `yaml:"rate"`
	Breaker    BreakerCfg    `yaml:"breaker"`
	Notifier   NotifierCfg   `yaml:"notifier"`
}

// Load reads the YAML file at path. A missing file is not an error: the
// built-in defaults describe the lab simulator setup.
func Load(path string) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MERAKI_API_KEY"); v != "" && c.Controller.APIKey == "" {
		c.Controller.APIKey = v
	}
	if v := os.Getenv("WEBEX_ACCESS_TOKEN"); v != "" && c.Notifier.Webex.AccessToken == "" {
		c.Notifier.Webex.AccessToken = v
	}
	if v := os.Getenv("WEBEX_ROOM_ID"); v != "" && c.Notifier.Webex.RoomID == "" {
		c.Notifier.Webex.RoomID = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":5004"
	}
	if c.Server.ReadTimeoutMs == 0 {
		c.Server.ReadTimeoutMs = 5000
	}
	if c.Server.WriteTimeoutMs == 0 {
		c.Server.WriteTimeoutMs = 10000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Controller.BaseURL == "" {
		c.Controller.BaseURL = "http://localhost:5003"
	}
	if c.Controller.TimeoutMs == 0 {
		c.Controller.TimeoutMs = 5000
	}
	if c.Controller.WalledGardenRanges == nil {
		c.Controller.WalledGardenRanges = []string{"*.ngrok.io"}
	}
	if c.Portal.PublicURLMode == "" {
		c.Portal.PublicURLMode = "static"
	}
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = "http://localhost:5004"
	}
	if c.Portal.TunnelAPIURL == "" {
		c.Portal.TunnelAPIURL = "http://127.0.0.1:4040/api/tunnels"
	}
	if c.Portal.TunnelProto == "" {
		c.Portal.TunnelProto = "https"
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.TTLSec == 0 {
		c.Session.TTLSec = 900
	}
	if c.Session.Capacity == 0 {
		c.Session.Capacity = 10_000
	}
	if c.Session.Carrier == "" {
		c.Session.Carrier = "cookie"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "splashgate_session"
	}
	if c.Session.RedisAddr == "" {
		c.Session.RedisAddr = "127.0.0.1:6379"
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = "splashgate:handshake:"
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "splashgate"
	}
	if c.Rate.ClickRPSLimit == 0 {
		c.Rate.ClickRPSLimit = 5
	}
	if c.Rate.WindowSec == 0 {
		c.Rate.WindowSec = 10
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.TimeoutSec == 0 {
		c.Breaker.TimeoutSec = 30
	}
	if c.Notifier.Kind == "" {
		c.Notifier.Kind = "log"
		if c.Notifier.Webex.AccessToken != "" {
			c.Notifier.Kind = "webex"
		}
	}
	if c.Notifier.TimeoutMs == 0 {
		c.Notifier.TimeoutMs = 5000
	}
	if c.Notifier.Webex.BaseURL == "" {
		c.Notifier.Webex.BaseURL = "https://webexapis.com/v1"
	}
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSec) * time.Second
}

func (c *Config) ControllerTimeout() time.Duration {
	return time.Duration(c.Controller.TimeoutMs) * time.Millisecond
}

func (c *Config) NotifierTimeout() time.Duration {
	return time.Duration(c.Notifier.TimeoutMs) * time.Millisecond
}

// TrustedProxies returns the parsed server.trusted_proxy_cidrs. Validate must
// have been called first.
func (c *Config) TrustedProxies() []*net.IPNet {
	return c.Server.trustedProxies
}

func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Controller.BaseURL); err != nil {
		return &ConfigurationError{Field: "controller.base_url", Reason: err.Error()}
	}
	if c.Controller.APIKey == "" {
		return &ConfigurationError{Field: "controller.api_key", Reason: "required (or set MERAKI_API_KEY)"}
	}
	if c.Controller.TimeoutMs < 0 || c.Controller.TimeoutMs > 60_000 {
		return &ConfigurationError{Field: "controller.timeout_ms", Reason: "must be in [0, 60000]"}
	}
	if c.Controller.SSIDNumber < 0 || c.Controller.SSIDNumber > 14 {
		return &ConfigurationError{Field: "controller.ssid_number", Reason: "must be in [0, 14]"}
	}

	switch c.Portal.PublicURLMode {
	case "static":
		u, err := url.Parse(c.Portal.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ConfigurationError{Field: "portal.base_url", Reason: "must be an absolute http(s) URL"}
		}
	case "tunnel":
		if _, err := url.ParseRequestURI(c.Portal.TunnelAPIURL); err != nil {
			return &ConfigurationError{Field: "portal.tunnel_api_url", Reason: err.Error()}
		}
	default:
		return &ConfigurationError{Field: "portal.public_url_mode", Reason: "must be 'static' or 'tunnel'"}
	}

	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return &ConfigurationError{Field: "session.backend", Reason: "must be 'memory' or 'redis'"}
	}
	switch c.Session.Carrier {
	case "cookie", "query":
	default:
		return &ConfigurationError{Field: "session.carrier", Reason: "must be 'cookie' or 'query'"}
	}
	if c.Session.TTLSec <= 0 || c.Session.TTLSec > 24*3600 {
		return &ConfigurationError{Field: "session.ttl_sec", Reason: "must be in (0, 86400]"}
	}

	if len(c.Token.Keys) > 0 {
		if _, ok := c.Token.Keys[c.Token.CurrentKID]; !ok {
			return &ConfigurationError{Field: "token.current_kid", Reason: "not found in token.keys"}
		}
	}

	if c.Rate.ClickRPSLimit < 0 {
		return &ConfigurationError{Field: "rate.click_rps_limit", Reason: "must be >= 0"}
	}

	switch strings.ToLower(c.Notifier.Kind) {
	case "log":
	case "webex":
		if c.Notifier.Webex.AccessToken == "" || c.Notifier.Webex.RoomID == "" {
			return &ConfigurationError{Field: "notifier.webex", Reason: "access_token and room_id required"}
		}
	default:
		return &ConfigurationError{Field: "notifier.kind", Reason: "must be 'webex' or 'log'"}
	}

	c.Server.trustedProxies = c.Server.trustedProxies[:0]
	for _, cidr := range c.Server.TrustedProxyCIDRs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return &ConfigurationError{Field: "server.trusted_proxy_cidrs", Reason: fmt.Sprintf("invalid CIDR %q", cidr)}
		}
		c.Server.trustedProxies = append(c.Server.trustedProxies, n)
	}
	return nil
}
