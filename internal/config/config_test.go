package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != ":5004" {
		t.Errorf("expected listen :5004, got %q", cfg.Server.Listen)
	}
	if cfg.Session.Backend != "memory" || cfg.Session.Carrier != "cookie" {
		t.Errorf("unexpected session defaults: %+v", cfg.Session)
	}
	if len(cfg.Controller.WalledGardenRanges) != 1 || cfg.Controller.WalledGardenRanges[0] != "*.ngrok.io" {
		t.Errorf("unexpected walled garden defaults: %v", cfg.Controller.WalledGardenRanges)
	}
	if cfg.Notifier.Kind != "log" {
		t.Errorf("expected log notifier without webex token, got %q", cfg.Notifier.Kind)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Setenv("MERAKI_API_KEY", "from-env")
	t.Setenv("WEBEX_ACCESS_TOKEN", "wt-token")
	t.Setenv("WEBEX_ROOM_ID", "room-1")

	path := writeConfig(t, `
server:
  listen: ":9000"
controller:
  base_url: "https://api.meraki.com/api/v0"
session:
  backend: redis
  carrier: query
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != ":9000" {
		t.Errorf("expected :9000, got %q", cfg.Server.Listen)
	}
	if cfg.Controller.APIKey != "from-env" {
		t.Errorf("expected api key from env, got %q", cfg.Controller.APIKey)
	}
	if cfg.Notifier.Kind != "webex" {
		t.Errorf("expected webex notifier when token present, got %q", cfg.Notifier.Kind)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "server: [")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(c *Config){
		"controller.api_key":     func(c *Config) { c.Controller.APIKey = "" },
		"session.backend":        func(c *Config) { c.Session.Backend = "etcd" },
		"session.carrier":        func(c *Config) { c.Session.Carrier = "header" },
		"portal.public_url_mode": func(c *Config) { c.Portal.PublicURLMode = "dns" },
		"portal.base_url":        func(c *Config) { c.Portal.BaseURL = "/relative" },
		"token.current_kid":      func(c *Config) { c.Token.Keys = map[string]string{"a": "x"}; c.Token.CurrentKID = "b" },
		"notifier.webex":         func(c *Config) { c.Notifier.Kind = "webex" },
		"server.trusted_proxy_cidrs": func(c *Config) {
			c.Server.TrustedProxyCIDRs = []string{"not-a-cidr"}
		},
	}
	for field, mutate := range cases {
		cfg := Default()
		cfg.Controller.APIKey = "key"
		mutate(cfg)

		err := cfg.Validate()
		var cerr *ConfigurationError
		if !errors.As(err, &cerr) {
			t.Errorf("%s: expected ConfigurationError, got %v", field, err)
			continue
		}
		if cerr.Field != field {
			t.Errorf("expected field %q, got %q", field, cerr.Field)
		}
	}
}

func TestValidate_TrustedProxies(t *testing.T) {
	cfg := Default()
	cfg.Controller.APIKey = "key"
	cfg.Server.TrustedProxyCIDRs = []string{"10.0.0.0/8", "192.168.1.0/24"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if n := len(cfg.TrustedProxies()); n != 2 {
		t.Errorf("expected 2 trusted proxies, got %d", n)
	}
}
