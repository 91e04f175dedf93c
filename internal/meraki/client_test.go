package meraki

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeDashboard serves a fixed org/network topology and records writes.
type fakeDashboard struct {
	orgs     []Organization
	networks map[string][]Network
	puts     map[string]map[string]any
	failPath string
	apiKeys  []string
}

func newFakeDashboard() *fakeDashboard {
	return &fakeDashboard{
		orgs: []Organization{{ID: "o1", Name: "Org One"}, {ID: "o2", Name: "Org Two"}},
		networks: map[string][]Network{
			"o1": {{ID: "N_1", Name: "Lab"}},
			"o2": {{ID: "N_2", Name: "Branch"}, {ID: "N_3", Name: "Branch"}},
		},
		puts: map[string]map[string]any{},
	}
}

func (f *fakeDashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.apiKeys = append(f.apiKeys, r.Header.Get(apiKeyHeader))
	if r.URL.Path == f.failPath {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":["bad"]}`)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/organizations":
		json.NewEncoder(w).Encode(f.orgs)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/organizations/"):
		org := strings.Split(r.URL.Path, "/")[2]
		json.NewEncoder(w).Encode(f.networks[org])
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/splashLoginAttempts"):
		io.WriteString(w, `[{"name":"alice","clientMac":"BB","loginAt":"2026-10-19T10:00:00Z"}]`)
	case r.Method == http.MethodPut:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.puts[r.URL.Path] = body
		json.NewEncoder(w).Encode(body)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, f *fakeDashboard) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret-key", time.Second)
}

func TestResolveNetworkID_FirstOrg(t *testing.T) {
	f := newFakeDashboard()
	c := newTestClient(t, f)

	id, err := c.ResolveNetworkID(context.Background(), "Lab")
	if err != nil {
		t.Fatalf("ResolveNetworkID failed: %v", err)
	}
	if id.ID != "N_1" || id.Name != "Lab" {
		t.Errorf("unexpected identity %+v", id)
	}
	for _, k := range f.apiKeys {
		if k != "secret-key" {
			t.Errorf("expected API key header on every call, got %q", k)
		}
	}
}

func TestResolveNetworkID_SecondOrgFirstMatch(t *testing.T) {
	f := newFakeDashboard()
	c := newTestClient(t, f)

	id, err := c.ResolveNetworkID(context.Background(), "Branch")
	if err != nil {
		t.Fatalf("ResolveNetworkID failed: %v", err)
	}
	if id.ID != "N_2" {
		t.Errorf("expected first match N_2 from second org, got %q", id.ID)
	}
}

func TestResolveNetworkID_CaseSensitive(t *testing.T) {
	c := newTestClient(t, newFakeDashboard())
	_, err := c.ResolveNetworkID(context.Background(), "lab")
	if !errors.Is(err, ErrNetworkNotFound) {
		t.Errorf("expected case-sensitive miss, got %v", err)
	}
}

func TestResolveNetworkID_NotFound(t *testing.T) {
	c := newTestClient(t, newFakeDashboard())
	_, err := c.ResolveNetworkID(context.Background(), "Nowhere")

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Name != "Nowhere" {
		t.Errorf("expected name in error, got %q", nf.Name)
	}
}

func TestResolveNetworkID_APIError(t *testing.T) {
	f := newFakeDashboard()
	f.failPath = "/organizations/o2/networks"
	c := newTestClient(t, f)

	_, err := c.ResolveNetworkID(context.Background(), "Branch")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || !strings.Contains(apiErr.Body, "bad") {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
	if apiErr.Operation != "list_networks" {
		t.Errorf("expected list_networks operation, got %q", apiErr.Operation)
	}
}

func TestConfigureSplashPage(t *testing.T) {
	f := newFakeDashboard()
	c := newTestClient(t, f)

	if err := c.ConfigureSplashPage(context.Background(), "N_1", 0, "https://abc.ngrok.io/"); err != nil {
		t.Fatalf("ConfigureSplashPage failed: %v", err)
	}
	body := f.puts["/networks/N_1/ssids/0/splashSettings"]
	if body == nil {
		t.Fatal("expected PUT to splashSettings")
	}
	if body["splashUrl"] != "https://abc.ngrok.io/click" {
		t.Errorf("unexpected splashUrl %v", body["splashUrl"])
	}
	if body["splashPage"] != SplashClickThrough || body["useCustomUrl"] != true {
		t.Errorf("unexpected splash body %v", body)
	}
}

func TestConfigureSSID(t *testing.T) {
	f := newFakeDashboard()
	c := newTestClient(t, f)

	cfg := ExternalPortalSSID(0, "Guest", "hunter22", []string{"*.ngrok.io", "*.ngrok.io", "10.0.0.0/8"})
	if err := c.ConfigureSSID(context.Background(), "N_1", cfg); err != nil {
		t.Fatalf("ConfigureSSID failed: %v", err)
	}
	body := f.puts["/networks/N_1/ssids/0"]
	if body == nil {
		t.Fatal("expected PUT to ssid 0")
	}
	checks := map[string]any{
		"name":               "Guest",
		"psk":                "hunter22",
		"authMode":           "psk",
		"wpaEncryptionMode":  "WPA2 only",
		"bandSelection":      "5 GHz band only",
		"ipAssignmentMode":   "Bridge mode",
		"walledGardenRanges": "*.ngrok.io 10.0.0.0/8",
		"enabled":            true,
	}
	for k, want := range checks {
		if body[k] != want {
			t.Errorf("%s: expected %v, got %v", k, want, body[k])
		}
	}
}

func TestConfigureSSID_APIError(t *testing.T) {
	f := newFakeDashboard()
	f.failPath = "/networks/N_1/ssids/0"
	c := newTestClient(t, f)

	err := c.ConfigureSSID(context.Background(), "N_1", ExternalPortalSSID(0, "Guest", "pw", nil))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestGetSplashLoginAttempts(t *testing.T) {
	c := newTestClient(t, newFakeDashboard())
	attempts, err := c.GetSplashLoginAttempts(context.Background(), "N_1")
	if err != nil {
		t.Fatalf("GetSplashLoginAttempts failed: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if !strings.Contains(string(attempts[0]), `"clientMac":"BB"`) {
		t.Errorf("attempt should pass through unmodified, got %s", attempts[0])
	}
}

func TestClient_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	c := NewClient(srv.URL, "k", 50*time.Millisecond)
	if _, err := c.ListOrganizations(context.Background()); err == nil {
		t.Error("expected timeout error")
	}
}
