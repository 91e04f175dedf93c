package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFormatLoginReport(t *testing.T) {
	attempts := []json.RawMessage{json.RawMessage(`{"name":"alice","clientMac":"BB"}`)}
	got, err := FormatLoginReport(attempts)
	if err != nil {
		t.Fatalf("FormatLoginReport failed: %v", err)
	}
	want := "Splash Login Attempt:\n```json\n[\n  {\n    \"name\": \"alice\",\n    \"clientMac\": \"BB\"\n  }\n]\n```\n"
	if got != want {
		t.Errorf("unexpected report:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatLoginReport_Empty(t *testing.T) {
	got, err := FormatLoginReport([]json.RawMessage{})
	if err != nil {
		t.Fatalf("FormatLoginReport failed: %v", err)
	}
	if !strings.Contains(got, "```json\n[]\n```") {
		t.Errorf("expected empty list, got %q", got)
	}
}

func TestWebex_Notify(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	wx := NewWebex(srv.URL+"/v1", "tok", "room-1", time.Second)
	if err := wx.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["roomId"] != "room-1" || gotBody["markdown"] != "hello" {
		t.Errorf("unexpected body %v", gotBody)
	}
}

func TestWebex_NotifyAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer srv.Close()

	err := NewWebex(srv.URL, "bad", "room", time.Second).Notify(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	l := &Log{Logger: zerolog.New(&buf)}
	if err := l.Notify(context.Background(), "report-body"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if !strings.Contains(buf.String(), "report-body") {
		t.Errorf("expected report in log output, got %q", buf.String())
	}
}
