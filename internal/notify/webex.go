package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Webex posts messages to a Webex Teams room through the REST messages API.
type Webex struct {
	BaseURL     string
	AccessToken string
	RoomID      string
	HTTPClient  *http.Client
}

func NewWebex(baseURL, accessToken, roomID string, timeout time.Duration) *Webex {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webex{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		RoomID:      roomID,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

func (w *Webex) Name() string { return "webex" }

func (w *Webex) Notify(ctx context.Context, markdown string) error {
	body, err := json.Marshal(map[string]string{
		"roomId":   w.RoomID,
		"markdown": markdown,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("webex: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Log writes reports to the structured log; used when no chat room is configured.
type Log struct {
	Logger zerolog.Logger
}

func (l *Log) Name() string { return "log" }

func (l *Log) Notify(_ context.Context, markdown string) error {
	l.Logger.Info().Str("report", markdown).Msg("splash login report")
	return nil
}
