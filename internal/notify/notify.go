// Package notify delivers splash login reports to a chat room.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Notifier posts a pre-formatted markdown message to its configured channel.
type Notifier interface {
	Notify(ctx context.Context, markdown string) error
	Name() string
}

// APIError is returned for non-2xx responses from the chat service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notification sink returned %d: %s", e.StatusCode, e.Body)
}

// FormatLoginReport renders login attempts as indented JSON in a fenced block.
func FormatLoginReport(attempts any) (string, error) {
	raw, err := json.Marshal(attempts)
	if err != nil {
		return "", err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Splash Login Attempt:\n```json\n")
	b.Write(pretty.Bytes())
	b.WriteString("\n```\n")
	return b.String(), nil
}
