// Package notify posts run completion messages to an ntfy-style endpoint.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Summary condenses a finished run for the notification text.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Message renders the completion text sent to the endpoint.
func (s Summary) Message() string {
	return fmt.Sprintf("portal_agent: %d ok, %d erro, %d ignorado", s.Succeeded, s.Failed, s.Skipped)
}

// SendSummary posts the rendered summary to the endpoint.
func SendSummary(ctx context.Context, client *http.Client, endpoint string, s Summary) error {
	return Send(ctx, client, endpoint, s.Message())
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
