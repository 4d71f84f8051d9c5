// Package webhook posts normalized inbound envelopes to the configured
// endpoint as form-encoded data.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Sender struct {
	endpoint   string
	httpClient *http.Client
}

func NewSender(endpoint string) *Sender {
	return &Sender{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
	}
}

func (s *Sender) Send(ctx context.Context, fields map[string]string) error {
	if s.endpoint == "" {
		return fmt.Errorf("no webhook endpoint configured")
	}

	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
