package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPSource asks a remote decision service for the next intent.
type HTTPSource struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPSource creates an HTTPSource with optional proxy support.
func NewHTTPSource(endpoint, apiKey, proxyURL string, timeout time.Duration) *HTTPSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPSource{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (s *HTTPSource) Name() string { return "http" }

// Decide posts the snapshot and validates the returned intent.
func (s *HTTPSource) Decide(ctx context.Context, snap Snapshot) (Intent, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return Intent{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("decide: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Intent{}, fmt.Errorf("decide: status %d, body: %s", resp.StatusCode, string(b))
	}

	var in Intent
	if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
		return Intent{}, fmt.Errorf("decode intent: %w: %w", ErrMalformed, err)
	}
	if err := in.Validate(); err != nil {
		return Intent{}, err
	}
	in.Source = s.Name()
	return in, nil
}
