package transfer

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

// HTTPExecutor implements Executor against the signing service REST API.
type HTTPExecutor struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPExecutor creates an executor with optional proxy support.
func NewHTTPExecutor(baseURL, apiKey, proxyURL string, timeout time.Duration) *HTTPExecutor {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPExecutor{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (e *HTTPExecutor) Transfer(ctx context.Context, in Instruction) (Receipt, error) {
	return e.post(ctx, "/v1/transfers", in)
}

func (e *HTTPExecutor) Mint(ctx context.Context, in MintInstruction) (Receipt, error) {
	return e.post(ctx, "/v1/mints", in)
}

func (e *HTTPExecutor) post(ctx context.Context, path string, payload any) (Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Receipt{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		f := &Failure{}
		if jerr := json.Unmarshal(respBody, f); jerr != nil || f.Code == "" {
			f = &Failure{Code: http.StatusText(resp.StatusCode), Message: string(respBody)}
			f.Retryable = resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}
		return Receipt{}, f
	}
	var r Receipt
	if err := json.Unmarshal(respBody, &r); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	if r.Signature == "" {
		return Receipt{}, &Failure{Code: "malformed", Message: "receipt without signature"}
	}
	return r, nil
}
