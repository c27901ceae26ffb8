// Package entropy samples an external, unpredictable seed for reward draws.
package entropy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// ErrUnavailable wraps every failure to obtain a sample.
var ErrUnavailable = errors.New("entropy unavailable")

// Sample is one observation of the external seed. ObservedAt is part of the
// seed so a draw never reads the wall clock on its own.
type Sample struct {
	Source     string    `json:"source"`
	BlockID    string    `json:"block_id"`
	Height     uint64    `json:"height"`
	ObservedAt time.Time `json:"observed_at"`
}

// Source produces samples.
type Source interface {
	Sample(ctx context.Context) (Sample, error)
	Name() string
}

// RPCSource reads the latest block hash from a ledger JSON-RPC endpoint.
type RPCSource struct {
	Endpoint string
	Client   *http.Client
	clock    func() time.Time
	nextID   atomic.Int64
}

// NewRPCSource creates an RPCSource with optional proxy support.
func NewRPCSource(endpoint, proxyURL string, timeout time.Duration) *RPCSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RPCSource{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout, Transport: transport},
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RPCSource) Name() string { return "rpc" }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result *struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Sample calls getLatestBlockhash at finalized commitment.
func (s *RPCSource) Sample(ctx context.Context) (Sample, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      s.nextID.Add(1),
		Method:  "getLatestBlockhash",
		Params:  []any{map[string]string{"commitment": "finalized"}},
	})
	if err != nil {
		return Sample{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Sample{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Sample{}, fmt.Errorf("%w: status %d, body: %s", ErrUnavailable, resp.StatusCode, string(b))
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Sample{}, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}
	if out.Error != nil {
		return Sample{}, fmt.Errorf("%w: rpc error %d: %s", ErrUnavailable, out.Error.Code, out.Error.Message)
	}
	if out.Result == nil || out.Result.Value.Blockhash == "" {
		return Sample{}, fmt.Errorf("%w: empty blockhash", ErrUnavailable)
	}
	return Sample{
		Source:     s.Name(),
		BlockID:    out.Result.Value.Blockhash,
		Height:     out.Result.Context.Slot,
		ObservedAt: s.clock(),
	}, nil
}

// StaticSource always returns the same sample, for dry runs and tests.
type StaticSource struct {
	Value Sample
	Err   error
}

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Sample(context.Context) (Sample, error) {
	if s.Err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrUnavailable, s.Err)
	}
	v := s.Value
	if v.Source == "" {
		v.Source = s.Name()
	}
	return v, nil
}
