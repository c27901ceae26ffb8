package entropy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCSource_Sample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getLatestBlockhash", req.Method)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":2792},"value":{"blockhash":"EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N","lastValidBlockHeight":3090}}}`))
	}))
	defer srv.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := NewRPCSource(srv.URL, "", time.Second)
	src.clock = func() time.Time { return at }

	s, err := src.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", s.BlockID)
	assert.Equal(t, uint64(2792), s.Height)
	assert.Equal(t, at, s.ObservedAt)
	assert.Equal(t, "rpc", s.Source)
}

func TestRPCSource_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		},
		"rpc error": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"node is behind"}}`))
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"result":`))
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":{}}}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewRPCSource(srv.URL, "", time.Second).Sample(context.Background())
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestRPCSource_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewRPCSource(srv.URL, "", time.Second).Sample(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStaticSource(t *testing.T) {
	s, err := StaticSource{Value: Sample{BlockID: "abc"}}.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static", s.Source)

	_, err = StaticSource{Err: errors.New("boom")}.Sample(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
