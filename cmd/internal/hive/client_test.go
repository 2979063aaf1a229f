package hive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, handle func(method string, params json.RawMessage) (any, *RPCError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int64           `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, rpcErr := handle(req.Method, req.Params)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result, "error": rpcErr})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_PostingKeys(t *testing.T) {
	srv := rpcServer(t, func(method string, params json.RawMessage) (any, *RPCError) {
		require.Equal(t, "condenser_api.get_accounts", method)
		require.JSONEq(t, `[["alice"]]`, string(params))
		return json.RawMessage(`[{
			"name": "alice",
			"posting": {"weight_threshold": 1, "key_auths": [["STMkey1", 1], ["STMkey2", 1]], "account_auths": []},
			"memo_key": "STMmemo"
		}]`), nil
	})

	c := NewClient(WithNodes(srv.URL))
	keys, err := c.PostingKeys(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"STMkey1", "STMkey2"}, keys)
}

func TestClient_AccountNotFound(t *testing.T) {
	srv := rpcServer(t, func(string, json.RawMessage) (any, *RPCError) {
		return []any{}, nil
	})

	_, err := NewClient(WithNodes(srv.URL)).GetAccount(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestClient_FallsBackToNextNode(t *testing.T) {
	var downHits atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downHits.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	up := rpcServer(t, func(string, json.RawMessage) (any, *RPCError) {
		return map[string]any{"head_block_number": 1}, nil
	})

	c := NewClient(WithNodes(down.URL, up.URL))
	require.NoError(t, c.Ping(context.Background()))
	require.Equal(t, int32(1), downHits.Load())
}

func TestClient_AllNodesDown(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	err := NewClient(WithNodes(down.URL)).Ping(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_RPCErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	handler := func(string, json.RawMessage) (any, *RPCError) {
		hits.Add(1)
		return nil, &RPCError{Code: -32602, Message: "invalid params"}
	}
	a := rpcServer(t, handler)
	b := rpcServer(t, handler)

	err := NewClient(WithNodes(a.URL, b.URL)).Ping(context.Background())
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, int32(1), hits.Load())
}
