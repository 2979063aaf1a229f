package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/require"

	"userbase/cmd/internal/auth/authtest"
)

// hiveNode is a fake Hive JSON-RPC node serving one account.
type hiveNode struct {
	srv  *httptest.Server
	down atomic.Bool
}

func newHiveNode(t *testing.T, account, postingKey string) *hiveNode {
	t.Helper()
	n := &hiveNode{}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n.down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req struct {
			Method string `json:"method"`
			ID     int64  `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result any
		switch req.Method {
		case "condenser_api.get_accounts":
			result = []map[string]any{{
				"name":    account,
				"posting": map[string]any{"weight_threshold": 1, "key_auths": [][]any{{postingKey, 1}}},
			}}
		default:
			result = map[string]any{"head_block_number": 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(n.srv.Close)
	return n
}

func newMemoryApp(t *testing.T, node *hiveNode) *App {
	t.Helper()
	t.Setenv("USERBASE_PASETO_V4_SECRET_KEY_HEX", paseto.NewV4AsymmetricSecretKey().ExportHex())
	t.Setenv("USERBASE_TOKEN_HMAC_KEY", "")

	cfg := Config{
		Env:         "development",
		LogFormat:   "json",
		Store:       StoreMemory,
		HiveNodes:   []string{node.srv.URL},
		HiveTimeout: 2 * time.Second,
		MagicLinks:  true,
	}
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, newLogger(io.Discard, "error", "json"))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func call(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var rdr io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	out := map[string]any{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestApp_HiveBootstrapThroughRouter(t *testing.T) {
	key := authtest.NewKey(t)
	node := newHiveNode(t, "alice", key.HivePublic())
	h := newMemoryApp(t, node).Handler()

	rr, body := call(t, h, http.MethodPost, "/auth/bootstrap/challenge", map[string]string{"type": "hive", "identifier": "alice"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	msg := body["challenge"].(map[string]any)["message"].(string)

	rr, body = call(t, h, http.MethodPost, "/auth/bootstrap", map[string]string{
		"type":       "hive",
		"identifier": "alice",
		"signature":  key.HiveSign(msg),
		"public_key": key.HivePublic(),
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["created"])
	require.NotEmpty(t, rr.Header().Get("X-Content-Type-Options"))

	var refresh *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "userbase_refresh" {
			refresh = c
		}
	}
	require.NotNil(t, refresh)

	rr, body = call(t, h, http.MethodGet, "/me/", nil, refresh)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "alice", body["user"].(map[string]any)["handle"])

	rr, _ = call(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `userbase_auth_events_total{event="bootstrap",outcome="ok"} 1`)
}

func TestApp_MagicLinkRouteEnabled(t *testing.T) {
	node := newHiveNode(t, "alice", "STMunused")
	h := newMemoryApp(t, node).Handler()

	rr, body := call(t, h, http.MethodPost, "/auth/magic-link", map[string]string{"email": "dev@example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotEmpty(t, body["expires_at"])
}

func TestApp_Readyz(t *testing.T) {
	node := newHiveNode(t, "alice", "STMunused")
	h := newMemoryApp(t, node).Handler()

	rr, _ := call(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body := call(t, h, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["ok"])
}

func TestApp_ReadyzHiveDown(t *testing.T) {
	node := newHiveNode(t, "alice", "STMunused")
	node.down.Store(true)
	h := newMemoryApp(t, node).Handler()

	rr, body := call(t, h, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code, rr.Body.String())
	require.Equal(t, false, body["ok"])
}

func TestApp_UnknownRoute(t *testing.T) {
	node := newHiveNode(t, "alice", "STMunused")
	h := newMemoryApp(t, node).Handler()

	rr, _ := call(t, h, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
