// Package hive is a small read-only client for the Hive blockchain plus the
// key and signature codecs needed to check posting-key signatures.
package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrAccountNotFound is returned when the node knows no such account.
	ErrAccountNotFound = errors.New("hive: account not found")
	// ErrUnavailable is returned when no configured node answered.
	ErrUnavailable = errors.New("hive: no node available")
)

// DefaultNodes are public API nodes tried in order.
var DefaultNodes = []string{
	"https://api.hive.blog",
	"https://api.deathwing.me",
	"https://anyx.io",
}

// Client talks JSON-RPC to a list of Hive API nodes, falling back to the next
// node on transport failure. Account data is always fetched fresh.
type Client struct {
	Client *http.Client
	Nodes  []string
	Logger *slog.Logger

	id atomic.Int64
}

type ClientOption func(*Client)

func WithNodes(nodes ...string) ClientOption {
	return func(c *Client) {
		c.Nodes = c.Nodes[:0]
		for _, n := range nodes {
			if n = strings.TrimSpace(n); n != "" {
				c.Nodes = append(c.Nodes, strings.TrimRight(n, "/"))
			}
		}
	}
}
func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.Client = h } }
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.Client = &http.Client{Timeout: d} }
}
func WithLogger(l *slog.Logger) ClientOption { return func(c *Client) { c.Logger = l } }

func NewClient(opts ...ClientOption) *Client {
	c := Client{
		Client: &http.Client{Timeout: 5 * time.Second},
		Nodes:  append([]string(nil), DefaultNodes...),
		Logger: slog.Default(),
	}
	for _, o := range opts {
		o(&c)
	}
	return &c
}

// Account is the subset of condenser_api account data userbase reads.
type Account struct {
	Name                string    `json:"name"`
	Owner               Authority `json:"owner"`
	Active              Authority `json:"active"`
	Posting             Authority `json:"posting"`
	MemoKey             string    `json:"memo_key"`
	JSONMetadata        string    `json:"json_metadata"`
	PostingJSONMetadata string    `json:"posting_json_metadata"`
}

// Authority is a weighted key/account threshold set.
type Authority struct {
	WeightThreshold int       `json:"weight_threshold"`
	KeyAuths        []KeyAuth `json:"key_auths"`
}

// KeyAuth is one ["STM...", weight] pair.
type KeyAuth struct {
	Key    string
	Weight int
}

func (k *KeyAuth) UnmarshalJSON(b []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return errors.Wrap(err, "key_auth pair")
	}
	if err := json.Unmarshal(pair[0], &k.Key); err != nil {
		return errors.Wrap(err, "key_auth key")
	}
	if err := json.Unmarshal(pair[1], &k.Weight); err != nil {
		return errors.Wrap(err, "key_auth weight")
	}
	return nil
}

func (k KeyAuth) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{k.Key, k.Weight})
}

// GetAccount fetches one account by name.
func (c *Client) GetAccount(ctx context.Context, name string) (*Account, error) {
	var accounts []Account
	if err := c.Call(ctx, "condenser_api.get_accounts", []any{[]string{name}}, &accounts); err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Name == name {
			return &accounts[i], nil
		}
	}
	return nil, errors.Wrapf(ErrAccountNotFound, "%q", name)
}

// PostingKeys returns the public keys in the account's posting authority.
func (c *Client) PostingKeys(ctx context.Context, name string) ([]string, error) {
	acct, err := c.GetAccount(ctx, name)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(acct.Posting.KeyAuths))
	for _, ka := range acct.Posting.KeyAuths {
		keys = append(keys, ka.Key)
	}
	return keys, nil
}

// Ping checks that at least one node answers a cheap call.
func (c *Client) Ping(ctx context.Context) error {
	var props map[string]any
	return c.Call(ctx, "condenser_api.get_dynamic_global_properties", []any{}, &props)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by a node. It is not retried on
// another node since the request itself was rejected.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("hive rpc error %d: %s", e.Code, e.Message) }

// Call runs one JSON-RPC method, trying each node until one answers.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	if len(c.Nodes) == 0 {
		return errors.Wrap(ErrUnavailable, "no nodes configured")
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.id.Add(1),
	})
	if err != nil {
		return errors.Wrap(err, "encode rpc request")
	}

	var lastErr error
	for _, node := range c.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := c.post(ctx, node, body)
		if err != nil {
			lastErr = err
			c.Logger.Warn("hive.node.fail", "node", node, "method", method, "err", err)
			continue
		}
		if res.Error != nil {
			return res.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.Result, out); err != nil {
			return errors.Wrapf(err, "decode %s result", method)
		}
		return nil
	}
	return errors.Wrapf(ErrUnavailable, "%s: %v", method, lastErr)
}

func (c *Client) post(ctx context.Context, node string, body []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return nil, errors.Errorf("invalid status code %q", res.Status)
	}

	var out rpcResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode rpc response")
	}
	return &out, nil
}
