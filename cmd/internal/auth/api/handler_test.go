package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"userbase/cmd/identity"
	"userbase/cmd/internal/audit"
	"userbase/cmd/internal/auth/authtest"
	"userbase/cmd/internal/auth/link"
	"userbase/cmd/internal/auth/magiclink"
	"userbase/cmd/internal/auth/merge"
	"userbase/cmd/internal/auth/provision"
	"userbase/cmd/internal/memstore"
	"userbase/cmd/security/token"
)

type outbox struct {
	mu   sync.Mutex
	html []string
}

func (o *outbox) Send(_ context.Context, _, _, html string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.html = append(o.html, html)
	return nil
}

type countingMetrics struct {
	mu     sync.Mutex
	events map[string]int
}

func (m *countingMetrics) AuthEvent(event, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event+"/"+outcome]++
}

type apiFixture struct {
	router   chi.Router
	st       *memstore.Store
	accounts authtest.Accounts
	mail     *outbox
	metrics  *countingMetrics
}

func newAPIFixture(t *testing.T, mutate func(*Config)) *apiFixture {
	t.Helper()

	st := memstore.New()
	f := &apiFixture{
		st:       st,
		accounts: authtest.Accounts{},
		mail:     &outbox{},
		metrics:  &countingMetrics{events: map[string]int{}},
	}

	sessions := authtest.Sessions(t, st)
	challenges := authtest.Challenges(t, st)
	verifiers := authtest.Registry(f.accounts)

	prov, err := provision.NewService(provision.DefaultConfig(), st, sessions, challenges, verifiers)
	require.NoError(t, err)
	links, err := link.NewService(st, challenges, verifiers, nil)
	require.NoError(t, err)
	merges, err := merge.NewEngine(st, st, challenges, verifiers)
	require.NoError(t, err)
	magic, err := magiclink.NewService(magiclink.DefaultConfig(), st, f.mail, token.Hasher{})
	require.NoError(t, err)

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewHandler(cfg, Deps{
		Users:     st,
		Sessions:  sessions,
		Provision: prov,
		Links:     links,
		Merges:    merges,
	}, WithMagicLinks(magic), WithAudit(st), WithMetrics(f.metrics))
	require.NoError(t, err)

	f.router = chi.NewRouter()
	h.Routes(f.router)
	return f
}

type reqOpt func(*http.Request)

func withCookie(c *http.Cookie) reqOpt { return func(r *http.Request) { r.AddCookie(c) } }

func withBearer(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, opts ...reqOpt) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	out := map[string]any{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "userbase_refresh" {
			return c
		}
	}
	t.Fatalf("no refresh cookie in %v", rr.Result().Header)
	return nil
}

// hiveBootstrap signs in as a Hive account controlled by key.
func (f *apiFixture) hiveBootstrap(t *testing.T, key authtest.Key, handle string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	f.accounts[handle] = []string{key.HivePublic()}

	rr, body := f.do(t, http.MethodPost, "/auth/bootstrap/challenge", identityRequest{Type: "hive", Identifier: handle})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	msg := body["challenge"].(map[string]any)["message"].(string)

	return f.do(t, http.MethodPost, "/auth/bootstrap", bootstrapRequest{
		Type:       "hive",
		Identifier: handle,
		Signature:  key.HiveSign(msg),
		PublicKey:  key.HivePublic(),
	})
}

func userID(body map[string]any) string {
	return body["user"].(map[string]any)["id"].(string)
}

func TestBootstrap_HiveSetsCookieAndAuthenticatesMe(t *testing.T) {
	f := newAPIFixture(t, nil)
	key := authtest.NewKey(t)

	rr, body := f.hiveBootstrap(t, key, "alice")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["success"])
	require.Equal(t, true, body["created"])
	require.Equal(t, "cryptographic", body["trust_tier"])

	c := refreshCookie(t, rr)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)

	sess := body["session"].(map[string]any)
	require.NotContains(t, sess, "refresh_token")
	access := sess["access_token"].(string)

	rr, me := f.do(t, http.MethodGet, "/me", nil, withCookie(c))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, userID(body), userID(me))
	require.Len(t, me["identities"], 1)

	rr, me = f.do(t, http.MethodGet, "/me/identities", nil, withBearer(access))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, me["identities"], 1)

	require.Contains(t, f.st.AuditActions(), audit.ActionBootstrapSuccess)
	require.Equal(t, 1, f.metrics.events["bootstrap/ok"])
}

func TestBootstrap_ResumesWithCookie(t *testing.T) {
	f := newAPIFixture(t, nil)
	key := authtest.NewKey(t)

	rr, first := f.hiveBootstrap(t, key, "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	c := refreshCookie(t, rr)

	rr, body := f.do(t, http.MethodPost, "/auth/bootstrap", bootstrapRequest{Type: "hive", Identifier: "alice"}, withCookie(c))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["resumed"])
	require.Equal(t, userID(first), userID(body))
	require.Empty(t, rr.Result().Cookies())
}

func TestBootstrap_BadSignatureThenThrottled(t *testing.T) {
	f := newAPIFixture(t, func(c *Config) { c.BootstrapIPMax = 2 })
	owner := authtest.NewKey(t)
	rogue := authtest.NewKey(t)
	f.accounts["alice"] = []string{owner.HivePublic()}

	for i := 0; i < 2; i++ {
		rr, body := f.do(t, http.MethodPost, "/auth/bootstrap/challenge", identityRequest{Type: "hive", Identifier: "alice"})
		require.Equal(t, http.StatusOK, rr.Code)
		msg := body["challenge"].(map[string]any)["message"].(string)

		rr, body = f.do(t, http.MethodPost, "/auth/bootstrap", bootstrapRequest{
			Type: "hive", Identifier: "alice", Signature: rogue.HiveSign(msg), PublicKey: rogue.HivePublic(),
		})
		require.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
		require.NotEmpty(t, body["error"])
		require.NotEmpty(t, body["details"])
	}

	rr, body := f.do(t, http.MethodPost, "/auth/bootstrap", bootstrapRequest{Type: "hive", Identifier: "alice"})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "rate_limited", body["error"])
	require.Equal(t, "300", rr.Header().Get("Retry-After"))
}

func TestErrors_ProductionHidesDetails(t *testing.T) {
	f := newAPIFixture(t, func(c *Config) { c.Env = "production" })

	rr, body := f.do(t, http.MethodPost, "/auth/bootstrap/challenge", identityRequest{Type: "hive", Identifier: "NOT A HANDLE!"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.NotEmpty(t, body["error"])
	require.NotContains(t, body, "details")
}

func TestErrors_InvalidJSONAndMissingCredentials(t *testing.T) {
	f := newAPIFixture(t, nil)

	rr, body := f.do(t, http.MethodPost, "/auth/bootstrap", `{"type":"hive",`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_json", body["error"])

	rr, body = f.do(t, http.MethodPost, "/auth/bootstrap", `{"surprise":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_json", body["error"])

	rr, body = f.do(t, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "missing_credentials", body["error"])

	rr, body = f.do(t, http.MethodGet, "/me", nil, withBearer("v4.public.garbage"))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "invalid_token", body["error"])
}

func TestBootstrapChallenge_SelfReportedTypeNeedsNone(t *testing.T) {
	f := newAPIFixture(t, nil)

	rr, body := f.do(t, http.MethodPost, "/auth/bootstrap/challenge", identityRequest{Type: "farcaster", Identifier: "42"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "challenge_not_required", body["error"])

	rr, body = f.do(t, http.MethodPost, "/auth/bootstrap", bootstrapRequest{Type: "farcaster", Identifier: "42"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["created"])
}

func TestLinkConflictThenMerge(t *testing.T) {
	f := newAPIFixture(t, nil)
	aliceKey := authtest.NewKey(t)
	bobKey := authtest.NewKey(t)

	rr, alice := f.hiveBootstrap(t, aliceKey, "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	rr, bob := f.hiveBootstrap(t, bobKey, "bob")
	require.Equal(t, http.StatusOK, rr.Code)
	bobCookie := refreshCookie(t, rr)
	f.st.AddPost(userID(alice))

	// bob tries to link alice's hive account: 409 naming the owner.
	rr, body := f.do(t, http.MethodPost, "/me/identities/challenge", identityRequest{Type: "hive", Identifier: "alice"}, withCookie(bobCookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	msg := body["challenge"].(map[string]any)["message"].(string)

	rr, body = f.do(t, http.MethodPost, "/me/identities", linkRequest{
		Type: "hive", Identifier: "alice", Signature: aliceKey.HiveSign(msg), PublicKey: aliceKey.HivePublic(),
	}, withCookie(bobCookie))
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	require.Equal(t, userID(alice), body["owner_user_id"])

	rr, body = f.do(t, http.MethodGet, "/me/merge/preview?type=hive&identifier=alice", nil, withCookie(bobCookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	preview := body["preview"].(map[string]any)
	require.Equal(t, true, preview["exists"])
	require.Equal(t, float64(1), preview["counts"].(map[string]any)["posts"])

	rr, body = f.do(t, http.MethodPost, "/me/merge/challenge", identityRequest{Type: "hive", Identifier: "alice"}, withCookie(bobCookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	msg = body["challenge"].(map[string]any)["message"].(string)
	require.True(t, strings.Contains(msg, userID(alice)), msg)

	rr, body = f.do(t, http.MethodPost, "/me/merge", proofRequest{
		Type: "hive", Identifier: "alice", Signature: aliceKey.HiveSign(msg), PublicKey: aliceKey.HivePublic(),
	}, withCookie(bobCookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, userID(alice), body["source_user_id"])
	require.Equal(t, userID(bob), body["target_user_id"])

	rr, body = f.do(t, http.MethodGet, "/me/identities", nil, withCookie(bobCookie))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, body["identities"], 2)
	require.Contains(t, f.st.AuditActions(), audit.ActionMergeSuccess)

	// Same identity again is now the actor's own.
	rr, body = f.do(t, http.MethodPost, "/me/merge/challenge", identityRequest{Type: "hive", Identifier: "alice"}, withCookie(bobCookie))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "merge_same_user", body["error"])
}

var hrefRe = regexp.MustCompile(`href="([^"]+)"`)

func (f *apiFixture) mailedToken(t *testing.T, i int) string {
	t.Helper()
	require.Greater(t, len(f.mail.html), i)
	m := hrefRe.FindStringSubmatch(f.mail.html[i])
	require.Len(t, m, 2)
	u, err := url.Parse(m[1])
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func TestMagicLink_BodyTransportThenExchange(t *testing.T) {
	f := newAPIFixture(t, nil)

	rr, body := f.do(t, http.MethodPost, "/auth/magic-link", magicLinkRequest{Email: "Carol@Example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotEmpty(t, body["expires_at"])
	require.Len(t, f.mail.html, 1)

	m := hrefRe.FindStringSubmatch(f.mail.html[0])
	require.Len(t, m, 2)
	u, err := url.Parse(m[1])
	require.NoError(t, err)
	tok := u.Query().Get("token")

	rr, body = f.do(t, http.MethodPost, "/auth/magic-link/verify", magicLinkVerifyRequest{Token: tok, Transport: "body", DisplayName: "Carol"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["created"])
	require.Empty(t, rr.Result().Cookies())
	refresh := body["session"].(map[string]any)["refresh_token"].(string)
	require.NotEmpty(t, refresh)

	rr, _ = f.do(t, http.MethodPost, "/auth/magic-link/verify", magicLinkVerifyRequest{Token: tok})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, ex := f.do(t, http.MethodPost, "/auth/session/exchange", exchangeRequest{RefreshToken: refresh})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, userID(body), userID(ex))
	require.NotEmpty(t, ex["session"].(map[string]any)["access_token"])
}

func TestMagicLink_Throttled(t *testing.T) {
	f := newAPIFixture(t, func(c *Config) { c.MagicLinkIPMax = 1 })

	rr, _ := f.do(t, http.MethodPost, "/auth/magic-link", magicLinkRequest{Email: "dave@example.com"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr, body := f.do(t, http.MethodPost, "/auth/magic-link", magicLinkRequest{Email: "dave@example.com"})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "rate_limited", body["error"])
	require.Len(t, f.mail.html, 1)
}

func TestLogout_RevokesAndClearsCookie(t *testing.T) {
	f := newAPIFixture(t, nil)
	rr, _ := f.hiveBootstrap(t, authtest.NewKey(t), "alice")
	c := refreshCookie(t, rr)

	rr, _ = f.do(t, http.MethodPost, "/auth/logout", nil, withCookie(c))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cleared := refreshCookie(t, rr)
	require.Equal(t, "", cleared.Value)
	require.Less(t, cleared.MaxAge, 0)

	rr, body := f.do(t, http.MethodGet, "/me", nil, withCookie(c))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "session_revoked", body["error"])
}

func TestLogoutAll_CountsSessions(t *testing.T) {
	f := newAPIFixture(t, nil)
	key := authtest.NewKey(t)

	rr, _ := f.hiveBootstrap(t, key, "alice")
	first := refreshCookie(t, rr)
	rr, _ = f.hiveBootstrap(t, key, "alice")
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body := f.do(t, http.MethodPost, "/auth/logout_all", nil, withCookie(first))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, float64(2), body["revoked"])
	require.Contains(t, f.st.AuditActions(), audit.ActionLogoutAll)
}

func TestMagicLinkVerify_IgnoresCookieOfOtherUser(t *testing.T) {
	f := newAPIFixture(t, nil)

	rr, alice := f.hiveBootstrap(t, authtest.NewKey(t), "alice")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	aliceCookie := refreshCookie(t, rr)

	rr, _ = f.do(t, http.MethodPost, "/auth/magic-link", magicLinkRequest{Email: "bob@example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	tok := f.mailedToken(t, 0)

	rr, body := f.do(t, http.MethodPost, "/auth/magic-link/verify", magicLinkVerifyRequest{Token: tok}, withCookie(aliceCookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, body["created"])
	require.Equal(t, false, body["resumed"])
	require.NotEqual(t, userID(alice), userID(body))
	require.NotContains(t, body, "trust_tier")

	bobCookie := refreshCookie(t, rr)
	require.NotEqual(t, aliceCookie.Value, bobCookie.Value)

	m, err := f.st.FindAuthMethod(context.Background(), identity.AuthMethodEmail, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, userID(body), m.UserID)

	// Alice's session is untouched.
	rr, me := f.do(t, http.MethodGet, "/me", nil, withCookie(aliceCookie))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, userID(alice), userID(me))
}

func TestBootstrap_FarcasterSignsBackIn(t *testing.T) {
	f := newAPIFixture(t, nil)
	req := bootstrapRequest{Type: "farcaster", Identifier: "42"}

	rr, first := f.do(t, http.MethodPost, "/auth/bootstrap", req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, true, first["created"])
	require.Equal(t, "self_reported", first["trust_tier"])

	rr, again := f.do(t, http.MethodPost, "/auth/bootstrap", req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, false, again["created"])
	require.Equal(t, userID(first), userID(again))
	require.Equal(t, "self_reported", again["trust_tier"])
}

func TestKeys_VerifiesIssuedAccessToken(t *testing.T) {
	f := newAPIFixture(t, nil)

	rr, body := f.hiveBootstrap(t, authtest.NewKey(t), "alice")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	access := body["session"].(map[string]any)["access_token"].(string)

	rr, ks := f.do(t, http.MethodGet, "/auth/keys", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "userbase", ks["issuer"])
	require.Equal(t, "userbase-api", ks["audience"])
	keys := ks["keys"].([]any)
	require.Len(t, keys, 1)
	k := keys[0].(map[string]any)
	require.Equal(t, "ed25519", k["alg"])
	require.Equal(t, "v4.public", k["version"])
	require.Len(t, k["kid"], 16)

	pub, err := paseto.NewV4AsymmetricPublicKeyFromHex(k["public_key_hex"].(string))
	require.NoError(t, err)
	p := paseto.NewParser()
	p.AddRule(paseto.ForAudience("userbase-api"), paseto.IssuedBy("userbase"))
	parsed, err := p.ParseV4Public(pub, access, nil)
	require.NoError(t, err)
	sub, err := parsed.GetSubject()
	require.NoError(t, err)
	require.Equal(t, userID(body), sub)
	amr, err := parsed.GetString("amr")
	require.NoError(t, err)
	require.Equal(t, "hive", amr)
	require.Contains(t, string(parsed.Footer()), k["kid"].(string))
}
