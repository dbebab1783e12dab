package core

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type routerFixture struct {
	router  *gin.Engine
	store   *Store
	codec   *TokenCodec
	users   *fakeDirectory
	captcha *CaptchaService
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	_, store := newTestStore(t)
	codec, err := NewTokenCodec("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec error: %v", err)
	}

	hash, err := BcryptEncoder{Cost: 4}.Encode("hunter2")
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	users := &fakeDirectory{records: []*UserRecord{
		{ID: 1, Username: "alice", Email: "alice@user.dev", PasswordHash: hash, Enabled: true, Roles: []string{"ROLE_admin"}},
		{ID: 2, Username: "bob", Email: "bob@user.dev", PasswordHash: hash, Enabled: true},
		{ID: 3, Username: "carol", Email: "carol@user.dev", PasswordHash: hash, Enabled: false},
	}}

	captcha := NewCaptchaService(store, 6)
	mail := NewMailService(users, store, &capturingPublisher{}, "noreply@sssblog.dev")

	cfg := Config{CaptchaGatedPaths: []string{
		"/api/v1/auth/login",
		"/api/v1/auth/forgot-password",
	}}
	return &routerFixture{
		router:  NewRouter(cfg, codec, users, BcryptEncoder{}, captcha, mail),
		store:   store,
		codec:   codec,
		users:   users,
		captcha: captcha,
	}
}

func (f *routerFixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, env
}

// seedChallenge plants a known challenge code so gated requests can pass.
func (f *routerFixture) seedChallenge(t *testing.T, typeName, transactionID, code string) {
	t.Helper()
	bt, err := CaptchaTypeFromName(typeName)
	if err != nil {
		t.Fatalf("CaptchaTypeFromName error: %v", err)
	}
	if err := f.store.SetWithTTL(context.Background(), bt.Key(transactionID), code, bt.Expiry); err != nil {
		t.Fatalf("SetWithTTL error: %v", err)
	}
}

func loginRequest(username, password, captchaCode string) *http.Request {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	target := "/api/v1/auth/login"
	if captchaCode != "" {
		target += "?captcha=" + captchaCode
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginWithoutChallengeMetadata(t *testing.T) {
	f := newRouterFixture(t)

	rec, env := f.do(t, loginRequest("alice", "hunter2", "abc123"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Message, "captcha") {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestLoginHappyPath(t *testing.T) {
	f := newRouterFixture(t)
	f.seedChallenge(t, "login", "t1", "abc123")

	req := loginRequest("alice", "hunter2", "abc123")
	req.Header.Set(headerTransactionID, "t1")
	req.Header.Set(headerBusinessType, "login")

	rec, env := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var data struct {
		Token    string   `json:"token"`
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data decode error: %v", err)
	}
	if data.Username != "alice" || data.Token == "" {
		t.Fatalf("unexpected login payload: %+v", data)
	}
	subject, err := f.codec.Verify(data.Token)
	if err != nil || subject != "alice" {
		t.Fatalf("issued token verifies to (%q, %v)", subject, err)
	}
}

func TestLoginWrongChallengeCode(t *testing.T) {
	f := newRouterFixture(t)
	f.seedChallenge(t, "login", "t1", "abc123")

	req := loginRequest("alice", "hunter2", "zzz999")
	req.Header.Set(headerTransactionID, "t1")
	req.Header.Set(headerBusinessType, "login")

	rec, env := f.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Message, "incorrect") {
		t.Fatalf("message = %q", env.Message)
	}

	// The gate consumed the challenge, so even the right code now fails.
	req = loginRequest("alice", "hunter2", "abc123")
	req.Header.Set(headerTransactionID, "t1")
	req.Header.Set(headerBusinessType, "login")
	rec, env = f.do(t, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(env.Message, "expired") {
		t.Fatalf("replay status = %d message %q", rec.Code, env.Message)
	}
}

func TestLoginBadCredentialsIndistinguishable(t *testing.T) {
	f := newRouterFixture(t)

	for name, attempt := range map[string]*http.Request{
		"unknown user":   loginRequest("mallory", "hunter2", "abc123"),
		"wrong password": loginRequest("alice", "wrong", "abc123"),
	} {
		f.seedChallenge(t, "login", "t1", "abc123")
		attempt.Header.Set(headerTransactionID, "t1")
		attempt.Header.Set(headerBusinessType, "login")

		rec, env := f.do(t, attempt)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
		if env.Message != "invalid username or password" {
			t.Fatalf("%s: message = %q leaks account state", name, env.Message)
		}
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newRouterFixture(t)
	f.seedChallenge(t, "login", "t1", "abc123")

	req := loginRequest("carol", "hunter2", "abc123")
	req.Header.Set(headerTransactionID, "t1")
	req.Header.Set(headerBusinessType, "login")

	rec, env := f.do(t, req)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(env.Message, "disabled") {
		t.Fatalf("status = %d message %q", rec.Code, env.Message)
	}
}

func TestUngatedPathSkipsChallenge(t *testing.T) {
	f := newRouterFixture(t)

	// No challenge metadata at all, but the path is not in the gated set.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail/send", strings.NewReader(`{"email":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec, env := f.do(t, req)
	if rec.Code != http.StatusBadRequest || strings.Contains(env.Message, "captcha") {
		t.Fatalf("status = %d message %q, want plain validation failure", rec.Code, env.Message)
	}
}

func TestUsersMeRequiresToken(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUsersMeWithToken(t *testing.T) {
	f := newRouterFixture(t)
	token, err := f.codec.Issue("bob")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, env := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var identity Identity
	if err := json.Unmarshal(env.Data, &identity); err != nil {
		t.Fatalf("data decode error: %v", err)
	}
	if identity.Username != "bob" || identity.ID != 2 {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	f := newRouterFixture(t)
	f.codec.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := f.codec.Issue("bob")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	f.codec.now = time.Now

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, env := f.do(t, req)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(env.Message, "expired") {
		t.Fatalf("status = %d message %q", rec.Code, env.Message)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	f := newRouterFixture(t)
	other, err := NewTokenCodec("different-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec error: %v", err)
	}
	token, err := other.Issue("bob")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, env := f.do(t, req)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(env.Message, "signature") {
		t.Fatalf("status = %d message %q", rec.Code, env.Message)
	}
}

func TestTokenForDisabledAccountRejected(t *testing.T) {
	f := newRouterFixture(t)
	token, err := f.codec.Issue("carol")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, env := f.do(t, req)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(env.Message, "disabled") {
		t.Fatalf("status = %d message %q", rec.Code, env.Message)
	}
}

func TestRefreshIssuesNewToken(t *testing.T) {
	f := newRouterFixture(t)
	token, err := f.codec.Issue("bob")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, env := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data decode error: %v", err)
	}
	subject, err := f.codec.Verify(data.Token)
	if err != nil || subject != "bob" {
		t.Fatalf("refreshed token verifies to (%q, %v)", subject, err)
	}
}

func TestAdminPingRoleCheck(t *testing.T) {
	f := newRouterFixture(t)

	// No token at all.
	rec, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}

	// Authenticated but no admin role.
	token, _ := f.codec.Issue("bob")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ = f.do(t, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rec.Code)
	}

	// Admin.
	token, _ = f.codec.Issue("alice")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, _ = f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
}

func TestCaptchaEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/captcha?uuid=t1&business=login", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var data struct {
		Captcha string `json:"captcha"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data decode error: %v", err)
	}
	if !strings.HasPrefix(data.Captcha, "data:image/png;base64,") {
		t.Fatal("captcha payload is not a data URL")
	}

	// Immediate re-request is throttled.
	rec, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/captcha?uuid=t1&business=login", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("throttled status = %d, want 429", rec.Code)
	}
}

func TestCaptchaEndpointMissingParams(t *testing.T) {
	f := newRouterFixture(t)

	rec, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/captcha?uuid=t1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMailSendEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	body := strings.NewReader(`{"email":"new@user.dev"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail/send", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerBusinessType, "register")
	rec, _ := f.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ok, _ := f.store.Has(context.Background(), "REGISTER_new@user.dev"); !ok {
		t.Fatal("verification code was not stored")
	}
}

func TestMailSendEndpointUnregisteredRecipient(t *testing.T) {
	f := newRouterFixture(t)

	body := strings.NewReader(`{"email":"ghost@user.dev"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail/send", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerBusinessType, "forgot-password")
	rec, env := f.do(t, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(env.Message, "not registered") {
		t.Fatalf("status = %d message %q", rec.Code, env.Message)
	}
}
