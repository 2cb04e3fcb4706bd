package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machinepark/internal/consent"
	"github.com/machinepark/internal/middleware"
	"github.com/machinepark/internal/model"
	"github.com/machinepark/internal/repository"
	"github.com/machinepark/internal/service"
)

// testStore реализует service.SessionStore поверх map.
type testStore struct {
	sessions    map[string]*model.Session
	createErr   error
	createCalls int
	deleted     []string
}

func newTestStore() *testStore {
	return &testStore{sessions: map[string]*model.Session{}}
}

func (f *testStore) Create(ctx context.Context, ident model.Identity, rememberMe bool, ip, userAgent string) (*repository.IssuedSession, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	maxAge := 1800
	ttl := 60 * time.Minute
	if rememberMe {
		maxAge = 604800
		ttl = 7 * 24 * time.Hour
	}
	now := time.Now().UTC()
	s := &model.Session{
		SessionID:   "sess-1",
		UserID:      ident.UserID,
		UserLogin:   ident.UserLogin,
		Email:       ident.Email,
		AccessToken: "tok-1",
		ExpiresAt:   now.Add(ttl),
		RememberMe:  rememberMe,
	}
	f.sessions[s.SessionID] = s
	return &repository.IssuedSession{SessionID: s.SessionID, AccessToken: s.AccessToken, MaxAgeSeconds: maxAge, ExpiresAt: s.ExpiresAt}, nil
}

func (f *testStore) Lookup(ctx context.Context, sessionID, accessToken string) (*model.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.AccessToken != accessToken {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *testStore) Touch(ctx context.Context, sessionID string) error { return nil }

func (f *testStore) Renew(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if s, ok := f.sessions[sessionID]; ok {
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (f *testStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	_, ok := f.sessions[sessionID]
	delete(f.sessions, sessionID)
	f.deleted = append(f.deleted, sessionID)
	return ok, nil
}

func (f *testStore) DeleteAllForUser(ctx context.Context, userID int) (int64, error) { return 0, nil }

// testUsers реализует service.UserStore с одним пользователем (sha256-хэш,
// чтобы тесты не ждали bcrypt).
type testUsers struct {
	user model.User
}

func (f *testUsers) Create(ctx context.Context, u *model.User) error { return errors.New("not used") }

func (f *testUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if email != f.user.Email {
		return nil, repository.ErrNotFound
	}
	cp := f.user
	return &cp, nil
}

func (f *testUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return email == f.user.Email, nil
}

func (f *testUsers) List(ctx context.Context, limit int) ([]model.User, error) {
	return []model.User{f.user}, nil
}

func legacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func newAuthFixture() (*AuthHandler, *testStore) {
	store := newTestStore()
	users := &testUsers{user: model.User{
		ID: 7, Login: "ivanov", Email: "ivanov@zavod.ru",
		PasswordHash: legacyHash("пароль123"),
	}}
	creds := service.NewCredentialService(users)
	sessions := service.NewSessionService(store, creds, nil)
	return NewAuthHandler(sessions, creds, false), store
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withConsent(req *http.Request, pref string) *http.Request {
	req.AddCookie(&http.Cookie{Name: consent.CookieName, Value: pref})
	return req
}

func jsonBody(t *testing.T, rw *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &body))
	return body
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s не найдена", name)
	return nil
}

func TestLoginSuccess(t *testing.T) {
	h, store := newAuthFixture()

	req := withConsent(postJSON("/api/auth/login", `{"email":"ivanov@zavod.ru","password":"пароль123"}`), "true")
	rw := httptest.NewRecorder()
	h.Login(rw, req)

	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	body := jsonBody(t, rw)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ivanov", body["user_login"])
	assert.Equal(t, float64(7), body["user_id"])
	assert.Equal(t, false, body["remember_me"])

	cookies := rw.Result().Cookies()
	sid := findCookie(t, cookies, middleware.SessionCookie)
	tok := findCookie(t, cookies, middleware.AccessTokenCookie)
	assert.Equal(t, "sess-1", sid.Value)
	assert.Equal(t, "tok-1", tok.Value)
	for _, c := range []*http.Cookie{sid, tok} {
		assert.Equal(t, 1800, c.MaxAge)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, "/", c.Path)
	}
	assert.Equal(t, 1, store.createCalls)
}

func TestLoginRememberMe(t *testing.T) {
	h, _ := newAuthFixture()

	req := withConsent(postJSON("/api/auth/login", `{"email":"ivanov@zavod.ru","password":"пароль123","remember_me":true}`), "selected:session")
	rw := httptest.NewRecorder()
	h.Login(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	body := jsonBody(t, rw)
	assert.Equal(t, true, body["remember_me"])
	sid := findCookie(t, rw.Result().Cookies(), middleware.SessionCookie)
	assert.Equal(t, 604800, sid.MaxAge)
}

func TestLoginConsentRequired(t *testing.T) {
	h, store := newAuthFixture()

	// Без cookie согласия и с согласием без категории session.
	for _, pref := range []string{"", "false", "selected:functional"} {
		req := postJSON("/api/auth/login", `{"email":"ivanov@zavod.ru","password":"пароль123"}`)
		if pref != "" {
			req = withConsent(req, pref)
		}
		rw := httptest.NewRecorder()
		h.Login(rw, req)

		require.Equal(t, http.StatusForbidden, rw.Code, "pref=%q", pref)
		body := jsonBody(t, rw)
		assert.Equal(t, "consent_required", body["reason"])
		assert.Empty(t, rw.Result().Cookies(), "cookies не выдаются без согласия")
	}
	assert.Zero(t, store.createCalls)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h, _ := newAuthFixture()

	wrongPassword := withConsent(postJSON("/api/auth/login", `{"email":"ivanov@zavod.ru","password":"не тот"}`), "true")
	rw1 := httptest.NewRecorder()
	h.Login(rw1, wrongPassword)
	require.Equal(t, http.StatusUnauthorized, rw1.Code)

	unknownEmail := withConsent(postJSON("/api/auth/login", `{"email":"nobody@zavod.ru","password":"пароль123"}`), "true")
	rw2 := httptest.NewRecorder()
	h.Login(rw2, unknownEmail)
	require.Equal(t, http.StatusUnauthorized, rw2.Code)

	// Неизвестный email и неверный пароль дают одинаковый ответ.
	assert.Equal(t, rw1.Body.String(), rw2.Body.String())
}

func TestLoginValidation(t *testing.T) {
	h, _ := newAuthFixture()

	cases := []string{
		`{"password":"x"}`,
		`{"email":"a@b.ru"}`,
		`не json`,
	}
	for _, body := range cases {
		rw := httptest.NewRecorder()
		h.Login(rw, withConsent(postJSON("/api/auth/login", body), "true"))
		assert.Equal(t, http.StatusBadRequest, rw.Code, "body=%s", body)
	}
}

func TestLoginStoreUnavailable(t *testing.T) {
	h, store := newAuthFixture()
	store.createErr = errors.New("db down")

	req := withConsent(postJSON("/api/auth/login", `{"email":"ivanov@zavod.ru","password":"пароль123"}`), "true")
	rw := httptest.NewRecorder()
	h.Login(rw, req)

	require.Equal(t, http.StatusServiceUnavailable, rw.Code)
	assert.Empty(t, rw.Result().Cookies())
}

func TestSessionStatusValid(t *testing.T) {
	h, store := newAuthFixture()
	store.sessions["sid-1"] = &model.Session{
		SessionID: "sid-1", UserID: 7, UserLogin: "ivanov", Email: "ivanov@zavod.ru",
		AccessToken: "tok-1", ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "sid-1"})
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "tok-1"})
	rw := httptest.NewRecorder()
	h.SessionStatus(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	body := jsonBody(t, rw)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "ivanov", body["user_login"])
}

func TestSessionStatusNoSession(t *testing.T) {
	h, _ := newAuthFixture()

	rw := httptest.NewRecorder()
	h.SessionStatus(rw, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

	require.Equal(t, http.StatusUnauthorized, rw.Code)
	body := jsonBody(t, rw)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "no_session", body["reason"])
	assert.Len(t, rw.Result().Cookies(), 2, "недействительные cookies снимаются")
}

func TestSessionStatusExpiredRemember(t *testing.T) {
	h, store := newAuthFixture()
	store.sessions["sid-1"] = &model.Session{
		SessionID: "sid-1", UserID: 7, UserLogin: "ivanov", Email: "ivanov@zavod.ru",
		AccessToken: "tok-1", ExpiresAt: time.Now().UTC().Add(-time.Minute), RememberMe: true,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "sid-1"})
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "tok-1"})
	rw := httptest.NewRecorder()
	h.SessionStatus(rw, req)

	require.Equal(t, http.StatusUnauthorized, rw.Code)
	body := jsonBody(t, rw)
	assert.Equal(t, "session_expired", body["reason"])
	assert.Equal(t, "ivanov@zavod.ru", body["email"])
	assert.Empty(t, rw.Result().Cookies(), "cookies истёкшей remember-сессии не трогаем")
	assert.Contains(t, store.deleted, "sid-1")
}

func TestLogout(t *testing.T) {
	h, store := newAuthFixture()
	store.sessions["sid-1"] = &model.Session{SessionID: "sid-1", AccessToken: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "sid-1"})
	rw := httptest.NewRecorder()
	h.Logout(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "ok", jsonBody(t, rw)["status"])
	assert.Contains(t, store.deleted, "sid-1")
	assert.Len(t, rw.Result().Cookies(), 2)

	// Повторный выход без сессии: тоже 200.
	rw = httptest.NewRecorder()
	h.Logout(rw, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestCheckUser(t *testing.T) {
	h, _ := newAuthFixture()

	rw := httptest.NewRecorder()
	h.CheckUser(rw, postJSON("/api/auth/check-user", `{"email":"ivanov@zavod.ru"}`))
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, true, jsonBody(t, rw)["exists"])

	rw = httptest.NewRecorder()
	h.CheckUser(rw, postJSON("/api/auth/check-user", `{"email":"nobody@zavod.ru"}`))
	require.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, false, jsonBody(t, rw)["exists"])

	rw = httptest.NewRecorder()
	h.CheckUser(rw, postJSON("/api/auth/check-user", `{}`))
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}
