package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"masthead/api/internal/authpw"
	"masthead/api/internal/presence"
	"masthead/api/internal/store"
	"masthead/api/internal/util"
)

type fakeReset struct {
	userID    string
	expiresAt time.Time
	used      bool
}

// fakeStore implements both the service's dataStore and authpw.UserStore.
type fakeStore struct {
	mu           sync.Mutex
	users        map[string]store.User
	emails       map[string]string
	resets       map[string]fakeReset
	revokedJTIs  map[string]bool
	bonds        map[string]store.Bond
	cryptos      map[string]store.CryptoAsset
	stocks       map[string]store.Stock
	newsletters  map[string]store.Newsletter
	spotlights   map[string]store.Spotlight
	landingPages map[string]store.LandingPage
	pixels       map[string]store.PixelConfig
	pingErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[string]store.User),
		emails:       make(map[string]string),
		resets:       make(map[string]fakeReset),
		revokedJTIs:  make(map[string]bool),
		bonds:        make(map[string]store.Bond),
		cryptos:      make(map[string]store.CryptoAsset),
		stocks:       make(map[string]store.Stock),
		newsletters:  make(map[string]store.Newsletter),
		spotlights:   make(map[string]store.Spotlight),
		landingPages: make(map[string]store.LandingPage),
		pixels:       make(map[string]store.PixelConfig),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.emails[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[id], nil
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	f.emails[user.Email] = user.ID
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.VerificationToken = token
	u.VerificationExpiresAt = &expiresAt
	f.users[userID] = u
	return nil
}

func (f *fakeStore) VerifyUserEmail(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.VerificationToken == token && u.VerificationExpiresAt != nil && u.VerificationExpiresAt.After(time.Now()) {
			u.IsEmailVerified = true
			u.VerificationToken = ""
			f.users[id] = u
			return nil
		}
	}
	return errors.New("invalid or expired verification token")
}

func (f *fakeStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	f.users[userID] = u
	return nil
}

func (f *fakeStore) UpdateUserAvatar(ctx context.Context, userID, avatarKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	u.AvatarKey = avatarKey
	f.users[userID] = u
	return nil
}

func (f *fakeStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = fakeReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resets[token]
	if !ok || r.used || r.expiresAt.Before(time.Now()) {
		return "", errors.New("invalid or expired reset token")
	}
	return r.userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resets[token]
	if !ok {
		return sql.ErrNoRows
	}
	r.used = true
	f.resets[token] = r
	return nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTIs[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTIs[jti], nil
}

func (f *fakeStore) ListBonds(ctx context.Context) ([]store.Bond, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Bond, 0, len(f.bonds))
	for _, b := range f.bonds {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) GetBond(ctx context.Context, id string) (store.Bond, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bonds[id]
	if !ok {
		return store.Bond{}, sql.ErrNoRows
	}
	return b, nil
}

func (f *fakeStore) InsertBond(ctx context.Context, b store.Bond) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bonds[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBond(ctx context.Context, b store.Bond) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bonds[b.ID]; !ok {
		return sql.ErrNoRows
	}
	f.bonds[b.ID] = b
	return nil
}

func (f *fakeStore) DeleteBond(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bonds, id)
	return nil
}

func (f *fakeStore) ListCryptoAssets(ctx context.Context) ([]store.CryptoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.CryptoAsset, 0, len(f.cryptos))
	for _, c := range f.cryptos {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) GetCryptoAsset(ctx context.Context, id string) (store.CryptoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cryptos[id]
	if !ok {
		return store.CryptoAsset{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeStore) InsertCryptoAsset(ctx context.Context, c store.CryptoAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cryptos[c.ID] = c
	return nil
}

func (f *fakeStore) UpdateCryptoAsset(ctx context.Context, c store.CryptoAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cryptos[c.ID]; !ok {
		return sql.ErrNoRows
	}
	f.cryptos[c.ID] = c
	return nil
}

func (f *fakeStore) DeleteCryptoAsset(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cryptos, id)
	return nil
}

func (f *fakeStore) ListStocks(ctx context.Context) ([]store.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Stock, 0, len(f.stocks))
	for _, st := range f.stocks {
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeStore) GetStock(ctx context.Context, id string) (store.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stocks[id]
	if !ok {
		return store.Stock{}, sql.ErrNoRows
	}
	return st, nil
}

func (f *fakeStore) InsertStock(ctx context.Context, st store.Stock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stocks[st.ID] = st
	return nil
}

func (f *fakeStore) UpdateStock(ctx context.Context, st store.Stock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stocks[st.ID]; !ok {
		return sql.ErrNoRows
	}
	f.stocks[st.ID] = st
	return nil
}

func (f *fakeStore) DeleteStock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stocks, id)
	return nil
}

func (f *fakeStore) ListNewsletters(ctx context.Context) ([]store.Newsletter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Newsletter, 0, len(f.newsletters))
	for _, n := range f.newsletters {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) GetNewsletter(ctx context.Context, id string) (store.Newsletter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.newsletters[id]
	if !ok {
		return store.Newsletter{}, sql.ErrNoRows
	}
	return n, nil
}

func (f *fakeStore) InsertNewsletter(ctx context.Context, n store.Newsletter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newsletters[n.ID] = n
	return nil
}

func (f *fakeStore) UpdateNewsletter(ctx context.Context, n store.Newsletter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.newsletters[n.ID]; !ok {
		return sql.ErrNoRows
	}
	f.newsletters[n.ID] = n
	return nil
}

func (f *fakeStore) DeleteNewsletter(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.newsletters, id)
	return nil
}

func (f *fakeStore) ListSpotlights(ctx context.Context) ([]store.Spotlight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Spotlight, 0, len(f.spotlights))
	for _, sp := range f.spotlights {
		out = append(out, sp)
	}
	return out, nil
}

func (f *fakeStore) GetSpotlight(ctx context.Context, id string) (store.Spotlight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.spotlights[id]
	if !ok {
		return store.Spotlight{}, sql.ErrNoRows
	}
	return sp, nil
}

func (f *fakeStore) InsertSpotlight(ctx context.Context, sp store.Spotlight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spotlights[sp.ID] = sp
	return nil
}

func (f *fakeStore) UpdateSpotlight(ctx context.Context, sp store.Spotlight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.spotlights[sp.ID]; !ok {
		return sql.ErrNoRows
	}
	f.spotlights[sp.ID] = sp
	return nil
}

func (f *fakeStore) DeleteSpotlight(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.spotlights, id)
	return nil
}

func (f *fakeStore) ListLandingPages(ctx context.Context) ([]store.LandingPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.LandingPage, 0, len(f.landingPages))
	for _, lp := range f.landingPages {
		out = append(out, lp)
	}
	return out, nil
}

func (f *fakeStore) GetLandingPage(ctx context.Context, id string) (store.LandingPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lp, ok := f.landingPages[id]
	if !ok {
		return store.LandingPage{}, sql.ErrNoRows
	}
	return lp, nil
}

func (f *fakeStore) InsertLandingPage(ctx context.Context, lp store.LandingPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.landingPages[lp.ID] = lp
	return nil
}

func (f *fakeStore) UpdateLandingPage(ctx context.Context, lp store.LandingPage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.landingPages[lp.ID]; !ok {
		return sql.ErrNoRows
	}
	f.landingPages[lp.ID] = lp
	return nil
}

func (f *fakeStore) SetLandingPagePreviewKey(ctx context.Context, id, previewKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lp, ok := f.landingPages[id]
	if !ok {
		return sql.ErrNoRows
	}
	lp.PreviewKey = previewKey
	f.landingPages[id] = lp
	return nil
}

func (f *fakeStore) DeleteLandingPage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.landingPages, id)
	return nil
}

func (f *fakeStore) ListPixelConfigs(ctx context.Context) ([]store.PixelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.PixelConfig, 0, len(f.pixels))
	for _, p := range f.pixels {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) GetPixelConfig(ctx context.Context, id string) (store.PixelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pixels[id]
	if !ok {
		return store.PixelConfig{}, sql.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) InsertPixelConfig(ctx context.Context, p store.PixelConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pixels[p.ID] = p
	return nil
}

func (f *fakeStore) UpdatePixelConfig(ctx context.Context, p store.PixelConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pixels[p.ID]; !ok {
		return sql.ErrNoRows
	}
	f.pixels[p.ID] = p
	return nil
}

func (f *fakeStore) DeletePixelConfig(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pixels, id)
	return nil
}

// fakeSessions keeps refresh sessions in memory.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.User
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.User)}
}

func (f *fakeSessions) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = user
	return nil
}

func (f *fakeSessions) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.sessions[tokenHash]
	if !ok {
		return store.User{}, errors.New("refresh session not found")
	}
	return u, nil
}

func (f *fakeSessions) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

type testEnv struct {
	server   *httptest.Server
	store    *fakeStore
	registry *presence.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := newFakeStore()
	reg := presence.NewRegistry(25 * time.Second)
	svc := NewService(Options{
		Store:     fs,
		Sessions:  newFakeSessions(),
		AuthPW:    authpw.NewService(fs),
		Presence:  reg,
		JWTSecret: []byte("test-secret"),
		AccessTTL: 15 * time.Minute,
	})
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: fs, registry: reg}
}

func (e *testEnv) seedUser(t *testing.T, email, password, role string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{
		ID:              util.NewID("usr"),
		DisplayName:     email,
		Email:           email,
		PasswordHash:    string(hash),
		Role:            role,
		Color:           "#3b82f6",
		IsEmailVerified: true,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, payload
}

func (e *testEnv) signIn(t *testing.T, email, password string) (token, refresh string) {
	t.Helper()
	status, payload := e.request(t, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("signin %s: status %d, payload %v", email, status, payload)
	}
	token, _ = payload["accessToken"].(string)
	refresh, _ = payload["refreshToken"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("signin %s: missing tokens in %v", email, payload)
	}
	return token, refresh
}

func TestHealthIncludesPresenceStats(t *testing.T) {
	env := newTestEnv(t)
	status, payload := env.request(t, http.MethodGet, "/api/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if payload["ok"] != true {
		t.Fatalf("ok = %v", payload["ok"])
	}
	stats, ok := payload["presence"].(map[string]any)
	if !ok {
		t.Fatalf("presence stats missing: %v", payload)
	}
	if stats["rooms"] != float64(0) || stats["connections"] != float64(0) {
		t.Fatalf("expected empty presence stats, got %v", stats)
	}
	if stats["heartbeatSeconds"] != float64(10) {
		t.Fatalf("heartbeatSeconds = %v", stats["heartbeatSeconds"])
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.pingErr = errors.New("connection refused")
	status, payload := env.request(t, http.MethodGet, "/api/ready", "", nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", status)
	}
	if payload["ok"] != false {
		t.Fatalf("ok = %v", payload["ok"])
	}
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	env := newTestEnv(t)

	status, payload := env.request(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       "desk@masthead.dev",
		"password":    "long-enough-password",
		"displayName": "Markets Desk",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup status = %d, payload %v", status, payload)
	}
	verifyToken, _ := payload["devVerificationToken"].(string)
	if verifyToken == "" {
		t.Fatalf("expected dev verification token, got %v", payload)
	}

	// Unverified accounts cannot sign in
	status, _ = env.request(t, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    "desk@masthead.dev",
		"password": "long-enough-password",
	})
	if status != http.StatusForbidden {
		t.Fatalf("unverified signin status = %d", status)
	}

	status, _ = env.request(t, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": verifyToken})
	if status != http.StatusOK {
		t.Fatalf("verify status = %d", status)
	}

	token, _ := env.signIn(t, "desk@masthead.dev", "long-enough-password")

	status, payload = env.request(t, http.MethodGet, "/api/session", token, nil)
	if status != http.StatusOK || payload["authenticated"] != true {
		t.Fatalf("session check failed: %d %v", status, payload)
	}
	if payload["role"] != "editor" {
		t.Fatalf("new accounts should be editors, got %v", payload["role"])
	}
}

func TestRequireSession(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.request(t, http.MethodGet, "/api/bonds", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
	status, _ = env.request(t, http.MethodGet, "/api/bonds", "garbage-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d", status)
	}
}

func TestBondCRUDAndPublishRBAC(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "editor@masthead.dev", "editor-password", "editor")
	env.seedUser(t, "pub@masthead.dev", "publisher-password", "publisher")
	editorToken, _ := env.signIn(t, "editor@masthead.dev", "editor-password")
	publisherToken, _ := env.signIn(t, "pub@masthead.dev", "publisher-password")

	status, payload := env.request(t, http.MethodPost, "/api/bonds", editorToken, map[string]any{
		"slug":      "ust-10y",
		"name":      "US Treasury 10Y",
		"issuer":    "US Treasury",
		"couponPct": 4.25,
		"rating":    "AAA",
		"summary":   "Benchmark note",
	})
	if status != http.StatusOK {
		t.Fatalf("create status = %d, payload %v", status, payload)
	}
	bond := payload["bond"].(map[string]any)
	id := bond["id"].(string)
	if bond["status"] != "draft" {
		t.Fatalf("new bond status = %v", bond["status"])
	}

	status, payload = env.request(t, http.MethodGet, "/api/bonds", editorToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	if items := payload["bonds"].([]any); len(items) != 1 {
		t.Fatalf("expected 1 bond, got %d", len(items))
	}

	status, payload = env.request(t, http.MethodPut, "/api/bonds/"+id, editorToken, map[string]any{
		"slug":      "ust-10y",
		"name":      "US Treasury 10-Year",
		"issuer":    "US Treasury",
		"couponPct": 4.25,
	})
	if status != http.StatusOK {
		t.Fatalf("update status = %d, payload %v", status, payload)
	}
	if payload["bond"].(map[string]any)["name"] != "US Treasury 10-Year" {
		t.Fatalf("update did not stick: %v", payload)
	}

	// Editors cannot publish
	status, _ = env.request(t, http.MethodPost, "/api/bonds/"+id+"/publish", editorToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("editor publish status = %d", status)
	}

	status, payload = env.request(t, http.MethodPost, "/api/bonds/"+id+"/publish", publisherToken, nil)
	if status != http.StatusOK {
		t.Fatalf("publisher publish status = %d, payload %v", status, payload)
	}
	if payload["bond"].(map[string]any)["status"] != "published" {
		t.Fatalf("publish did not change status: %v", payload)
	}

	status, _ = env.request(t, http.MethodDelete, "/api/bonds/"+id, editorToken, nil)
	if status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	status, _ = env.request(t, http.MethodGet, "/api/bonds/"+id, editorToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", status)
	}
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "editor@masthead.dev", "editor-password", "editor")
	token, _ := env.signIn(t, "editor@masthead.dev", "editor-password")

	status, payload := env.request(t, http.MethodPost, "/api/bonds", token, map[string]any{"slug": "only-slug"})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, payload %v", status, payload)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestPixelChangesRequirePublish(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "editor@masthead.dev", "editor-password", "editor")
	env.seedUser(t, "pub@masthead.dev", "publisher-password", "publisher")
	editorToken, _ := env.signIn(t, "editor@masthead.dev", "editor-password")
	publisherToken, _ := env.signIn(t, "pub@masthead.dev", "publisher-password")

	body := map[string]any{"provider": "meta", "pixelId": "123456", "pages": []string{"/"}, "enabled": true}

	status, _ := env.request(t, http.MethodPost, "/api/pixels", editorToken, body)
	if status != http.StatusForbidden {
		t.Fatalf("editor create pixel status = %d", status)
	}

	status, payload := env.request(t, http.MethodPost, "/api/pixels", publisherToken, body)
	if status != http.StatusOK {
		t.Fatalf("publisher create pixel status = %d, payload %v", status, payload)
	}

	// Reads stay open to editors
	status, _ = env.request(t, http.MethodGet, "/api/pixels", editorToken, nil)
	if status != http.StatusOK {
		t.Fatalf("editor list pixels status = %d", status)
	}
}

func TestNewsletterSentIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "pub@masthead.dev", "publisher-password", "publisher")
	token, _ := env.signIn(t, "pub@masthead.dev", "publisher-password")

	status, payload := env.request(t, http.MethodPost, "/api/newsletters", token, map[string]any{
		"slug":    "weekly-42",
		"subject": "Weekly wrap: rates and risk",
	})
	if status != http.StatusOK {
		t.Fatalf("create status = %d, payload %v", status, payload)
	}
	id := payload["newsletter"].(map[string]any)["id"].(string)

	status, _ = env.request(t, http.MethodPost, "/api/newsletters/"+id+"/mark-sent", token, nil)
	if status != http.StatusOK {
		t.Fatalf("mark-sent status = %d", status)
	}

	status, payload = env.request(t, http.MethodPut, "/api/newsletters/"+id, token, map[string]any{
		"slug":    "weekly-42",
		"subject": "Edited after send",
	})
	if status != http.StatusConflict {
		t.Fatalf("update after send status = %d, payload %v", status, payload)
	}
	if payload["code"] != "NEWSLETTER_SENT" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "editor@masthead.dev", "editor-password", "editor")
	_, refresh := env.signIn(t, "editor@masthead.dev", "editor-password")

	status, payload := env.request(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": refresh})
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d, payload %v", status, payload)
	}
	if payload["token"] == "" || payload["refreshToken"] == refresh {
		t.Fatalf("refresh did not rotate: %v", payload)
	}

	// The old refresh token is burned
	status, _ = env.request(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": refresh})
	if status != http.StatusUnauthorized {
		t.Fatalf("reused refresh status = %d", status)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "editor@masthead.dev", "editor-password", "editor")
	token, refresh := env.signIn(t, "editor@masthead.dev", "editor-password")

	status, _ := env.request(t, http.MethodGet, "/api/bonds", token, nil)
	if status != http.StatusOK {
		t.Fatalf("pre-logout status = %d", status)
	}

	status, _ = env.request(t, http.MethodPost, "/api/session/logout", token, map[string]string{"refreshToken": refresh})
	if status != http.StatusOK {
		t.Fatalf("logout status = %d", status)
	}

	status, _ = env.request(t, http.MethodGet, "/api/bonds", token, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("post-logout status = %d", status)
	}
	status, _ = env.request(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refreshToken": refresh})
	if status != http.StatusUnauthorized {
		t.Fatalf("post-logout refresh status = %d", status)
	}
}

func TestPreviewUnavailableWithoutAssets(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "editor@masthead.dev", "editor-password", "editor")
	token, _ := env.signIn(t, "editor@masthead.dev", "editor-password")

	status, payload := env.request(t, http.MethodPost, "/api/landing-pages", token, map[string]any{
		"slug":  "crypto-onboarding",
		"title": "Start trading crypto",
	})
	if status != http.StatusOK {
		t.Fatalf("create status = %d, payload %v", status, payload)
	}
	id := payload["landingPage"].(map[string]any)["id"].(string)

	status, payload = env.request(t, http.MethodPost, "/api/landing-pages/"+id+"/preview", token, nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("preview status = %d, payload %v", status, payload)
	}
	if payload["code"] != "ASSETS_UNAVAILABLE" {
		t.Fatalf("code = %v", payload["code"])
	}
}
