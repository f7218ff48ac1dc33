package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garaad/garaad-api/internal/auth"
	"github.com/garaad/garaad-api/internal/middleware"
	"github.com/garaad/garaad-api/internal/model"
	"github.com/garaad/garaad-api/internal/password"
	"github.com/garaad/garaad-api/internal/repository"
	"github.com/garaad/garaad-api/internal/token"
)

// --- テスト用インメモリリポジトリ ---

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (r *memUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byEmail[email]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (r *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	copied := *user
	r.byID[user.ID] = &copied
	r.byEmail[user.Email] = &copied
	return nil
}

func (r *memUserRepo) CountAdmins(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, u := range r.byID {
		if u.IsAdmin {
			count++
		}
	}
	return count, nil
}

// --- テスト用ルーター構築 ---

// newTestRouter は実サービス（インメモリストア）を使ったルーターを構築する。
// レート制限は大きめに設定し、レート制限自体のテスト以外に影響しないようにする。
func newTestRouter(t *testing.T, rateLimit int) http.Handler {
	t.Helper()

	repo := newMemUserRepo()
	hasher := password.NewHasher(bcrypt.MinCost)
	tokenSvc := token.NewService("test-signing-secret-32bytes-long!", time.Hour)
	authSvc := auth.NewService(repo, hasher, tokenSvc)

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Requests:        rateLimit,
		Window:          15 * time.Minute,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		TokenVerifier:     tokenSvc,
		UserFinder:        repo,
		RateLimiter:       rl,
		CORSAllowedOrigin: "http://localhost:3000",

		AuthService: authSvc,
	})
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.1:51234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// 登録→ログイン→/meの一連のシナリオを検証
func TestRouter_RegisterLoginMe_Scenario(t *testing.T) {
	router := newTestRouter(t, 1000)

	// 1. 登録 → 201、トークンとユーザーが返る
	w := postJSON(t, router, "/api/auth/register",
		`{"username":"alice","email":"a@x.com","password":"secret123"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var registerResp struct {
		Token string           `json:"token"`
		User  model.PublicUser `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&registerResp); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	if registerResp.User.Email != "a@x.com" {
		t.Errorf("user.email = %q, want %q", registerResp.User.Email, "a@x.com")
	}
	if registerResp.Token == "" {
		t.Fatal("register: token is empty")
	}

	// 2. 同じ資格情報でログイン → 200、新しいトークン
	time.Sleep(1100 * time.Millisecond) // iatを変えて別トークンにする
	w = postJSON(t, router, "/api/auth/login",
		`{"email":"a@x.com","password":"secret123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var loginResp struct {
		Token string           `json:"token"`
		User  model.PublicUser `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&loginResp); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	if loginResp.Token == registerResp.Token {
		t.Error("login token identical to register token, want fresh token")
	}

	// 3. ログインで得たトークンで /me → 200、name == alice
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	req.RemoteAddr = "203.0.113.1:51234"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("me: status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var meResp model.PublicUser
	if err := json.NewDecoder(w.Body).Decode(&meResp); err != nil {
		t.Fatalf("failed to decode me response: %v", err)
	}
	if meResp.Name != "alice" {
		t.Errorf("user.name = %q, want %q", meResp.Name, "alice")
	}

	// 4. ヘッダーなしで /me → 401
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.RemoteAddr = "203.0.113.1:51234"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("me without header: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_DuplicateRegistration_Conflict(t *testing.T) {
	router := newTestRouter(t, 1000)

	w := postJSON(t, router, "/api/auth/register",
		`{"username":"alice","email":"a@x.com","password":"secret123"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("first register: status = %d", w.Code)
	}

	w = postJSON(t, router, "/api/auth/register",
		`{"username":"mallory","email":"a@x.com","password":"other456"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("second register: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// エンドポイントや資格情報にかかわらず、上限+1件目のリクエストが429になることを検証
func TestRouter_RateLimitAppliesAcrossEndpoints(t *testing.T) {
	router := newTestRouter(t, 5)

	paths := []string{
		"/api/auth/login",
		"/api/auth/register",
		"/api/auth/login",
		"/api/auth/password-reset/request",
		"/api/auth/login",
	}
	for i, path := range paths {
		w := postJSON(t, router, path, `{}`)
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d rate limited early", i+1)
		}
	}

	w := postJSON(t, router, "/api/auth/login", `{"email":"a@x.com","password":"x"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("6th request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

// 改ざんトークンでは保護ルートに到達できないことを検証
func TestRouter_TamperedToken_Unauthorized(t *testing.T) {
	router := newTestRouter(t, 1000)

	w := postJSON(t, router, "/api/auth/register",
		`{"username":"alice","email":"a@x.com","password":"secret123"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status = %d", w.Code)
	}
	var registerResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&registerResp); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}

	tampered := registerResp.Token + "x"

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tampered)
	req.RemoteAddr = "203.0.113.1:51234"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("tampered token: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
