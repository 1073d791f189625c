package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cloudez/cloudez/internal/config"
	dbutil "github.com/cloudez/cloudez/internal/db"
	"github.com/cloudez/cloudez/internal/models"
	"github.com/cloudez/cloudez/internal/ratelimit"
	"github.com/cloudez/cloudez/internal/security"
)

type adminTestEnv struct {
	engine  *gin.Engine
	conn    *gorm.DB
	limiter *ratelimit.Service
}

func newAdminTestEnv(t *testing.T) *adminTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := dbutil.Open(filepath.Join(t.TempDir(), "admin-test.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	jwtCfg := config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}
	limiter := ratelimit.NewService(
		ratelimit.NewRegistry(ratelimit.LoadRulesFromDB(conn), nil),
		ratelimit.NewMemoryStore(nil),
	)
	rlCfg := config.RateLimitConfig{CleanupInterval: time.Hour, Retention: 24 * time.Hour}

	engine := gin.New()
	RegisterAdminRoutes(engine, conn, jwtCfg, limiter, rlCfg)
	return &adminTestEnv{engine: engine, conn: conn, limiter: limiter}
}

func (e *adminTestEnv) seedAdmin(t *testing.T, username, password string) uint64 {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	admin := models.Admin{Username: username, Password: hash, IsSuperAdmin: true, Active: true}
	if errCreate := e.conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}
	return admin.ID
}

func (e *adminTestEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), errDecode)
	}
	return out
}

func (e *adminTestEnv) loginAdmin(t *testing.T, username, password string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v0/admin/login", "", gin.H{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("admin login: status %d body %s", w.Code, w.Body.String())
	}
	return decodeJSON(t, w)["token"].(string)
}

func TestAdminLogin(t *testing.T) {
	env := newAdminTestEnv(t)
	env.seedAdmin(t, "root", "admin-password")

	w := env.do(t, http.MethodPost, "/v0/admin/login", "", gin.H{
		"username": "root",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", w.Code)
	}

	token := env.loginAdmin(t, "root", "admin-password")

	// Admin routes reject missing and user-kind tokens.
	w = env.do(t, http.MethodGet, "/v0/admin/users", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", w.Code)
	}
	userToken, _ := security.SignUserToken("test-secret", 1, time.Hour)
	w = env.do(t, http.MethodGet, "/v0/admin/users", userToken, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("user token on admin route: status %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/v0/admin/users", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin token: status %d body %s", w.Code, w.Body.String())
	}
}

func TestAdminRuleCRUDInvalidatesCache(t *testing.T) {
	env := newAdminTestEnv(t)
	env.seedAdmin(t, "root", "admin-password")
	token := env.loginAdmin(t, "root", "admin-password")

	// The new rule takes effect immediately even though the registry caches.
	w := env.do(t, http.MethodPost, "/v0/admin/rate-limits/rules", token, gin.H{
		"operation_type": "profile_update",
		"max_requests":   1,
		"window_seconds": 3600,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create rule: status %d body %s", w.Code, w.Body.String())
	}
	ruleID := uint64(decodeJSON(t, w)["id"].(float64))

	result, errCheck := env.limiter.CheckAndRecord(context.Background(), 1, "profile_update")
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if !result.Allowed || result.Remaining != 0 {
		t.Fatalf("expected new rule enforced, got %+v", result)
	}
	result, _ = env.limiter.CheckAndRecord(context.Background(), 1, "profile_update")
	if result.Allowed {
		t.Fatalf("expected second call denied under new rule")
	}

	// Duplicate operation types conflict.
	w = env.do(t, http.MethodPost, "/v0/admin/rate-limits/rules", token, gin.H{
		"operation_type": "profile_update",
		"max_requests":   5,
		"window_seconds": 60,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate rule: expected 409, got %d", w.Code)
	}

	// Invalid budgets are rejected.
	w = env.do(t, http.MethodPost, "/v0/admin/rate-limits/rules", token, gin.H{
		"operation_type": "export",
		"max_requests":   0,
		"window_seconds": 60,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid rule: expected 400, got %d", w.Code)
	}

	rulePath := fmt.Sprintf("/v0/admin/rate-limits/rules/%d", ruleID)
	w = env.do(t, http.MethodPut, rulePath, token, gin.H{
		"operation_type": "profile_update",
		"max_requests":   10,
		"window_seconds": 3600,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update rule: status %d body %s", w.Code, w.Body.String())
	}
	result, _ = env.limiter.CheckAndRecord(context.Background(), 1, "profile_update")
	if !result.Allowed {
		t.Fatalf("expected raised budget applied after update")
	}

	// Deleting the rule makes the operation unlimited.
	w = env.do(t, http.MethodDelete, rulePath, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete rule: status %d", w.Code)
	}
	result, _ = env.limiter.CheckAndRecord(context.Background(), 1, "profile_update")
	if !result.Allowed || result.Remaining != -1 {
		t.Fatalf("expected unlimited after delete, got %+v", result)
	}

	w = env.do(t, http.MethodDelete, rulePath, token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete missing rule: expected 404, got %d", w.Code)
	}
}

func TestAdminUserStatusAndReset(t *testing.T) {
	env := newAdminTestEnv(t)
	env.seedAdmin(t, "root", "admin-password")
	token := env.loginAdmin(t, "root", "admin-password")

	for i := 0; i < 3; i++ {
		if _, errCheck := env.limiter.CheckAndRecord(context.Background(), 42, "upload"); errCheck != nil {
			t.Fatalf("record: %v", errCheck)
		}
	}

	w := env.do(t, http.MethodGet, "/v0/admin/users/42/rate-limits", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body %s", w.Code, w.Body.String())
	}
	operations := decodeJSON(t, w)["operations"].([]any)
	var uploadCurrent float64
	for _, op := range operations {
		entry := op.(map[string]any)
		if entry["operation_type"] == "upload" {
			uploadCurrent = entry["current_count"].(float64)
		}
	}
	if uploadCurrent != 3 {
		t.Fatalf("expected upload count 3, got %v", uploadCurrent)
	}

	w = env.do(t, http.MethodPost, "/v0/admin/users/42/rate-limits/reset", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status %d", w.Code)
	}
	result, _ := env.limiter.CheckAndRecord(context.Background(), 42, "upload")
	if result.Current != 1 {
		t.Fatalf("expected counter restarted after reset, got %d", result.Current)
	}
}

func TestAdminRateLimitStats(t *testing.T) {
	env := newAdminTestEnv(t)
	env.seedAdmin(t, "root", "admin-password")
	token := env.loginAdmin(t, "root", "admin-password")

	// No usage recorded yet.
	w := env.do(t, http.MethodGet, "/v0/admin/rate-limits/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("empty stats: status %d body %s", w.Code, w.Body.String())
	}
	if ops := decodeJSON(t, w)["operations"].([]any); len(ops) != 0 {
		t.Fatalf("expected no operations, got %v", ops)
	}

	// Record usage through the persistent store so the aggregates see it.
	store := ratelimit.NewGormStore(env.conn)
	ctx := context.Background()
	upload := ratelimit.Rule{OperationType: "upload", MaxRequests: 20, WindowSeconds: 3600}
	message := ratelimit.Rule{OperationType: "message", MaxRequests: 60, WindowSeconds: 60}
	for i := 0; i < 2; i++ {
		if _, errCheck := store.CheckAndRecord(ctx, 1, upload); errCheck != nil {
			t.Fatalf("record upload user 1: %v", errCheck)
		}
	}
	if _, errCheck := store.CheckAndRecord(ctx, 2, upload); errCheck != nil {
		t.Fatalf("record upload user 2: %v", errCheck)
	}
	if _, errCheck := store.CheckAndRecord(ctx, 1, message); errCheck != nil {
		t.Fatalf("record message: %v", errCheck)
	}

	w = env.do(t, http.MethodGet, "/v0/admin/rate-limits/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status %d body %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	ops := body["operations"].([]any)
	if len(ops) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(ops))
	}
	byOp := map[string]map[string]any{}
	for _, raw := range ops {
		entry := raw.(map[string]any)
		byOp[entry["operation_type"].(string)] = entry
	}
	got := byOp["upload"]
	if got["active_windows"].(float64) != 2 || got["active_users"].(float64) != 2 || got["total_requests"].(float64) != 3 {
		t.Fatalf("upload stats: %v", got)
	}
	got = byOp["message"]
	if got["active_windows"].(float64) != 1 || got["active_users"].(float64) != 1 || got["total_requests"].(float64) != 1 {
		t.Fatalf("message stats: %v", got)
	}

	// Stats require an admin session.
	w = env.do(t, http.MethodGet, "/v0/admin/rate-limits/stats", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stats: expected 401, got %d", w.Code)
	}
}

func TestAdminUserManagement(t *testing.T) {
	env := newAdminTestEnv(t)
	env.seedAdmin(t, "root", "admin-password")
	token := env.loginAdmin(t, "root", "admin-password")

	email := "alice@example.com"
	user := models.User{Username: "alice", Email: &email, Password: "x", Active: true, StorageQuota: 1 << 30}
	if errCreate := env.conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("seed user: %v", errCreate)
	}
	userPath := fmt.Sprintf("/v0/admin/users/%d", user.ID)

	w := env.do(t, http.MethodPut, userPath+"/quota", token, gin.H{"storage_quota": int64(5 << 30)})
	if w.Code != http.StatusOK {
		t.Fatalf("update quota: status %d body %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPut, userPath+"/quota", token, gin.H{"storage_quota": -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative quota: expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, userPath+"/disable", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("disable: status %d", w.Code)
	}
	var reloaded models.User
	if errFind := env.conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if !reloaded.Disabled || reloaded.StorageQuota != 5<<30 {
		t.Fatalf("expected disabled user with updated quota, got %+v", reloaded)
	}

	w = env.do(t, http.MethodPost, userPath+"/enable", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("enable: status %d", w.Code)
	}

	// Filtering by username substring.
	w = env.do(t, http.MethodGet, "/v0/admin/users?username=ali", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("filtered list: status %d", w.Code)
	}
	users := decodeJSON(t, w)["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("expected 1 match, got %d", len(users))
	}
}

func TestHealthz(t *testing.T) {
	env := newAdminTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: status %d body %s", w.Code, w.Body.String())
	}
}
