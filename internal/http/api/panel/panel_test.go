package panel

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/config"
	"github.com/keyforge-io/keyforge/internal/http/api/client"
	"github.com/keyforge-io/keyforge/internal/license"
	"github.com/keyforge-io/keyforge/internal/store"
)

// newTestRouter builds a gin router over a fresh memory store with both the
// panel and client surfaces mounted.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	engine := license.NewEngine(st)

	r := gin.New()
	RegisterPanelRoutes(r, engine, st, config.JWTConfig{Secret: "test-secret", Expiry: time.Hour})
	client.RegisterClientRoutes(r, engine)
	return r
}

// doJSON issues a request with a JSON body and decodes the JSON response.
func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]any
	if len(rec.Body.Bytes()) > 0 {
		if errDecode := json.Unmarshal(rec.Body.Bytes(), &decoded); errDecode != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), errDecode)
		}
	}
	return rec.Code, decoded
}

// registerAndLogin provisions a seller and returns (ownerID, sessionToken).
func registerAndLogin(t *testing.T, r *gin.Engine) (string, string) {
	t.Helper()
	creds := map[string]any{"username": "acme", "password": "hunter22"}

	code, body := doJSON(t, r, http.MethodPost, "/v0/panel/register", "", creds)
	if code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (%v)", code, body)
	}
	ownerID, _ := body["owner_id"].(string)
	if ownerID == "" {
		t.Fatalf("register: missing owner_id in %v", body)
	}

	code, body = doJSON(t, r, http.MethodPost, "/v0/panel/login", "", creds)
	if code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%v)", code, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login: missing token in %v", body)
	}
	return ownerID, token
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)

	code, body := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", code, body)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRouter(t)

	code, _ := doJSON(t, r, http.MethodPost, "/v0/panel/register", "", map[string]any{"username": "", "password": "hunter22"})
	if code != http.StatusBadRequest {
		t.Fatalf("empty username: expected 400, got %d", code)
	}
	code, _ = doJSON(t, r, http.MethodPost, "/v0/panel/register", "", map[string]any{"username": "acme", "password": "short"})
	if code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", code)
	}

	creds := map[string]any{"username": "acme", "password": "hunter22"}
	if code, _ := doJSON(t, r, http.MethodPost, "/v0/panel/register", "", creds); code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", code)
	}
	if code, _ := doJSON(t, r, http.MethodPost, "/v0/panel/register", "", creds); code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", code)
	}
}

func TestPanelRequiresAuth(t *testing.T) {
	r := newTestRouter(t)

	code, _ := doJSON(t, r, http.MethodGet, "/v0/panel/apps", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", code)
	}
	code, _ = doJSON(t, r, http.MethodGet, "/v0/panel/apps", "not-a-jwt", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", code)
	}
}

func TestFullLicenseFlow(t *testing.T) {
	r := newTestRouter(t)
	ownerID, token := registerAndLogin(t, r)

	// Create an application.
	code, body := doJSON(t, r, http.MethodPost, "/v0/panel/apps", token, map[string]any{"name": "Loader"})
	if code != http.StatusCreated {
		t.Fatalf("create app: expected 201, got %d (%v)", code, body)
	}
	appID, _ := body["app_id"].(string)
	appSecret, _ := body["app_secret"].(string)
	if appID == "" || appSecret == "" {
		t.Fatalf("create app: missing credentials in %v", body)
	}

	// Issue a 30-day credential.
	code, body = doJSON(t, r, http.MethodPost, "/v0/panel/apps/"+appID+"/users", token, map[string]any{
		"username": "alice",
		"password": "pw1",
		"days":     30,
	})
	if code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d (%v)", code, body)
	}
	userID, _ := body["id"].(string)
	if userID == "" {
		t.Fatalf("create user: missing id in %v", body)
	}

	// Client login succeeds and binds the HWID.
	code, body = doJSON(t, r, http.MethodPost, "/api/1.0/user_login", "", map[string]any{
		"ownerid":    ownerID,
		"app_secret": appSecret,
		"username":   "alice",
		"password":   "pw1",
		"hwid":       "HWID-1",
	})
	if code != http.StatusOK {
		t.Fatalf("client login: expected 200, got %d (%v)", code, body)
	}
	if success, _ := body["success"].(bool); !success {
		t.Fatalf("client login: expected success, got %v", body)
	}

	// A different HWID is rejected with the generic message.
	code, body = doJSON(t, r, http.MethodPost, "/api/1.0/user_login", "", map[string]any{
		"ownerid":    ownerID,
		"app_secret": appSecret,
		"username":   "alice",
		"password":   "pw1",
		"hwid":       "HWID-2",
	})
	if code != http.StatusOK {
		t.Fatalf("mismatched login: expected 200, got %d", code)
	}
	if success, _ := body["success"].(bool); success {
		t.Fatalf("mismatched login must fail")
	}
	if msg, _ := body["message"].(string); msg != "HWID mismatch." {
		t.Fatalf("expected HWID mismatch message, got %q", msg)
	}

	// Extend the credential.
	code, body = doJSON(t, r, http.MethodPost, "/v0/panel/users/"+userID+"/extend", token, map[string]any{"days": 10})
	if code != http.StatusOK {
		t.Fatalf("extend: expected 200, got %d (%v)", code, body)
	}
	if _, ok := body["new_expiry"]; !ok {
		t.Fatalf("extend: missing new_expiry in %v", body)
	}

	// List users shows the bound HWID.
	code, body = doJSON(t, r, http.MethodGet, "/v0/panel/apps/"+appID+"/users", token, nil)
	if code != http.StatusOK {
		t.Fatalf("list users: expected 200, got %d (%v)", code, body)
	}
	users, _ := body["users"].([]any)
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}

	// Delete the credential; a further client login now fails generically.
	code, _ = doJSON(t, r, http.MethodDelete, "/v0/panel/users/"+userID, token, nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete user: expected 204, got %d", code)
	}
	code, body = doJSON(t, r, http.MethodPost, "/api/1.0/user_login", "", map[string]any{
		"ownerid":    ownerID,
		"app_secret": appSecret,
		"username":   "alice",
		"password":   "pw1",
		"hwid":       "HWID-1",
	})
	if code != http.StatusOK {
		t.Fatalf("post-delete login: expected 200, got %d", code)
	}
	if msg, _ := body["message"].(string); msg != "Invalid credentials." {
		t.Fatalf("expected generic credentials message, got %q", msg)
	}
}

func TestClientLoginGenericFailures(t *testing.T) {
	r := newTestRouter(t)
	ownerID, token := registerAndLogin(t, r)

	code, body := doJSON(t, r, http.MethodPost, "/v0/panel/apps", token, map[string]any{"name": "Loader"})
	if code != http.StatusCreated {
		t.Fatalf("create app: expected 201, got %d", code)
	}
	appSecret, _ := body["app_secret"].(string)

	// Wrong app secret.
	code, body = doJSON(t, r, http.MethodPost, "/api/1.0/user_login", "", map[string]any{
		"ownerid":    ownerID,
		"app_secret": "wrong",
		"username":   "alice",
		"password":   "pw1",
		"hwid":       "H1",
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if msg, _ := body["message"].(string); msg != "Invalid application details." {
		t.Fatalf("expected application message, got %q", msg)
	}

	// Unknown user under a valid application.
	code, body = doJSON(t, r, http.MethodPost, "/api/1.0/user_login", "", map[string]any{
		"ownerid":    ownerID,
		"app_secret": appSecret,
		"username":   "ghost",
		"password":   "pw1",
		"hwid":       "H1",
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if msg, _ := body["message"].(string); msg != "Invalid credentials." {
		t.Fatalf("expected credentials message, got %q", msg)
	}

	// Missing fields are a hard 400.
	code, _ = doJSON(t, r, http.MethodPost, "/api/1.0/user_login", "", map[string]any{"ownerid": ownerID})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", code)
	}
}

func TestWebhookOwnership(t *testing.T) {
	r := newTestRouter(t)
	_, token := registerAndLogin(t, r)

	code, body := doJSON(t, r, http.MethodPost, "/v0/panel/apps", token, map[string]any{"name": "Loader"})
	if code != http.StatusCreated {
		t.Fatalf("create app: expected 201, got %d", code)
	}
	appID, _ := body["app_id"].(string)

	// A second seller cannot touch the first seller's application.
	intruderCreds := map[string]any{"username": "intruder", "password": "hunter22"}
	if code, _ := doJSON(t, r, http.MethodPost, "/v0/panel/register", "", intruderCreds); code != http.StatusCreated {
		t.Fatalf("register intruder: expected 201, got %d", code)
	}
	code, body = doJSON(t, r, http.MethodPost, "/v0/panel/login", "", intruderCreds)
	if code != http.StatusOK {
		t.Fatalf("login intruder: expected 200, got %d", code)
	}
	intruderToken, _ := body["token"].(string)

	code, _ = doJSON(t, r, http.MethodPut, "/v0/panel/apps/"+appID+"/webhook", intruderToken, map[string]any{
		"url":     "https://hook.example",
		"enabled": true,
	})
	if code != http.StatusForbidden {
		t.Fatalf("foreign webhook update: expected 403, got %d", code)
	}

	// The owner can.
	code, _ = doJSON(t, r, http.MethodPut, "/v0/panel/apps/"+appID+"/webhook", token, map[string]any{
		"url":       "https://hook.example",
		"enabled":   true,
		"show_hwid": true,
	})
	if code != http.StatusOK {
		t.Fatalf("webhook update: expected 200, got %d", code)
	}

	// Enabled without a URL is rejected.
	code, _ = doJSON(t, r, http.MethodPut, "/v0/panel/apps/"+appID+"/webhook", token, map[string]any{"enabled": true})
	if code != http.StatusBadRequest {
		t.Fatalf("enabled without url: expected 400, got %d", code)
	}
}

func TestExplicitExpiryParsing(t *testing.T) {
	r := newTestRouter(t)
	_, token := registerAndLogin(t, r)

	code, body := doJSON(t, r, http.MethodPost, "/v0/panel/apps", token, map[string]any{"name": "Loader"})
	if code != http.StatusCreated {
		t.Fatalf("create app: expected 201, got %d", code)
	}
	appID, _ := body["app_id"].(string)

	code, _ = doJSON(t, r, http.MethodPost, "/v0/panel/apps/"+appID+"/users", token, map[string]any{
		"username":   "alice",
		"password":   "pw1",
		"expires_at": "2031-06-15 12:00:00",
	})
	if code != http.StatusCreated {
		t.Fatalf("explicit expiry: expected 201, got %d", code)
	}

	code, _ = doJSON(t, r, http.MethodPost, "/v0/panel/apps/"+appID+"/users", token, map[string]any{
		"username":   "bob",
		"password":   "pw1",
		"expires_at": "15/06/2031",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("malformed expiry: expected 400, got %d", code)
	}
}
