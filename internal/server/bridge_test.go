package server

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
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PottierLoic/Remotely/internal/commands"
	"github.com/PottierLoic/Remotely/internal/models"
	"github.com/PottierLoic/Remotely/internal/registry"
	jsonstore "github.com/PottierLoic/Remotely/internal/storage/json"
	"github.com/PottierLoic/Remotely/pkg/logger"
	"github.com/PottierLoic/Remotely/pkg/platform"
)

var testSecret = []byte("test-secret")

func setupBridge(t *testing.T, strict bool) (*Bridge, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store := jsonstore.NewStore(platform.FileIn(dir, platform.HostsFile))
	reg := registry.New(store, registry.Options{StrictIDs: strict, Logger: logger.Discard()})
	bridge := NewBridge(commands.NewHandler(reg), testSecret, logger.Discard())

	token, err := IssueToken(testSecret, time.Minute)
	require.NoError(t, err)
	return bridge, token
}

func invoke(t *testing.T, b *Bridge, token, command, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/invoke/"+command, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error errorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

func TestHealthzIsPublic(t *testing.T) {
	b, _ := setupBridge(t, false)

	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestInvokeRoundTrip(t *testing.T) {
	b, token := setupBridge(t, false)

	w := invoke(t, b, token, "add_host",
		`{"newHost":{"id":1,"name":"Pi","ip":"192.168.1.10","protocol":"SSH","username":"pi"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = invoke(t, b, token, "get_host_list", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result []models.Host `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Result, 1)
	assert.Equal(t, "Pi", resp.Result[0].Name)
	assert.Equal(t, "pi", models.Deref(resp.Result[0].Username))

	w = invoke(t, b, token, "delete_host", `{"id":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = invoke(t, b, token, "get_host_list", "{}")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Result)
}

func TestRequestIDReachesRegistryLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	store := jsonstore.NewStore(platform.FileIn(t.TempDir(), platform.HostsFile))
	reg := registry.New(store, registry.Options{Logger: logger.Discard()})
	b := NewBridge(commands.NewHandler(reg), testSecret, logger.New(&buf, "text", "debug"))

	token, err := IssueToken(testSecret, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/invoke/add_host",
		bytes.NewBufferString(`{"newHost":{"id":1,"name":"Pi","ip":"10.0.0.1","protocol":"SSH"}}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	out := buf.String()
	assert.Contains(t, out, `msg="host added"`)
	assert.Contains(t, out, "component=registry")
	assert.Contains(t, out, `msg="bridge request"`)
	assert.Equal(t, strings.Count(out, "\n"), strings.Count(out, "request_id=req-42"))

	w = invoke(t, b, token, "get_host_list", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestInvokeErrorStatuses(t *testing.T) {
	b, token := setupBridge(t, true)

	host := `{"newHost":{"id":7,"name":"NAS","ip":"10.0.0.2","protocol":"HTTPS"}}`
	require.Equal(t, http.StatusOK, invoke(t, b, token, "add_host", host).Code)

	w := invoke(t, b, token, "add_host", host)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ID", errorCode(t, w))

	w = invoke(t, b, token, "reboot_host", "{}")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))

	w = invoke(t, b, token, "delete_host", `{"id":"seven"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, w))

	w = invoke(t, b, token, "add_host", `{"newHost":{"id":8,"name":"x","ip":"y","protocol":"FTP"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvokeRequiresToken(t *testing.T) {
	b, _ := setupBridge(t, false)

	w := invoke(t, b, "", "get_host_list", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))

	forged, err := IssueToken([]byte("other-secret"), time.Minute)
	require.NoError(t, err)
	w = invoke(t, b, forged, "get_host_list", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(testSecret, -time.Minute)
	require.NoError(t, err)
	w = invoke(t, b, expired, "get_host_list", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyTokenRejectsWrongSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString(signingKey(testSecret))
	require.NoError(t, err)

	assert.Error(t, VerifyToken(testSecret, signed))
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken(nil, time.Minute)
	assert.Error(t, err)
}

func TestCheckLoopback(t *testing.T) {
	assert.NoError(t, CheckLoopback("127.0.0.1:7450"))
	assert.NoError(t, CheckLoopback("localhost:7450"))
	assert.NoError(t, CheckLoopback("[::1]:7450"))
	assert.Error(t, CheckLoopback("0.0.0.0:7450"))
	assert.Error(t, CheckLoopback("192.168.1.4:7450"))
	assert.Error(t, CheckLoopback("7450"))
}

func TestRunStopsOnCancel(t *testing.T) {
	b, _ := setupBridge(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not shut down")
	}
}

func TestRunRefusesPublicAddress(t *testing.T) {
	b, _ := setupBridge(t, false)
	err := b.Run(context.Background(), "0.0.0.0:0")
	assert.Error(t, err)
}
