package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminMux(t *testing.T) (*http.ServeMux, *DualLimiter) {
	t.Helper()
	limiter := newTestLimiter(t)
	mux := http.NewServeMux()
	NewAdminHandler(limiter, slog.Default()).Register(mux)
	return mux, limiter
}

func TestAdminHandler_StatusNotBlocked(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/keys/status?kind=user&id=u1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user:u1", resp.Key)
	assert.False(t, resp.Blocked)
	assert.Nil(t, resp.BlockedUntil)
}

func TestAdminHandler_StatusBlocked(t *testing.T) {
	mux, limiter := newAdminMux(t)

	until := time.Now().Add(time.Hour)
	require.NoError(t, limiter.store.Block(context.Background(), IPKey("9.9.9.9"), until))

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/keys/status?kind=ip&id=9.9.9.9", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ip:9.9.9.9", resp.Key)
	assert.True(t, resp.Blocked)
	require.NotNil(t, resp.BlockedUntil)
	assert.WithinDuration(t, until, *resp.BlockedUntil, time.Second)
}

func TestAdminHandler_StatusMissingParams(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/keys/status?kind=user", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_StatusBadKind(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/keys/status?kind=tenant&id=x", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_Unblock(t *testing.T) {
	mux, limiter := newAdminMux(t)
	ctx := context.Background()

	require.NoError(t, limiter.store.Block(ctx, UserKey("u1"), time.Now().Add(time.Hour)))

	form := url.Values{"kind": {"user"}, "id": {"u1"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/v1/keys/unblock", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	_, blocked, err := limiter.Status(ctx, UserKey("u1"), time.Now())
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestAdminHandler_UnblockRequiresPost(t *testing.T) {
	mux, _ := newAdminMux(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/keys/unblock?kind=user&id=u1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
