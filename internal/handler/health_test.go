package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iap-coordinator/internal/iap"
)

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

type fakeStats struct{}

func (fakeStats) Stats() iap.Stats {
	return iap.Stats{Purchased: 3, Ledger: iap.LedgerStats{PendingPurchases: 1}}
}

type failingStorage struct{}

func (failingStorage) GetStats(context.Context) (map[string]interface{}, error) {
	return nil, errors.New("connection refused")
}

func TestHandler_Ready(t *testing.T) {
	rec := httptest.NewRecorder()
	New("iap-coordinator", "1.0.0", fakeConn(true)).Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	New("iap-coordinator", "1.0.0", fakeConn(false)).Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"disconnected"`)
}

func TestHandler_HealthReportsVersion(t *testing.T) {
	rec := httptest.NewRecorder()
	New("iap-coordinator", "1.2.3", nil).Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
}

func TestAdminHandler_GetStats(t *testing.T) {
	h := NewAdminHandler(fakeStats{}, failingStorage{}, "postgres", nil)

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, `"postgres"`, string(body.Data["storage_type"]))
	assert.Contains(t, string(body.Data["coordinator"]), `"purchased":3`)
	assert.Contains(t, string(body.Data["storage"]), `"error"`)
	assert.NotContains(t, body.Data, "completions")
}
