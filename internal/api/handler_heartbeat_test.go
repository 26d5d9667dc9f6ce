package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vending-fleet-backend/internal/db"
	"vending-fleet-backend/internal/liveness"
	"vending-fleet-backend/internal/model"
	"vending-fleet-backend/internal/store"
)

func setupHeartbeatRouter(t *testing.T) (*gin.Engine, store.Store) {
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(testDB))

	s := store.NewGormStore(testDB)
	require.NoError(t, s.CreateMachine(context.Background(), &model.Machine{
		ID:           "m-1",
		SerialNumber: "SN-1",
		IoTNumber:    "IOT-1",
		Type:         model.MachineTypeSnack,
		Name:         "Lobby Snack",
	}))

	handler := NewHandler(Deps{Store: s, Policy: liveness.DefaultPolicy()})
	r := gin.New()
	r.POST("/heartbeat", handler.PostHeartbeat)
	r.GET("/heartbeat", handler.PostHeartbeat)
	r.GET("/status-check", handler.GetStatusCheck)
	return r, s
}

func TestPostHeartbeatRequiresMachineID(t *testing.T) {
	router, _ := setupHeartbeatRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/heartbeat", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"machineId is required"}`, w.Body.String())
}

func TestPostHeartbeatUnknownMachine(t *testing.T) {
	router, _ := setupHeartbeatRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/heartbeat?machineId=ghost", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostHeartbeatByIoTNumber(t *testing.T) {
	router, s := setupHeartbeatRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/heartbeat?machineId=IOT-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success   bool   `json:"success"`
		MachineID string `json:"machineId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "m-1", resp.MachineID, "IoT numbers resolve to the machine id")

	hb, err := s.GetHeartbeat(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, model.HeartbeatOnline, hb.Status)
	assert.Positive(t, hb.LastSeenMS)
}

func TestPostHeartbeatPersistsTelemetry(t *testing.T) {
	router, s := setupHeartbeatRouter(t)

	body, _ := json.Marshal(map[string]any{
		"machineId": "m-1",
		"deviceData": map[string]any{
			"powerStatus":     false,
			"operationalMode": "Standby",
			"errors":          []string{"E42"},
			"temperatureReadings": map[string]float64{
				"cabinet": 3.5,
			},
		},
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/heartbeat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	sample, err := s.LatestTelemetry(context.Background(), "m-1")
	require.NoError(t, err)
	assert.False(t, sample.PowerStatus)
	assert.Equal(t, "Standby", sample.OperationalMode)
	assert.Equal(t, []string{"E42"}, []string(sample.Errors))
	assert.Equal(t, 3.5, sample.TemperatureReadings.Data()["cabinet"])
}

func TestPostHeartbeatWithoutTelemetrySkipsSample(t *testing.T) {
	router, s := setupHeartbeatRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/heartbeat?machineId=m-1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := s.LatestTelemetry(context.Background(), "m-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestGetStatusCheckReportsTiers(t *testing.T) {
	router, s := setupHeartbeatRouter(t)
	ctx := context.Background()

	// Fresh heartbeat via the endpoint, then backdate it past the critical
	// threshold.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/heartbeat?machineId=m-1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	hb, err := s.GetHeartbeat(ctx, "m-1")
	require.NoError(t, err)
	require.NoError(t, s.UpsertHeartbeat(ctx, "m-1", hb.LastSeenMS-45*60*1000, hb.Status))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/status-check", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var rows []struct {
		MachineID       string `json:"machineId"`
		Status          string `json:"status"`
		Offline         bool   `json:"offline"`
		CriticalOffline bool   `json:"criticalOffline"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "m-1", rows[0].MachineID)
	assert.Equal(t, "critical_offline", rows[0].Status)
	assert.True(t, rows[0].Offline)
	assert.True(t, rows[0].CriticalOffline)
}
