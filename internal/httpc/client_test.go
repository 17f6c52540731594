package httpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

func TestClient(t *testing.T) {
	var loaded gaze.Model
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gaze.Snapshot{Tracking: true, ScreenWidth: 1920})
	})
	mux.HandleFunc("POST /api/tracking/{action}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("action") == "pause" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "gaze: not tracking"})
			return
		}
		json.NewEncoder(w).Encode(gaze.Snapshot{Tracking: r.PathValue("action") == "start"})
	})
	mux.HandleFunc("POST /api/calibration", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"session_id": "abc"})
	})
	mux.HandleFunc("DELETE /api/calibration", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("PUT /api/calibration/model", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&loaded))
		w.Write([]byte("{}"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()

	snap, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Tracking)
	assert.Equal(t, 1920.0, snap.ScreenWidth)

	snap, err = c.Tracking(ctx, "start")
	require.NoError(t, err)
	assert.True(t, snap.Tracking)

	_, err = c.Tracking(ctx, "pause")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "gaze: not tracking", apiErr.Message)

	id, err := c.StartCalibration(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	require.NoError(t, c.AbortCalibration(ctx))

	m := gaze.Model{Scale: gaze.Point{X: 2, Y: 2}, Valid: true}
	require.NoError(t, c.LoadModel(ctx, m))
	assert.Equal(t, m, loaded)
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Status(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream down", apiErr.Message)
}
