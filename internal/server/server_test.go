package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"medvolume/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		App: config.AppConfig{
			WorkDir:        t.TempDir(),
			MaxUploadSize:  1 << 20,
			MaxSlices:      10,
			AllowedFormats: []string{".png"},
			SliceHeight:    8,
			SliceWidth:     8,
			IntensityMax:   255,
		},
	}
}

func TestNewRegistersRoutes(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", srv.httpServer.Addr)
	assert.Equal(t, time.Second, srv.httpServer.WriteTimeout)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"archive_enabled":false`)
}
