package telemetry_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/victornm/greensafari/internal/telemetry"
)

func TestGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := map[string]struct {
		path      string
		wantLevel string
		wantLog   bool
	}{
		"should log success at info": {
			path:      "/ok",
			wantLevel: "INFO",
			wantLog:   true,
		},
		"should log client errors at warn": {
			path:      "/bad",
			wantLevel: "WARN",
			wantLog:   true,
		},
		"should log server errors at error": {
			path:      "/fail",
			wantLevel: "ERROR",
			wantLog:   true,
		},
		"should skip paths": {
			path: "/healthz",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			old := slog.Default()
			slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
			t.Cleanup(func() { slog.SetDefault(old) })

			e := gin.New()
			e.Use(telemetry.GinLogger("/healthz"))
			e.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
			e.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
			e.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
			e.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

			e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if !tt.wantLog {
				require.Zero(t, buf.Len())
				return
			}

			var got map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			require.Equal(t, tt.wantLevel, got["level"])
			require.Equal(t, "http: request served", got["msg"])
			require.Equal(t, tt.path, got["path"])
		})
	}
}
