package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecovery_ReportsTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(TraceID(), Recovery(zap.New(core)))
	r.POST("/api/sessions/:id/turn", func(c *gin.Context) { panic("resolver blew up") })

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/s1/turn", nil)
	req.Header.Set(TraceIDHeader, "trace-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "trace-42", body["trace_id"])

	entries := logs.FilterMessage("panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/sessions/:id/turn", entries[0].ContextMap()["route"])
	assert.Equal(t, "trace-42", entries[0].ContextMap()["trace_id"])
}

func TestRecovery_ReraisesAbortHandler(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/sse/sessions/:id", func(c *gin.Context) { panic(http.ErrAbortHandler) })

	req := httptest.NewRequest(http.MethodGet, "/sse/sessions/s1", nil)
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(httptest.NewRecorder(), req)
	})
}
