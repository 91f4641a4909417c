package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/kasuganosora/battleplanner/api/rest"
	"github.com/kasuganosora/battleplanner/api/sse"
	apows "github.com/kasuganosora/battleplanner/api/ws"
	"github.com/kasuganosora/battleplanner/audit"
	"github.com/kasuganosora/battleplanner/cache"
	"github.com/kasuganosora/battleplanner/config"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/planner"
	mw "github.com/kasuganosora/battleplanner/middleware"
	"github.com/kasuganosora/battleplanner/scheduler"
	"github.com/kasuganosora/battleplanner/testutil"
)

const adminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with the planner stack wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Mgr    *planner.Manager
	Audit  *audit.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws/sessions
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired planner server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}

	// ---- Planner ----
	mgr := planner.NewManager(planner.Config{
		Calc:   calc.NewBuiltin(calc.DefaultDex()),
		Cache:  c,
		PubSub: pubsub,
		Logger: logger,
	})
	plans := planner.NewPlanService(db, logger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.RegisterPlannerHandlers(wsRouter, mgr)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok", "sessions": mgr.Len()})
	})

	// ---- REST API routes (mirrors main.go) ----
	api := r.Group("/api")
	apirest.NewPlannerHandler(mgr, plans, auditSvc, sec, logger).Register(api)
	adminG := api.Group("/admin", mw.AdminKey(adminKey))
	apirest.NewAdminHandler(mgr, sched, auditSvc, time.Hour, logger).Register(adminG)

	wsH := apows.NewHandler(mgr, pubsub, sec, wsRouter, logger)
	r.GET("/ws/sessions/:id", mw.SessionAuth(sec), wsH.ServeWS)
	sseH := sse.NewHandler(pubsub, mgr, logger)
	r.GET("/sse/sessions/:id", mw.SessionAuth(sec), sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL

	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Mgr:    mgr,
		Audit:  auditSvc,
		Server: server,
		URL:    url,
		WSURL:  "ws" + url[len("http"):] + "/ws/sessions",
		Sec:    sec,
	}
	t.Cleanup(func() {
		server.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, token)
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, token)
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodDelete, path, nil, token)
}

// Put sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) Put(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPut, path, body, token)
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(mw.AdminKeyHeader, adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Session helpers ---

// Mon returns a team member descriptor with 300 HP. Types and base stats
// come from the builtin dex.
func Mon(species string, moves ...string) map[string]any {
	ms := make([]any, len(moves))
	for i, m := range moves {
		ms[i] = m
	}
	return map[string]any{"name": species, "level": 50, "maxHP": 300, "moves": ms}
}

// CreateSession starts a session and returns its id and token.
func (ts *TestServer) CreateSession(t *testing.T, p1, p2 []map[string]any) (id, token string) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/sessions", map[string]any{
		"p1": map[string]any{"team": p1},
		"p2": map[string]any{"team": p2},
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	ReadJSON(t, resp, &out)
	require.NotEmpty(t, out.ID)
	require.NotEmpty(t, out.Token)
	return out.ID, out.Token
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop to avoid gorilla/websocket's SetReadDeadline bug.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult // buffered channel from readLoop
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the session's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, id, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "/" + id + "?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(func() { conn.Close() })
	return wc
}

// readLoop continuously reads from the websocket in a dedicated goroutine.
func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a JSON message packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload any) uint64 {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(apows.Packet{Seq: seq, Type: msgType, Payload: payloadJSON})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
	return seq
}

// RecvType reads messages until one with the given type is found (within timeout).
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) apows.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", msgType)
			var pkt apows.Packet
			require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
			if pkt.Type == msgType {
				return pkt
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return apows.Packet{}
		}
	}
}

// --- SSE client ---

// SSEStream reads named events from an open SSE response.
type SSEStream struct {
	resp *http.Response
	r    *bufio.Reader
}

// ConnectSSE opens the session's event stream.
func (ts *TestServer) ConnectSSE(t *testing.T, id, token string) *SSEStream {
	t.Helper()
	resp := ts.Get(t, "/sse/sessions/"+id+"?token="+token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { resp.Body.Close() })
	return &SSEStream{resp: resp, r: bufio.NewReader(resp.Body)}
}

// Next returns the next event's name and data, skipping comments.
func (s *SSEStream) Next(t *testing.T) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := s.r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && name != "":
			return name, data
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}
