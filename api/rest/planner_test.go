package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/api/rest"
	"github.com/kasuganosora/battleplanner/audit"
	"github.com/kasuganosora/battleplanner/config"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/planner"
	mw "github.com/kasuganosora/battleplanner/middleware"
	"github.com/kasuganosora/battleplanner/model"
	"github.com/kasuganosora/battleplanner/scheduler"
	"github.com/kasuganosora/battleplanner/testutil"
)

func init() { gin.SetMode(gin.TestMode) }

// flatCalc deals 25 per hit and 150 for Giga Impact.
type flatCalc struct{}

func (flatCalc) Move(_ context.Context, _ int, name string) (calc.MoveInfo, error) {
	switch name {
	case "Tackle", "Giga Impact":
		return calc.MoveInfo{Name: name, Type: "Normal", Category: calc.Physical, BasePower: 40, Accuracy: 100}, nil
	}
	return calc.MoveInfo{}, fmt.Errorf("%w: %q", calc.ErrUnknownMove, name)
}

func (flatCalc) Damage(_ context.Context, req calc.Request) (calc.Result, error) {
	d := 25
	if req.Move == "Giga Impact" {
		d = 150
	}
	if req.Crit {
		d = d * 3 / 2
	}
	return calc.Result{Damage: d}, nil
}

var testSec = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}

type env struct {
	r   *gin.Engine
	mgr *planner.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	mgr := planner.NewManager(planner.Config{
		Calc:   flatCalc{},
		Cache:  c,
		PubSub: ps,
		NewRNG: func() *rand.Rand { return rand.New(rand.NewSource(1)) },
	})
	auditSvc := audit.New(db, zap.NewNop())

	r := gin.New()
	r.Use(mw.TraceID())
	api := r.Group("/api")
	rest.NewPlannerHandler(mgr, planner.NewPlanService(db, zap.NewNop()), auditSvc, testSec, zap.NewNop()).Register(api)
	admin := api.Group("/admin", mw.AdminKey("admin-key"))
	rest.NewAdminHandler(mgr, scheduler.New(nil), auditSvc, time.Hour, zap.NewNop()).Register(admin)

	e := &env{r: r, mgr: mgr}
	t.Cleanup(func() {
		// Stop flushes the queued audit rows.
		auditSvc.Stop(context.Background())
		var n int64
		db.Model(&model.AuditLog{}).Count(&n)
		assert.Positive(t, n)
	})
	return e
}

func mon(name string, spe int) map[string]any {
	return map[string]any{
		"name":  name,
		"maxHP": 100,
		"stats": map[string]any{"spe": spe},
		"types": []any{"Normal"},
		"moves": []any{"Tackle", "Giga Impact"},
	}
}

func createBody() map[string]any {
	return map[string]any{
		"p1": map[string]any{"team": []any{mon("Garchomp", 120), mon("Clefable", 60)}},
		"p2": map[string]any{"team": []any{mon("Toxapex", 80), mon("Corviknight", 70)}},
	}
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *env) create(t *testing.T) (id, token string) {
	t.Helper()
	w := e.do(http.MethodPost, "/api/sessions", "", createBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	return out["id"].(string), out["token"].(string)
}

func path(id, suffix string) string { return "/api/sessions/" + id + suffix }

// ---- Sessions ----

func TestCreateSession(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/sessions", "", createBody())
	require.Equal(t, http.StatusCreated, w.Code)
	out := decode(t, w)
	assert.NotEmpty(t, out["id"])
	assert.NotEmpty(t, out["token"])
	assert.EqualValues(t, 9, out["generation"])
	node := out["node"].(map[string]any)
	assert.Equal(t, "", node["parentId"])
	assert.Equal(t, 1, e.mgr.Len())
}

func TestCreateSession_BadTeam(t *testing.T) {
	e := newEnv(t)
	body := createBody()
	body["p2"] = map[string]any{"team": []any{}}
	w := e.do(http.MethodPost, "/api/sessions", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/sessions", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Keep the audit cleanup check satisfied.
	e.create(t)
}

func TestCreateSession_ImportedSets(t *testing.T) {
	e := newEnv(t)
	body := map[string]any{
		"p1": map[string]any{"sets": []any{map[string]any{
			"species": "Garchomp", "level": 100, "nature": "Jolly",
			"evs":   map[string]any{"at": 252, "sp": 252, "hp": 4},
			"moves": []any{"Tackle"},
		}}},
		"p2": map[string]any{"team": []any{mon("Toxapex", 80)}},
	}
	w := e.do(http.MethodPost, "/api/sessions", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	node := decode(t, w)["node"].(map[string]any)
	active := node["state"].(map[string]any)["p1"].(map[string]any)["active"].(map[string]any)
	assert.EqualValues(t, 358, active["maxHP"])
	assert.Equal(t, []any{"Dragon", "Ground"}, active["types"])
}

func TestSessionAuth(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)
	otherID, _ := e.create(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, path(id, "/current"), "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, path(id, "/current"), "garbage", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, path(otherID, "/current"), token, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, path(id, "/current"), token, nil).Code)
}

func TestSessionNotFound(t *testing.T) {
	e := newEnv(t)
	e.create(t)
	token, err := mw.GenerateToken("gone", testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	w := e.do(http.MethodGet, path("gone", "/current"), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ---- Turns ----

func TestTurnResumeFlow(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)

	w := e.do(http.MethodPost, path(id, "/turn"), token, map[string]any{
		"p1": map[string]any{"type": "move", "moveName": "Giga Impact", "moveIndex": 1},
		"p2": map[string]any{"type": "move", "moveIndex": 0},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	pending := decode(t, w)["pending"].(map[string]any)
	assert.Equal(t, "p2", pending["side"])
	assert.Equal(t, []any{1.0}, pending["options"])

	// A second turn while one is suspended conflicts.
	w = e.do(http.MethodPost, path(id, "/turn"), token, map[string]any{
		"p1": map[string]any{"type": "move", "moveIndex": 0},
		"p2": map[string]any{"type": "move", "moveIndex": 0},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodGet, path(id, "/pending"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["pending"])

	w = e.do(http.MethodPost, path(id, "/resume"), token, map[string]any{"slot": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	node := decode(t, w)["node"].(map[string]any)
	state := node["state"].(map[string]any)
	p2 := state["p2"].(map[string]any)["active"].(map[string]any)
	assert.Equal(t, "Corviknight", p2["name"])

	w = e.do(http.MethodPost, path(id, "/decline"), token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTurn_InvalidBody(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)
	w := e.do(http.MethodPost, path(id, "/turn"), token, map[string]any{"p1": map[string]any{"type": "move"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, path(id, "/turn"), token, map[string]any{
		"p1": map[string]any{"type": "move", "moveIndex": 7},
		"p2": map[string]any{"type": "skip"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---- Navigation and editing ----

func TestNavigationUndoRedo(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)

	w := e.do(http.MethodPost, path(id, "/turn"), token, map[string]any{
		"p1": map[string]any{"type": "move", "moveIndex": 0},
		"p2": map[string]any{"type": "move", "moveIndex": 0},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	child := decode(t, w)["node"].(map[string]any)["id"].(string)

	w = e.do(http.MethodPost, path(id, "/previous"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, true, out["changed"])
	root := out["node"].(map[string]any)["id"].(string)

	w = e.do(http.MethodPost, path(id, "/next"), token, nil)
	assert.Equal(t, child, decode(t, w)["node"].(map[string]any)["id"])

	w = e.do(http.MethodPost, path(id, "/navigate"), token, map[string]any{"nodeId": root})
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodPost, path(id, "/navigate"), token, map[string]any{"nodeId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPut, path(id, "/nodes/"+child+"/notes"), token, map[string]any{"notes": "check speed"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodPut, path(id, "/nodes/"+child+"/collapsed"), token, map[string]any{"collapsed": true})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodDelete, path(id, "/nodes/"+child), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodDelete, path(id, "/nodes/"+root), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "roots cannot be removed")

	w = e.do(http.MethodPost, path(id, "/undo"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["changed"])
	w = e.do(http.MethodPost, path(id, "/redo"), token, nil)
	assert.Equal(t, true, decode(t, w)["changed"])
	w = e.do(http.MethodPost, path(id, "/redo"), token, nil)
	assert.Equal(t, false, decode(t, w)["changed"])
}

func TestPreviewBranchSwitch(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)

	w := e.do(http.MethodGet, path(id, "/outcomes?side=p1&move=0"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	outcomes := decode(t, w)["outcomes"].([]any)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "normal", outcomes[0].(map[string]any)["type"])

	w = e.do(http.MethodGet, path(id, "/outcomes?side=p1&move=0&full=1"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	full := decode(t, w)["outcomes"].([]any)
	assert.Len(t, full, 4)
	var total float64
	for _, o := range full {
		total += o.(map[string]any)["probability"].(float64)
	}
	assert.InDelta(t, 1, total, 1e-9)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, path(id, "/outcomes?side=p3&move=0"), token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, path(id, "/outcomes?side=p1&move=x"), token, nil).Code)

	w = e.do(http.MethodPost, path(id, "/branch"), token, map[string]any{"side": "p1", "move": 0, "outcome": 0})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	node := decode(t, w)["node"].(map[string]any)
	assert.EqualValues(t, 25, node["outcome"].(map[string]any)["damageDealt"])

	w = e.do(http.MethodPost, path(id, "/branch"), token, map[string]any{"side": "p1", "move": 0, "outcome": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, path(id, "/switch"), token, map[string]any{"side": "p2", "slot": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	node = decode(t, w)["node"].(map[string]any)
	assert.Equal(t, "Switch", node["outcome"].(map[string]any)["description"])

	w = e.do(http.MethodGet, path(id, "/speed"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["p1First"])

	w = e.do(http.MethodGet, path(id, "/analysis"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["all"], 1)
}

func TestRootsExportImport(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)

	body := createBody()
	body["label"] = "Alt lead"
	w := e.do(http.MethodPost, path(id, "/roots"), token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Alt lead", decode(t, w)["node"].(map[string]any)["label"])

	w = e.do(http.MethodGet, path(id, "/export"), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	doc := w.Body.Bytes()
	assert.Len(t, decode(t, w)["rootIds"], 2)

	w = e.do(http.MethodGet, path(id, ""), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	otherID, otherToken := e.create(t)
	req := httptest.NewRequest(http.MethodPost, path(otherID, "/import"), bytes.NewReader(doc))
	req.Header.Set("Authorization", "Bearer "+otherToken)
	rec := httptest.NewRecorder()
	e.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, path(otherID, "/import"), bytes.NewReader([]byte("{")))
	req.Header.Set("Authorization", "Bearer "+otherToken)
	rec = httptest.NewRecorder()
	e.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- Saved plans ----

func TestPlans(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)

	w := e.do(http.MethodPost, path(id, "/plans"), token, map[string]any{"name": "Lead plan"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	planID := decode(t, w)["plan"].(map[string]any)["id"].(string)

	w = e.do(http.MethodPost, path(id, "/plans"), token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/plans", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["plans"], 1)

	w = e.do(http.MethodGet, "/api/plans/"+planID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lead plan", decode(t, w)["plan"].(map[string]any)["name"])

	w = e.do(http.MethodPost, "/api/plans/"+planID+"/open", "", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	assert.NotEqual(t, id, out["id"])
	assert.Equal(t, 2, e.mgr.Len())

	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, "/api/plans/"+planID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/plans/"+planID, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/plans/"+planID, "", nil).Code)
}

func TestCloseSession(t *testing.T) {
	e := newEnv(t)
	id, token := e.create(t)
	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, path(id, ""), token, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path(id, "/current"), token, nil).Code)
}
