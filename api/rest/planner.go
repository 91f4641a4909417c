package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/audit"
	"github.com/kasuganosora/battleplanner/config"
	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/planner"
	"github.com/kasuganosora/battleplanner/game/resolver"
	"github.com/kasuganosora/battleplanner/game/tree"
	mw "github.com/kasuganosora/battleplanner/middleware"
)

// PlannerHandler serves the planning-session endpoints.
type PlannerHandler struct {
	mgr    *planner.Manager
	plans  *planner.PlanService
	audit  *audit.Service
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewPlannerHandler creates a PlannerHandler. audit may be nil.
func NewPlannerHandler(mgr *planner.Manager, plans *planner.PlanService, auditSvc *audit.Service, sec config.SecurityConfig, logger *zap.Logger) *PlannerHandler {
	return &PlannerHandler{mgr: mgr, plans: plans, audit: auditSvc, sec: sec, logger: logger}
}

// Register mounts the planner routes on g, which should be the /api group.
func (h *PlannerHandler) Register(g *gin.RouterGroup) {
	g.POST("/sessions", h.Create)
	g.GET("/plans", h.ListPlans)
	g.GET("/plans/:plan", h.GetPlan)
	g.DELETE("/plans/:plan", h.DeletePlan)
	g.POST("/plans/:plan/open", h.OpenPlan)

	s := g.Group("/sessions/:id", mw.SessionAuth(h.sec))
	s.GET("", h.Tree)
	s.DELETE("", h.Close)
	s.GET("/current", h.Current)
	s.GET("/pending", h.Pending)
	s.POST("/turn", h.Turn)
	s.POST("/resume", h.Resume)
	s.POST("/decline", h.Decline)
	s.POST("/cancel", h.Cancel)
	s.POST("/navigate", h.Navigate)
	s.POST("/previous", h.Previous)
	s.POST("/next", h.Next)
	s.POST("/undo", h.Undo)
	s.POST("/redo", h.Redo)
	s.DELETE("/nodes/:node", h.RemoveNode)
	s.PUT("/nodes/:node/notes", h.Notes)
	s.PUT("/nodes/:node/collapsed", h.Collapse)
	s.POST("/roots", h.AddRoot)
	s.GET("/analysis", h.Analysis)
	s.GET("/speed", h.Speed)
	s.GET("/outcomes", h.Outcomes)
	s.POST("/branch", h.Branch)
	s.POST("/switch", h.Switch)
	s.GET("/export", h.Export)
	s.POST("/import", h.Import)
	s.POST("/plans", h.SavePlan)
}

// ---- Errors ----

// status maps planner errors onto HTTP codes.
func status(err error) int {
	switch {
	case errors.Is(err, planner.ErrSessionNotFound),
		errors.Is(err, planner.ErrPlanNotFound),
		errors.Is(err, tree.ErrNodeNotFound),
		errors.Is(err, tree.ErrParentNotFound):
		return http.StatusNotFound
	case errors.Is(err, planner.ErrInvalidSide),
		errors.Is(err, planner.ErrInvalidMove),
		errors.Is(err, planner.ErrInvalidOutcome),
		errors.Is(err, planner.ErrInvalidSwitch),
		errors.Is(err, planner.ErrInvalidTeam),
		errors.Is(err, planner.ErrPlanName),
		errors.Is(err, tree.ErrInvalidDocument),
		errors.Is(err, tree.ErrNilState),
		errors.Is(err, tree.ErrTurnOrder),
		errors.Is(err, resolver.ErrInvalidSlot),
		errors.Is(err, resolver.ErrNilState):
		return http.StatusBadRequest
	case errors.Is(err, resolver.ErrBusy),
		errors.Is(err, resolver.ErrNotSuspended),
		errors.Is(err, planner.ErrTreeFull):
		return http.StatusConflict
	case errors.Is(err, planner.ErrTooManySessions):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *PlannerHandler) fail(c *gin.Context, err error) {
	code := status(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("planner request failed",
			zap.String("path", c.FullPath()),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.Error(err))
		c.JSON(code, gin.H{"error": "internal error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// record queues an audit entry for a mutating call.
func (h *PlannerHandler) record(c *gin.Context, action, nodeID string, req, resp any, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	e := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		SessionID:  c.Param("id"),
		NodeID:     nodeID,
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if e.SessionID == "" {
		e.SessionID = mw.GetSessionID(c)
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.audit.Log(e)
}

// session resolves the :id session, reviving it from autosave if needed.
func (h *PlannerHandler) session(c *gin.Context) (*planner.Session, bool) {
	s, err := h.mgr.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return false
	}
	return true
}

func parseSide(raw string) (battle.SideID, error) {
	side := battle.SideID(raw)
	if !side.Valid() {
		return "", planner.ErrInvalidSide
	}
	return side, nil
}

// ---- Sessions ----

type createRequest struct {
	planner.StateSpec
	Generation int `json:"generation"`
}

// Create starts a session and returns its id and bearer token.
// POST /api/sessions
func (h *PlannerHandler) Create(c *gin.Context) {
	start := time.Now()
	var req createRequest
	if !bind(c, &req) {
		return
	}
	state, err := h.mgr.BuildState(req.StateSpec)
	if err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.mgr.Create(c.Request.Context(), state, req.Generation)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, s, "create", req, start)
}

func (h *PlannerHandler) created(c *gin.Context, s *planner.Session, action string, req any, start time.Time) {
	token, err := mw.GenerateToken(s.ID(), h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		_ = h.mgr.Close(c.Request.Context(), s.ID())
		h.fail(c, err)
		return
	}
	node, err := s.Current()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Set(mw.SessionIDKey, s.ID())
	h.record(c, action, node.ID, req, gin.H{"id": s.ID()}, nil, start)
	c.JSON(http.StatusCreated, gin.H{
		"id":         s.ID(),
		"token":      token,
		"generation": s.Generation(),
		"node":       node,
	})
}

// Tree returns the serialized tree.
// GET /api/sessions/:id
func (h *PlannerHandler) Tree(c *gin.Context) {
	h.Export(c)
}

// Close ends the session.
// DELETE /api/sessions/:id
func (h *PlannerHandler) Close(c *gin.Context) {
	start := time.Now()
	err := h.mgr.Close(c.Request.Context(), c.Param("id"))
	h.record(c, "close", "", nil, nil, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Current returns the node under the cursor.
// GET /api/sessions/:id/current
func (h *PlannerHandler) Current(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	node, err := s.Current()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"node": node, "pending": s.Pending()})
}

// Pending returns the outstanding replacement request, if any.
// GET /api/sessions/:id/pending
func (h *PlannerHandler) Pending(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": s.Pending()})
}

// ---- Turns ----

type turnRequest struct {
	P1 *battle.Action `json:"p1" binding:"required"`
	P2 *battle.Action `json:"p2" binding:"required"`
}

// Turn resolves one turn from the current node.
// POST /api/sessions/:id/turn
func (h *PlannerHandler) Turn(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req turnRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.ExecuteTurn(c.Request.Context(), req.P1, req.P2)
	h.turnResponse(c, "turn", req, res, err, start)
}

type resumeRequest struct {
	Slot *int `json:"slot" binding:"required"`
}

// Resume answers a pending replacement with a team slot.
// POST /api/sessions/:id/resume
func (h *PlannerHandler) Resume(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req resumeRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.Resume(c.Request.Context(), *req.Slot)
	h.turnResponse(c, "resume", req, res, err, start)
}

// Decline answers a pending replacement without choosing.
// POST /api/sessions/:id/decline
func (h *PlannerHandler) Decline(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Decline(c.Request.Context())
	h.turnResponse(c, "decline", nil, res, err, start)
}

func (h *PlannerHandler) turnResponse(c *gin.Context, action string, req any, res *planner.TurnResult, err error, start time.Time) {
	var nodeID string
	if res != nil && res.Node != nil {
		nodeID = res.Node.ID
	}
	h.record(c, action, nodeID, req, res, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Pending != nil {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Cancel drops a suspended turn.
// POST /api/sessions/:id/cancel
func (h *PlannerHandler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": s.CancelTurn(c.Request.Context())})
}

// ---- Navigation ----

type navigateRequest struct {
	NodeID string `json:"nodeId" binding:"required"`
}

// Navigate moves the cursor.
// POST /api/sessions/:id/navigate
func (h *PlannerHandler) Navigate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req navigateRequest
	if !bind(c, &req) {
		return
	}
	if err := s.Navigate(c.Request.Context(), req.NodeID); err != nil {
		h.fail(c, err)
		return
	}
	h.current(c, s, true)
}

// Previous moves the cursor to the parent.
// POST /api/sessions/:id/previous
func (h *PlannerHandler) Previous(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	moved, err := s.Previous(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.current(c, s, moved)
}

// Next moves the cursor to the first child.
// POST /api/sessions/:id/next
func (h *PlannerHandler) Next(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	moved, err := s.Next(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.current(c, s, moved)
}

// Undo reverts the last structural edit.
// POST /api/sessions/:id/undo
func (h *PlannerHandler) Undo(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	done, err := s.Undo(c.Request.Context())
	h.record(c, "undo", "", nil, gin.H{"done": done}, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.current(c, s, done)
}

// Redo reapplies the last undone edit.
// POST /api/sessions/:id/redo
func (h *PlannerHandler) Redo(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	done, err := s.Redo(c.Request.Context())
	h.record(c, "redo", "", nil, gin.H{"done": done}, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.current(c, s, done)
}

func (h *PlannerHandler) current(c *gin.Context, s *planner.Session, changed bool) {
	node, err := s.Current()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed, "node": node})
}

// ---- Node editing ----

// RemoveNode deletes a node and its subtree.
// DELETE /api/sessions/:id/nodes/:node
func (h *PlannerHandler) RemoveNode(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	nodeID := c.Param("node")
	err := s.Remove(c.Request.Context(), nodeID)
	h.record(c, "remove", nodeID, nil, nil, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// Notes sets a node's notes.
// PUT /api/sessions/:id/nodes/:node/notes
func (h *PlannerHandler) Notes(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req notesRequest
	if !bind(c, &req) {
		return
	}
	if err := s.Notes(c.Request.Context(), c.Param("node"), req.Notes); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type collapseRequest struct {
	Collapsed bool `json:"collapsed"`
}

// Collapse folds or unfolds a node.
// PUT /api/sessions/:id/nodes/:node/collapsed
func (h *PlannerHandler) Collapse(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req collapseRequest
	if !bind(c, &req) {
		return
	}
	if err := s.Collapse(c.Request.Context(), c.Param("node"), req.Collapsed); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type rootRequest struct {
	planner.StateSpec
	Label string `json:"label"`
}

// AddRoot starts an independent scenario in the same tree.
// POST /api/sessions/:id/roots
func (h *PlannerHandler) AddRoot(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req rootRequest
	if !bind(c, &req) {
		return
	}
	state, err := h.mgr.BuildState(req.StateSpec)
	if err != nil {
		h.fail(c, err)
		return
	}
	node, err := s.AddRoot(c.Request.Context(), state, req.Label)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.record(c, "add_root", node.ID, req, nil, nil, start)
	c.JSON(http.StatusCreated, gin.H{"node": node})
}

// ---- Analysis ----

// Analysis ranks the leaves under the current root.
// GET /api/sessions/:id/analysis
func (h *PlannerHandler) Analysis(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	a, err := s.Analyze(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Speed compares the two actives at the current node.
// GET /api/sessions/:id/speed
func (h *PlannerHandler) Speed(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	sp, err := s.Speed()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

// Outcomes previews a move's key outcomes, or every roll with full=1.
// GET /api/sessions/:id/outcomes?side=p1&move=0[&full=1]
func (h *PlannerHandler) Outcomes(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	side, err := parseSide(c.Query("side"))
	if err != nil {
		h.fail(c, err)
		return
	}
	move, err := strconv.Atoi(c.Query("move"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid move"})
		return
	}
	if full, _ := strconv.ParseBool(c.Query("full")); full {
		all, err := s.Outcomes(c.Request.Context(), side, move)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcomes": all})
		return
	}
	outcomes, err := s.Preview(c.Request.Context(), side, move)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}

type branchRequest struct {
	Side    string `json:"side" binding:"required"`
	Move    int    `json:"move"`
	Outcome int    `json:"outcome"`
}

// Branch adds a child from one previewed outcome.
// POST /api/sessions/:id/branch
func (h *PlannerHandler) Branch(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req branchRequest
	if !bind(c, &req) {
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		h.fail(c, err)
		return
	}
	node, err := s.BranchFromOutcome(c.Request.Context(), side, req.Move, req.Outcome)
	h.nodeResponse(c, "branch", req, node, err, start)
}

type switchRequest struct {
	Side string `json:"side" binding:"required"`
	Slot int    `json:"slot"`
}

// Switch adds a child in which a team member has switched in.
// POST /api/sessions/:id/switch
func (h *PlannerHandler) Switch(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req switchRequest
	if !bind(c, &req) {
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		h.fail(c, err)
		return
	}
	node, err := s.ManualSwitch(c.Request.Context(), side, req.Slot)
	h.nodeResponse(c, "switch", req, node, err, start)
}

func (h *PlannerHandler) nodeResponse(c *gin.Context, action string, req any, node *tree.Node, err error, start time.Time) {
	var nodeID string
	if node != nil {
		nodeID = node.ID
	}
	h.record(c, action, nodeID, req, nil, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"node": node})
}

// ---- Import / export ----

// Export returns the serialized tree document.
// GET /api/sessions/:id/export
func (h *PlannerHandler) Export(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	data, err := s.Export()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Import replaces the tree with the request body.
// POST /api/sessions/:id/import
func (h *PlannerHandler) Import(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	err = s.Import(c.Request.Context(), data)
	h.record(c, "import", "", gin.H{"bytes": len(data)}, nil, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.current(c, s, true)
}

// ---- Saved plans ----

type savePlanRequest struct {
	Name string `json:"name" binding:"required"`
}

// SavePlan stores the session tree as a named plan.
// POST /api/sessions/:id/plans
func (h *PlannerHandler) SavePlan(c *gin.Context) {
	start := time.Now()
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req savePlanRequest
	if !bind(c, &req) {
		return
	}
	plan, err := h.plans.Save(c.Request.Context(), req.Name, s)
	h.record(c, "save_plan", "", req, nil, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"plan": plan})
}

// ListPlans lists saved plans without their trees.
// GET /api/plans
func (h *PlannerHandler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// GetPlan returns one plan with its tree.
// GET /api/plans/:plan
func (h *PlannerHandler) GetPlan(c *gin.Context) {
	plan, err := h.plans.Get(c.Request.Context(), c.Param("plan"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

// DeletePlan removes a plan.
// DELETE /api/plans/:plan
func (h *PlannerHandler) DeletePlan(c *gin.Context) {
	start := time.Now()
	err := h.plans.Delete(c.Request.Context(), c.Param("plan"))
	h.record(c, "delete_plan", "", gin.H{"plan": c.Param("plan")}, nil, err, start)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// OpenPlan opens a saved plan in a new session.
// POST /api/plans/:plan/open
func (h *PlannerHandler) OpenPlan(c *gin.Context) {
	start := time.Now()
	plan, err := h.plans.Get(c.Request.Context(), c.Param("plan"))
	if err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.mgr.Open(c.Request.Context(), plan.Tree, plan.Generation)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, s, "open_plan", gin.H{"plan": plan.ID}, start)
}
