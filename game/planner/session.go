package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/cache"
	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/calc"
	"github.com/kasuganosora/battleplanner/game/resolver"
	"github.com/kasuganosora/battleplanner/game/tree"
)

// Session is one planning workspace. All methods are safe for concurrent use;
// they are serialised on the session mutex.
type Session struct {
	id     string
	gen    int
	m      *Manager
	logger *zap.Logger

	mu       sync.Mutex
	tree     *tree.Tree
	resolver *resolver.Resolver
	// parent is the node the suspended turn branches from.
	parent  string
	created time.Time
	used    time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Generation returns the mechanics generation used by the resolver.
func (s *Session) Generation() int { return s.gen }

// LastUsed returns when the session last handled a call.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Info summarises the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		Generation: s.gen,
		Nodes:      s.tree.Len(),
		Pending:    s.resolver.Pending() != nil,
		CreatedAt:  s.created,
		LastUsed:   s.used,
	}
}

// checkSize refuses branches once the tree holds MaxNodes nodes.
func (s *Session) checkSize(_, _ *tree.Node) error {
	if limit := s.m.cfg.MaxNodes; s.tree.Len() >= limit {
		s.logger.Warn("planner tree node limit reached", zap.Int("max_nodes", limit))
		return fmt.Errorf("%w (%d)", ErrTreeFull, limit)
	}
	return nil
}

func (s *Session) lock() {
	s.mu.Lock()
	s.used = s.m.cfg.Now()
}

// TurnResult is what a turn call returns: a pending replacement request, or
// the node the finished turn was stored in.
type TurnResult struct {
	Pending *resolver.Request `json:"pending,omitempty"`
	Node    *tree.Node        `json:"node,omitempty"`
}

// ---- Turn resolution ----

// ExecuteTurn resolves one turn from the current node. When the turn needs a
// replacement choice it suspends and the request is returned; Resume or
// Decline finish it.
func (s *Session) ExecuteTurn(ctx context.Context, p1, p2 *battle.Action) (*TurnResult, error) {
	s.lock()
	defer s.mu.Unlock()

	cur := s.tree.Current()
	if cur == nil {
		return nil, ErrNoCurrentNode
	}
	if s.resolver.Suspended() != nil {
		return nil, resolver.ErrBusy
	}
	if err := s.checkMove(cur.State, battle.P1, p1); err != nil {
		return nil, err
	}
	if err := s.checkMove(cur.State, battle.P2, p2); err != nil {
		return nil, err
	}
	s.parent = cur.ID
	step, err := s.resolver.Execute(ctx, cur.State, p1, p2)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, step)
}

// Resume answers the pending request with a team slot.
func (s *Session) Resume(ctx context.Context, slot int) (*TurnResult, error) {
	s.lock()
	defer s.mu.Unlock()
	step, err := s.resolver.Resume(ctx, slot)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, step)
}

// Decline answers the pending request without a choice.
func (s *Session) Decline(ctx context.Context) (*TurnResult, error) {
	s.lock()
	defer s.mu.Unlock()
	step, err := s.resolver.Decline(ctx)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, step)
}

// Pending returns the outstanding replacement request, or nil.
func (s *Session) Pending() *resolver.Request {
	s.lock()
	defer s.mu.Unlock()
	return s.resolver.Pending()
}

// CancelTurn drops a suspended turn. It reports whether one was pending.
func (s *Session) CancelTurn(ctx context.Context) bool {
	s.lock()
	defer s.mu.Unlock()
	if s.resolver.Suspended() == nil {
		return false
	}
	s.resolver.Abort()
	s.parent = ""
	s.saveTurn(ctx)
	return true
}

// checkMove fills in the name of a move given only by slot and rejects a slot
// the active does not have.
func (s *Session) checkMove(state *battle.State, side battle.SideID, a *battle.Action) error {
	if a == nil || a.Type != battle.ActionMove || a.MoveName != "" {
		return nil
	}
	active := state.Side(side).Active
	if active == nil || a.MoveIndex < 0 || a.MoveIndex >= len(active.Moves) {
		return fmt.Errorf("%w: %s move %d", ErrInvalidMove, side, a.MoveIndex)
	}
	a.MoveName = active.Moves[a.MoveIndex]
	return nil
}

func (s *Session) finish(ctx context.Context, step resolver.Step) (*TurnResult, error) {
	if !step.Done() {
		s.saveTurn(ctx)
		return &TurnResult{Pending: step.Pending}, nil
	}
	res := step.Result
	parent := s.parent
	s.parent = ""
	s.saveTurn(ctx)
	node, err := s.tree.AddBranch(parent, res.State, res.Actions, res.Outcome)
	if err != nil {
		// The parent was removed while the turn was suspended.
		return nil, err
	}
	s.tree.Navigate(node.ID)
	s.autosave(ctx)
	return &TurnResult{Node: node.Clone()}, nil
}

// ---- Move preview and manual branches ----

func (s *Session) moveRequest(state *battle.State, side battle.SideID, moveIndex int) (calc.Request, error) {
	if !side.Valid() {
		return calc.Request{}, ErrInvalidSide
	}
	att := state.Side(side).Active
	def := state.Side(side.Opponent()).Active
	if att == nil || moveIndex < 0 || moveIndex >= len(att.Moves) {
		return calc.Request{}, fmt.Errorf("%w: %s move %d", ErrInvalidMove, side, moveIndex)
	}
	return calc.Request{
		Gen:          s.gen,
		Attacker:     att,
		Defender:     def,
		Move:         att.Moves[moveIndex],
		Field:        state.Field,
		AttackerSide: *state.Conditions(side),
		DefenderSide: *state.Conditions(side.Opponent()),
	}, nil
}

// Preview returns the key outcomes of side's move in slot moveIndex against
// the current node.
func (s *Session) Preview(ctx context.Context, side battle.SideID, moveIndex int) ([]calc.KeyOutcome, error) {
	s.lock()
	defer s.mu.Unlock()
	cur := s.tree.Current()
	if cur == nil {
		return nil, ErrNoCurrentNode
	}
	req, err := s.moveRequest(cur.State, side, moveIndex)
	if err != nil {
		return nil, err
	}
	return calc.KeyOutcomes(ctx, s.resolver.Calculator(), req)
}

// Outcomes is the full breakdown of a move from the current node: miss, then
// each damage roll with and without a crit. Outcomes less likely than the
// configured threshold are folded into the first remaining one.
func (s *Session) Outcomes(ctx context.Context, side battle.SideID, moveIndex int) ([]*battle.Outcome, error) {
	s.lock()
	defer s.mu.Unlock()
	cur := s.tree.Current()
	if cur == nil {
		return nil, ErrNoCurrentNode
	}
	req, err := s.moveRequest(cur.State, side, moveIndex)
	if err != nil {
		return nil, err
	}
	return calc.Outcomes(ctx, s.resolver.Calculator(), req, s.m.cfg.SimplifyThreshold)
}

// BranchFromOutcome applies one previewed outcome of a move to the current
// node and moves the cursor to the new child.
func (s *Session) BranchFromOutcome(ctx context.Context, side battle.SideID, moveIndex, outcomeIndex int) (*tree.Node, error) {
	s.lock()
	defer s.mu.Unlock()
	cur := s.tree.Current()
	if cur == nil {
		return nil, ErrNoCurrentNode
	}
	req, err := s.moveRequest(cur.State, side, moveIndex)
	if err != nil {
		return nil, err
	}
	outcomes, err := calc.KeyOutcomes(ctx, s.resolver.Calculator(), req)
	if err != nil {
		return nil, err
	}
	if outcomeIndex < 0 || outcomeIndex >= len(outcomes) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidOutcome, outcomeIndex, len(outcomes))
	}
	state, outcome := resolver.ApplyKeyOutcome(cur.State, side, outcomes[outcomeIndex])

	var actions battle.ActionPair
	move := battle.Move(req.Move, moveIndex)
	if side == battle.P1 {
		actions = battle.ActionPair{P1: move, P2: battle.Skip()}
	} else {
		actions = battle.ActionPair{P1: battle.Skip(), P2: move}
	}
	return s.branch(ctx, cur.ID, state, actions, outcome)
}

// ManualSwitch adds a child in which side's team[slot] has switched in.
func (s *Session) ManualSwitch(ctx context.Context, side battle.SideID, slot int) (*tree.Node, error) {
	s.lock()
	defer s.mu.Unlock()
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	cur := s.tree.Current()
	if cur == nil {
		return nil, ErrNoCurrentNode
	}
	team := cur.State.Side(side).Team
	if slot < 0 || slot >= len(team) || team[slot] == nil || team[slot].HasFainted() ||
		slot == cur.State.Side(side).TeamSlot {
		return nil, fmt.Errorf("%w: %s slot %d", ErrInvalidSwitch, side, slot)
	}
	state := cur.State.Clone()
	state.SwitchActive(side, slot)
	state.TurnNumber++
	state.SyncAll()

	sw := battle.Switch(slot, team[slot].Name)
	var actions battle.ActionPair
	if side == battle.P1 {
		actions = battle.ActionPair{P1: sw, P2: battle.Skip()}
	} else {
		actions = battle.ActionPair{P1: battle.Skip(), P2: sw}
	}
	return s.branch(ctx, cur.ID, state, actions, battle.NewOutcome("Switch", 1, 0))
}

func (s *Session) branch(ctx context.Context, parent string, state *battle.State, actions battle.ActionPair, o *battle.Outcome) (*tree.Node, error) {
	node, err := s.tree.AddBranch(parent, state, actions, o)
	if err != nil {
		return nil, err
	}
	s.tree.Navigate(node.ID)
	s.autosave(ctx)
	return node.Clone(), nil
}

// ---- Navigation and editing ----

// Navigate moves the cursor to id.
func (s *Session) Navigate(ctx context.Context, id string) error {
	return s.move(ctx, func() bool { return s.tree.Navigate(id) })
}

// Previous moves the cursor to the parent of the current node. It reports
// false at a root.
func (s *Session) Previous(ctx context.Context) (bool, error) {
	return s.edit(ctx, s.tree.NavigatePrevious)
}

// Next moves the cursor to the first child of the current node. It reports
// false at a leaf.
func (s *Session) Next(ctx context.Context) (bool, error) {
	return s.edit(ctx, s.tree.NavigateNext)
}

// Undo reverts the last structural edit.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	return s.edit(ctx, s.tree.Undo)
}

// Redo reapplies the last undone edit.
func (s *Session) Redo(ctx context.Context) (bool, error) {
	return s.edit(ctx, s.tree.Redo)
}

// Remove deletes a node and its subtree.
func (s *Session) Remove(ctx context.Context, id string) error {
	return s.move(ctx, func() bool { return s.tree.RemoveNode(id) })
}

// Notes sets a node's free-text notes.
func (s *Session) Notes(ctx context.Context, id, notes string) error {
	return s.move(ctx, func() bool { return s.tree.SetNotes(id, notes) })
}

// Collapse folds or unfolds a node in the tree view.
func (s *Session) Collapse(ctx context.Context, id string, collapsed bool) error {
	return s.move(ctx, func() bool { return s.tree.SetCollapsed(id, collapsed) })
}

// move runs a cursor or node operation that reports false for an unknown node.
func (s *Session) move(ctx context.Context, fn func() bool) error {
	s.lock()
	defer s.mu.Unlock()
	if !fn() {
		return tree.ErrNodeNotFound
	}
	s.autosave(ctx)
	return nil
}

func (s *Session) edit(ctx context.Context, fn func() bool) (bool, error) {
	s.lock()
	defer s.mu.Unlock()
	ok := fn()
	if ok {
		s.autosave(ctx)
	}
	return ok, nil
}

// AddRoot starts an independent scenario and moves the cursor to it.
func (s *Session) AddRoot(ctx context.Context, state *battle.State, label string) (*tree.Node, error) {
	if state == nil {
		return nil, tree.ErrNilState
	}
	s.lock()
	defer s.mu.Unlock()
	node := s.tree.AddRoot(state, label)
	s.autosave(ctx)
	return node.Clone(), nil
}

// ---- Queries ----

// Current returns a copy of the node under the cursor.
func (s *Session) Current() (*tree.Node, error) {
	s.lock()
	defer s.mu.Unlock()
	cur := s.tree.Current()
	if cur == nil {
		return nil, ErrNoCurrentNode
	}
	return cur.Clone(), nil
}

// Node returns a copy of the node with id.
func (s *Session) Node(id string) (*tree.Node, error) {
	s.lock()
	defer s.mu.Unlock()
	n := s.tree.Node(id)
	if n == nil {
		return nil, tree.ErrNodeNotFound
	}
	return n.Clone(), nil
}

// Analyze ranks the leaves under the cursor's root.
func (s *Session) Analyze(ctx context.Context) (*tree.Analysis, error) {
	s.lock()
	defer s.mu.Unlock()
	a := s.tree.AnalyzeOutcomes()
	if a == nil {
		return nil, ErrNoCurrentNode
	}
	// Best and worst flags are stored on the nodes.
	s.autosave(ctx)
	return a, nil
}

// Speed compares the two actives at the current node.
func (s *Session) Speed() (battle.SpeedComparison, error) {
	s.lock()
	defer s.mu.Unlock()
	cur := s.tree.Current()
	if cur == nil {
		return battle.SpeedComparison{}, ErrNoCurrentNode
	}
	return cur.State.SpeedComparison(), nil
}

// Export serialises the whole tree.
func (s *Session) Export() ([]byte, error) {
	s.lock()
	defer s.mu.Unlock()
	return s.tree.Serialize()
}

// Import replaces the tree with a serialised document. A suspended turn is
// dropped because its parent may no longer exist.
func (s *Session) Import(ctx context.Context, data []byte) error {
	s.lock()
	defer s.mu.Unlock()
	if err := s.tree.Deserialize(data); err != nil {
		return err
	}
	if s.resolver.Suspended() != nil {
		s.resolver.Abort()
		s.parent = ""
		s.saveTurn(ctx)
	}
	s.autosave(ctx)
	return nil
}

// ---- Events and autosave ----

// publish forwards a tree notification to the session channel. It runs
// inside the mutating call, under the session lock.
func (s *Session) publish(ev tree.Event) {
	ps := s.m.cfg.PubSub
	if ps == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("planner event encode failed", zap.String("event", ev.Type), zap.Error(err))
		return
	}
	if err := ps.Publish(context.Background(), Channel(s.id), string(data)); err != nil {
		s.logger.Warn("planner event publish failed", zap.String("event", ev.Type), zap.Error(err))
	}
}

func (s *Session) autosave(ctx context.Context) {
	c := s.m.cfg.Cache
	if c == nil {
		return
	}
	data, err := s.tree.Serialize()
	if err != nil {
		s.logger.Warn("planner autosave encode failed", zap.Error(err))
		return
	}
	if err := c.Set(ctx, AutosaveKey(s.id), string(data), s.m.cfg.AutosaveTTL); err != nil {
		s.logger.Warn("planner autosave failed", zap.Error(err))
	}
}

// suspendedTurn is the autosaved form of a turn waiting for a replacement.
type suspendedTurn struct {
	Parent string         `json:"parent"`
	Turn   *resolver.Turn `json:"turn"`
}

func (s *Session) saveTurn(ctx context.Context) {
	c := s.m.cfg.Cache
	if c == nil {
		return
	}
	key := AutosaveKey(s.id) + turnSuffix
	t := s.resolver.Suspended()
	if t == nil {
		if err := c.Del(ctx, key); err != nil {
			s.logger.Warn("planner turn autosave delete failed", zap.Error(err))
		}
		return
	}
	data, err := json.Marshal(suspendedTurn{Parent: s.parent, Turn: t})
	if err != nil {
		s.logger.Warn("planner turn autosave encode failed", zap.Error(err))
		return
	}
	if err := c.Set(ctx, key, string(data), s.m.cfg.AutosaveTTL); err != nil {
		s.logger.Warn("planner turn autosave failed", zap.Error(err))
	}
}

// restoreTurn reinstates an autosaved suspended turn, if any.
func (s *Session) restoreTurn(ctx context.Context) {
	c := s.m.cfg.Cache
	data, err := c.Get(ctx, AutosaveKey(s.id)+turnSuffix)
	if cache.IsNotFound(err) {
		return
	}
	if err != nil {
		s.logger.Warn("planner turn autosave read failed", zap.Error(err))
		return
	}
	var st suspendedTurn
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		s.logger.Warn("planner turn autosave unreadable", zap.Error(err))
		return
	}
	if s.tree.Node(st.Parent) == nil {
		return
	}
	if err := s.resolver.Restore(st.Turn); err != nil {
		if !errors.Is(err, resolver.ErrInvalidTurn) {
			s.logger.Warn("planner turn restore failed", zap.Error(err))
		}
		return
	}
	s.parent = st.Parent
}
