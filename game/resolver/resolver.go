// Package resolver computes one turn of a singles battle from two chosen
// actions. A turn that needs a replacement choice suspends and is resumed
// with the chosen team slot.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/kasuganosora/battleplanner/game/battle"
	"github.com/kasuganosora/battleplanner/game/calc"
)

var (
	// ErrBusy is returned by Execute and Restore while a turn is suspended.
	ErrBusy = errors.New("resolver: a turn is already in progress")
	// ErrNotSuspended is returned by Resume and Decline when nothing is pending.
	ErrNotSuspended = errors.New("resolver: no pending replacement")
	// ErrInvalidSlot is returned by Resume for a slot that cannot come in.
	ErrInvalidSlot = errors.New("resolver: invalid replacement slot")
	// ErrNilState is returned by Execute without a state.
	ErrNilState = errors.New("resolver: nil battle state")
	// ErrInvalidTurn is returned by Restore for a turn that is not paused.
	ErrInvalidTurn = errors.New("resolver: turn is not suspended")
)

// Resolver phases.
const (
	PhaseIdle                = "idle"
	PhaseOrderDetermined     = "order_determined"
	PhaseFirstActionApplied  = "first_action_applied"
	PhasePendingPivot        = "pending_pivot_switch"
	PhaseSecondActionApplied = "second_action_applied"
	PhaseEndOfTurnApplied    = "end_of_turn_applied"
	PhasePendingReplacement  = "pending_replacement"
	PhaseFinalized           = "finalized"
)

const (
	evOrder    = "order"
	evFirst    = "first"
	evPivot    = "pivot"
	evSecond   = "second"
	evEndTurn  = "end_turn"
	evReplace  = "replace"
	evFinalize = "finalize"
	evReset    = "reset"
)

// DefaultGeneration is used when Config.Gen is unset.
const DefaultGeneration = 9

// Replacement reasons.
const (
	ReasonFainted = "fainted"
	ReasonPivot   = "pivot"
	ReasonForced  = "forced"
)

// Request asks the caller to pick which team slot comes in for Side.
type Request struct {
	Side    battle.SideID `json:"side"`
	Reason  string        `json:"reason"`
	Options []int         `json:"options"`
}

// Result is a finished turn, ready to become a tree branch.
type Result struct {
	State   *battle.State     `json:"state"`
	Actions battle.ActionPair `json:"actions"`
	Outcome *battle.Outcome   `json:"outcome"`
}

// Step is what Execute, Resume and Decline hand back: either a pending
// request or the finished result.
type Step struct {
	Pending *Request `json:"pending,omitempty"`
	Result  *Result  `json:"result,omitempty"`
}

// Done reports whether the turn finished.
func (s Step) Done() bool { return s.Result != nil }

// Turn is the working record of one resolution. A suspended Turn can be
// serialised and handed back through Restore.
type Turn struct {
	Phase       string            `json:"phase"`
	State       *battle.State     `json:"state"`
	Actions     battle.ActionPair `json:"actions"`
	First       battle.SideID     `json:"first"`
	SpeedTie    bool              `json:"speedTie"`
	Probability float64           `json:"probability"`

	Log       []string `json:"log"`
	EndOfTurn []string `json:"endOfTurn"`

	Damage   map[battle.SideID]int  `json:"damage"`
	Percent  map[battle.SideID]int  `json:"damagePercent"`
	Pivot    map[battle.SideID]bool `json:"pivot"`
	Forced   map[battle.SideID]bool `json:"forced"`
	Fainted  map[battle.SideID]bool `json:"fainted"`
	Flinched bool                   `json:"flinched"`

	Crit      bool `json:"crit"`
	Miss      bool `json:"miss"`
	HighRoll  bool `json:"highRoll"`
	LowRoll   bool `json:"lowRoll"`
	Secondary bool `json:"secondary"`

	Queue   []Request `json:"queue,omitempty"`
	Pending *Request  `json:"pending,omitempty"`
}

func (t *Turn) second() battle.SideID { return t.First.Opponent() }

func (t *Turn) logf(format string, args ...any) {
	t.Log = append(t.Log, fmt.Sprintf(format, args...))
}

// Config configures a Resolver.
type Config struct {
	Calc   calc.Calculator
	Gen    int
	RNG    *rand.Rand // injectable for testing
	Logger *zap.Logger
}

// Resolver runs one turn at a time. It is not safe for concurrent use; a
// planner session serialises access.
type Resolver struct {
	calc   calc.Calculator
	gen    int
	rng    *rand.Rand
	logger *zap.Logger

	machine *fsm.FSM
	turn    *Turn
}

// New creates a resolver. A nil calculator falls back to the builtin one.
func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Gen <= 0 {
		cfg.Gen = DefaultGeneration
	}
	if cfg.Calc == nil {
		cfg.Calc = calc.NewBuiltin(nil)
	}
	return &Resolver{
		calc:    cfg.Calc,
		gen:     cfg.Gen,
		rng:     cfg.RNG,
		logger:  cfg.Logger,
		machine: newMachine(),
	}
}

func newMachine() *fsm.FSM {
	return fsm.NewFSM(PhaseIdle, fsm.Events{
		{Name: evOrder, Src: []string{PhaseIdle}, Dst: PhaseOrderDetermined},
		{Name: evFirst, Src: []string{PhaseOrderDetermined}, Dst: PhaseFirstActionApplied},
		{Name: evPivot, Src: []string{PhaseFirstActionApplied}, Dst: PhasePendingPivot},
		{Name: evSecond, Src: []string{PhaseFirstActionApplied, PhasePendingPivot}, Dst: PhaseSecondActionApplied},
		{Name: evEndTurn, Src: []string{PhaseSecondActionApplied}, Dst: PhaseEndOfTurnApplied},
		{Name: evReplace, Src: []string{PhaseEndOfTurnApplied}, Dst: PhasePendingReplacement},
		{Name: evFinalize, Src: []string{PhaseEndOfTurnApplied, PhasePendingReplacement}, Dst: PhaseFinalized},
		{Name: evReset, Src: []string{
			PhaseOrderDetermined, PhaseFirstActionApplied, PhasePendingPivot, PhaseSecondActionApplied,
			PhaseEndOfTurnApplied, PhasePendingReplacement, PhaseFinalized,
		}, Dst: PhaseIdle},
	}, fsm.Callbacks{})
}

// Phase returns the current phase.
func (r *Resolver) Phase() string { return r.machine.Current() }

// Gen returns the generation passed to the calculator.
func (r *Resolver) Gen() int { return r.gen }

// Calculator returns the damage calculator in use.
func (r *Resolver) Calculator() calc.Calculator { return r.calc }

// Execute resolves a turn on a clone of state. It returns either the
// finished result or a pending replacement request. state is never mutated.
func (r *Resolver) Execute(ctx context.Context, state *battle.State, p1, p2 *battle.Action) (Step, error) {
	if r.turn != nil {
		return Step{}, ErrBusy
	}
	if state == nil {
		return Step{}, ErrNilState
	}
	if p1 == nil {
		p1 = battle.Skip()
	}
	if p2 == nil {
		p2 = battle.Skip()
	}
	t := &Turn{
		State:       state.Clone(),
		Actions:     battle.ActionPair{P1: p1.Clone(), P2: p2.Clone()},
		Probability: 1,
		Damage:      map[battle.SideID]int{},
		Percent:     map[battle.SideID]int{},
		Pivot:       map[battle.SideID]bool{},
		Forced:      map[battle.SideID]bool{},
	}
	r.machine.SetState(PhaseIdle)
	r.turn = t

	dropStaleCharges(t)
	r.determineOrder(ctx, t)
	if err := r.event(ctx, evOrder); err != nil {
		return Step{}, err
	}
	return r.run(ctx)
}

// Resume brings team slot into play for the pending side and continues the
// turn. An invalid slot leaves the turn suspended.
func (r *Resolver) Resume(ctx context.Context, slot int) (Step, error) {
	t := r.turn
	if t == nil || t.Pending == nil {
		return Step{}, ErrNotSuspended
	}
	if !slices.Contains(t.Pending.Options, slot) {
		return Step{}, fmt.Errorf("%w: %d not in %v", ErrInvalidSlot, slot, t.Pending.Options)
	}
	r.replace(t, t.Pending.Side, slot)
	return r.run(ctx)
}

// Decline answers the pending request without a choice: the first healthy
// bench member comes in. With no healthy member the side stays fainted.
func (r *Resolver) Decline(ctx context.Context) (Step, error) {
	t := r.turn
	if t == nil || t.Pending == nil {
		return Step{}, ErrNotSuspended
	}
	if len(t.Pending.Options) > 0 {
		return r.Resume(ctx, t.Pending.Options[0])
	}
	r.logger.Debug("decline: no replacement available", zap.String("side", string(t.Pending.Side)))
	r.clearPending(t)
	return r.run(ctx)
}

// Pending returns the outstanding request, or nil.
func (r *Resolver) Pending() *Request {
	if r.turn == nil || r.turn.Pending == nil {
		return nil
	}
	p := *r.turn.Pending
	p.Options = slices.Clone(p.Options)
	return &p
}

// Suspended returns a copy of the paused turn, or nil when idle.
func (r *Resolver) Suspended() *Turn {
	if r.turn == nil {
		return nil
	}
	t := r.turn.clone()
	t.Phase = r.machine.Current()
	return t
}

// Restore reinstates a turn previously returned by Suspended.
func (r *Resolver) Restore(t *Turn) error {
	if r.turn != nil {
		return ErrBusy
	}
	if t == nil || t.State == nil || t.Pending == nil {
		return ErrInvalidTurn
	}
	if t.Phase != PhasePendingPivot && t.Phase != PhasePendingReplacement {
		return fmt.Errorf("%w: phase %q", ErrInvalidTurn, t.Phase)
	}
	c := t.clone()
	if c.Damage == nil {
		c.Damage = map[battle.SideID]int{}
	}
	if c.Percent == nil {
		c.Percent = map[battle.SideID]int{}
	}
	if c.Pivot == nil {
		c.Pivot = map[battle.SideID]bool{}
	}
	if c.Forced == nil {
		c.Forced = map[battle.SideID]bool{}
	}
	r.turn = c
	r.machine.SetState(t.Phase)
	return nil
}

// Abort drops a suspended turn without producing a result.
func (r *Resolver) Abort() {
	r.turn = nil
	r.machine.SetState(PhaseIdle)
}

// run drives the machine until the turn finishes or suspends.
func (r *Resolver) run(ctx context.Context) (Step, error) {
	t := r.turn
	for {
		switch r.machine.Current() {
		case PhaseOrderDetermined:
			r.act(ctx, t, t.First)
			if err := r.event(ctx, evFirst); err != nil {
				return Step{}, err
			}

		case PhaseFirstActionApplied:
			if req := r.pivotRequest(t); req != nil {
				t.Pending = req
				if err := r.event(ctx, evPivot); err != nil {
					return Step{}, err
				}
				return Step{Pending: r.Pending()}, nil
			}
			r.secondAction(ctx, t)
			if err := r.event(ctx, evSecond); err != nil {
				return Step{}, err
			}

		case PhasePendingPivot:
			if t.Pending != nil {
				return Step{Pending: r.Pending()}, nil
			}
			r.secondAction(ctx, t)
			if err := r.event(ctx, evSecond); err != nil {
				return Step{}, err
			}

		case PhaseSecondActionApplied:
			r.endOfTurn(t)
			t.State.TurnNumber++
			t.State.SyncAll()
			t.Fainted = map[battle.SideID]bool{
				battle.P1: fainted(t.State.P1.Active),
				battle.P2: fainted(t.State.P2.Active),
			}
			t.Queue = r.replacementNeeds(t)
			if err := r.event(ctx, evEndTurn); err != nil {
				return Step{}, err
			}

		case PhaseEndOfTurnApplied, PhasePendingReplacement:
			if t.Pending != nil {
				return Step{Pending: r.Pending()}, nil
			}
			if len(t.Queue) > 0 {
				req := t.Queue[0]
				t.Pending = &req
				if r.machine.Current() == PhaseEndOfTurnApplied {
					if err := r.event(ctx, evReplace); err != nil {
						return Step{}, err
					}
				}
				return Step{Pending: r.Pending()}, nil
			}
			if err := r.event(ctx, evFinalize); err != nil {
				return Step{}, err
			}

		case PhaseFinalized:
			res := r.finalize(t)
			r.turn = nil
			if err := r.event(ctx, evReset); err != nil {
				return Step{}, err
			}
			return Step{Result: res}, nil

		default:
			return Step{}, fmt.Errorf("resolver: unexpected phase %q", r.machine.Current())
		}
	}
}

func (r *Resolver) event(ctx context.Context, name string) error {
	if err := r.machine.Event(ctx, name); err != nil {
		r.logger.Error("resolver transition failed",
			zap.String("event", name), zap.String("phase", r.machine.Current()), zap.Error(err))
		r.turn = nil
		r.machine.SetState(PhaseIdle)
		return fmt.Errorf("resolver: %s: %w", name, err)
	}
	return nil
}

// replace switches slot in for side and settles the pending request.
func (r *Resolver) replace(t *Turn, side battle.SideID, slot int) {
	t.State.SwitchActive(side, slot)
	t.State.SyncAll()
	if a := t.State.Side(side).Active; a != nil {
		t.logf("%s sent in %s", sideName(side), a.Name)
	}
	r.clearPending(t)
}

func (r *Resolver) clearPending(t *Turn) {
	if r.machine.Current() == PhasePendingReplacement && len(t.Queue) > 0 {
		t.Queue = t.Queue[1:]
	}
	t.Pending = nil
}

// pivotRequest asks for the first actor's replacement after a pivot move.
func (r *Resolver) pivotRequest(t *Turn) *Request {
	side := t.First
	if !t.Pivot[side] {
		return nil
	}
	active := t.State.Side(side).Active
	if active == nil || active.HasFainted() {
		return nil
	}
	opts := t.State.HealthyBench(side)
	if len(opts) == 0 {
		return nil
	}
	t.Pivot[side] = false
	return &Request{Side: side, Reason: ReasonPivot, Options: opts}
}

// replacementNeeds lists, p1 before p2, every side that must bring in a new
// Pokémon before the turn can finish.
func (r *Resolver) replacementNeeds(t *Turn) []Request {
	var out []Request
	for _, side := range []battle.SideID{battle.P1, battle.P2} {
		active := t.State.Side(side).Active
		if active == nil {
			continue
		}
		var reason string
		switch {
		case active.HasFainted():
			reason = ReasonFainted
		case t.Pivot[side]:
			reason = ReasonPivot
		case t.Forced[side]:
			reason = ReasonForced
		default:
			continue
		}
		opts := t.State.HealthyBench(side)
		if len(opts) == 0 {
			continue
		}
		out = append(out, Request{Side: side, Reason: reason, Options: opts})
	}
	return out
}

func (t *Turn) clone() *Turn {
	c := *t
	c.State = t.State.Clone()
	c.Actions = t.Actions.Clone()
	c.Log = slices.Clone(t.Log)
	c.EndOfTurn = slices.Clone(t.EndOfTurn)
	c.Damage = maps.Clone(t.Damage)
	c.Percent = maps.Clone(t.Percent)
	c.Pivot = maps.Clone(t.Pivot)
	c.Forced = maps.Clone(t.Forced)
	c.Fainted = maps.Clone(t.Fainted)
	c.Queue = make([]Request, len(t.Queue))
	for i, q := range t.Queue {
		q.Options = slices.Clone(q.Options)
		c.Queue[i] = q
	}
	if t.Pending != nil {
		p := *t.Pending
		p.Options = slices.Clone(p.Options)
		c.Pending = &p
	}
	return &c
}

func sideName(side battle.SideID) string {
	if side == battle.P2 {
		return "P2"
	}
	return "P1"
}
