package battle

import "github.com/kasuganosora/battleplanner/game/pokemon"

// ActionType is what a side chose to do this turn.
type ActionType string

const (
	ActionMove   ActionType = "move"
	ActionSwitch ActionType = "switch"
	ActionItem   ActionType = "item"
	ActionSkip   ActionType = "skip"
)

// Roll selects which damage roll a resolved move uses.
type Roll string

const (
	RollAvg  Roll = "avg"
	RollLow  Roll = "low"
	RollHigh Roll = "high"
)

// CustomEffects overrides what a move does when resolved.
type CustomEffects struct {
	ForceStatus       pokemon.Status `json:"forceStatus,omitempty"`
	ForceBoosts       map[string]int `json:"forceBoosts,omitempty"`
	ForceSelfBoosts   map[string]int `json:"forceSelfBoosts,omitempty"`
	NoDamage          bool           `json:"noDamage,omitempty"`
	SelfDamage        float64        `json:"selfDamage,omitempty"` // fraction of the user's max HP
	SwitchOut         bool           `json:"switchOut,omitempty"`
	ForceTargetSwitch bool           `json:"forceTargetSwitch,omitempty"`
	PriorityModifier  int            `json:"priorityModifier,omitempty"`
	// Secondary makes chance-based secondary effects trigger.
	Secondary bool `json:"secondary,omitempty"`
}

func (e *CustomEffects) clone() *CustomEffects {
	if e == nil {
		return nil
	}
	c := *e
	c.ForceBoosts = cloneBoosts(e.ForceBoosts)
	c.ForceSelfBoosts = cloneBoosts(e.ForceSelfBoosts)
	return &c
}

func cloneBoosts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Action is one side's choice for a turn.
type Action struct {
	Type ActionType `json:"type"`

	MoveName   string `json:"moveName,omitempty"`
	MoveIndex  int    `json:"moveIndex"`
	TargetSlot int    `json:"targetSlot"`

	SwitchTo    string `json:"switchTo,omitempty"`
	SwitchIndex int    `json:"switchIndex"`

	ItemName string `json:"itemName,omitempty"`

	Crit    bool           `json:"isCrit,omitempty"`
	Hits    int            `json:"hits,omitempty"`
	Roll    Roll           `json:"roll,omitempty"`
	Miss    bool           `json:"isMiss,omitempty"`
	Effects *CustomEffects `json:"customEffects,omitempty"`
}

// Move is a move action by name.
func Move(name string, index int) *Action {
	return &Action{Type: ActionMove, MoveName: name, MoveIndex: index}
}

// Switch is a switch to the team slot.
func Switch(slot int, name string) *Action {
	return &Action{Type: ActionSwitch, SwitchIndex: slot, SwitchTo: name}
}

// Skip does nothing.
func Skip() *Action { return &Action{Type: ActionSkip} }

// Clone returns a copy that shares no maps with a.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	c := *a
	c.Effects = a.Effects.clone()
	return &c
}

// Describe renders a short label such as "Earthquake" or "Switch → Toxapex".
func (a *Action) Describe() string {
	if a == nil {
		return "Unknown"
	}
	switch a.Type {
	case ActionMove:
		if a.MoveName == "" {
			return "Attack"
		}
		return a.MoveName
	case ActionSwitch:
		to := a.SwitchTo
		if to == "" {
			to = "?"
		}
		return "Switch → " + to
	case ActionItem:
		if a.ItemName == "" {
			return "Use Item"
		}
		return "Use " + a.ItemName
	case ActionSkip:
		return "Skip"
	}
	return "Unknown"
}

// ActionPair is the two actions that produced a node.
type ActionPair struct {
	P1 *Action `json:"p1"`
	P2 *Action `json:"p2"`
}

// Get returns the action for side id.
func (ap ActionPair) Get(id SideID) *Action {
	if id == P2 {
		return ap.P2
	}
	return ap.P1
}

// Clone copies both actions.
func (ap ActionPair) Clone() ActionPair {
	return ActionPair{P1: ap.P1.Clone(), P2: ap.P2.Clone()}
}
