package pokemon

// Status is a major (non-volatile) status condition.
type Status string

const (
	Healthy       Status = "Healthy"
	Paralyzed     Status = "Paralyzed"
	Poisoned      Status = "Poisoned"
	BadlyPoisoned Status = "Badly Poisoned"
	Burned        Status = "Burned"
	Asleep        Status = "Asleep"
	Frozen        Status = "Frozen"
)

// MaxToxicCounter caps the badly-poisoned damage ramp.
const MaxToxicCounter = 15

var statusByCode = map[string]Status{
	"":    Healthy,
	"par": Paralyzed,
	"psn": Poisoned,
	"tox": BadlyPoisoned,
	"brn": Burned,
	"slp": Asleep,
	"frz": Frozen,
}

var codeByStatus = map[Status]string{
	Healthy:       "",
	Paralyzed:     "par",
	Poisoned:      "psn",
	BadlyPoisoned: "tox",
	Burned:        "brn",
	Asleep:        "slp",
	Frozen:        "frz",
}

// ParseStatus accepts either a short code ("brn") or a full name ("Burned").
// Anything unrecognised is Healthy.
func ParseStatus(s string) Status {
	if st, ok := statusByCode[s]; ok {
		return st
	}
	if _, ok := codeByStatus[Status(s)]; ok {
		return Status(s)
	}
	return Healthy
}

// Code returns the short status code, "" for Healthy.
func (s Status) Code() string {
	return codeByStatus[s]
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := codeByStatus[s]
	return ok
}

// Verb returns the short label used in move effect summaries.
func (s Status) Verb() string {
	switch s {
	case Paralyzed:
		return "Paralyze"
	case Burned:
		return "Burn"
	case Poisoned:
		return "Poison"
	case BadlyPoisoned:
		return "Toxic"
	case Asleep:
		return "Sleep"
	case Frozen:
		return "Freeze"
	}
	return ""
}
