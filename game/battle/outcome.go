package battle

import "strings"

const DescriptionNormal = "Normal"

// Outcome is what happened on the edge from a parent node: the realised
// branch of every random event and its probability.
type Outcome struct {
	Description        string         `json:"description"`
	Probability        float64        `json:"probability"`
	DamageDealt        int            `json:"damageDealt"`
	DamagePercent      int            `json:"damagePercent"`
	Crit               bool           `json:"isCrit"`
	Miss               bool           `json:"isMiss"`
	HighRoll           bool           `json:"isHighRoll"`
	LowRoll            bool           `json:"isLowRoll"`
	SecondaryTriggered bool           `json:"secondaryTriggered"`
	Details            map[string]any `json:"details,omitempty"`
}

// NewOutcome returns an outcome with a normalised probability and description.
func NewOutcome(description string, probability float64, damage int) *Outcome {
	o := &Outcome{Description: description, Probability: probability, DamageDealt: damage}
	o.Normalize()
	return o
}

// Normalize keeps probability in (0, 1] and the description non-empty.
func (o *Outcome) Normalize() {
	if o.Probability <= 0 || o.Probability > 1 {
		o.Probability = 1
	}
	if o.Description == "" {
		o.Description = DescriptionNormal
	}
}

// Label joins the outcome flags, e.g. "Crit, Max", or returns "Normal".
func (o *Outcome) Label() string {
	if o == nil {
		return DescriptionNormal
	}
	var labels []string
	if o.Crit {
		labels = append(labels, "Crit")
	}
	if o.Miss {
		labels = append(labels, "Miss")
	}
	if o.HighRoll {
		labels = append(labels, "Max")
	}
	if o.LowRoll {
		labels = append(labels, "Min")
	}
	if o.SecondaryTriggered {
		labels = append(labels, "Effect")
	}
	if len(labels) == 0 {
		return DescriptionNormal
	}
	return strings.Join(labels, ", ")
}

// Clone copies the outcome; details are copied one level deep.
func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	if o.Details != nil {
		c.Details = make(map[string]any, len(o.Details))
		for k, v := range o.Details {
			c.Details[k] = v
		}
	}
	return &c
}
