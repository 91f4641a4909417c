package calc

import (
	"math"

	"github.com/spf13/cast"
)

// Range summarises a damage result.
type Range struct {
	Min   int   `json:"min"`
	Max   int   `json:"max"`
	Avg   int   `json:"avg"`
	Rolls []int `json:"rolls,omitempty"`
}

// RangeOf derives a Range from a calculator damage value: a single number,
// a flat list of rolls, or a two-part list for split-hit moves whose parts
// are summed. When the average comes out 0 but the bounds do not, the
// midpoint of the bounds is used.
func RangeOf(damage any) Range {
	var r Range
	switch d := damage.(type) {
	case nil:
		return r
	case []int:
		r = rangeOfList(intsToAny(d))
	case []float64:
		items := make([]any, len(d))
		for i, v := range d {
			items[i] = v
		}
		r = rangeOfList(items)
	case [][]int:
		parts := make([]any, len(d))
		for i, p := range d {
			parts[i] = intsToAny(p)
		}
		r = rangeOfList(parts)
	case []any:
		r = rangeOfList(d)
	default:
		n := toInt(d)
		r = Range{Min: n, Max: n, Avg: n, Rolls: []int{n}}
	}
	if r.Avg == 0 && (r.Min > 0 || r.Max > 0) {
		r.Avg = (r.Min + r.Max) / 2
	}
	return r
}

func rangeOfList(items []any) Range {
	if len(items) == 0 {
		return Range{}
	}
	if len(items) == 2 {
		first, ok1 := asList(items[0])
		second, ok2 := asList(items[1])
		if ok1 && ok2 {
			lo := firstInt(first) + firstInt(second)
			hi := lastInt(first) + lastInt(second)
			return Range{Min: lo, Max: hi, Avg: (lo + hi) / 2}
		}
	}
	rolls := make([]int, len(items))
	lo, hi, sum := math.MaxInt, math.MinInt, 0
	for i, it := range items {
		n := toInt(it)
		rolls[i] = n
		lo, hi = min(lo, n), max(hi, n)
		sum += n
	}
	return Range{Min: lo, Max: hi, Avg: sum / len(items), Rolls: rolls}
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []int:
		return intsToAny(l), true
	}
	return nil, false
}

func intsToAny(in []int) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func firstInt(l []any) int {
	if len(l) == 0 {
		return 0
	}
	return toInt(l[0])
}

func lastInt(l []any) int {
	if len(l) == 0 {
		return 0
	}
	return toInt(l[len(l)-1])
}

func toInt(v any) int {
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Floor(f))
}

func (r Range) isZero() bool {
	return r.Min == 0 && r.Max == 0 && r.Avg == 0 && len(r.Rolls) == 0
}

// Pick returns the roll named by roll: "low", "high" or the average.
func (r Range) Pick(roll string) int {
	switch roll {
	case "low":
		return r.Min
	case "high":
		return r.Max
	}
	return r.Avg
}
