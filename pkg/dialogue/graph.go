package dialogue

// Quantifier controls how a gate combines its conditions.
type Quantifier string

const (
	QuantifierAll Quantifier = "all" // every condition must pass
	QuantifierAny Quantifier = "any" // at least one condition must pass
)

// Operator compares a resolved flag value against a condition's value.
// EQ compares strings; the rest compare numerically.
type Operator string

const (
	OpEQ  Operator = "EQ"
	OpGT  Operator = "GT"
	OpLT  Operator = "LT"
	OpGTE Operator = "GTE"
	OpLTE Operator = "LTE"
)

// Condition is a single flag comparison.
type Condition struct {
	Key      string   `json:"key"`      // flag to resolve through the lookup
	Operator Operator `json:"operator"` // EQ when the document omits it
	Value    string   `json:"value"`    // right-hand side of the comparison
}

// Gate is a conditionally guarded jump target. Conversation starters and a
// line's conditional-next branches share this shape: an id, a quantifier,
// and the ordered conditions that must hold for the id to be selected.
type Gate struct {
	ID         string      `json:"id"`
	Quantifier Quantifier  `json:"quantifier"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Choice is a player-facing branch option. Choices are addressed by index,
// which is also how translation passes override their text.
type Choice struct {
	Text string `json:"text"`
	Next string `json:"next"`
}

// Line is one node of dialogue. Text may carry backtick-delimited inline
// events and percent-delimited substitutions.
type Line struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Next     string   `json:"next,omitempty"`     // successor line id; empty ends the conversation
	Choices  []Choice `json:"choices,omitempty"`  // player branches; checked before conditional branches
	Branches []Gate   `json:"branches,omitempty"` // conditional successors, document order
}

// Graph is one compiled dialogue document. Starters keep document order
// because they are evaluated first-match-wins; a starter's id doubles as
// the id of the first line it presents.
type Graph struct {
	Starters []Gate           `json:"starters"`
	Lines    map[string]*Line `json:"lines"`
}

// Line returns the line with the given id, or nil when absent.
func (g *Graph) Line(id string) *Line {
	if g == nil {
		return nil
	}
	return g.Lines[id]
}
