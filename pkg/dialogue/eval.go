package dialogue

import "strconv"

// Lookup resolves a condition key to its current flag value. The boolean
// reports whether the key resolved at all; an unresolved key fails its
// condition rather than erroring.
type Lookup func(key string) (string, bool)

// Select walks gates in order and returns the id of the first one whose
// conditions pass, or defaultID when none do. A gate with no conditions
// passes immediately. Order is significant: documents rely on earlier
// gates shadowing later ones.
func Select(gates []Gate, lookup Lookup, defaultID string) string {
	for _, gate := range gates {
		if len(gate.Conditions) == 0 {
			return gate.ID
		}

		// ALL starts passed and any false condition sinks it; ANY starts
		// failed and any true condition rescues it. Every condition is
		// visited either way, so lookups observe the full key sequence.
		passed := gate.Quantifier == QuantifierAll
		for _, cond := range gate.Conditions {
			held := cond.holds(lookup)
			if gate.Quantifier == QuantifierAll {
				if !held {
					passed = false
				}
			} else if held {
				passed = true
			}
		}
		if passed {
			return gate.ID
		}
	}
	return defaultID
}

func (c Condition) holds(lookup Lookup) bool {
	if lookup == nil {
		return false
	}
	resolved, ok := lookup(c.Key)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpGT, OpLT, OpGTE, OpLTE:
		have, errHave := strconv.ParseFloat(resolved, 64)
		want, errWant := strconv.ParseFloat(c.Value, 64)
		if errHave != nil || errWant != nil {
			return false
		}
		switch c.Operator {
		case OpGT:
			return have > want
		case OpLT:
			return have < want
		case OpGTE:
			return have >= want
		default:
			return have <= want
		}
	default:
		// EQ, and the default for anything unrecognized.
		return resolved == c.Value
	}
}
