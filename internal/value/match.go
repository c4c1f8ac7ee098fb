package value

import "fmt"

// SubtypeChecker reports whether class `sub` is class `sup` or transitively
// extends it. Supplied by callers (ctx.GlobalContext) so this package stays
// free of any dependency on class contexts.
type SubtypeChecker func(sub, sup int) bool

// MatchValueToType scores how well a concrete actual value fits an expected
// fragment argument type.
//
//   - expected == Indeterminate matches anything with promotion count 1.
//   - actual == Indeterminate against a concrete expected is an error.
//   - same concrete kind matches with promotion count 0, plus the summed
//     promotion counts of any nested extension types.
//   - an expected Instance accepts any actual Instance that is the same
//     class or a transitive subclass (promotion count 0); anything else is
//     a mismatch (-1).
func MatchValueToType(expected, actual Value, isSubtype SubtypeChecker) (int, error) {
	if expected.Kind == Indeterminate {
		return 1, nil
	}
	if actual.Kind == Indeterminate {
		return -1, fmt.Errorf("match_value_to_type: concrete expected %s against Indeterminate actual", expected.Kind)
	}
	score, ok := matchKnownKind(expected, actual, isSubtype)
	if !ok {
		return -1, nil
	}
	return score, nil
}

func matchKnownKind(expected, actual Value, isSubtype SubtypeChecker) (int, bool) {
	if expected.Kind != actual.Kind {
		return -1, false
	}
	switch expected.Kind {
	case Instance:
		if actual.ID == expected.ID {
			return 0, true
		}
		if isSubtype != nil && isSubtype(actual.ID, expected.ID) {
			return 0, true
		}
		return -1, false
	case List, Tuple, Set, Dict:
		if len(expected.Ext) != len(actual.Ext) {
			return -1, false
		}
		total := 0
		for i := range expected.Ext {
			s, err := MatchValueToType(expected.Ext[i], actual.Ext[i], isSubtype)
			if err != nil || s < 0 {
				return -1, false
			}
			total += s
		}
		return total, true
	default:
		return 0, true
	}
}

// MatchValuesToTypes sums per-argument match scores element-wise; unequal
// arities fail.
func MatchValuesToTypes(expected, actual []Value, isSubtype SubtypeChecker) (int, error) {
	if len(expected) != len(actual) {
		return -1, fmt.Errorf("match_values_to_types: arity mismatch (%d expected, %d actual)", len(expected), len(actual))
	}
	total := 0
	for i := range expected {
		s, err := MatchValueToType(expected[i], actual[i], isSubtype)
		if err != nil {
			return -1, err
		}
		if s < 0 {
			return -1, nil
		}
		total += s
	}
	return total, nil
}
