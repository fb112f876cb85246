package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/spf13/cast"
)

// ConditionEvaluator decides which branch a Condition node takes.
type ConditionEvaluator func(cond domain.Condition, ec domain.ExecutionContext) bool

// DefaultEvaluator implements the built-in operators.
//
// The compared value is variables[cond.Variable]. String operators compare its
// string form, where a missing variable reads as "". Numeric operators coerce
// both sides to numbers and are false when either side is not numeric.
// Unknown operators are false.
func DefaultEvaluator(cond domain.Condition, ec domain.ExecutionContext) bool {
	value, present := ec.Variables[cond.Variable]
	if !present {
		value = nil
	}

	switch cond.Operator {
	case domain.OpEquals:
		return toString(value) == cond.Value
	case domain.OpContains:
		return strings.Contains(toString(value), cond.Value)
	case domain.OpGreater:
		l, lok := toNumber(value)
		r, rok := toNumber(cond.Value)
		return lok && rok && l > r
	case domain.OpLess:
		l, lok := toNumber(value)
		r, rok := toNumber(cond.Value)
		return lok && rok && l < r
	case domain.OpExists:
		return value != nil
	case domain.OpIntent:
		return ec.CurrentIntent == cond.Value
	case domain.OpConfidence:
		confidence := 0.0
		if ec.IntentConfidence != nil {
			confidence = *ec.IntentConfidence
		}
		r, ok := toNumber(cond.Value)
		return ok && confidence >= r
	}
	return false
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// toNumber follows the usual loose numeric coercion: blank strings are zero,
// booleans are 0/1 and anything unparsable is rejected.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, true
		}
		v = t
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
