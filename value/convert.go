package value

import (
	"fmt"

	"github.com/spf13/cast"
)

// ToFloat64 best-effort coerces a scalar Value for use in arithmetic
// bindings (`Y = f(X, ...)`) where the declared type admits numeric
// promotion (e.g. an Int column feeding a float-typed expression).
func ToFloat64(v Value) (float64, error) {
	switch v.kind {
	case KindFloat:
		return v.f, nil
	case KindInt:
		return cast.ToFloat64E(v.i)
	case KindString:
		return cast.ToFloat64E(v.s)
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value: cannot coerce %s to float64", v.kind)
	}
}

// ToInt64 best-effort coerces a scalar Value to an integer.
func ToInt64(v Value) (int64, error) {
	switch v.kind {
	case KindInt, KindTimestamp:
		return v.i, nil
	case KindFloat:
		return cast.ToInt64E(v.f)
	case KindString:
		return cast.ToInt64E(v.s)
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value: cannot coerce %s to int64", v.kind)
	}
}

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	case KindVectorF32:
		return "vector<f32>"
	case KindVectorI8:
		return "vector<i8>"
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}
