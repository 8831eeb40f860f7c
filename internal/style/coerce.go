package style

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce converts a raw attribute value to a float. Absent values (nil or a
// blank string) read as zero; anything that is present but not a finite
// number is an ErrAttribute.
func Coerce(raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int8:
		v = float64(x)
	case int16:
		v = float64(x)
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case uint:
		v = float64(x)
	case uint8:
		v = float64(x)
	case uint16:
		v = float64(x)
	case uint32:
		v = float64(x)
	case uint64:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrAttribute, x.String())
		}
		v = f
	case string:
		s := strings.TrimSpace(strings.TrimRight(x, "\x00"))
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrAttribute, x)
		}
		v = f
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrAttribute, raw)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value %v", ErrAttribute, v)
	}
	return v, nil
}
