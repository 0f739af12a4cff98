// Package fingerprint implements structural fingerprinting and the
// two-level result cache with at-most-one-build semantics (C2).
package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNonFiniteFloat is returned when settings contain NaN or Inf, which are
// forbidden because they are not stably representable across encoders.
var ErrNonFiniteFloat = errors.New("settings contain a NaN or Inf float value")

// fingerprintVersion is prepended to every canonical encoding so that a
// future change to the encoding can be distinguished from a genuine
// content change without an ambiguous migration.
const fingerprintVersion byte = 1

// CanonicalBytes produces a stable, deterministic encoding of a settings
// map: fields in lexicographic order, no float-via-repr ambiguity, and
// NaN/Inf rejected outright.
func CanonicalBytes(settings map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(fingerprintVersion)
	if err := encodeValue(&buf, settings); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("n")
	case bool:
		if val {
			buf.WriteString("t")
		} else {
			buf.WriteString("f")
		}
	case string:
		fmt.Fprintf(buf, "s%d:%s", len(val), val)
	case int:
		fmt.Fprintf(buf, "i%d", val)
	case int64:
		fmt.Fprintf(buf, "i%d", val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ErrNonFiniteFloat
		}
		fmt.Fprintf(buf, "d%s", formatFloat(val))
	case []interface{}:
		buf.WriteString("a[")
		for _, item := range val {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
			buf.WriteByte(',')
		}
		buf.WriteString("]")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("m{")
		for _, k := range keys {
			fmt.Fprintf(buf, "%d:%s=", len(k), k)
			if err := encodeValue(buf, val[k]); err != nil {
				return err
			}
			buf.WriteByte(',')
		}
		buf.WriteString("}")
	default:
		return fmt.Errorf("unsupported settings value type %T", v)
	}
	return nil
}

// formatFloat renders a finite float with a fixed, non-shortest-form
// representation so that equal values always produce equal bytes
// regardless of how they were originally parsed.
func formatFloat(f float64) string {
	return fmt.Sprintf("%.17e", f)
}
