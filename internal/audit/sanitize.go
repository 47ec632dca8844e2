package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/khanghh/kadmin/params"
)

// deniedSubstrings are matched case-insensitively against every key, allow-listed or not.
var deniedSubstrings = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"private_key",
	"privatekey",
	"hash",
	"credential",
	"cookie",
	"path",
	"s3key",
	"storagekey",
	"internal_id",
	"internalid",
}

func isDeniedField(key string) bool {
	lower := strings.ToLower(key)
	for _, denied := range deniedSubstrings {
		if strings.Contains(lower, denied) {
			return true
		}
	}
	return false
}

func truncateString(s string) string {
	if len(s) <= params.AuditMaxStringLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= params.AuditMaxStringLength {
		return s
	}
	return string(runes[:params.AuditMaxStringLength])
}

// maxExactInt is the largest integer that survives a JSON round trip through float64.
const maxExactInt = 1<<53 - 1

func sanitizeInt(v int64) any {
	if v > maxExactInt || v < -maxExactInt {
		return strconv.FormatInt(v, 10)
	}
	return v
}

func sanitizeUint(v uint64) any {
	if v > maxExactInt {
		return strconv.FormatUint(v, 10)
	}
	return int64(v)
}

// sanitizeScalar returns the storable form of a scalar value, or false when the value
// is not a scalar.
func sanitizeScalar(val any) (any, bool) {
	switch v := val.(type) {
	case nil:
		return nil, true
	case string:
		return truncateString(v), true
	case bool, float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return sanitizeInt(int64(v)), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return sanitizeInt(v), true
	case uint:
		return sanitizeUint(uint64(v)), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return sanitizeUint(v), true
	case json.Number:
		return v.String(), true
	case time.Time:
		return v.UTC().Format(time.RFC3339), true
	case *time.Time:
		if v == nil {
			return nil, true
		}
		return v.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return truncateString(v.String()), true
	}
	return nil, false
}

func sanitizeValue(val any) (any, bool) {
	if scalar, ok := sanitizeScalar(val); ok {
		return scalar, true
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		// raw bytes are never stored
		return nil, false
	}
	n := rv.Len()
	if n > params.AuditMaxArrayLength {
		n = params.AuditMaxArrayLength
	}
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		elem, ok := sanitizeScalar(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out = append(out, elem)
	}
	return out, true
}

// SanitizeMetadata filters metadata through the action's allow-list and the global
// deny-list. It returns nil when nothing survives.
func SanitizeMetadata(action string, metadata map[string]any) map[string]any {
	allowed, ok := allowedFields[action]
	if !ok || len(metadata) == 0 {
		return nil
	}
	result := make(map[string]any, len(allowed))
	for _, key := range allowed {
		val, exists := metadata[key]
		if !exists || isDeniedField(key) {
			continue
		}
		if clean, ok := sanitizeValue(val); ok && clean != nil {
			result[key] = clean
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
