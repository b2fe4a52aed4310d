package forge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash computes the deterministic SHA-256 digest of v, canonicalised as
// follows: nil/absent input hashes as the empty string; strings hash as
// their own bytes; other scalars hash as their textual representation;
// anything else is treated as a JSON object or array and hashed after its
// keys are sorted lexicographically at every nesting level. The result is
// 64 lowercase hex characters.
func Hash(v interface{}) string {
	return hashBytes([]byte(canonicalText(v)))
}

// HashMany hashes the ordered components joined by the literal pipe "|".
// Object components are canonicalised as in Hash; scalars use their textual
// form. Ordering of parts is significant and is the caller's responsibility.
func HashMany(parts ...interface{}) string {
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += "|"
		}
		joined += canonicalText(p)
	}
	return hashBytes([]byte(joined))
}

// HashIdentity hashes an identity string (the "who" of an atom).
func HashIdentity(identity string) string { return Hash(identity) }

// HashAction hashes a human-readable operation description (the "action" of
// an atom).
func HashAction(description string) string { return Hash(description) }

// HashState hashes a pre- or post-state snapshot. Snapshots are arbitrary
// JSON-marshalable values; object key order never affects the digest.
func HashState(snapshot interface{}) string { return Hash(snapshot) }

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalText renders v as the exact string that gets hashed.
func canonicalText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		// Not hashed directly today (prev entries are spread as separate
		// HashMany arguments) but kept for completeness of the adapter.
		out, _ := json.Marshal(t)
		return string(out)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			// Fall back to a best-effort textual form; this is an
			// implementation error (unsupported type), never an
			// externally reportable condition.
			return fmt.Sprintf("%v", v)
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return string(raw)
		}
		if isScalarJSON(generic) {
			return scalarText(generic)
		}
		canon, err := canonicalJSON(generic)
		if err != nil {
			return string(raw)
		}
		return string(canon)
	}
}

func isScalarJSON(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return false
	default:
		return true
	}
}

func scalarText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return fmt.Sprintf("%t", t)
	case float64:
		// json.Unmarshal decodes all JSON numbers into float64; render
		// integral values without a trailing ".0" to match typical
		// caller expectations (timestamps, counts).
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// canonicalJSON re-serialises a generic JSON value (as produced by
// json.Unmarshal into interface{}) with every object's keys sorted
// lexicographically, recursively. Arrays preserve their order.
func canonicalJSON(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vb, err := canonicalJSON(t[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte{'['}
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := canonicalJSON(e)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(t)
	}
}
