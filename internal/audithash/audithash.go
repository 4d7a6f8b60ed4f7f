// Package audithash computes the deterministic, tamper-evident hash
// appended to every domain event and entity as event_hash. It is
// grounded on the teacher's state.Snapshot (internal/state in the
// teacher repo), generalized from a single before/after comparison
// into a canonical-projection hasher usable by any domain.
package audithash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Compute returns the hex-encoded SHA-256 digest of a canonical
// projection of payload: payload is marshaled to JSON with map keys
// sorted (encoding/json already sorts map[string]any keys, and struct
// field order is fixed by the Go type, so a struct's JSON encoding is
// already canonical); any "event_hash" field present in a map payload
// is zeroed first so a payload never hashes itself.
//
// Callers that hash a struct must zero the hash field on a copy before
// calling Compute — structs have a fixed field order so there is
// nothing for this function to strip automatically.
func Compute(payload interface{}) (string, error) {
	canon, err := canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize marshals payload to JSON, round-tripping through a
// generic representation so that map key order is always alphabetic
// regardless of how the caller's map was populated.
func canonicalize(payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

// marshalSorted re-encodes v with every map emitted in sorted-key
// order, recursively, producing a byte-stable encoding.
func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		if _, ok := val["event_hash"]; ok {
			val = cloneWithoutHash(val)
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte("{")
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
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, vb...)
		}
		buf = append(buf, '}')
		return buf, nil
	case []interface{}:
		buf := []byte("[")
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, ib...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(val)
	}
}

func cloneWithoutHash(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == "event_hash" {
			continue
		}
		out[k] = v
	}
	return out
}
