package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Canonical folds a metadata key, value, context id or field path to the
// casing used for identity and storage.
func Canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve computes the identity of a field observed in context c.
// The metadata is restricted to the context's required keys; optional and
// unknown keys never participate. Inputs that only differ in key order or in
// casing resolve to the same identity.
func Resolve(c Context, metadata map[string]string, fieldPath string) (FieldIdentity, error) {
	required, err := RequiredSubset(c, metadata)
	if err != nil {
		return "", err
	}
	return identityOf(c.ID, required, fieldPath), nil
}

// RequiredSubset returns the canonical required metadata of an observation.
// It fails with an IdentityError when a required key is absent or empty, or
// when two keys fold to the same canonical key with different values.
func RequiredSubset(c Context, metadata map[string]string) (map[string]string, error) {
	folded, conflicts := foldMetadata(metadata)

	out := make(map[string]string, len(c.RequiredMetadataKeys))
	var missing []string
	for _, key := range c.RequiredMetadataKeys {
		ck := Canonical(key)
		v, ok := folded[ck]
		if !ok || v == "" {
			missing = append(missing, ck)
			continue
		}
		out[ck] = v
	}

	if len(missing) > 0 || len(conflicts) > 0 {
		return nil, &IdentityError{
			ContextID:       Canonical(c.ID),
			MissingKeys:     missing,
			ConflictingKeys: conflicts,
		}
	}
	return out, nil
}

// IdentityFor computes an identity from metadata that is already canonical,
// e.g. the required metadata of a stored record.
func IdentityFor(contextID string, required map[string]string, fieldPath string) FieldIdentity {
	return identityOf(contextID, required, fieldPath)
}

// VariantKey renders canonical required metadata as a stable string. Two
// observations belong to the same schema variant iff their keys are equal.
// Every key and value is length-prefixed, so no value can forge a boundary.
func VariantKey(required map[string]string) string {
	keys := make([]string, 0, len(required))
	for k := range required {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		writeComponent(&b, k)
		writeComponent(&b, required[k])
	}
	return b.String()
}

func identityOf(contextID string, required map[string]string, fieldPath string) FieldIdentity {
	var b strings.Builder
	writeComponent(&b, Canonical(contextID))
	writeComponent(&b, VariantKey(required))
	writeComponent(&b, Canonical(fieldPath))

	sum := sha256.Sum256([]byte(b.String()))
	return FieldIdentity(hex.EncodeToString(sum[:]))
}

// writeComponent appends s as "<len>:<s>".
func writeComponent(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

// foldMetadata canonicalizes keys and values. Keys that collide after folding
// with different values are reported as conflicts (sorted).
func foldMetadata(metadata map[string]string) (map[string]string, []string) {
	folded := make(map[string]string, len(metadata))
	conflicted := make(map[string]bool)
	for k, v := range metadata {
		ck, cv := Canonical(k), Canonical(v)
		if prev, ok := folded[ck]; ok && prev != cv {
			conflicted[ck] = true
			continue
		}
		folded[ck] = cv
	}

	var conflicts []string
	for k := range conflicted {
		conflicts = append(conflicts, k)
	}
	sort.Strings(conflicts)
	return folded, conflicts
}
