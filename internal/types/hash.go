package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ContentHash computes the SHA-256 hex digest of a canonicalised
// serialisation of an element: (type, stable fields, sorted tag set,
// stable-ordered metadata), excluding the volatile createdAt/updatedAt
// instants. Two updates yielding identical field values always produce the
// same hash.
//
// Canonical form: marshal the element to JSON (Go's encoding/json already
// sorts map keys when marshaling a map), with the tag slice pre-sorted, then
// drop the createdAt/updatedAt keys from the resulting flat object and
// re-marshal that map (which again sorts keys) to get a stable byte string
// to hash.
func ContentHash(e Element) (string, error) {
	b := e.ElementBase()

	original := b.Tags
	sorted := append([]string(nil), original...)
	sort.Strings(sorted)
	b.Tags = sorted
	raw, err := json.Marshal(e)
	b.Tags = original
	if err != nil {
		return "", err
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	delete(m, "createdAt")
	delete(m, "updatedAt")
	delete(m, "contentHash")

	canon, err := json.Marshal(m)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// RefreshContentHash recomputes and stores the element's content hash,
// returning it.
func RefreshContentHash(e Element) (string, error) {
	h, err := ContentHash(e)
	if err != nil {
		return "", err
	}
	e.ElementBase().ContentHash = h
	return h, nil
}
