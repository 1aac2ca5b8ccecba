package idgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RootIDPrefix is the fixed prefix for every root element identifier.
const RootIDPrefix = "el"

// DefaultRootIDLength is the base36 suffix length used for new root ids
// absent a caller override; it sits in the middle of the 3..8 range.
const DefaultRootIDLength = 6

var rootIDPattern = regexp.MustCompile(`^el-[a-z0-9]{3,8}$`)

// NewRootID issues a new root identifier deterministically-enough-for-
// uniqueness from the given seed fields. Callers that hit a collision
// (checked against the backend) should retry with an incremented nonce.
func NewRootID(title, description, creator string, now time.Time, nonce int) string {
	return GenerateHashID(RootIDPrefix, title, description, creator, now, DefaultRootIDLength, nonce)
}

// IsValidRootID reports whether s matches the root identifier pattern
// el-[a-z0-9]{3,8}.
func IsValidRootID(s string) bool {
	return rootIDPattern.MatchString(s)
}

// ChildID builds the hierarchical child identifier "parent.<n>".
func ChildID(parentID string, n int) string {
	return fmt.Sprintf("%s.%d", parentID, n)
}

// ParseHierarchicalID splits id into its root and the ordered slice of
// positive-integer path segments appended after the root. For a root id
// with no "." segments, it returns (id, nil, 0).
func ParseHierarchicalID(id string) (root string, segments []int, depth int) {
	parts := strings.Split(id, ".")
	root = parts[0]
	for _, p := range parts[1:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			// Not a well-formed hierarchical segment; stop here and report
			// what was parsed so far rather than erroring, since identifier
			// equality is plain string equality per spec.
			break
		}
		segments = append(segments, n)
	}
	return root, segments, len(segments)
}

// ParentID returns the immediate parent id of a hierarchical child id, or
// ("", false) if id has no parent (it is a root id).
func ParentID(id string) (string, bool) {
	idx := strings.LastIndex(id, ".")
	if idx < 0 {
		return "", false
	}
	return id[:idx], true
}

// IsChildOf reports whether childID is a direct or transitive hierarchical
// child of parentID.
func IsChildOf(childID, parentID string) bool {
	return strings.HasPrefix(childID, parentID+".")
}
