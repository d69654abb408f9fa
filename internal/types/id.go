package types

import (
	"fmt"
	"regexp"
)

// MaxIDLength is the hard bound from the identifier format contract:
// "<type>-<base36hash>@<8hex>", total length bounded at 40 characters.
const MaxIDLength = 40

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9]*-[0-9a-z]+@[0-9a-f]{8}$`)

// ID is a validated, prefix-scoped, hash-suffixed entity identifier of
// the form "<prefix>-<hash>@<short>". It is a distinct value type so
// repositories take typed IDs instead of raw strings, eliminating
// accidental interpolation into SQL.
type ID string

// ParseID validates s and returns it as an ID, or an error if s does
// not match the "<prefix>-<hash>@<short>" format or exceeds MaxIDLength.
func ParseID(s string) (ID, error) {
	if len(s) == 0 {
		return "", fmt.Errorf("id: empty")
	}
	if len(s) > MaxIDLength {
		return "", fmt.Errorf("id: %q exceeds %d characters", s, MaxIDLength)
	}
	if !idPattern.MatchString(s) {
		return "", fmt.Errorf("id: %q does not match <prefix>-<hash>@<short> format", s)
	}
	return ID(s), nil
}

// String returns the raw string form of the ID.
func (id ID) String() string { return string(id) }

// Empty reports whether the ID has not been set.
func (id ID) Empty() bool { return id == "" }
