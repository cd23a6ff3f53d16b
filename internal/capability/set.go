package capability

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Delimiter joins normalized names into a canonical key.
// It is never valid inside a capability name.
const Delimiter = "|"

// ErrInvalidName is returned for empty names or names containing Delimiter.
var ErrInvalidName = errors.New("invalid capability name")

// ErrEmptySet is returned when a request names no capabilities.
var ErrEmptySet = errors.New("capability set is empty")

// Set is an ordered, duplicate-free list of capability names.
// The order is the order the first caller asked in; it is what gets sent to the
// platform. Equality between sets is decided by Key, never by order.
type Set []string

// NewSet validates and normalizes names, keeping first-seen order and dropping repeats.
func NewSet(names ...string) (Set, error) {
	if len(names) == 0 {
		return nil, ErrEmptySet
	}

	seen := make(map[string]struct{}, len(names))
	set := make(Set, 0, len(names))
	for i, name := range names {
		n, err := Normalize(name)
		if err != nil {
			return nil, fmt.Errorf("names[%d]: %w", i, err)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		set = append(set, n)
	}
	return set, nil
}

// MustSet is like NewSet but panics on error.
// Use only in tests or with literal names.
func MustSet(names ...string) Set {
	s, err := NewSet(names...)
	if err != nil {
		panic(err)
	}
	return s
}

// Normalize returns the NFC form of name, or ErrInvalidName.
func Normalize(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.Contains(n, Delimiter) {
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidName, n, Delimiter)
	}
	return n, nil
}

// Key returns the canonical key of the set.
func (s Set) Key() string {
	sorted := make([]string, len(s))
	copy(sorted, s)
	sort.Strings(sorted)
	return strings.Join(sorted, Delimiter)
}

// Names returns a copy of the names in request order.
func (s Set) Names() []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Contains reports whether the set names capability.
func (s Set) Contains(name string) bool {
	n := norm.NFC.String(name)
	for _, have := range s {
		if have == n {
			return true
		}
	}
	return false
}

// Key derives the canonical key for a list of names.
// Input order and repeated names do not affect the result.
func Key(names ...string) (string, error) {
	s, err := NewSet(names...)
	if err != nil {
		return "", err
	}
	return s.Key(), nil
}

// SplitKey returns the sorted names encoded in a canonical key.
func SplitKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, Delimiter)
}
