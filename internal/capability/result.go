package capability

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResult is returned when names and outcomes differ in length.
var ErrMalformedResult = errors.New("malformed result")

// Platform grant codes as delivered by permission-result callbacks.
const (
	GrantCodeGranted = 0
	GrantCodeDenied  = -1
)

// ResultSet is the immutable outcome of one resolved request.
type ResultSet struct {
	names    []string
	outcomes map[string]bool
}

// NewResultSet pairs names with outcomes by position.
// Repeated names keep the last outcome seen.
func NewResultSet(names []string, granted []bool) (ResultSet, error) {
	if len(names) != len(granted) {
		return ResultSet{}, fmt.Errorf("%w: %d names, %d outcomes", ErrMalformedResult, len(names), len(granted))
	}

	rs := ResultSet{
		names:    make([]string, 0, len(names)),
		outcomes: make(map[string]bool, len(names)),
	}
	for i, name := range names {
		n, err := Normalize(name)
		if err != nil {
			return ResultSet{}, fmt.Errorf("%w: names[%d]: %v", ErrMalformedResult, i, err)
		}
		if _, seen := rs.outcomes[n]; !seen {
			rs.names = append(rs.names, n)
		}
		rs.outcomes[n] = granted[i]
	}
	return rs, nil
}

// FromGrantCodes builds a ResultSet from platform grant codes.
// Only GrantCodeGranted counts as granted; every other code is a denial.
func FromGrantCodes(names []string, codes []int) (ResultSet, error) {
	if len(names) != len(codes) {
		return ResultSet{}, fmt.Errorf("%w: %d names, %d grant codes", ErrMalformedResult, len(names), len(codes))
	}
	granted := make([]bool, len(codes))
	for i, c := range codes {
		granted[i] = c == GrantCodeGranted
	}
	return NewResultSet(names, granted)
}

// IsGranted reports whether name was granted. Unknown names are not granted.
func (r ResultSet) IsGranted(name string) bool {
	granted, _ := r.Outcome(name)
	return granted
}

// Outcome returns the outcome for name and whether name is part of the result.
func (r ResultSet) Outcome(name string) (granted bool, ok bool) {
	n, err := Normalize(name)
	if err != nil {
		return false, false
	}
	granted, ok = r.outcomes[n]
	return granted, ok
}

// AllGranted reports whether every capability in the result was granted.
// An empty result is not considered granted.
func (r ResultSet) AllGranted() bool {
	if len(r.names) == 0 {
		return false
	}
	for _, n := range r.names {
		if !r.outcomes[n] {
			return false
		}
	}
	return true
}

// Granted returns the granted names in result order.
func (r ResultSet) Granted() []string { return r.filter(true) }

// Denied returns the denied names in result order.
func (r ResultSet) Denied() []string { return r.filter(false) }

func (r ResultSet) filter(want bool) []string {
	var out []string
	for _, n := range r.names {
		if r.outcomes[n] == want {
			out = append(out, n)
		}
	}
	return out
}

// Names returns the capability names in result order.
func (r ResultSet) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of distinct capabilities in the result.
func (r ResultSet) Len() int { return len(r.names) }

// Key returns the canonical key of the capabilities in the result.
func (r ResultSet) Key() string {
	return Set(r.names).Key()
}

// Map returns a copy of the outcomes keyed by name.
func (r ResultSet) Map() map[string]bool {
	out := make(map[string]bool, len(r.outcomes))
	for k, v := range r.outcomes {
		out[k] = v
	}
	return out
}

// String renders the result as "NAME=granted, NAME=denied".
func (r ResultSet) String() string {
	parts := make([]string, len(r.names))
	for i, n := range r.names {
		state := "denied"
		if r.outcomes[n] {
			state = "granted"
		}
		parts[i] = n + "=" + state
	}
	return strings.Join(parts, ", ")
}
