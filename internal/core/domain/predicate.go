package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PredicateKey is the metadata key under which the vector index
// surfaces a candidate's relevance predicate.
const PredicateKey = "query_must"

// integerPattern matches integer tokens in a query, including
// negative numbers.
var integerPattern = regexp.MustCompile(`-?\d+`)

// IntRange is an inclusive integer range requirement.
type IntRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Predicate is a declarative rule, attached to a candidate at index
// time, stating which query terms must be present for the candidate
// to be considered relevant. All present operators are combined with
// AND logic; a zero-value predicate is always satisfied.
type Predicate struct {
	// ContainOneOf is an AND of ORs: every group must have at least
	// one term present in the query.
	ContainOneOf [][]string `json:"contain_one_of,omitempty"`

	// ContainAllOf requires every listed term to appear in the query.
	ContainAllOf []string `json:"contain_all_of,omitempty"`

	// Contain requires a single term to appear in the query.
	Contain string `json:"contain,omitempty"`

	// ContainRange requires at least one integer in the query to fall
	// within the inclusive range.
	ContainRange *IntRange `json:"contain_range,omitempty"`
}

// Satisfies reports whether the query meets the predicate's
// requirements. Matching is case-insensitive substring matching
// throughout. A nil predicate is always satisfied.
//
// Operators are evaluated in order: ContainOneOf, ContainAllOf,
// Contain, ContainRange, short-circuiting on the first failure.
func (p *Predicate) Satisfies(query string) bool {
	if p == nil {
		return true
	}

	lower := strings.ToLower(query)

	if !p.satisfiesOneOf(lower) {
		return false
	}
	if !p.satisfiesAllOf(lower) {
		return false
	}
	if !p.satisfiesContain(lower) {
		return false
	}
	return p.satisfiesRange(query)
}

// satisfiesOneOf checks the AND-of-ORs operator. An empty term group
// can never match, so its presence makes the predicate unsatisfiable.
func (p *Predicate) satisfiesOneOf(lowerQuery string) bool {
	for _, group := range p.ContainOneOf {
		matched := false
		for _, term := range group {
			if strings.Contains(lowerQuery, strings.ToLower(term)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (p *Predicate) satisfiesAllOf(lowerQuery string) bool {
	for _, term := range p.ContainAllOf {
		if !strings.Contains(lowerQuery, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

func (p *Predicate) satisfiesContain(lowerQuery string) bool {
	if p.Contain == "" {
		return true
	}
	return strings.Contains(lowerQuery, strings.ToLower(p.Contain))
}

// satisfiesRange extracts all integer tokens from the query and
// accepts if any falls within [Min, Max].
func (p *Predicate) satisfiesRange(query string) bool {
	if p.ContainRange == nil {
		return true
	}

	for _, token := range integerPattern.FindAllString(query, -1) {
		n, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		if n >= p.ContainRange.Min && n <= p.ContainRange.Max {
			return true
		}
	}
	return false
}

// IsZero reports whether the predicate declares no requirements.
func (p *Predicate) IsZero() bool {
	return p == nil ||
		(len(p.ContainOneOf) == 0 && len(p.ContainAllOf) == 0 &&
			p.Contain == "" && p.ContainRange == nil)
}

// ParsePredicate decodes a predicate from index metadata. The value
// may be a JSON string (how scalar-only metadata stores encode it), a
// raw JSON byte slice, or an already-decoded object. A nil or empty
// value yields a nil predicate.
//
// Callers must fail open on error: treat the candidate as having no
// predicate and log a warning rather than dropping it.
func ParsePredicate(raw any) (*Predicate, error) {
	if raw == nil {
		return nil, nil
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" || v == "null" {
			return nil, nil
		}
		data = []byte(v)
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		data = v
	case map[string]any:
		if len(v) == 0 {
			return nil, nil
		}
		var err error
		data, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPredicate, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformedPredicate, raw)
	}

	var p Predicate
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPredicate, err)
	}

	if p.ContainRange != nil && p.ContainRange.Min > p.ContainRange.Max {
		return nil, fmt.Errorf("%w: range min %d exceeds max %d",
			ErrMalformedPredicate, p.ContainRange.Min, p.ContainRange.Max)
	}

	if p.IsZero() {
		return nil, nil
	}
	return &p, nil
}
