package models

import (
	"encoding/json"
	"time"
)

// Filter is the declarative criteria of a CUSTOM subscription. All clauses are
// optional; an absent clause is vacuously true. Stored as JSON text in the
// subscriptions table and parsed exactly once at the store boundary.
type Filter struct {
	Tags    []string `json:"tags,omitempty"`
	Country string   `json:"country,omitempty"`
	Region  string   `json:"region,omitempty"`
	Source  string   `json:"source,omitempty"`
	City    string   `json:"city,omitempty"`

	StartFrom *time.Time `json:"start_from,omitempty"`
	StartTo   *time.Time `json:"start_to,omitempty"`

	// invalid marks a filter whose stored JSON did not parse. It matches
	// nothing, but the row is kept so the user can see and fix it.
	invalid bool
}

func (f *Filter) Invalid() bool {
	return f != nil && f.invalid
}

// ParseFilter never fails: unparsable JSON yields a filter that matches
// nothing instead of propagating raw text into the matching engine.
func ParseFilter(raw []byte) *Filter {
	if len(raw) == 0 {
		return nil
	}
	var f Filter
	if err := json.Unmarshal(raw, &f); err != nil {
		return &Filter{invalid: true}
	}
	return &f
}

func (f *Filter) MarshalJSONText() ([]byte, error) {
	return json.Marshal(f)
}
