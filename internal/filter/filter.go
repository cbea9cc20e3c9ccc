// Package filter evaluates subscription filters against events. It is pure:
// no I/O, deterministic, and total — malformed stored filters match nothing.
package filter

import (
	"strings"

	"calendar-mirror/internal/models"
)

// BroadFilterThreshold is the fraction of published events above which a
// filter subscription is considered too broad and the user is pointed at
// FULL mode instead.
const BroadFilterThreshold = 0.5

// Matches reports whether ev satisfies every clause of f. A nil filter
// matches everything (it is the FULL case); an invalid one matches nothing.
func Matches(ev models.Event, f *models.Filter) bool {
	if f == nil {
		return true
	}
	if f.Invalid() {
		return false
	}

	if len(f.Tags) > 0 {
		if !hasAnyTag(ev.Tags, f.Tags) {
			return false
		}
	}

	if f.Country != "" && ev.Country != f.Country {
		return false
	}
	if f.Region != "" && ev.Region != f.Region {
		return false
	}
	if f.Source != "" && ev.Source != f.Source {
		return false
	}

	if f.City != "" {
		if !strings.Contains(strings.ToLower(ev.City), strings.ToLower(f.City)) {
			return false
		}
	}

	// date range is inclusive and bounds the event's own span
	if f.StartFrom != nil && ev.EndsAt.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && ev.StartsAt.After(*f.StartTo) {
		return false
	}

	return true
}

func hasAnyTag(eventTags, wanted []string) bool {
	if len(eventTags) == 0 {
		return false
	}
	for _, w := range wanted {
		for _, t := range eventTags {
			if t == w {
				return true
			}
		}
	}
	return false
}

// MatchingEvents returns the subset of events that satisfy f, preserving order.
func MatchingEvents(events []models.Event, f *models.Filter) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if Matches(ev, f) {
			out = append(out, ev)
		}
	}
	return out
}

// Stats summarizes how broad a filter is over a collection of events.
type Stats struct {
	Matched int     `json:"matched"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

func (s Stats) TooBroad() bool {
	return s.Total > 0 && float64(s.Matched)/float64(s.Total) >= BroadFilterThreshold
}

func ComputeStats(events []models.Event, f *models.Filter) Stats {
	st := Stats{Total: len(events)}
	for _, ev := range events {
		if Matches(ev, f) {
			st.Matched++
		}
	}
	if st.Total > 0 {
		st.Percent = float64(st.Matched) * 100 / float64(st.Total)
	}
	return st
}
