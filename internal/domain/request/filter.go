package request

import (
	"sort"
	"strings"
	"time"
)

// StatusSet is an unordered set of statuses. The empty set places no restriction.
type StatusSet map[Status]struct{}

func NewStatusSet(statuses ...Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return set
}

func (s StatusSet) Has(status Status) bool {
	_, ok := s[status]
	return ok
}

// Toggle adds status when absent and removes it when present.
func (s StatusSet) Toggle(status Status) {
	if s.Has(status) {
		delete(s, status)
		return
	}
	s[status] = struct{}{}
}

// Sorted returns members in workflow order.
func (s StatusSet) Sorted() []Status {
	out := make([]Status, 0, len(s))
	for _, status := range AllStatuses {
		if s.Has(status) {
			out = append(out, status)
		}
	}
	if len(out) == len(s) {
		return out
	}

	// Unknown values still need a stable position.
	extra := make([]string, 0)
	for status := range s {
		known := false
		for _, candidate := range AllStatuses {
			if candidate == status {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, string(status))
		}
	}
	sort.Strings(extra)
	for _, value := range extra {
		out = append(out, Status(value))
	}
	return out
}

func (s StatusSet) Clone() StatusSet {
	out := make(StatusSet, len(s))
	for status := range s {
		out[status] = struct{}{}
	}
	return out
}

type FilterState struct {
	SearchText string
	Statuses   StatusSet
	FromDate   *time.Time
	ToDate     *time.Time
}

// IsZero reports whether the state places no restriction at all.
func (f FilterState) IsZero() bool {
	return strings.TrimSpace(f.SearchText) == "" &&
		len(f.Statuses) == 0 &&
		f.FromDate == nil &&
		f.ToDate == nil
}

// Filter narrows list by state in a fixed order: text search, status set,
// from date, to date. No stage reorders records. An inverted date range is
// applied as given and yields an empty result.
func Filter(list []ProjectedRequest, state FilterState) []ProjectedRequest {
	if state.IsZero() {
		return list
	}

	query := strings.ToLower(strings.TrimSpace(state.SearchText))
	var lowerBound, upperBound time.Time
	if state.FromDate != nil {
		lowerBound = StartOfDay(*state.FromDate)
	}
	if state.ToDate != nil {
		upperBound = EndOfDayExclusive(*state.ToDate)
	}

	out := make([]ProjectedRequest, 0, len(list))
	for _, item := range list {
		if query != "" && !MatchesSearch(item, query) {
			continue
		}
		if len(state.Statuses) > 0 && !state.Statuses.Has(item.Status) {
			continue
		}
		if state.FromDate != nil && item.CreatedOn.Before(lowerBound) {
			continue
		}
		if state.ToDate != nil && !item.CreatedOn.Before(upperBound) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// MatchesSearch does a case-insensitive substring match of query against the
// request number and the resolved location and category names.
func MatchesSearch(item ProjectedRequest, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}

	fields := []string{
		item.RequestNo,
		item.BuildingName,
		item.RoomName,
		item.CategoryName,
		item.SubcategoryName,
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	// "REQ-003" finds REQ-00030: both sides are compared without zero padding.
	return strings.Contains(stripZeroPadding(strings.ToLower(item.RequestNo)), stripZeroPadding(query))
}

// stripZeroPadding drops the leading zeros of every digit run. A run of only
// zeros keeps one.
func stripZeroPadding(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] < '0' || s[i] > '9' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		digits := strings.TrimLeft(s[i:j], "0")
		if digits == "" {
			digits = "0"
		}
		b.WriteString(digits)
		i = j
	}
	return b.String()
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDayExclusive is midnight of the calendar day after t.
func EndOfDayExclusive(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}
