package domain

import (
	"strconv"
	"strings"
)

// Selection is an immutable set of selected item ids kept in insertion order.
// Every mutation returns a new Selection; the receiver is never modified, so a
// changed selection can always be told apart from the previous one.
type Selection struct {
	ids []int
}

// NewSelection builds a selection from ids, dropping duplicates.
func NewSelection(ids ...int) Selection {
	var s Selection
	for _, id := range ids {
		if !s.Contains(id) {
			s.ids = append(s.ids, id)
		}
	}
	return s
}

// Toggle removes id if it is selected and appends it otherwise.
// Ids are not checked against the loaded catalog.
func (s Selection) Toggle(id int) Selection {
	next := make([]int, 0, len(s.ids)+1)
	found := false
	for _, v := range s.ids {
		if v == id {
			found = true
			continue
		}
		next = append(next, v)
	}
	if !found {
		next = append(next, id)
	}
	return Selection{ids: next}
}

// ToggleAll applies Toggle for each id from left to right.
func (s Selection) ToggleAll(ids ...int) Selection {
	out := s
	for _, id := range ids {
		out = out.Toggle(id)
	}
	return out
}

// Contains reports whether id is selected.
func (s Selection) Contains(id int) bool {
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

// Len returns the number of selected ids.
func (s Selection) Len() int { return len(s.ids) }

// IDs returns a copy of the selected ids in insertion order.
func (s Selection) IDs() []int {
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}

// Equal compares two selections as sets, ignoring order.
func (s Selection) Equal(other Selection) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for _, v := range s.ids {
		if !other.Contains(v) {
			return false
		}
	}
	return true
}

// Join renders the ids separated by sep, e.g. "1,2" for the multipart items field.
func (s Selection) Join(sep string) string {
	parts := make([]string, len(s.ids))
	for i, v := range s.ids {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}

// ParseSelection parses a comma-separated id list such as "1,2,3".
// Blank entries are skipped.
func ParseSelection(raw string) (Selection, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return Selection{}, NewValidationError("items", "invalid item id "+strconv.Quote(part))
		}
		ids = append(ids, id)
	}
	return NewSelection(ids...), nil
}
