package views

import (
	"cmp"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/duelsync/internal/ir"
)

// SortDirection orders query results.
type SortDirection string

const (
	Ascending  SortDirection = "ascending"
	Descending SortDirection = "descending"
)

// ParseSortDirection accepts "ascending"/"asc" and "descending"/"desc".
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(s) {
	case "ascending", "asc":
		return Ascending, nil
	case "descending", "desc":
		return Descending, nil
	}
	return "", fmt.Errorf("unknown sort direction %q", s)
}

// Switch returns the opposite direction.
func (d SortDirection) Switch() SortDirection {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// apply orients an ascending comparison.
func (d SortDirection) apply(c int) int {
	if d == Descending {
		return -c
	}
	return c
}

// Page slices ids for paged display. pageSize <= 0 returns everything on
// one page. pageCount is ceil(len/pageSize).
func Page(ids []string, pageSize, pageIndex int) (page []string, pageCount int) {
	if pageSize <= 0 {
		if len(ids) == 0 {
			return ids, 0
		}
		return ids, 1
	}
	pageCount = (len(ids) + pageSize - 1) / pageSize
	start := pageIndex * pageSize
	if pageIndex < 0 || start >= len(ids) {
		return []string{}, pageCount
	}
	end := min(start+pageSize, len(ids))
	return ids[start:end], pageCount
}

// nameMatcher is a case-insensitive substring test. An empty needle
// matches everything.
type nameMatcher struct {
	fold   cases.Caser
	needle string
}

func newNameMatcher(needle string) *nameMatcher {
	m := &nameMatcher{fold: cases.Fold()}
	m.needle = m.fold.String(strings.TrimSpace(needle))
	return m
}

func (m *nameMatcher) empty() bool {
	return m.needle == ""
}

func (m *nameMatcher) match(names ...string) bool {
	if m.needle == "" {
		return true
	}
	for _, n := range names {
		if n != "" && strings.Contains(m.fold.String(n), m.needle) {
			return true
		}
	}
	return false
}

// newCollator orders display names the way a reader expects
// ("alice" < "Bob" < "carol"). Collators are not safe for concurrent use;
// create one per sort.
func newCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase)
}

// idSet normalizes felt ids so "0x07" and "7" are one member.
type idSet map[string]bool

func newIDSet(ids []string) idSet {
	if ids == nil {
		return nil
	}
	set := make(idSet, len(ids))
	for _, id := range ids {
		set[normalizeID(id)] = true
	}
	return set
}

func (s idSet) has(id string) bool {
	return s[normalizeID(id)]
}

func normalizeID(id string) string {
	if h := ir.FeltHex(ir.String(id)); h != "" {
		return h
	}
	return strings.ToLower(id)
}

func compareStrings(a, b string) int {
	return cmp.Compare(a, b)
}

// compareFelts orders ids by numeric value, so "0x2" sorts before "0x10".
// Ids that are not felts sort last, by text.
func compareFelts(a, b string) int {
	x, okA := ir.Felt(ir.String(a))
	y, okB := ir.Felt(ir.String(b))
	switch {
	case okA && okB:
		return x.Cmp(y)
	case okA:
		return -1
	case okB:
		return 1
	}
	return compareStrings(strings.ToLower(a), strings.ToLower(b))
}
