package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/mirror"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/views"
)

// EvaluateAssertions checks every assertion against the session and the
// trace. Returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion, m *mirror.Mirror) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, m); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, m *mirror.Mirror) error {
	switch a.Type {
	case AssertCount:
		return assertCount(a, m)
	case AssertOrder:
		return assertOrder(a, m)
	case AssertRow:
		return assertRow(a, m)
	case AssertTraceCount:
		return assertTraceCount(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertCount(a Assertion, m *mirror.Mirror) error {
	got := map[string]int{
		"store":      m.Store().Len(),
		"challenges": m.Challenges.Len(),
		"duelists":   m.Duelists.Len(),
		"players":    m.Players.Len(),
		"bookmarks":  m.Bookmarks.Len(),
		"rewards":    m.Rewards.Len(),
		"seasons":    m.Seasons.Len(),
		"tokens":     m.Tokens.Len(),
	}[a.View]
	if got != a.Count {
		return fmt.Errorf("%s has %d rows, expected %d", a.View, got, a.Count)
	}
	return nil
}

func assertOrder(a Assertion, m *mirror.Mirror) error {
	dir := views.Ascending
	if a.Dir != "" {
		d, err := views.ParseSortDirection(a.Dir)
		if err != nil {
			return err
		}
		dir = d
	}

	var got []string
	switch a.View {
	case "challenges":
		col := views.ChallengeColumnTime
		if a.Sort != "" {
			c, err := views.ParseChallengeColumn(a.Sort)
			if err != nil {
				return err
			}
			col = c
		}
		f := views.ChallengeFilter{Name: a.Name}
		for _, s := range a.States {
			f.States = append(f.States, model.ParseChallengeState(ir.String(s)))
		}
		got = m.Challenges.Query(f, col, dir)

	case "duelists":
		col := views.DuelistColumnName
		if a.Sort != "" {
			c, err := views.ParseDuelistColumn(a.Sort)
			if err != nil {
				return err
			}
			col = c
		}
		got = m.Duelists.Query(views.DuelistFilter{Name: a.Name}, col, dir)

	case "players":
		col := views.PlayerColumnName
		if a.Sort != "" {
			c, err := views.ParsePlayerColumn(a.Sort)
			if err != nil {
				return err
			}
			col = c
		}
		got = m.Players.Query(views.PlayerFilter{Name: a.Name}, col, dir)
	}

	if !slices.Equal(normalizeIDs(got), normalizeIDs(a.IDs)) {
		return fmt.Errorf("order is %v, expected %v", got, a.IDs)
	}
	return nil
}

func assertRow(a Assertion, m *mirror.Mirror) error {
	id, err := ir.EntityID(ir.String(a.ID))
	if err != nil {
		return fmt.Errorf("bad id %q: %w", a.ID, err)
	}

	var row any
	var found bool
	switch a.View {
	case "challenges":
		row, found = m.Challenges.Get(id)
	case "duelists":
		row, found = m.Duelists.Get(id)
	case "players":
		row, found = m.Players.Get(id)
	}

	if len(a.Expect) == 0 {
		if found {
			return fmt.Errorf("%s row %s exists, expected none", a.View, a.ID)
		}
		return nil
	}
	if !found {
		return fmt.Errorf("%s row %s not found", a.View, a.ID)
	}

	got, err := asMap(row)
	if err != nil {
		return err
	}
	want, err := asMap(a.Expect)
	if err != nil {
		return err
	}
	for field, wantValue := range want {
		gotValue, ok := lookupFold(got, field)
		if !ok {
			return fmt.Errorf("%s row %s has no field %q", a.View, a.ID, field)
		}
		if !reflect.DeepEqual(gotValue, wantValue) {
			return fmt.Errorf("%s row %s: %s = %v, expected %v", a.View, a.ID, field, gotValue, wantValue)
		}
	}
	return nil
}

func assertTraceCount(result *Result, a Assertion) error {
	got := 0
	for _, ev := range result.Trace {
		if ev.Kind == a.Step {
			got++
		}
	}
	if got != a.Count {
		return fmt.Errorf("%d %s events, expected %d", got, a.Step, a.Count)
	}
	return nil
}

// asMap round-trips v through JSON so rows and YAML values compare with
// the same number types.
func asMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	normalized := strings.ReplaceAll(key, "_", "")
	for k, v := range m {
		if strings.EqualFold(k, normalized) {
			return v, true
		}
	}
	return nil, false
}

func normalizeIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if h := ir.FeltHex(ir.String(id)); h != "" {
			out[i] = h
			continue
		}
		out[i] = id
	}
	return out
}
