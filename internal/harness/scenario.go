package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/duelsync/internal/fixture"
	"github.com/roach88/duelsync/internal/mirror"
)

// Scenario is one synchronization run against a fresh local indexer.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// TableID scopes the challenge hydration and the live feed.
	TableID string `yaml:"table_id,omitempty"`

	// PageSize and Limit tune every fetch (0 = session defaults).
	PageSize int `yaml:"page_size,omitempty"`
	Limit    int `yaml:"limit,omitempty"`

	// Seed is written to the indexer before the first step.
	Seed []fixture.Record `yaml:"seed,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one session operation. Exactly one field must be set.
type Step struct {
	// Hydrate fetches the named purposes concurrently; "default" expands
	// to the startup set.
	Hydrate []string `yaml:"hydrate,omitempty"`

	// FetchDuelists fetches duelists referenced by cached challenges.
	FetchDuelists bool `yaml:"fetch_duelists,omitempty"`

	// FetchChallenges fetches the duels cached duelists are in.
	FetchChallenges bool `yaml:"fetch_challenges,omitempty"`

	// FetchRewards fetches the rewards of these duelists; "all" stands
	// for every cached duelist.
	FetchRewards []string `yaml:"fetch_rewards,omitempty"`

	// FetchTokens fetches the configuration of these token contracts.
	FetchTokens []string `yaml:"fetch_tokens,omitempty"`

	// Follow opens the live subscription for the scenario table.
	Follow bool `yaml:"follow,omitempty"`

	// Write appends ledger writes. While following, the step waits until
	// the writes the feed matches have been merged.
	Write []fixture.Record `yaml:"write,omitempty"`

	// Reset clears the session.
	Reset bool `yaml:"reset,omitempty"`
}

// Step kinds.
const (
	StepHydrate         = "hydrate"
	StepFetchDuelists   = "fetch_duelists"
	StepFetchChallenges = "fetch_challenges"
	StepFetchRewards    = "fetch_rewards"
	StepFetchTokens     = "fetch_tokens"
	StepFollow          = "follow"
	StepWrite           = "write"
	StepReset           = "reset"
)

// Kind names the operation of the step, or "" when none or several
// fields are set.
func (s Step) Kind() string {
	var kinds []string
	if len(s.Hydrate) > 0 {
		kinds = append(kinds, StepHydrate)
	}
	if s.FetchDuelists {
		kinds = append(kinds, StepFetchDuelists)
	}
	if s.FetchChallenges {
		kinds = append(kinds, StepFetchChallenges)
	}
	if len(s.FetchRewards) > 0 {
		kinds = append(kinds, StepFetchRewards)
	}
	if len(s.FetchTokens) > 0 {
		kinds = append(kinds, StepFetchTokens)
	}
	if s.Follow {
		kinds = append(kinds, StepFollow)
	}
	if len(s.Write) > 0 {
		kinds = append(kinds, StepWrite)
	}
	if s.Reset {
		kinds = append(kinds, StepReset)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion checks the session state after the last step.
type Assertion struct {
	// Type is one of count, order, row, trace_count.
	Type string `yaml:"type"`

	// View is challenges, duelists, players, bookmarks, rewards, seasons,
	// tokens or store.
	View string `yaml:"view,omitempty"`

	// Count is the expected number of rows (count) or steps (trace_count).
	Count int `yaml:"count,omitempty"`

	// Sort, Dir and the filters select the ordering checked by order.
	Sort   string   `yaml:"sort,omitempty"`
	Dir    string   `yaml:"dir,omitempty"`
	Name   string   `yaml:"name,omitempty"`
	States []string `yaml:"states,omitempty"`
	IDs    []string `yaml:"ids,omitempty"`

	// ID is the domain id of the row checked by row: duel id, duelist id
	// or player address.
	ID string `yaml:"id,omitempty"`

	// Expect is a subset of row fields. Field names match
	// case-insensitively. An empty Expect asserts the row is absent.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Step is the step kind counted by trace_count.
	Step string `yaml:"step,omitempty"`
}

// Assertion types.
const (
	AssertCount      = "count"
	AssertOrder      = "order"
	AssertRow        = "row"
	AssertTraceCount = "trace_count"
)

var (
	knownViews     = []string{"challenges", "duelists", "players", "bookmarks", "rewards", "seasons", "tokens", "store"}
	orderableViews = []string{"challenges", "duelists", "players"}
	purposes       = []string{
		"default",
		mirror.PurposeChallenges,
		mirror.PurposeDuelists,
		mirror.PurposePlayers,
		mirror.PurposeBookmarks,
		mirror.PurposeRewards,
		mirror.PurposeSeasons,
	}
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.PageSize < 0 {
		return fmt.Errorf("page_size must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Kind() == "" {
			return fmt.Errorf("steps[%d]: exactly one of hydrate, fetch_duelists, fetch_challenges, fetch_rewards, fetch_tokens, follow, write, reset is required", i)
		}
		for _, p := range step.Hydrate {
			if !slices.Contains(purposes, p) {
				return fmt.Errorf("steps[%d]: unknown purpose %q", i, p)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCount:
		if !slices.Contains(knownViews, a.View) {
			return fmt.Errorf("assertions[%d]: unknown view %q", index, a.View)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertOrder:
		if !slices.Contains(orderableViews, a.View) {
			return fmt.Errorf("assertions[%d]: view %q has no ordering", index, a.View)
		}
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ids is required for order", index)
		}
	case AssertRow:
		if !slices.Contains(orderableViews, a.View) {
			return fmt.Errorf("assertions[%d]: view %q has no row lookup", index, a.View)
		}
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for row", index)
		}
	case AssertTraceCount:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
