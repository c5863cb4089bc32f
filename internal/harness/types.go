package harness

import (
	"github.com/roach88/duelsync/internal/views"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step      int    `json:"step"`
	Kind      string `json:"kind"`
	Purpose   string `json:"purpose,omitempty"`
	Entities  int    `json:"entities"`
	Pages     int    `json:"pages,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// State is the content of every view after the last step.
type State struct {
	StoreEntities int                               `json:"store_entities"`
	Challenges    []views.Entry[views.ChallengeRow] `json:"challenges"`
	Duelists      []views.Entry[views.DuelistRow]   `json:"duelists"`
	Players       []views.Entry[views.PlayerRow]    `json:"players"`
	Bookmarks     []views.Entry[views.BookmarkRow]  `json:"bookmarks"`
	Rewards       []views.Entry[views.RewardRow]    `json:"rewards"`
	Seasons       []views.Entry[views.SeasonRow]    `json:"seasons,omitempty"`
	Tokens        []views.Entry[views.TokenRow]     `json:"tokens,omitempty"`
}

// Result is the outcome of one scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
	State  State        `json:"state"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
