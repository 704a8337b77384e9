package group

import (
	"time"

	"github.com/congo-pay/tontine/internal/ledger"
)

// DefaultContributionAmount applies when a group is created without an amount.
const DefaultContributionAmount int64 = 100

// Turn records a member's eligibility to receive the pot in a given round.
// It is immutable once HasReceived is set.
type Turn struct {
	UserID      string     `json:"user_id"`
	Round       int        `json:"round"`
	HasReceived bool       `json:"has_received"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
}

// Group is a rotating savings group. It is persisted and updated as a single
// document guarded by Version.
type Group struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	AdminID            string        `json:"admin_id"`
	Members            []string      `json:"members"`
	Turns              []Turn        `json:"turns"`
	Contributions      ledger.Ledger `json:"contributions"`
	CurrentRound       int           `json:"current_round"`
	CurrentTurnIndex   int           `json:"current_turn_index"`
	ContributionAmount int64         `json:"contribution_amount"`
	TotalRounds        int           `json:"total_rounds"`
	IsActive           bool          `json:"is_active"`
	CompletedRounds    []int         `json:"completed_rounds"`
	RoundStartedAt     time.Time     `json:"round_started_at"`
	Version            int64         `json:"version"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TurnStatus summarises whose turn it is and whether the pot can be released.
type TurnStatus struct {
	GroupID     string `json:"group_id"`
	Round       int    `json:"round"`
	TurnIndex   int    `json:"turn_index"`
	UserID      string `json:"user_id"`
	HasReceived bool   `json:"has_received"`
	Collected   bool   `json:"contributions_collected"`
}

// Clone returns a deep copy of the group.
func (g Group) Clone() Group {
	out := g
	out.Members = append([]string(nil), g.Members...)
	out.CompletedRounds = append([]int{}, g.CompletedRounds...)
	out.Contributions = g.Contributions.Clone()
	if g.Turns != nil {
		out.Turns = make([]Turn, len(g.Turns))
		for i, t := range g.Turns {
			if t.ReceivedAt != nil {
				at := *t.ReceivedAt
				t.ReceivedAt = &at
			}
			out.Turns[i] = t
		}
	}
	return out
}

// DueAt is the expected contribution date for the current round.
func (g Group) DueAt(grace time.Duration) time.Time {
	return g.RoundStartedAt.Add(grace)
}
