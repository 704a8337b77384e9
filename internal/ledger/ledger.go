package ledger

import (
	"errors"
	"time"
)

// ErrDuplicateContribution indicates the member already paid for the round and
// the request should be treated as a replay.
var ErrDuplicateContribution = errors.New("contribution already recorded for this round")

// PeriodLayout renders the human month-year label stored on each contribution.
const PeriodLayout = "Jan-2006"

// Contribution records a member's dues payment for one round.
type Contribution struct {
	UserID        string     `json:"user_id"`
	Round         int        `json:"round"`
	Contributed   bool       `json:"contributed"`
	ContributedAt *time.Time `json:"contributed_at,omitempty"`
	DueAt         time.Time  `json:"due_at"`
	Period        string     `json:"period"`
}

// LateAfter is how long past DueAt a payment still counts as made on the due
// date. Lateness is measured in whole days, matching the reliability audit.
const LateAfter = 24 * time.Hour

// Timely reports whether the contribution was made before a full day had
// passed since its due date.
func (c Contribution) Timely() bool {
	return c.Contributed && c.ContributedAt != nil && c.ContributedAt.Before(c.DueAt.Add(LateAfter))
}

// Ledger is the per-group list of contributions. Entries are keyed by
// (user, round); a recorded contribution is never retracted.
type Ledger []Contribution

// PeriodLabel derives the reporting label for t, e.g. "Mar-2026".
func PeriodLabel(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

// Find returns the contribution for (userID, round) if one exists.
func (l Ledger) Find(userID string, round int) (Contribution, bool) {
	for _, c := range l {
		if c.UserID == userID && c.Round == round {
			return c, true
		}
	}
	return Contribution{}, false
}

// Mark appends a paid contribution for (userID, round). It fails with
// ErrDuplicateContribution without touching the ledger if one already exists.
func (l *Ledger) Mark(userID string, round int, now, dueAt time.Time) (Contribution, error) {
	if _, exists := l.Find(userID, round); exists {
		return Contribution{}, ErrDuplicateContribution
	}
	at := now.UTC()
	c := Contribution{
		UserID:        userID,
		Round:         round,
		Contributed:   true,
		ContributedAt: &at,
		DueAt:         dueAt.UTC(),
		Period:        PeriodLabel(at),
	}
	*l = append(*l, c)
	return c, nil
}

// AllCollected reports whether every current member has a paid contribution
// for round. Members who joined after collection started count against the
// total, so a late joiner flips the result back to false until they pay.
func (l Ledger) AllCollected(round int, members []string) bool {
	if len(members) == 0 {
		return false
	}
	paid := make(map[string]bool, len(members))
	for _, c := range l {
		if c.Round == round && c.Contributed {
			paid[c.UserID] = true
		}
	}
	for _, m := range members {
		if !paid[m] {
			return false
		}
	}
	return true
}

// ForRound returns the contributions recorded for round.
func (l Ledger) ForRound(round int) []Contribution {
	out := make([]Contribution, 0)
	for _, c := range l {
		if c.Round == round {
			out = append(out, c)
		}
	}
	return out
}

// ForPeriod returns the contributions whose period label equals period.
func (l Ledger) ForPeriod(period string) []Contribution {
	out := make([]Contribution, 0)
	for _, c := range l {
		if c.Period == period {
			out = append(out, c)
		}
	}
	return out
}

// ForUser returns every contribution made by userID, oldest first.
func (l Ledger) ForUser(userID string) []Contribution {
	out := make([]Contribution, 0)
	for _, c := range l {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (l Ledger) Clone() Ledger {
	if l == nil {
		return nil
	}
	out := make(Ledger, len(l))
	for i, c := range l {
		if c.ContributedAt != nil {
			at := *c.ContributedAt
			c.ContributedAt = &at
		}
		out[i] = c
	}
	return out
}
