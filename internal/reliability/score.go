package reliability

import (
	"math"
	"time"
)

const (
	baseScore     = 100
	earlyBonus    = 5
	latePerDay    = 10
	missedPenalty = 50
)

// Entry is one expected contribution in a member's history.
type Entry struct {
	Contributed   bool
	ContributedAt time.Time
}

// CalculateScore recomputes a reliability score from scratch: every entry
// starts from a base of 100, early payments earn a bonus, late payments lose
// points per whole day late and missed payments lose a fixed penalty. The
// result is never negative.
func CalculateScore(history []Entry, expected time.Time) int {
	total := baseScore
	for _, e := range history {
		total += entryDelta(e, expected)
	}
	return max(0, total)
}

func entryDelta(e Entry, expected time.Time) int {
	if !e.Contributed {
		return -missedPenalty
	}
	days := int(math.Floor(e.ContributedAt.Sub(expected).Hours() / 24))
	switch {
	case days < 0:
		return earlyBonus
	case days == 0:
		return 0
	default:
		return -latePerDay * days
	}
}
