package group

import (
	"fmt"
	"time"
)

// CurrentTurnUser returns the member whose turn it is. ok is false when the
// group has no members or the index is out of range.
func CurrentTurnUser(g *Group) (string, bool) {
	if len(g.Members) == 0 || g.CurrentTurnIndex < 0 || g.CurrentTurnIndex >= len(g.Members) {
		return "", false
	}
	return g.Members[g.CurrentTurnIndex], true
}

// AdvanceTurn moves the pointer one step. Wrapping back to the first member
// closes the round and opens the next one. Each call moves exactly one step,
// so callers gate it themselves.
func AdvanceTurn(g *Group, now time.Time) error {
	n := len(g.Members)
	if n == 0 {
		return fmt.Errorf("advance turn on empty group: %w", ErrInvalidState)
	}
	if g.CurrentTurnIndex < 0 || g.CurrentTurnIndex >= n {
		return fmt.Errorf("turn index %d out of range for %d members: %w", g.CurrentTurnIndex, n, ErrInvalidState)
	}
	if g.CurrentRound < 1 {
		return fmt.Errorf("round %d: %w", g.CurrentRound, ErrInvalidState)
	}

	g.CurrentTurnIndex = (g.CurrentTurnIndex + 1) % n
	if g.CurrentTurnIndex == 0 {
		g.CompletedRounds = append(g.CompletedRounds, g.CurrentRound)
		g.CurrentRound++
		g.RoundStartedAt = now.UTC()
	}
	return nil
}

// MarkReceived flags the turn of (userID, current round) as received. A turn
// that was already received is left untouched.
func MarkReceived(g *Group, userID string, now time.Time) error {
	i := findTurn(g, userID, g.CurrentRound)
	if i < 0 {
		return ErrTurnNotFound
	}
	if g.Turns[i].HasReceived {
		return nil
	}
	at := now.UTC()
	g.Turns[i].HasReceived = true
	g.Turns[i].ReceivedAt = &at
	return nil
}

// CanReceive enforces the ordering rule for releasing the pot: the caller
// must hold the current turn and every member must have paid this round.
func CanReceive(g *Group, userID string) error {
	holder, ok := CurrentTurnUser(g)
	if !ok {
		return ErrInvalidState
	}
	if holder != userID {
		return ErrNotYourTurn
	}
	if !g.Contributions.AllCollected(g.CurrentRound, g.Members) {
		return ErrContributionsIncomplete
	}
	return nil
}

// ensureTurn appends a turn record for the current holder in the current
// round when one is missing, keeping exactly one turn per (user, round).
func ensureTurn(g *Group) {
	holder, ok := CurrentTurnUser(g)
	if !ok {
		return
	}
	if findTurn(g, holder, g.CurrentRound) >= 0 {
		return
	}
	g.Turns = append(g.Turns, Turn{UserID: holder, Round: g.CurrentRound})
}

func findTurn(g *Group, userID string, round int) int {
	for i, t := range g.Turns {
		if t.UserID == userID && t.Round == round {
			return i
		}
	}
	return -1
}
