package group

import (
	"errors"

	"github.com/congo-pay/tontine/internal/ledger"
)

var (
	// ErrGroupNotFound is returned when the group does not exist.
	ErrGroupNotFound = errors.New("group not found")
	// ErrNotAuthorized signals a caller lacking the required role or ownership.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotAMember signals the caller is not a member of the group.
	ErrNotAMember = errors.New("not a member of this group")
	// ErrAlreadyMember signals a repeated join.
	ErrAlreadyMember = errors.New("user already in group")
	// ErrDuplicateContribution aliases the ledger error so callers can match either.
	ErrDuplicateContribution = ledger.ErrDuplicateContribution
	// ErrTurnNotFound signals there is no turn record for (user, current round).
	ErrTurnNotFound = errors.New("turn not found")
	// ErrNotYourTurn signals the caller does not hold the current turn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrContributionsIncomplete signals the round still has unpaid members.
	ErrContributionsIncomplete = errors.New("contributions for this round are incomplete")
	// ErrInvalidState covers empty rotations, corrupt indexes and closed groups.
	ErrInvalidState = errors.New("invalid group state")
	// ErrVersionConflict signals a concurrent writer updated the group first.
	ErrVersionConflict = errors.New("group was modified concurrently")
	// ErrInvalidInput signals failed request validation.
	ErrInvalidInput = errors.New("invalid input")
)
