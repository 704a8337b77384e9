package group

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/audit"
	"github.com/congo-pay/tontine/internal/ledger"
)

const (
	defaultGrace   = 7 * 24 * time.Hour
	defaultRetries = 3
)

// Scorer adjusts a member's reliability when a contribution is recorded.
type Scorer interface {
	RecordContribution(ctx context.Context, userID string, timely bool) error
}

// Options tunes the service.
type Options struct {
	// Grace is the time after a round opens within which a payment is timely.
	Grace time.Duration
	// Retries bounds read-modify-write attempts on version conflicts.
	Retries int
	Clock   func() time.Time
}

// Service orchestrates the rotation engine and contribution ledger over
// persisted groups.
type Service struct {
	repo     Repository
	scorer   Scorer
	recorder audit.Recorder
	logger   *slog.Logger
	grace    time.Duration
	retries  int
	now      func() time.Time
}

// NewService creates a group service. scorer and recorder may be nil.
func NewService(repo Repository, scorer Scorer, recorder audit.Recorder, logger *slog.Logger, opts Options) *Service {
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		repo:     repo,
		scorer:   scorer,
		recorder: recorder,
		logger:   logger,
		grace:    opts.Grace,
		retries:  opts.Retries,
		now:      opts.Clock,
	}
}

// CreateInput captures data required to create a group.
type CreateInput struct {
	Name               string
	ContributionAmount int64
}

// Create seeds a group with the creator as admin, sole member and holder of
// the first turn.
func (s *Service) Create(ctx context.Context, actor access.Actor, input CreateInput) (Group, error) {
	if err := access.RequireVerified(actor); err != nil {
		return Group{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Group{}, fmt.Errorf("group name is required: %w", ErrInvalidInput)
	}
	amount := input.ContributionAmount
	if amount < 0 {
		return Group{}, fmt.Errorf("contribution amount must be positive: %w", ErrInvalidInput)
	}
	if amount == 0 {
		amount = DefaultContributionAmount
	}

	now := s.now()
	g := Group{
		ID:                 uuid.NewString(),
		Name:               name,
		AdminID:            actor.UserID,
		Members:            []string{actor.UserID},
		Turns:              []Turn{{UserID: actor.UserID, Round: 1}},
		Contributions:      ledger.Ledger{},
		CurrentRound:       1,
		CurrentTurnIndex:   0,
		ContributionAmount: amount,
		TotalRounds:        1,
		IsActive:           true,
		CompletedRounds:    []int{},
		RoundStartedAt:     now,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return Group{}, fmt.Errorf("create group: %w", err)
	}

	s.logger.Info("group created", slog.String("group_id", g.ID), slog.String("admin_id", actor.UserID))
	s.emit(ctx, audit.Event{UserID: actor.UserID, GroupID: g.ID, Action: audit.ActionGroupCreated, Details: g.Name})
	return g, nil
}

// Join appends the actor to the rotation with a turn for the current round.
func (s *Service) Join(ctx context.Context, actor access.Actor, groupID string) (Group, error) {
	if err := access.RequireVerified(actor); err != nil {
		return Group{}, err
	}
	g, err := s.mutate(ctx, groupID, func(g *Group) error {
		if !g.IsActive {
			return ErrInvalidState
		}
		if access.IsMember(g.Members, actor.UserID) {
			return ErrAlreadyMember
		}
		g.Members = append(g.Members, actor.UserID)
		if findTurn(g, actor.UserID, g.CurrentRound) < 0 {
			g.Turns = append(g.Turns, Turn{UserID: actor.UserID, Round: g.CurrentRound})
		}
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.emit(ctx, audit.Event{UserID: actor.UserID, GroupID: g.ID, Action: audit.ActionGroupJoined})
	return g, nil
}

// SetContributionAmount changes the dues and resets the expected number of
// rounds to the current member count. Group admin only.
func (s *Service) SetContributionAmount(ctx context.Context, actor access.Actor, groupID string, amount int64) (Group, error) {
	if err := access.RequireVerified(actor); err != nil {
		return Group{}, err
	}
	if amount <= 0 {
		return Group{}, fmt.Errorf("contribution amount must be positive: %w", ErrInvalidInput)
	}
	g, err := s.mutate(ctx, groupID, func(g *Group) error {
		if g.AdminID != actor.UserID {
			return ErrNotAuthorized
		}
		if !g.IsActive {
			return ErrInvalidState
		}
		g.ContributionAmount = amount
		g.TotalRounds = len(g.Members)
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.emit(ctx, audit.Event{
		UserID:   actor.UserID,
		GroupID:  g.ID,
		Action:   audit.ActionContributionAmountSet,
		Metadata: map[string]any{"amount": amount, "total_rounds": g.TotalRounds},
	})
	return g, nil
}

// MarkContributed records the actor's payment for the current round and
// adjusts their reliability score.
func (s *Service) MarkContributed(ctx context.Context, actor access.Actor, groupID string) (Group, ledger.Contribution, error) {
	if err := access.RequireVerified(actor); err != nil {
		return Group{}, ledger.Contribution{}, err
	}
	var marked ledger.Contribution
	g, err := s.mutate(ctx, groupID, func(g *Group) error {
		if !access.IsMember(g.Members, actor.UserID) {
			return ErrNotAMember
		}
		if !g.IsActive {
			return ErrInvalidState
		}
		c, err := g.Contributions.Mark(actor.UserID, g.CurrentRound, s.now(), g.DueAt(s.grace))
		if err != nil {
			return err
		}
		marked = c
		return nil
	})
	if err != nil {
		return Group{}, ledger.Contribution{}, err
	}

	if s.scorer != nil {
		if err := s.scorer.RecordContribution(ctx, actor.UserID, marked.Timely()); err != nil {
			s.logger.Warn("reliability adjustment failed",
				slog.String("user_id", actor.UserID),
				slog.String("group_id", g.ID),
				slog.Any("error", err),
			)
		}
	}
	s.emit(ctx, audit.Event{
		UserID:   actor.UserID,
		GroupID:  g.ID,
		Action:   audit.ActionContributionMarked,
		Details:  marked.Period,
		Metadata: map[string]any{"round": marked.Round, "timely": marked.Timely()},
	})
	return g, marked, nil
}

// ReceiveTurn releases the pot to the current turn holder once the round is
// fully collected, then moves the rotation on.
func (s *Service) ReceiveTurn(ctx context.Context, actor access.Actor, groupID string) (Group, error) {
	if err := access.RequireVerified(actor); err != nil {
		return Group{}, err
	}
	var round int
	g, err := s.mutate(ctx, groupID, func(g *Group) error {
		if !access.IsMember(g.Members, actor.UserID) {
			return ErrNotAMember
		}
		if !g.IsActive {
			return ErrInvalidState
		}
		if err := CanReceive(g, actor.UserID); err != nil {
			return err
		}
		now := s.now()
		round = g.CurrentRound
		if err := MarkReceived(g, actor.UserID, now); err != nil {
			return err
		}
		if err := AdvanceTurn(g, now); err != nil {
			return err
		}
		ensureTurn(g)
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.emit(ctx, audit.Event{
		UserID:   actor.UserID,
		GroupID:  g.ID,
		Action:   audit.ActionTurnReceived,
		Details:  "round " + strconv.Itoa(round),
		Metadata: map[string]any{"round": round, "amount": g.ContributionAmount * int64(len(g.Members))},
	})
	return g, nil
}

// AdvanceTurn moves the rotation on without a receipt. Group admin only.
func (s *Service) AdvanceTurn(ctx context.Context, actor access.Actor, groupID string) (Group, error) {
	if err := access.RequireVerified(actor); err != nil {
		return Group{}, err
	}
	g, err := s.mutate(ctx, groupID, func(g *Group) error {
		if g.AdminID != actor.UserID {
			return ErrNotAuthorized
		}
		if !g.IsActive {
			return ErrInvalidState
		}
		if err := AdvanceTurn(g, s.now()); err != nil {
			return err
		}
		ensureTurn(g)
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	holder, _ := CurrentTurnUser(&g)
	s.emit(ctx, audit.Event{
		UserID:   actor.UserID,
		GroupID:  g.ID,
		Action:   audit.ActionTurnAdvanced,
		Metadata: map[string]any{"round": g.CurrentRound, "turn_index": g.CurrentTurnIndex, "holder": holder},
	})
	return g, nil
}

// Close deactivates the group. Group admin only.
func (s *Service) Close(ctx context.Context, actor access.Actor, groupID string) (Group, error) {
	if err := access.RequireVerified(actor); err != nil {
		return Group{}, err
	}
	g, err := s.mutate(ctx, groupID, func(g *Group) error {
		if g.AdminID != actor.UserID {
			return ErrNotAuthorized
		}
		if !g.IsActive {
			return ErrInvalidState
		}
		g.IsActive = false
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.emit(ctx, audit.Event{UserID: actor.UserID, GroupID: g.ID, Action: audit.ActionGroupClosed})
	return g, nil
}

// Get returns a group visible to the actor.
func (s *Service) Get(ctx context.Context, actor access.Actor, groupID string) (Group, error) {
	g, err := s.repo.Get(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if err := canRead(actor, g); err != nil {
		return Group{}, err
	}
	return g, nil
}

// List returns every group for platform admins, otherwise the actor's groups.
func (s *Service) List(ctx context.Context, actor access.Actor) ([]Group, error) {
	if access.IsAdmin(actor) {
		return s.repo.List(ctx)
	}
	return s.repo.ListByMember(ctx, actor.UserID)
}

// CurrentTurn reports the rotation position of a group.
func (s *Service) CurrentTurn(ctx context.Context, actor access.Actor, groupID string) (TurnStatus, error) {
	g, err := s.Get(ctx, actor, groupID)
	if err != nil {
		return TurnStatus{}, err
	}
	holder, ok := CurrentTurnUser(&g)
	if !ok {
		return TurnStatus{}, ErrInvalidState
	}
	status := TurnStatus{
		GroupID:   g.ID,
		Round:     g.CurrentRound,
		TurnIndex: g.CurrentTurnIndex,
		UserID:    holder,
		Collected: g.Contributions.AllCollected(g.CurrentRound, g.Members),
	}
	if i := findTurn(&g, holder, g.CurrentRound); i >= 0 {
		status.HasReceived = g.Turns[i].HasReceived
	}
	return status, nil
}

// ContributionsForPeriod lists contributions whose label matches period.
func (s *Service) ContributionsForPeriod(ctx context.Context, actor access.Actor, groupID, period string) ([]ledger.Contribution, error) {
	g, err := s.Get(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	return g.Contributions.ForPeriod(period), nil
}

// ContributionsForRound lists contributions made for round.
func (s *Service) ContributionsForRound(ctx context.Context, actor access.Actor, groupID string, round int) ([]ledger.Contribution, error) {
	g, err := s.Get(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	return g.Contributions.ForRound(round), nil
}

// mutate runs a read-modify-write cycle against one group document. apply
// works on a private copy, so a failing apply persists nothing. Version
// conflicts are retried from a fresh read.
func (s *Service) mutate(ctx context.Context, groupID string, apply func(g *Group) error) (Group, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		current, err := s.repo.Get(ctx, groupID)
		if err != nil {
			return Group{}, err
		}
		next := current.Clone()
		if err := apply(&next); err != nil {
			return Group{}, err
		}
		next.UpdatedAt = s.now()

		saved, err := s.repo.Update(ctx, next)
		if errors.Is(err, ErrVersionConflict) {
			s.logger.Debug("group version conflict, retrying",
				slog.String("group_id", groupID),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return Group{}, fmt.Errorf("update group: %w", err)
		}
		return saved, nil
	}
	return Group{}, ErrVersionConflict
}

func (s *Service) emit(ctx context.Context, e audit.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, e); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", e.Action), slog.Any("error", err))
	}
}

func canRead(actor access.Actor, g Group) error {
	if access.IsAdmin(actor) || access.IsMember(g.Members, actor.UserID) {
		return nil
	}
	return ErrNotAuthorized
}
