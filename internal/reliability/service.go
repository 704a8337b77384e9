package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/audit"
	"github.com/congo-pay/tontine/internal/group"
	"github.com/congo-pay/tontine/internal/identity"
)

const (
	// TimelyPoints is awarded for a contribution made less than a full day after
	// its due date.
	TimelyPoints = 10
	// LatePoints is deducted for a contribution made after its due date.
	LatePoints = 5

	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidScore  = errors.New("score must not be negative")
)

// Score is the public view of a user's reliability.
type Score struct {
	UserID           string `json:"user_id"`
	Name             string `json:"name"`
	ReliabilityScore int    `json:"reliability_score"`
}

// Report compares the stored score with a full recomputation over the
// user's contribution history.
type Report struct {
	UserID        string `json:"user_id"`
	StoredScore   int    `json:"stored_score"`
	ComputedScore int    `json:"computed_score"`
	Groups        int    `json:"groups"`
	Contributions int    `json:"contributions"`
	Early         int    `json:"early"`
	Late          int    `json:"late"`
	Missed        int    `json:"missed"`
}

// Service applies the incremental scoring policy and answers score queries.
type Service struct {
	users    identity.Repository
	groups   group.Repository
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewService builds a reliability service. groups is only needed by Audit.
func NewService(users identity.Repository, groups group.Repository, recorder audit.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{users: users, groups: groups, recorder: recorder, logger: logger}
}

// AwardTimelyContribution adds points to the user's score. Non-positive
// points fall back to TimelyPoints.
func (s *Service) AwardTimelyContribution(ctx context.Context, userID string, points int) (identity.User, error) {
	if points <= 0 {
		points = TimelyPoints
	}
	return s.users.AdjustScore(ctx, userID, points)
}

// DeductLateContribution removes points from the user's score, never going
// below zero. Non-positive points fall back to LatePoints.
func (s *Service) DeductLateContribution(ctx context.Context, userID string, points int) (identity.User, error) {
	if points <= 0 {
		points = LatePoints
	}
	return s.users.AdjustScore(ctx, userID, -points)
}

// RecordContribution applies the incremental policy for one marked contribution.
func (s *Service) RecordContribution(ctx context.Context, userID string, timely bool) error {
	var (
		user identity.User
		err  error
	)
	if timely {
		user, err = s.AwardTimelyContribution(ctx, userID, TimelyPoints)
	} else {
		user, err = s.DeductLateContribution(ctx, userID, LatePoints)
	}
	if err != nil {
		return fmt.Errorf("adjust reliability: %w", err)
	}
	s.logger.Debug("reliability adjusted",
		slog.String("user_id", userID),
		slog.Bool("timely", timely),
		slog.Int("score", user.ReliabilityScore),
	)
	return nil
}

// Get returns a user's current score.
func (s *Service) Get(ctx context.Context, userID string) (Score, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Score{}, err
	}
	return toScore(user), nil
}

// Leaderboard lists the most reliable users, highest first.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Score, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}
	users, err := s.users.TopByReliability(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Score, 0, len(users))
	for _, u := range users {
		out = append(out, toScore(u))
	}
	return out, nil
}

// SetScore overrides a user's score. Platform admin only.
func (s *Service) SetScore(ctx context.Context, actor access.Actor, userID string, score int) (Score, error) {
	if !access.IsAdmin(actor) {
		return Score{}, ErrNotAuthorized
	}
	if score < 0 {
		return Score{}, ErrInvalidScore
	}
	user, err := s.users.SetScore(ctx, userID, score)
	if err != nil {
		return Score{}, err
	}
	s.logger.Info("reliability score overridden",
		slog.String("user_id", userID),
		slog.Int("score", score),
		slog.String("admin_id", actor.UserID),
	)
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, audit.Event{
			UserID:   actor.UserID,
			Action:   audit.ActionAdminAction,
			Details:  "reliability score override",
			Metadata: map[string]any{"target_user_id": userID, "score": score},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Any("error", err))
		}
	}
	return toScore(user), nil
}

// Audit recomputes the user's score over every group they belong to and
// reports it next to the stored value. Nothing is written. Rounds the user
// was part of that have closed without a payment count as missed.
func (s *Service) Audit(ctx context.Context, actor access.Actor, userID string) (Report, error) {
	if !access.IsAdmin(actor) {
		return Report{}, ErrNotAuthorized
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	groups, err := s.groups.ListByMember(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("list groups: %w", err)
	}

	report := Report{UserID: userID, StoredScore: user.ReliabilityScore, Groups: len(groups)}
	total := baseScore
	for _, g := range groups {
		for _, item := range history(g, userID) {
			delta := entryDelta(item.entry, item.due)
			total += delta
			switch {
			case !item.entry.Contributed:
				report.Missed++
			case delta > 0:
				report.Early++
				report.Contributions++
			case delta < 0:
				report.Late++
				report.Contributions++
			default:
				report.Contributions++
			}
		}
	}
	report.ComputedScore = max(0, total)
	return report, nil
}

type dated struct {
	entry Entry
	due   time.Time
}

// history lists the user's expected contributions in one group, from the
// round they joined up to the current round. The current round only counts
// once paid.
func history(g group.Group, userID string) []dated {
	joined := 0
	for _, t := range g.Turns {
		if t.UserID == userID && (joined == 0 || t.Round < joined) {
			joined = t.Round
		}
	}
	if joined == 0 {
		joined = 1
	}

	var out []dated
	for round := joined; round <= g.CurrentRound; round++ {
		c, ok := g.Contributions.Find(userID, round)
		switch {
		case ok && c.Contributed && c.ContributedAt != nil:
			out = append(out, dated{entry: Entry{Contributed: true, ContributedAt: *c.ContributedAt}, due: c.DueAt})
		case round < g.CurrentRound:
			out = append(out, dated{entry: Entry{}})
		}
	}
	return out
}

func toScore(u identity.User) Score {
	return Score{UserID: u.ID, Name: u.Name, ReliabilityScore: u.ReliabilityScore}
}
