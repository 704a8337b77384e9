package group

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/tontine/internal/access"
	"github.com/congo-pay/tontine/internal/audit"
	"github.com/congo-pay/tontine/internal/logging"
)

type recordedScore struct {
	userID string
	timely bool
}

type testScorer struct {
	mu    sync.Mutex
	calls []recordedScore
	err   error
}

func (s *testScorer) RecordContribution(_ context.Context, userID string, timely bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, recordedScore{userID: userID, timely: timely})
	return s.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *Service
	repo   Repository
	scorer *testScorer
	events audit.Store
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   NewMemoryRepository(),
		scorer: &testScorer{},
		events: audit.NewMemoryStore(),
		clock:  &testClock{now: t0},
	}
	f.svc = NewService(f.repo, f.scorer, audit.NewPublisher(f.events), logging.Discard(), Options{
		Grace:   72 * time.Hour,
		Retries: 50,
		Clock:   f.clock.Now,
	})
	return f
}

func verified() access.Actor {
	return access.Actor{UserID: uuid.NewString(), Role: access.RoleMember, KYCStatus: access.KYCVerified}
}

func TestCreateSeedsAdminAndFirstTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := verified()

	g, err := f.svc.Create(ctx, admin, CreateInput{Name: "  Family savings "})
	require.NoError(t, err)
	require.Equal(t, "Family savings", g.Name)
	require.Equal(t, admin.UserID, g.AdminID)
	require.Equal(t, []string{admin.UserID}, g.Members)
	require.Equal(t, []Turn{{UserID: admin.UserID, Round: 1}}, g.Turns)
	require.Equal(t, 1, g.CurrentRound)
	require.Equal(t, 0, g.CurrentTurnIndex)
	require.Equal(t, DefaultContributionAmount, g.ContributionAmount)
	require.True(t, g.IsActive)
	require.Empty(t, g.CompletedRounds)

	stored, err := f.repo.Get(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, g.ID, stored.ID)

	events, err := f.events.ListByGroup(ctx, g.ID, audit.Page{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionGroupCreated, events[0].Action)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := access.Actor{UserID: uuid.NewString(), Role: access.RoleMember, KYCStatus: access.KYCPending}
	_, err := f.svc.Create(ctx, pending, CreateInput{Name: "x"})
	require.ErrorIs(t, err, access.ErrKYCRequired)

	_, err = f.svc.Create(ctx, verified(), CreateInput{Name: "   "})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Create(ctx, verified(), CreateInput{Name: "x", ContributionAmount: -5})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, bob := verified(), verified()

	g, err := f.svc.Create(ctx, admin, CreateInput{Name: "circle"})
	require.NoError(t, err)

	g, err = f.svc.Join(ctx, bob, g.ID)
	require.NoError(t, err)
	require.Equal(t, []string{admin.UserID, bob.UserID}, g.Members)
	require.Contains(t, g.Turns, Turn{UserID: bob.UserID, Round: 1})

	_, err = f.svc.Join(ctx, bob, g.ID)
	require.ErrorIs(t, err, ErrAlreadyMember)

	_, err = f.svc.Join(ctx, access.Actor{UserID: "someone", KYCStatus: access.KYCRejected}, g.ID)
	require.ErrorIs(t, err, access.ErrKYCRequired)

	_, err = f.svc.Join(ctx, verified(), uuid.NewString())
	require.ErrorIs(t, err, ErrGroupNotFound)

	stored, err := f.repo.Get(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.Members, 2, "failed joins must not persist anything")
}

func TestSetContributionAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, bob := verified(), verified()

	g, _ := f.svc.Create(ctx, admin, CreateInput{Name: "circle"})
	_, _ = f.svc.Join(ctx, bob, g.ID)

	_, err := f.svc.SetContributionAmount(ctx, bob, g.ID, 500)
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.svc.SetContributionAmount(ctx, admin, g.ID, 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	g, err = f.svc.SetContributionAmount(ctx, admin, g.ID, 500)
	require.NoError(t, err)
	require.EqualValues(t, 500, g.ContributionAmount)
	require.Equal(t, 2, g.TotalRounds)
}

func TestMarkContributed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, bob, outsider := verified(), verified(), verified()

	g, _ := f.svc.Create(ctx, admin, CreateInput{Name: "circle"})
	_, _ = f.svc.Join(ctx, bob, g.ID)

	_, _, err := f.svc.MarkContributed(ctx, outsider, g.ID)
	require.ErrorIs(t, err, ErrNotAMember)

	g, c, err := f.svc.MarkContributed(ctx, admin, g.ID)
	require.NoError(t, err)
	require.Equal(t, 1, c.Round)
	require.Equal(t, "Feb-2026", c.Period)
	require.True(t, c.Timely())
	require.Len(t, g.Contributions, 1)

	_, _, err = f.svc.MarkContributed(ctx, admin, g.ID)
	require.ErrorIs(t, err, ErrDuplicateContribution)
	stored, _ := f.repo.Get(ctx, g.ID)
	require.Len(t, stored.Contributions, 1)

	f.clock.Advance(96 * time.Hour)
	_, late, err := f.svc.MarkContributed(ctx, bob, g.ID)
	require.NoError(t, err)
	require.False(t, late.Timely())

	require.Equal(t, []recordedScore{
		{userID: admin.UserID, timely: true},
		{userID: bob.UserID, timely: false},
	}, f.scorer.calls)
}

func TestMarkContributedSurvivesScorerAndAuditFailures(t *testing.T) {
	repo := NewMemoryRepository()
	scorer := &testScorer{err: errors.New("users table unavailable")}
	svc := NewService(repo, scorer, failingRecorder{}, logging.Discard(), Options{Clock: func() time.Time { return t0 }})
	ctx := context.Background()
	admin := verified()

	g, err := svc.Create(ctx, admin, CreateInput{Name: "circle"})
	require.NoError(t, err)
	_, _, err = svc.MarkContributed(ctx, admin, g.ID)
	require.NoError(t, err)

	stored, _ := repo.Get(ctx, g.ID)
	require.Len(t, stored.Contributions, 1)
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, audit.Event) error {
	return errors.New("audit sink down")
}

func TestTwoMemberRotationScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := verified(), verified()

	g, err := f.svc.Create(ctx, alice, CreateInput{Name: "duo"})
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, bob, g.ID)
	require.NoError(t, err)

	g, _, err = f.svc.MarkContributed(ctx, alice, g.ID)
	require.NoError(t, err)
	require.False(t, g.Contributions.AllCollected(g.CurrentRound, g.Members))

	_, err = f.svc.ReceiveTurn(ctx, alice, g.ID)
	require.ErrorIs(t, err, ErrContributionsIncomplete)

	g, _, err = f.svc.MarkContributed(ctx, bob, g.ID)
	require.NoError(t, err)
	require.True(t, g.Contributions.AllCollected(g.CurrentRound, g.Members))

	_, err = f.svc.ReceiveTurn(ctx, bob, g.ID)
	require.ErrorIs(t, err, ErrNotYourTurn)

	g, err = f.svc.ReceiveTurn(ctx, alice, g.ID)
	require.NoError(t, err)
	require.Equal(t, 1, g.CurrentTurnIndex)
	require.Equal(t, 1, g.CurrentRound)
	require.True(t, g.Turns[0].HasReceived)

	f.clock.Advance(24 * time.Hour)
	g, err = f.svc.ReceiveTurn(ctx, bob, g.ID)
	require.NoError(t, err)
	require.Equal(t, 0, g.CurrentTurnIndex)
	require.Equal(t, 2, g.CurrentRound)
	require.Equal(t, []int{1}, g.CompletedRounds)
	require.True(t, g.RoundStartedAt.Equal(t0.Add(24*time.Hour)))

	// The next holder gets a turn for the new round and must wait for dues.
	require.Contains(t, g.Turns, Turn{UserID: alice.UserID, Round: 2})
	_, err = f.svc.ReceiveTurn(ctx, alice, g.ID)
	require.ErrorIs(t, err, ErrContributionsIncomplete)

	status, err := f.svc.CurrentTurn(ctx, alice, g.ID)
	require.NoError(t, err)
	require.Equal(t, TurnStatus{GroupID: g.ID, Round: 2, TurnIndex: 0, UserID: alice.UserID}, status)

	events, err := f.events.ListByAction(ctx, audit.ActionTurnReceived, audit.Page{})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestLateJoinerBlocksReceive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := verified(), verified(), verified()

	g, _ := f.svc.Create(ctx, alice, CreateInput{Name: "trio"})
	_, _ = f.svc.Join(ctx, bob, g.ID)
	_, _, _ = f.svc.MarkContributed(ctx, alice, g.ID)
	g, _, _ = f.svc.MarkContributed(ctx, bob, g.ID)
	require.True(t, g.Contributions.AllCollected(1, g.Members))

	g, err := f.svc.Join(ctx, carol, g.ID)
	require.NoError(t, err)
	require.False(t, g.Contributions.AllCollected(1, g.Members))

	_, err = f.svc.ReceiveTurn(ctx, alice, g.ID)
	require.ErrorIs(t, err, ErrContributionsIncomplete)
}

func TestAdvanceTurnIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, bob := verified(), verified()

	g, _ := f.svc.Create(ctx, admin, CreateInput{Name: "circle"})
	_, _ = f.svc.Join(ctx, bob, g.ID)

	_, err := f.svc.AdvanceTurn(ctx, bob, g.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)

	g, err = f.svc.AdvanceTurn(ctx, admin, g.ID)
	require.NoError(t, err)
	require.Equal(t, 1, g.CurrentTurnIndex)

	g, err = f.svc.AdvanceTurn(ctx, admin, g.ID)
	require.NoError(t, err)
	require.Equal(t, 0, g.CurrentTurnIndex)
	require.Equal(t, 2, g.CurrentRound)
	require.Contains(t, g.Turns, Turn{UserID: admin.UserID, Round: 2})
}

func TestFailedReceivePersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := verified()

	g, _ := f.svc.Create(ctx, admin, CreateInput{Name: "solo"})
	before, _ := f.repo.Get(ctx, g.ID)

	_, err := f.svc.ReceiveTurn(ctx, admin, g.ID)
	require.ErrorIs(t, err, ErrContributionsIncomplete)

	after, _ := f.repo.Get(ctx, g.ID)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, before.Turns, after.Turns)
}

func TestClosedGroupRejectsMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin, bob := verified(), verified()

	g, _ := f.svc.Create(ctx, admin, CreateInput{Name: "circle"})

	_, err := f.svc.Close(ctx, bob, g.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)

	unverified := admin
	unverified.KYCStatus = access.KYCRejected
	_, err = f.svc.Close(ctx, unverified, g.ID)
	require.ErrorIs(t, err, access.ErrKYCRequired)
	stored, _ := f.repo.Get(ctx, g.ID)
	require.True(t, stored.IsActive)

	g, err = f.svc.Close(ctx, admin, g.ID)
	require.NoError(t, err)
	require.False(t, g.IsActive)

	_, err = f.svc.Join(ctx, bob, g.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	_, _, err = f.svc.MarkContributed(ctx, admin, g.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.AdvanceTurn(ctx, admin, g.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = f.svc.Close(ctx, admin, g.ID)
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Get(ctx, admin, g.ID)
	require.NoError(t, err, "reads keep working on closed groups")
}

func TestReadAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, outsider := verified(), verified(), verified()
	platformAdmin := access.Actor{UserID: uuid.NewString(), Role: access.RoleAdmin}

	g1, _ := f.svc.Create(ctx, alice, CreateInput{Name: "one"})
	f.clock.Advance(time.Minute)
	g2, _ := f.svc.Create(ctx, bob, CreateInput{Name: "two"})

	_, err := f.svc.Get(ctx, outsider, g1.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)
	_, err = f.svc.Get(ctx, platformAdmin, g1.ID)
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, g1.ID, mine[0].ID)

	all, err := f.svc.List(ctx, platformAdmin)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, g2.ID, all[0].ID, "newest first")

	_, _, _ = f.svc.MarkContributed(ctx, alice, g1.ID)
	byPeriod, err := f.svc.ContributionsForPeriod(ctx, alice, g1.ID, "Feb-2026")
	require.NoError(t, err)
	require.Len(t, byPeriod, 1)
	byRound, err := f.svc.ContributionsForRound(ctx, alice, g1.ID, 2)
	require.NoError(t, err)
	require.Empty(t, byRound)
	_, err = f.svc.ContributionsForPeriod(ctx, outsider, g1.ID, "Feb-2026")
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestConcurrentJoinsAllLand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := verified()
	g, _ := f.svc.Create(ctx, admin, CreateInput{Name: "crowd"})

	const joiners = 20
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Join(ctx, verified(), g.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("join failed: %v", err)
	}

	stored, err := f.repo.Get(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.Members, joiners+1)
	require.Len(t, stored.Turns, joiners+1)
	require.EqualValues(t, joiners+1, stored.Version)
}

func TestConcurrentDuplicateContributionsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := verified()
	g, _ := f.svc.Create(ctx, admin, CreateInput{Name: "race"})

	const attempts = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.MarkContributed(ctx, admin, g.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrDuplicateContribution):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, attempts-1, dups)
	stored, _ := f.repo.Get(ctx, g.ID)
	require.Len(t, stored.Contributions, 1)
}

type conflictingRepository struct {
	Repository
	updates int
}

func (r *conflictingRepository) Update(context.Context, Group) (Group, error) {
	r.updates++
	return Group{}, ErrVersionConflict
}

func TestMutateGivesUpAfterRetries(t *testing.T) {
	repo := &conflictingRepository{Repository: NewMemoryRepository()}
	svc := NewService(repo, nil, nil, nil, Options{Retries: 4})
	ctx := context.Background()
	admin := verified()

	g, err := svc.Create(ctx, admin, CreateInput{Name: "busy"})
	require.NoError(t, err)

	_, err = svc.Join(ctx, verified(), g.ID)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.Equal(t, 4, repo.updates)
}

func TestMemoryRepositoryCompareAndSwap(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	g := Group{ID: "g", Members: []string{"a"}, Version: 1}
	require.NoError(t, repo.Create(ctx, g))
	require.Error(t, repo.Create(ctx, g))

	saved, err := repo.Update(ctx, g)
	require.NoError(t, err)
	require.EqualValues(t, 2, saved.Version)

	_, err = repo.Update(ctx, g)
	require.ErrorIs(t, err, ErrVersionConflict, "stale version must be rejected")

	_, err = repo.Update(ctx, Group{ID: "missing"})
	require.ErrorIs(t, err, ErrGroupNotFound)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, Group{ID: fmt.Sprintf("x%d", i), Members: []string{"b"}}))
	}
	byMember, err := repo.ListByMember(ctx, "b")
	require.NoError(t, err)
	require.Len(t, byMember, 3)
}
