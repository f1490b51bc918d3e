package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poll-api/internal/db"
	"poll-api/internal/domain"
)

// setupTestPool conecta a DATABASE_URL y crea el schema; sin la variable el test se salta.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Ping(ctx, pool); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return pool
}

func createTestPoll(t *testing.T, repo *PgPollRepository, labels ...string) domain.Poll {
	t.Helper()
	poll := domain.Poll{
		ID:        uuid.NewString(),
		Question:  "Color?",
		CreatedAt: time.Now().UTC(),
	}
	for _, label := range labels {
		poll.Options = append(poll.Options, domain.Option{ID: uuid.NewString(), Text: label})
		poll.Votes = append(poll.Votes, 0)
	}
	if err := repo.Create(context.Background(), poll); err != nil {
		t.Fatalf("create poll: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Delete(context.Background(), poll.ID)
	})
	return poll
}

func TestPgPollRepository_ConcurrentSameEmailAppliesOnce(t *testing.T) {
	repo := NewPgPollRepository(setupTestPool(t))
	poll := createTestPoll(t, repo, "Red", "Blue")

	const voters = 20
	var (
		applied atomic.Int32
		wg      sync.WaitGroup
	)
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ApplyVote(context.Background(), poll.ID, poll.Options[0].ID, "a@x.com")
			if err != nil {
				errs <- err
				return
			}
			if ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("apply vote: %v", err)
	}

	if applied.Load() != 1 {
		t.Fatalf("expected exactly one applied vote, got %d", applied.Load())
	}
	got, err := repo.GetByID(context.Background(), poll.ID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if got.Votes[0] != 1 || got.Votes[1] != 0 {
		t.Fatalf("expected tally [1 0], got %v", got.Votes)
	}
	if len(got.Voters) != 1 || got.Voters[0] != "a@x.com" {
		t.Fatalf("expected one recorded voter, got %v", got.Voters)
	}
}

func TestPgPollRepository_ConcurrentDistinctEmailsTally(t *testing.T) {
	repo := NewPgPollRepository(setupTestPool(t))
	poll := createTestPoll(t, repo, "Red", "Blue")

	const voters = 20
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			option := poll.Options[i%2].ID
			if _, err := repo.ApplyVote(context.Background(), poll.ID, option, uuid.NewString()+"@x.com"); err != nil {
				t.Errorf("apply vote: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := repo.GetByID(context.Background(), poll.ID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if got.TotalVotes() != voters || len(got.Voters) != voters {
		t.Fatalf("expected %d votes and voters, got %v / %d", voters, got.Votes, len(got.Voters))
	}
}

func TestPgPollRepository_ApplyVoteMissingOptionRollsBack(t *testing.T) {
	repo := NewPgPollRepository(setupTestPool(t))
	poll := createTestPoll(t, repo, "Red", "Blue")

	_, err := repo.ApplyVote(context.Background(), poll.ID, "missing", "a@x.com")
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
	got, err := repo.GetByID(context.Background(), poll.ID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if len(got.Voters) != 0 {
		t.Fatalf("expected voter insert rolled back, got %v", got.Voters)
	}
	applied, err := repo.ApplyVote(context.Background(), poll.ID, poll.Options[1].ID, "a@x.com")
	if err != nil || !applied {
		t.Fatalf("expected the same email to vote after rollback, got %v %v", applied, err)
	}
}

func TestPgPollRepository_RemoveOption(t *testing.T) {
	repo := NewPgPollRepository(setupTestPool(t))
	poll := createTestPoll(t, repo, "Red", "Blue")

	if _, err := repo.ApplyVote(context.Background(), poll.ID, poll.Options[0].ID, "a@x.com"); err != nil {
		t.Fatalf("apply vote: %v", err)
	}

	removed, votes, err := repo.RemoveOption(context.Background(), poll.ID, poll.Options[0].ID)
	if err != nil {
		t.Fatalf("remove voted option: %v", err)
	}
	if removed || votes != 1 {
		t.Fatalf("expected voted option kept with 1 vote, got removed=%v votes=%d", removed, votes)
	}

	removed, _, err = repo.RemoveOption(context.Background(), poll.ID, poll.Options[1].ID)
	if err != nil || !removed {
		t.Fatalf("expected empty option removed, got %v %v", removed, err)
	}
	if _, _, err := repo.RemoveOption(context.Background(), poll.ID, "missing"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}

	got, err := repo.GetByID(context.Background(), poll.ID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if len(got.Options) != 1 || got.Options[0].ID != poll.Options[0].ID || got.Votes[0] != 1 {
		t.Fatalf("expected only the voted option left, got %+v %v", got.Options, got.Votes)
	}
}

func TestPgPollRepository_ApplyPendingVote(t *testing.T) {
	repo := NewPgPollRepository(setupTestPool(t))
	poll := createTestPoll(t, repo, "Red", "Blue")
	ctx := context.Background()

	pending := domain.PendingVote{
		PollID:   poll.ID,
		Email:    "a@x.com",
		OptionID: poll.Options[1].ID,
		Secret:   "secret-1",
		IssuedAt: time.Now().UTC(),
	}
	if err := repo.SavePendingVote(ctx, pending); err != nil {
		t.Fatalf("save pending: %v", err)
	}
	replaced := pending
	replaced.Secret = "secret-2"
	if err := repo.SavePendingVote(ctx, replaced); err != nil {
		t.Fatalf("replace pending: %v", err)
	}

	if _, err := repo.ApplyPendingVote(ctx, pending); !errors.Is(err, ErrPendingVoteClaimed) {
		t.Fatalf("expected superseded secret rejected, got %v", err)
	}

	var (
		applied atomic.Int32
		claimed atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ApplyPendingVote(ctx, replaced)
			switch {
			case errors.Is(err, ErrPendingVoteClaimed):
				claimed.Add(1)
			case err != nil:
				t.Errorf("apply pending: %v", err)
			case ok:
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	if applied.Load() != 1 || claimed.Load() != 9 {
		t.Fatalf("expected one claim to win, got applied=%d claimed=%d", applied.Load(), claimed.Load())
	}
	if _, err := repo.GetPendingVote(ctx, poll.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pending vote consumed, got %v", err)
	}
	got, err := repo.GetByID(ctx, poll.ID)
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	if got.Votes[1] != 1 {
		t.Fatalf("expected confirmed vote on Blue, got %v", got.Votes)
	}
}
