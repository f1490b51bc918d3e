package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"poll-api/internal/domain"
	"poll-api/internal/email"
	"poll-api/internal/repository"
)

type mockUserRepo struct {
	mu           sync.Mutex
	usersByID    map[string]domain.User
	usersByEmail map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersByEmail[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByEmail[email]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) mutate(id string, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(&user)
	user.UpdatedAt = time.Now().UTC()
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) UpdatePendingCode(_ context.Context, id, code string) error {
	return m.mutate(id, func(u *domain.User) { u.PendingCode = code })
}

func (m *mockUserRepo) MarkVerified(_ context.Context, id string) error {
	return m.mutate(id, func(u *domain.User) {
		u.IsVerified = true
		u.PendingCode = ""
	})
}

func (m *mockUserRepo) UpdateSessionToken(_ context.Context, id, token string) error {
	return m.mutate(id, func(u *domain.User) { u.SessionToken = token })
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return m.mutate(id, func(u *domain.User) { u.PasswordHash = passwordHash })
}

func (m *mockUserRepo) SetAdmin(_ context.Context, id string, admin bool) error {
	return m.mutate(id, func(u *domain.User) { u.IsAdmin = admin })
}

// mockPollRepo replica las garantias transaccionales del repo real con un mutex.
type mockPollRepo struct {
	mu      sync.Mutex
	polls   map[string]domain.Poll
	pending map[string]domain.PendingVote

	// applyErr simula un fallo de la transaccion de confirmacion
	applyErr error
}

func newMockPollRepo() *mockPollRepo {
	return &mockPollRepo{
		polls:   make(map[string]domain.Poll),
		pending: make(map[string]domain.PendingVote),
	}
}

func clonePoll(p domain.Poll) domain.Poll {
	p.Options = append([]domain.Option(nil), p.Options...)
	p.Votes = append([]int(nil), p.Votes...)
	p.Voters = append([]string(nil), p.Voters...)
	return p
}

func (m *mockPollRepo) Create(_ context.Context, poll domain.Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls[poll.ID] = clonePoll(poll)
	return nil
}

func (m *mockPollRepo) GetByID(_ context.Context, id string) (domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok {
		return domain.Poll{}, pgx.ErrNoRows
	}
	return clonePoll(p), nil
}

func (m *mockPollRepo) List(_ context.Context) ([]domain.Poll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Poll, 0, len(m.polls))
	for _, p := range m.polls {
		out = append(out, clonePoll(p))
	}
	return out, nil
}

func (m *mockPollRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.polls, id)
	delete(m.pending, id)
	return nil
}

func (m *mockPollRepo) ApplyVote(_ context.Context, pollID, optionID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[pollID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if p.HasVoted(email) {
		return false, nil
	}
	idx := p.IndexOf(optionID)
	if idx < 0 {
		return false, pgx.ErrNoRows
	}
	p.Votes[idx]++
	p.Voters = append(p.Voters, email)
	m.polls[pollID] = p
	return true, nil
}

func (m *mockPollRepo) RemoveOption(_ context.Context, pollID, optionID string) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[pollID]
	if !ok {
		return false, 0, pgx.ErrNoRows
	}
	idx := p.IndexOf(optionID)
	if idx < 0 {
		return false, 0, pgx.ErrNoRows
	}
	if p.Votes[idx] > 0 {
		return false, p.Votes[idx], nil
	}
	p.Options = append(p.Options[:idx], p.Options[idx+1:]...)
	p.Votes = append(p.Votes[:idx], p.Votes[idx+1:]...)
	m.polls[pollID] = p
	return true, 0, nil
}

func (m *mockPollRepo) SavePendingVote(_ context.Context, vote domain.PendingVote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[vote.PollID] = vote
	return nil
}

func (m *mockPollRepo) GetPendingVote(_ context.Context, pollID string) (domain.PendingVote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.pending[pollID]
	if !ok {
		return domain.PendingVote{}, pgx.ErrNoRows
	}
	return v, nil
}

func (m *mockPollRepo) ApplyPendingVote(_ context.Context, vote domain.PendingVote) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return false, m.applyErr
	}
	v, ok := m.pending[vote.PollID]
	if !ok || v.Secret != vote.Secret {
		return false, repository.ErrPendingVoteClaimed
	}
	p, ok := m.polls[vote.PollID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	idx := p.IndexOf(v.OptionID)
	if idx < 0 {
		return false, pgx.ErrNoRows
	}
	delete(m.pending, vote.PollID)
	if p.HasVoted(v.Email) {
		return false, nil
	}
	p.Votes[idx]++
	p.Voters = append(p.Voters, v.Email)
	m.polls[vote.PollID] = p
	return true, nil
}

// captureSender publica cada mensaje en un canal para que el test lo lea sin sleeps.
type captureSender struct {
	sent chan email.Message
	err  error
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(chan email.Message, 16)}
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.sent <- msg
	return c.err
}

func (c *captureSender) next(t *testing.T) email.Message {
	t.Helper()
	select {
	case msg := <-c.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an email to be dispatched")
		return email.Message{}
	}
}

// fixedStrategy emite siempre el mismo codigo, para poder enviarlo desde el test.
type fixedStrategy struct {
	code    string
	expired bool
}

func (f *fixedStrategy) Name() string { return "fixed" }

func (f *fixedStrategy) Issue(_ Target) (Challenge, error) {
	return Challenge{Secret: "secret-" + f.code, Value: f.code}, nil
}

func (f *fixedStrategy) Check(_ Target, stored, submitted string) error {
	if f.expired {
		return ErrVerificationExpired
	}
	if stored != "secret-"+submitted {
		return ErrOTPInvalid
	}
	return nil
}

type allowAll struct{}

func (allowAll) Allow(context.Context, Target) bool { return true }

func newTestVerifier(strategy VerificationStrategy, sender *captureSender) *Verifier {
	notifier := NewNotifier(zap.NewNop(), sender, time.Second)
	return NewVerifier(zap.NewNop(), strategy, notifier, allowAll{})
}
