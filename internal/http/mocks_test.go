package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"poll-api/internal/domain"
	"poll-api/internal/email"
	"poll-api/internal/repository"
	"poll-api/internal/service"
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

type captureSender struct {
	sent chan email.Message
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(chan email.Message, 16)}
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.sent <- msg
	return nil
}

func (c *captureSender) nextCode(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-c.sent:
		for _, field := range strings.Fields(msg.Body) {
			if len(field) == 4 && strings.Trim(field, "0123456789") == "" {
				return field
			}
		}
		t.Fatalf("no code in %q", msg.Body)
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an email to be dispatched")
	}
	return ""
}

type testApp struct {
	router *gin.Engine
	users  *mockUserRepo
	polls  *mockPollRepo
	sender *captureSender
	jwt    *service.JWTService
}

func newTestApp(t *testing.T, voteConfirmation bool) testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	users := newMockUserRepo()
	polls := newMockPollRepo()
	sender := newCaptureSender()
	jwtSvc := service.NewJWTService("secret", time.Hour)
	notifier := service.NewNotifier(logger, sender, time.Second)
	verifier := service.NewVerifier(logger, service.OTPStrategy{}, notifier, service.NewMemoryIssueLimiter(time.Minute, 3))

	userSvc := service.NewUserService(logger, users, verifier, notifier, jwtSvc, 0)
	pollSvc := service.NewPollService(logger, polls)
	voteSvc := service.NewVoteService(logger, polls, verifier, voteConfirmation)

	router := NewRouter(
		logger,
		jwtSvc,
		5*time.Second,
		[]string{"*"},
		NewUserHandler(logger, userSvc, "http://polls.test"),
		NewPollHandler(logger, pollSvc, voteSvc, "http://polls.test"),
	)
	return testApp{router: router, users: users, polls: polls, sender: sender, jwt: jwtSvc}
}

func (a testApp) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// verifiedSession crea un usuario ya verificado y devuelve un token de sesion valido.
func (a testApp) verifiedSession(t *testing.T) (domain.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := domain.User{
		ID:           "owner-1",
		FullName:     "owner",
		Email:        "owner@example.com",
		PasswordHash: string(hash),
		IsVerified:   true,
	}
	if err := a.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	rec := a.do(t, http.MethodPost, "/login", map[string]string{"email": user.Email, "password": "Passw0rd!"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	return user, resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
