package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"poll-api/internal/domain"
	"poll-api/internal/repository"
)

var (
	ErrPollNotFound   = errors.New("poll not found")
	ErrOptionNotFound = errors.New("option not found")
	ErrInvalidPoll    = errors.New("invalid poll data")
	ErrOptionHasVotes = errors.New("cannot delete option with existing votes")
)

const minPollOptions = 2

// PollService cubre el ciclo de vida de las encuestas; los votos viven en VoteService.
type PollService struct {
	logger *zap.Logger
	polls  repository.PollRepository
}

func NewPollService(logger *zap.Logger, polls repository.PollRepository) *PollService {
	return &PollService{logger: logger, polls: polls}
}

type CreatePollInput struct {
	OwnerID  string
	Question string
	Options  []string
}

// CreatePoll descarta opciones vacias y exige al menos dos. Los conteos empiezan en cero.
func (s *PollService) CreatePoll(ctx context.Context, input CreatePollInput) (domain.Poll, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return domain.Poll{}, ErrInvalidPoll
	}
	options := make([]domain.Option, 0, len(input.Options))
	for _, text := range input.Options {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		options = append(options, domain.Option{ID: uuid.NewString(), Text: text})
	}
	if len(options) < minPollOptions {
		return domain.Poll{}, ErrInvalidPoll
	}

	poll := domain.Poll{
		ID:        uuid.NewString(),
		OwnerID:   strings.TrimSpace(input.OwnerID),
		Question:  question,
		Options:   options,
		Votes:     make([]int, len(options)),
		Voters:    []string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.polls.Create(ctx, poll); err != nil {
		return domain.Poll{}, err
	}
	if s.logger != nil {
		s.logger.Info("poll created", zap.String("poll_id", poll.ID), zap.Int("options", len(options)))
	}
	return poll, nil
}

func (s *PollService) GetPoll(ctx context.Context, pollID string) (domain.Poll, error) {
	return loadPoll(ctx, s.polls, pollID)
}

func (s *PollService) ListPolls(ctx context.Context) ([]domain.Poll, error) {
	return s.polls.List(ctx)
}

func (s *PollService) DeletePoll(ctx context.Context, pollID string) error {
	if strings.TrimSpace(pollID) == "" {
		return ErrPollNotFound
	}
	if err := s.polls.Delete(ctx, pollID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPollNotFound
		}
		return err
	}
	return nil
}

// RemoveOption solo borra opciones sin votos. Si tiene votos devuelve ErrOptionHasVotes
// junto con el conteo y la encuesta queda intacta.
func (s *PollService) RemoveOption(ctx context.Context, pollID, optionID string) (int, error) {
	if _, err := loadPoll(ctx, s.polls, pollID); err != nil {
		return 0, err
	}
	removed, votes, err := s.polls.RemoveOption(ctx, pollID, optionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOptionNotFound
		}
		return 0, err
	}
	if !removed {
		return votes, ErrOptionHasVotes
	}
	return 0, nil
}

type WinnerResult struct {
	Winner *domain.Option
	Votes  int
	Tie    bool
}

func (s *PollService) Winner(ctx context.Context, pollID string) (WinnerResult, error) {
	poll, err := loadPoll(ctx, s.polls, pollID)
	if err != nil {
		return WinnerResult{}, err
	}
	winner, votes, tie := poll.Winner()
	return WinnerResult{Winner: winner, Votes: votes, Tie: tie}, nil
}

func loadPoll(ctx context.Context, polls repository.PollRepository, pollID string) (domain.Poll, error) {
	if strings.TrimSpace(pollID) == "" {
		return domain.Poll{}, ErrPollNotFound
	}
	poll, err := polls.GetByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Poll{}, ErrPollNotFound
		}
		return domain.Poll{}, err
	}
	return poll, nil
}
