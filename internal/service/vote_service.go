package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"poll-api/internal/domain"
	"poll-api/internal/email"
	"poll-api/internal/repository"
)

var (
	ErrAlreadyVoted  = errors.New("you have already voted")
	ErrInvalidOption = errors.New("invalid option")
)

// VoteService aplica votos. Con confirm activo, el voto queda pendiente hasta que el
// votante confirma el codigo recibido por email.
type VoteService struct {
	logger   *zap.Logger
	polls    repository.PollRepository
	verifier *Verifier
	confirm  bool
}

func NewVoteService(logger *zap.Logger, polls repository.PollRepository, verifier *Verifier, confirm bool) *VoteService {
	return &VoteService{
		logger:   logger,
		polls:    polls,
		verifier: verifier,
		confirm:  confirm,
	}
}

type CastVoteInput struct {
	PollID string
	// Position es base 1 sobre la lista actual de opciones.
	Position int
	Email    string
	BaseURL  string
}

type VoteResult struct {
	Option  domain.Option
	Pending bool
	Message string
}

func (s *VoteService) CastVote(ctx context.Context, input CastVoteInput) (VoteResult, error) {
	poll, err := loadPoll(ctx, s.polls, input.PollID)
	if err != nil {
		return VoteResult{}, err
	}
	voter := normalizeEmail(input.Email)
	if !isValidEmail(voter) {
		return VoteResult{}, ErrInvalidEmail
	}
	if poll.HasVoted(voter) {
		return VoteResult{}, ErrAlreadyVoted
	}
	option, ok := poll.OptionAt(input.Position)
	if !ok {
		return VoteResult{}, ErrInvalidOption
	}

	if s.confirm {
		return s.holdVote(ctx, poll, option, voter, input.BaseURL)
	}
	return s.apply(ctx, poll.ID, option, voter)
}

// ConfirmVote aplica el voto pendiente de la encuesta. Reclamo y voto van en una sola
// transaccion: un mismo codigo no cuenta dos veces y un fallo interno no pierde el pendiente.
func (s *VoteService) ConfirmVote(ctx context.Context, pollID, submitted, voterEmail, baseURL string) (VoteResult, error) {
	poll, err := loadPoll(ctx, s.polls, pollID)
	if err != nil {
		return VoteResult{}, err
	}
	pending, err := s.polls.GetPendingVote(ctx, poll.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VoteResult{}, ErrOTPNotRequested
		}
		return VoteResult{}, err
	}
	if voterEmail != "" && normalizeEmail(voterEmail) != pending.Email {
		return VoteResult{}, ErrOTPInvalid
	}
	idx := poll.IndexOf(pending.OptionID)
	if idx < 0 {
		return VoteResult{}, ErrInvalidOption
	}
	option := poll.Options[idx]

	target := voteTarget(poll.ID, pending.Email, baseURL)
	persist := s.persistPending(poll.ID, pending.Email, pending.OptionID)
	compose := composeVoteConfirmation(poll, option, pending.Email)
	if err := s.verifier.Confirm(ctx, target, pending.Secret, submitted, persist, compose); err != nil {
		return VoteResult{}, err
	}

	applied, err := s.polls.ApplyPendingVote(ctx, pending)
	if errors.Is(err, repository.ErrPendingVoteClaimed) {
		return VoteResult{}, ErrOTPInvalid
	}
	return s.voteOutcome(poll.ID, option, pending.Email, applied, err)
}

func (s *VoteService) holdVote(ctx context.Context, poll domain.Poll, option domain.Option, voter, baseURL string) (VoteResult, error) {
	target := voteTarget(poll.ID, voter, baseURL)
	persist := s.persistPending(poll.ID, voter, option.ID)
	if err := s.verifier.Issue(ctx, target, persist, composeVoteConfirmation(poll, option, voter)); err != nil {
		return VoteResult{}, err
	}
	return VoteResult{
		Option:  option,
		Pending: true,
		Message: fmt.Sprintf("A confirmation has been sent to %s, confirm it to cast your vote", voter),
	}, nil
}

func (s *VoteService) apply(ctx context.Context, pollID string, option domain.Option, voter string) (VoteResult, error) {
	applied, err := s.polls.ApplyVote(ctx, pollID, option.ID, voter)
	return s.voteOutcome(pollID, option, voter, applied, err)
}

func (s *VoteService) voteOutcome(pollID string, option domain.Option, voter string, applied bool, err error) (VoteResult, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VoteResult{}, ErrInvalidOption
		}
		return VoteResult{}, err
	}
	if !applied {
		return VoteResult{}, ErrAlreadyVoted
	}
	if s.logger != nil {
		s.logger.Info("vote applied", zap.String("poll_id", pollID), zap.String("option_id", option.ID))
	}
	return VoteResult{
		Option:  option,
		Message: fmt.Sprintf("Congratulations %s, you've successfully voted for %s", voter, option.Text),
	}, nil
}

func (s *VoteService) persistPending(pollID, voter, optionID string) PersistFunc {
	return func(ctx context.Context, secret string) error {
		return s.polls.SavePendingVote(ctx, domain.PendingVote{
			PollID:   pollID,
			Email:    voter,
			OptionID: optionID,
			Secret:   secret,
			IssuedAt: time.Now().UTC(),
		})
	}
}

func composeVoteConfirmation(poll domain.Poll, option domain.Option, voter string) ComposeFunc {
	return func(value string) email.Message {
		return email.VoteConfirmationMessage(voter, poll.Question, option.Text, value)
	}
}

func voteTarget(pollID, voter, baseURL string) Target {
	return Target{Kind: TargetVote, ID: pollID, Email: voter, BaseURL: baseURL}
}
