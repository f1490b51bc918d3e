package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poll-api/internal/domain"
)

type PollRepository interface {
	Create(ctx context.Context, poll domain.Poll) error
	GetByID(ctx context.Context, id string) (domain.Poll, error)
	List(ctx context.Context) ([]domain.Poll, error)
	Delete(ctx context.Context, id string) error
	// ApplyVote suma un voto a la opcion y registra el email en una sola transaccion.
	// applied es false si el email ya habia votado; en ese caso nada cambia.
	ApplyVote(ctx context.Context, pollID, optionID, email string) (applied bool, err error)
	// RemoveOption borra la opcion solo si no tiene votos; si tiene, devuelve removed=false y el conteo.
	RemoveOption(ctx context.Context, pollID, optionID string) (removed bool, votes int, err error)
	SavePendingVote(ctx context.Context, vote domain.PendingVote) error
	GetPendingVote(ctx context.Context, pollID string) (domain.PendingVote, error)
	// ApplyPendingVote reclama el voto pendiente (si el secreto sigue vigente) y lo aplica en la
	// misma transaccion. Ante un error el pendiente queda intacto y se puede reintentar.
	ApplyPendingVote(ctx context.Context, vote domain.PendingVote) (applied bool, err error)
}

// ErrPendingVoteClaimed indica que el voto pendiente ya fue usado o reemplazado.
var ErrPendingVoteClaimed = errors.New("pending vote already claimed")

// PgPollRepository implementa PollRepository usando pgxpool.
type PgPollRepository struct {
	pool *pgxpool.Pool
}

func NewPgPollRepository(pool *pgxpool.Pool) *PgPollRepository {
	return &PgPollRepository{pool: pool}
}

func (r *PgPollRepository) Create(ctx context.Context, poll domain.Poll) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertPoll = `
			INSERT INTO polls (id, owner_id, question, created_at)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.Exec(ctx, insertPoll, poll.ID, nullable(poll.OwnerID), poll.Question, poll.CreatedAt); err != nil {
			return err
		}

		const insertOption = `
			INSERT INTO poll_options (id, poll_id, position, label, votes)
			VALUES ($1, $2, $3, $4, $5)
		`
		batch := &pgx.Batch{}
		for i, opt := range poll.Options {
			votes := 0
			if i < len(poll.Votes) {
				votes = poll.Votes[i]
			}
			batch.Queue(insertOption, opt.ID, poll.ID, i, opt.Text, votes)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *PgPollRepository) GetByID(ctx context.Context, id string) (domain.Poll, error) {
	const query = `
		SELECT id, COALESCE(owner_id, ''), question, created_at
		FROM polls
		WHERE id = $1
	`
	var p domain.Poll
	if err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.OwnerID, &p.Question, &p.CreatedAt); err != nil {
		return domain.Poll{}, err
	}

	options, err := r.loadOptions(ctx, []string{p.ID})
	if err != nil {
		return domain.Poll{}, err
	}
	p.Options, p.Votes = splitOptions(options[p.ID])

	voters, err := r.loadVoters(ctx, p.ID)
	if err != nil {
		return domain.Poll{}, err
	}
	p.Voters = voters
	return p, nil
}

func (r *PgPollRepository) List(ctx context.Context) ([]domain.Poll, error) {
	const query = `
		SELECT id, COALESCE(owner_id, ''), question, created_at
		FROM polls
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	polls := []domain.Poll{}
	var ids []string
	for rows.Next() {
		var p domain.Poll
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Question, &p.CreatedAt); err != nil {
			return nil, err
		}
		polls = append(polls, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return polls, nil
	}

	options, err := r.loadOptions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range polls {
		polls[i].Options, polls[i].Votes = splitOptions(options[polls[i].ID])
	}
	return polls, nil
}

type optionRow struct {
	option domain.Option
	votes  int
}

func (r *PgPollRepository) loadOptions(ctx context.Context, pollIDs []string) (map[string][]optionRow, error) {
	const query = `
		SELECT poll_id, id, label, votes
		FROM poll_options
		WHERE poll_id = ANY($1)
		ORDER BY poll_id, position
	`
	rows, err := r.pool.Query(ctx, query, pollIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]optionRow, len(pollIDs))
	for rows.Next() {
		var (
			pollID string
			row    optionRow
		)
		if err := rows.Scan(&pollID, &row.option.ID, &row.option.Text, &row.votes); err != nil {
			return nil, err
		}
		out[pollID] = append(out[pollID], row)
	}
	return out, rows.Err()
}

func (r *PgPollRepository) loadVoters(ctx context.Context, pollID string) ([]string, error) {
	const query = `
		SELECT email FROM poll_voters
		WHERE poll_id = $1
		ORDER BY voted_at
	`
	rows, err := r.pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	voters := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		voters = append(voters, email)
	}
	return voters, rows.Err()
}

func splitOptions(rows []optionRow) ([]domain.Option, []int) {
	options := make([]domain.Option, 0, len(rows))
	votes := make([]int, 0, len(rows))
	for _, row := range rows {
		options = append(options, row.option)
		votes = append(votes, row.votes)
	}
	return options, votes
}

func (r *PgPollRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgPollRepository) ApplyVote(ctx context.Context, pollID, optionID, email string) (bool, error) {
	var applied bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		applied, err = applyVote(ctx, tx, pollID, optionID, email)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// applyVote registra al votante y suma el voto. Si el email ya habia votado no toca el conteo.
func applyVote(ctx context.Context, tx pgx.Tx, pollID, optionID, email string) (bool, error) {
	const insertVoter = `
		INSERT INTO poll_voters (poll_id, email, voted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (poll_id, email) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insertVoter, pollID, email, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	const increment = `
		UPDATE poll_options SET votes = votes + 1
		WHERE poll_id = $1 AND id = $2
	`
	tag, err = tx.Exec(ctx, increment, pollID, optionID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// la opcion desaparecio entre la lectura y el voto; el rollback deshace el insert
		return false, pgx.ErrNoRows
	}
	return true, nil
}

func (r *PgPollRepository) RemoveOption(ctx context.Context, pollID, optionID string) (bool, int, error) {
	var (
		removed bool
		votes   int
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const lock = `
			SELECT votes FROM poll_options
			WHERE poll_id = $1 AND id = $2
			FOR UPDATE
		`
		if err := tx.QueryRow(ctx, lock, pollID, optionID).Scan(&votes); err != nil {
			return err
		}
		if votes > 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM poll_options WHERE poll_id = $1 AND id = $2 AND votes = 0`, pollID, optionID); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return removed, votes, nil
}

func (r *PgPollRepository) SavePendingVote(ctx context.Context, vote domain.PendingVote) error {
	const query = `
		INSERT INTO poll_pending_votes (poll_id, email, option_id, secret, issued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (poll_id)
		DO UPDATE SET
			email = EXCLUDED.email,
			option_id = EXCLUDED.option_id,
			secret = EXCLUDED.secret,
			issued_at = EXCLUDED.issued_at
	`
	_, err := r.pool.Exec(ctx, query, vote.PollID, vote.Email, vote.OptionID, vote.Secret, vote.IssuedAt)
	return err
}

func (r *PgPollRepository) GetPendingVote(ctx context.Context, pollID string) (domain.PendingVote, error) {
	const query = `
		SELECT poll_id, email, option_id, secret, issued_at
		FROM poll_pending_votes
		WHERE poll_id = $1
	`
	var v domain.PendingVote
	err := r.pool.QueryRow(ctx, query, pollID).Scan(&v.PollID, &v.Email, &v.OptionID, &v.Secret, &v.IssuedAt)
	if err != nil {
		return domain.PendingVote{}, err
	}
	return v, nil
}

func (r *PgPollRepository) ApplyPendingVote(ctx context.Context, vote domain.PendingVote) (bool, error) {
	var applied bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const claim = `
			DELETE FROM poll_pending_votes
			WHERE poll_id = $1 AND secret = $2
			RETURNING email, option_id
		`
		var email, optionID string
		if err := tx.QueryRow(ctx, claim, vote.PollID, vote.Secret).Scan(&email, &optionID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPendingVoteClaimed
			}
			return err
		}
		var err error
		// un votante repetido igual consume el pendiente
		applied, err = applyVote(ctx, tx, vote.PollID, optionID, email)
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
