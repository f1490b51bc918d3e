package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"poll-api/internal/domain"
)

// ErrDuplicateEmail se devuelve cuando el indice unico de email rechaza el insert.
var ErrDuplicateEmail = errors.New("email already registered")

const uniqueViolation = "23505"

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdatePendingCode(ctx context.Context, id, code string) error
	MarkVerified(ctx context.Context, id string) error
	UpdateSessionToken(ctx context.Context, id, token string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetAdmin(ctx context.Context, id string, admin bool) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, full_name, email, phone_number, password_hash, is_verified, is_admin, pending_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FullName,
		user.Email,
		user.PhoneNumber,
		user.PasswordHash,
		user.IsVerified,
		user.IsAdmin,
		nullable(user.PendingCode),
		user.CreatedAt,
		user.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

const selectUser = `
	SELECT id, full_name, email, phone_number, password_hash, is_verified, is_admin, pending_code, session_token, created_at, updated_at
	FROM users
`

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email = $1`, email)
}

func (r *PgUserRepository) getOne(ctx context.Context, query string, arg string) (domain.User, error) {
	var (
		u            domain.User
		pendingCode  sql.NullString
		sessionToken sql.NullString
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PhoneNumber,
		&u.PasswordHash,
		&u.IsVerified,
		&u.IsAdmin,
		&pendingCode,
		&sessionToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.PendingCode = pendingCode.String
	u.SessionToken = sessionToken.String

	polls, err := r.ownedPolls(ctx, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	u.Polls = polls
	return u, nil
}

func (r *PgUserRepository) ownedPolls(ctx context.Context, userID string) ([]string, error) {
	const query = `
		SELECT id FROM polls
		WHERE owner_id = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	polls := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		polls = append(polls, id)
	}
	return polls, rows.Err()
}

func (r *PgUserRepository) UpdatePendingCode(ctx context.Context, id, code string) error {
	return r.update(ctx, `UPDATE users SET pending_code = $2, updated_at = $3 WHERE id = $1`, id, nullable(code), time.Now().UTC())
}

// MarkVerified marca el email como verificado y descarta el codigo pendiente.
func (r *PgUserRepository) MarkVerified(ctx context.Context, id string) error {
	return r.update(ctx, `UPDATE users SET is_verified = TRUE, pending_code = NULL, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
}

func (r *PgUserRepository) UpdateSessionToken(ctx context.Context, id, token string) error {
	return r.update(ctx, `UPDATE users SET session_token = $2, updated_at = $3 WHERE id = $1`, id, nullable(token), time.Now().UTC())
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, time.Now().UTC())
}

func (r *PgUserRepository) SetAdmin(ctx context.Context, id string, admin bool) error {
	return r.update(ctx, `UPDATE users SET is_admin = $2, updated_at = $3 WHERE id = $1`, id, admin, time.Now().UTC())
}

func (r *PgUserRepository) update(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
