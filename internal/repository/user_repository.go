package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/render-tgm/server/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `
	id, name, email, password_hash, role, profile_photo, registered_at,
	reset_token_hash, reset_token_expires
`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.ProfilePhoto,
		&user.RegisteredAt,
		&user.ResetTokenHash,
		&user.ResetTokenExpires,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func (r *UserRepository) Create(ctx context.Context, name, email string, passwordHash []byte, role models.Role) (models.User, error) {
	const query = `
		INSERT INTO users (name, email, password_hash, role, registered_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, registered_at
	`

	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}

	row := r.pool.QueryRow(ctx, query, name, email, passwordHash, role)
	if err := row.Scan(&user.ID, &user.RegisteredAt); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, name, email string) error {
	const query = `UPDATE users SET name = $2, email = $3 WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, name, email)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfilePhoto swaps the stored photo filename and returns the
// previous one so the caller can delete the stale file.
func (r *UserRepository) UpdateProfilePhoto(ctx context.Context, id int64, fileName string) (*string, error) {
	const query = `
		UPDATE users u
		SET profile_photo = $2
		FROM (SELECT profile_photo FROM users WHERE id = $1) prev
		WHERE u.id = $1
		RETURNING prev.profile_photo
	`

	var previous *string
	if err := r.pool.QueryRow(ctx, query, id, fileName).Scan(&previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return previous, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	const query = `UPDATE users SET role = $2 WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, role)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY registered_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $1
		ORDER BY registered_at DESC
	`

	rows, err := r.pool.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) SetResetToken(ctx context.Context, id int64, tokenHash []byte, expires time.Time) error {
	const query = `
		UPDATE users SET reset_token_hash = $2, reset_token_expires = $3 WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, tokenHash, expires)
	return err
}

// ListWithActiveResetToken returns users whose reset token has not yet
// expired. The caller matches the presented token against each hash.
func (r *UserRepository) ListWithActiveResetToken(ctx context.Context) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE reset_token_hash IS NOT NULL AND reset_token_expires > NOW()
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error {
	const query = `
		UPDATE users
		SET password_hash = $2, reset_token_hash = NULL, reset_token_expires = NULL
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PurgeExpiredResetTokens clears tokens whose window has passed; run
// periodically by the maintenance scheduler.
func (r *UserRepository) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	const query = `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expires = NULL
		WHERE reset_token_expires IS NOT NULL AND reset_token_expires <= NOW()
	`
	cmd, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
