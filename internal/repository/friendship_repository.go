package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/render-tgm/server/internal/models"
)

var (
	ErrFriendshipExists   = errors.New("friendship request already exists")
	ErrFriendshipNotFound = errors.New("friendship request not found")
)

type FriendshipRepository struct {
	pool *pgxpool.Pool
}

func NewFriendshipRepository(pool *pgxpool.Pool) *FriendshipRepository {
	return &FriendshipRepository{pool: pool}
}

// Search finds users matching the name query, excluding the caller, with
// the relationship state between each result and the caller attached.
func (r *FriendshipRepository) Search(ctx context.Context, userID int64, nameQuery string) ([]models.FriendInfo, error) {
	const query = `
		SELECT u.id, u.name, u.profile_photo, f.status
		FROM users u
		LEFT JOIN friendships f ON (f.user_id = $1 AND f.friend_id = u.id)
			OR (f.friend_id = $1 AND f.user_id = u.id)
		WHERE u.id != $1 AND u.name ILIKE $2
		ORDER BY u.name
		LIMIT 10
	`

	rows, err := r.pool.Query(ctx, query, userID, "%"+nameQuery+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFriendInfos(rows)
}

func (r *FriendshipRepository) ListFriends(ctx context.Context, userID int64) ([]models.FriendInfo, error) {
	const query = `
		SELECT u.id, u.name, u.profile_photo, f.status
		FROM users u
		INNER JOIN friendships f ON (f.user_id = $1 AND f.friend_id = u.id)
			OR (f.friend_id = $1 AND f.user_id = u.id)
		WHERE f.status = $2
	`

	rows, err := r.pool.Query(ctx, query, userID, models.FriendshipAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFriendInfos(rows)
}

// ListPending returns users whose requests to userID are awaiting an
// answer.
func (r *FriendshipRepository) ListPending(ctx context.Context, userID int64) ([]models.FriendInfo, error) {
	const query = `
		SELECT u.id, u.name, u.profile_photo, f.status
		FROM users u
		INNER JOIN friendships f ON f.user_id = u.id
		WHERE f.friend_id = $1 AND f.status = $2
	`

	rows, err := r.pool.Query(ctx, query, userID, models.FriendshipPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFriendInfos(rows)
}

// CreateRequest inserts a pending request unless a relationship already
// exists in either direction.
func (r *FriendshipRepository) CreateRequest(ctx context.Context, userID, friendID int64) error {
	const existsQuery = `
		SELECT COUNT(*) FROM friendships
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`

	var count int
	if err := r.pool.QueryRow(ctx, existsQuery, userID, friendID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrFriendshipExists
	}

	const insertQuery = `
		INSERT INTO friendships (user_id, friend_id, status, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := r.pool.Exec(ctx, insertQuery, userID, friendID, models.FriendshipPending)
	if isUniqueViolation(err) {
		return ErrFriendshipExists
	}
	return err
}

// Resolve accepts or rejects the pending request sent by friendID to
// userID.
func (r *FriendshipRepository) Resolve(ctx context.Context, userID, friendID int64, status models.FriendshipStatus) error {
	const query = `
		UPDATE friendships
		SET status = $3
		WHERE user_id = $1 AND friend_id = $2 AND status = $4
	`
	cmd, err := r.pool.Exec(ctx, query, friendID, userID, status, models.FriendshipPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

func scanFriendInfos(rows pgx.Rows) ([]models.FriendInfo, error) {
	var infos []models.FriendInfo
	for rows.Next() {
		var info models.FriendInfo
		if err := rows.Scan(&info.UserID, &info.Name, &info.ProfilePhoto, &info.Status); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
