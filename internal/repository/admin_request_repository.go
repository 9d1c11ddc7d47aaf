package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/render-tgm/server/internal/models"
)

var (
	ErrRequestNotFound = errors.New("admin request not found")
	ErrRequestPending  = errors.New("a pending admin request already exists")
)

type AdminRequestRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRequestRepository(pool *pgxpool.Pool) *AdminRequestRepository {
	return &AdminRequestRepository{pool: pool}
}

func (r *AdminRequestRepository) Create(ctx context.Context, userID int64, reason string) error {
	const pendingQuery = `
		SELECT COUNT(*) FROM admin_requests WHERE user_id = $1 AND status = $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, pendingQuery, userID, models.AdminRequestPending).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrRequestPending
	}

	const insertQuery = `
		INSERT INTO admin_requests (user_id, reason, status, requested_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := r.pool.Exec(ctx, insertQuery, userID, reason, models.AdminRequestPending)
	return err
}

func (r *AdminRequestRepository) ListPending(ctx context.Context) ([]models.AdminRequest, error) {
	const query = `
		SELECT a.id, a.user_id, a.reason, a.status, a.reviewer_id,
		       a.requested_at, a.reviewed_at, u.name, u.email
		FROM admin_requests a
		JOIN users u ON u.id = a.user_id
		WHERE a.status = $1
		ORDER BY a.requested_at DESC
	`

	rows, err := r.pool.Query(ctx, query, models.AdminRequestPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.AdminRequest
	for rows.Next() {
		var req models.AdminRequest
		if err := rows.Scan(
			&req.ID,
			&req.UserID,
			&req.Reason,
			&req.Status,
			&req.ReviewerID,
			&req.RequestedAt,
			&req.ReviewedAt,
			&req.UserName,
			&req.UserEmail,
		); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Resolve marks the request approved or rejected and returns the
// applicant's user id so the caller can promote on approval.
func (r *AdminRequestRepository) Resolve(ctx context.Context, requestID, reviewerID int64, status models.AdminRequestStatus) (int64, error) {
	const query = `
		UPDATE admin_requests
		SET status = $2, reviewer_id = $3, reviewed_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING user_id
	`

	var userID int64
	err := r.pool.QueryRow(ctx, query, requestID, status, reviewerID, models.AdminRequestPending).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrRequestNotFound
	}
	return userID, err
}
