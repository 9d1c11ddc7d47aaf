package models

import "time"

type AdminRequestStatus string

const (
	AdminRequestPending  AdminRequestStatus = "pending"
	AdminRequestApproved AdminRequestStatus = "approved"
	AdminRequestRejected AdminRequestStatus = "rejected"
)

// AdminRequest is a user's application for the admin role. ReviewerID and
// ReviewedAt are set when an admin resolves it.
type AdminRequest struct {
	ID          int64
	UserID      int64
	Reason      string
	Status      AdminRequestStatus
	ReviewerID  *int64
	RequestedAt time.Time
	ReviewedAt  *time.Time

	// Joined from users when listing pending requests.
	UserName  string
	UserEmail string
}
