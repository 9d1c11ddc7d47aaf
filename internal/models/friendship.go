package models

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
)

// Friendship links the requesting user to the addressee. A single row
// represents the relationship in both directions.
type Friendship struct {
	ID        int64
	UserID    int64
	FriendID  int64
	Status    FriendshipStatus
	CreatedAt time.Time
}

// FriendInfo is a user as seen through the friends API: profile basics
// plus the relationship state relative to the caller (nil when none).
type FriendInfo struct {
	UserID       int64
	Name         string
	ProfilePhoto *string
	Status       *FriendshipStatus
}
