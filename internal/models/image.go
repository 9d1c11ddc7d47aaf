package models

import "time"

// ImageStatus is a coarse lifecycle label independent of the Processed
// flag; new uploads start out pending.
type ImageStatus string

const (
	ImageStatusPending ImageStatus = "pending"
	ImageStatusReady   ImageStatus = "ready"
)

// Image is one uploaded picture. OriginalPath and ProcessedPath are
// relative to the storage root so public URLs can be rebuilt from whatever
// host served the request.
type Image struct {
	ID            int64
	UserID        int64
	FileName      string
	OriginalPath  string
	Status        ImageStatus
	Processed     bool
	ProcessedPath *string
	UploadedAt    time.Time
	ProcessedAt   *time.Time
}
