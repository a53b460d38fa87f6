package model

import "time"

// Progress is a per-user learning-progress record for one track
// (a course, surah set, or study plan). Completed is an absolute count,
// never a delta: concurrent sessions reconcile by last-write-wins on the
// whole value.
type Progress struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TrackID   string    `json:"track_id"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}
