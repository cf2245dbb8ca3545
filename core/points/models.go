package points

import "time"

// Source types for point awards.
const (
	SourceLesson   = "lesson"
	SourceResource = "resource"
)

// Entry is one row of the points history ledger. At most one entry exists
// per (UserID, SourceType, ReferenceID).
type Entry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Points      int       `json:"points"`
	SourceType  string    `json:"source_type"`
	ReferenceID string    `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// Config is the gamification configuration row.
type Config struct {
	ResourceAccessPoints    int `json:"resource_access_points" validate:"min=0"`
	DefaultCompletionPoints int `json:"default_completion_points" validate:"min=0"`
}

// RankEntry is one row of the points leaderboard.
type RankEntry struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}
