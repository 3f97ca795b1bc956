package database

import (
	"time"
)

// UploadJobRecord is the persisted form of an upload job. One row per
// submitted job; batch submissions create one row per backend job id.
type UploadJobRecord struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	JobID        string     `gorm:"index" json:"job_id"`
	Kind         string     `gorm:"not null" json:"kind"` // singleFile, singleUrl, batchFiles, batchUrls
	Title        string     `json:"title"`
	Source       string     `json:"source"` // file path or remote URL
	Stage        string     `gorm:"not null" json:"stage"`
	Progress     int        `json:"progress"`
	Error        bool       `json:"error"`
	Message      string     `json:"message"`
	Details      string     `json:"details"`
	MediaIDs     string     `json:"media_ids"` // comma-joined result media ids
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// PlaybackSessionRecord is the persisted form of a playback session.
type PlaybackSessionRecord struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Mount        string     `gorm:"index" json:"mount"`
	SourceURL    string     `gorm:"not null" json:"source_url"`
	MediaKind    string     `gorm:"not null" json:"media_kind"` // video, audio
	Pipeline     string     `gorm:"not null" json:"pipeline"`   // direct, hls
	State        string     `json:"state"`
	Position     float64    `json:"position"` // seconds
	Duration     float64    `json:"duration"` // seconds
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	EndReason    string     `json:"end_reason,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SessionEvent records a discrete playback-session event (start, progress,
// end). Progress events are throttled by the writer.
type SessionEvent struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"index" json:"session_id"`
	EventType string    `gorm:"not null" json:"event_type"`
	EventTime time.Time `json:"event_time"`
	Position  float64   `json:"position"`
	Data      string    `json:"data,omitempty"`
}

// Models returns every model migrated at startup.
func Models() []interface{} {
	return []interface{}{
		&UploadJobRecord{},
		&PlaybackSessionRecord{},
		&SessionEvent{},
	}
}
