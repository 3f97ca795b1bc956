// Package history persists playback session lifecycle to the database.
package history

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/modules/playbackmodule/core"
	"github.com/lumetube/lume/internal/utils"
)

// Store records session starts, throttled progress, and ends. All writes
// are best-effort: a failed insert is logged and playback carries on.
type Store struct {
	logger hclog.Logger
	db     *gorm.DB
}

// NewStore creates a session history store.
func NewStore(logger hclog.Logger, db *gorm.DB) *Store {
	return &Store{
		logger: logger.Named("history"),
		db:     db,
	}
}

// RecordStart inserts the session row and its start event.
func (s *Store) RecordStart(snap core.Snapshot) {
	if s.db == nil {
		return
	}
	record := database.PlaybackSessionRecord{
		ID:           snap.ID,
		Mount:        snap.Mount,
		SourceURL:    snap.SourceURL,
		MediaKind:    string(snap.MediaKind),
		Pipeline:     string(snap.Pipeline),
		State:        string(snap.State),
		Position:     snap.Position,
		Duration:     snap.Duration,
		StartTime:    snap.StartTime,
		LastActivity: time.Now(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Warn("failed to record session start", "session_id", snap.ID, "error", err)
		return
	}
	s.appendEvent(snap.ID, "session_start", snap.Position, "")
}

// RecordProgress updates position/state on the session row.
func (s *Store) RecordProgress(snap core.Snapshot) {
	if s.db == nil {
		return
	}
	updates := map[string]interface{}{
		"state":         string(snap.State),
		"position":      snap.Position,
		"duration":      snap.Duration,
		"last_activity": time.Now(),
	}
	if err := s.db.Model(&database.PlaybackSessionRecord{}).Where("id = ?", snap.ID).Updates(updates).Error; err != nil {
		s.logger.Warn("failed to record session progress", "session_id", snap.ID, "error", err)
	}
}

// RecordEnd closes the session row with its end reason.
func (s *Store) RecordEnd(snap core.Snapshot, reason core.EndReason) {
	if s.db == nil {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{
		"state":         string(snap.State),
		"position":      snap.Position,
		"end_time":      &now,
		"end_reason":    string(reason),
		"last_activity": now,
	}
	if err := s.db.Model(&database.PlaybackSessionRecord{}).Where("id = ?", snap.ID).Updates(updates).Error; err != nil {
		s.logger.Warn("failed to record session end", "session_id", snap.ID, "error", err)
		return
	}
	s.appendEvent(snap.ID, "session_end", snap.Position, string(reason))
}

// Recent returns the latest session rows, newest first.
func (s *Store) Recent(limit int) ([]database.PlaybackSessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []database.PlaybackSessionRecord
	err := s.db.Order("start_time DESC").Limit(limit).Find(&records).Error
	return records, err
}

func (s *Store) appendEvent(sessionID, eventType string, position float64, data string) {
	event := database.SessionEvent{
		ID:        utils.GenerateUUID(),
		SessionID: sessionID,
		EventType: eventType,
		EventTime: time.Now(),
		Position:  position,
		Data:      data,
	}
	if err := s.db.Create(&event).Error; err != nil {
		s.logger.Warn("failed to append session event", "session_id", sessionID, "error", err)
	}
}
