// Package store persists upload job lifecycle to the database.
package store

import (
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/lumetube/lume/internal/database"
	"github.com/lumetube/lume/internal/modules/uploadmodule/core"
	"github.com/lumetube/lume/internal/utils"
)

// Store is the gorm-backed job store. Writes are best-effort: failures are
// logged and the upload carries on.
type Store struct {
	logger hclog.Logger
	db     *gorm.DB
}

// NewStore creates a job store.
func NewStore(logger hclog.Logger, db *gorm.DB) *Store {
	return &Store{
		logger: logger.Named("jobstore"),
		db:     db,
	}
}

// RecordJobStart inserts the job row at adoption time.
func (s *Store) RecordJobStart(job core.JobProgress, kind core.SubmissionKind, title string) {
	if s.db == nil {
		return
	}
	now := time.Now()
	record := database.UploadJobRecord{
		ID:           utils.GenerateUUID(),
		JobID:        job.JobID,
		Kind:         string(kind),
		Title:        title,
		Stage:        string(job.Stage),
		Progress:     int(job.Progress),
		StartedAt:    now,
		LastActivity: now,
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Warn("failed to record job start", "job_id", job.JobID, "error", err)
	}
}

// RecordJobUpdate writes a stage/progress transition.
func (s *Store) RecordJobUpdate(job core.JobProgress) {
	if s.db == nil {
		return
	}
	updates := map[string]interface{}{
		"stage":         string(job.Stage),
		"progress":      int(job.Progress),
		"message":       job.Message,
		"details":       job.Details,
		"last_activity": time.Now(),
	}
	if err := s.db.Model(&database.UploadJobRecord{}).Where("job_id = ?", job.JobID).Updates(updates).Error; err != nil {
		s.logger.Warn("failed to record job update", "job_id", job.JobID, "error", err)
	}
}

// RecordJobEnd closes the job row with its terminal outcome.
func (s *Store) RecordJobEnd(job core.JobProgress) {
	if s.db == nil {
		return
	}
	now := time.Now()
	updates := map[string]interface{}{
		"stage":         string(job.Stage),
		"progress":      int(job.Progress),
		"error":         job.Error,
		"message":       job.Message,
		"details":       job.Details,
		"media_ids":     job.MediaID,
		"completed_at":  &now,
		"last_activity": now,
	}
	if err := s.db.Model(&database.UploadJobRecord{}).Where("job_id = ?", job.JobID).Updates(updates).Error; err != nil {
		s.logger.Warn("failed to record job end", "job_id", job.JobID, "error", err)
	}
}

// Recent returns the latest job rows, newest first.
func (s *Store) Recent(limit int) ([]database.UploadJobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []database.UploadJobRecord
	err := s.db.Order("started_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// MediaIDs splits the stored comma-joined media id column.
func MediaIDs(record database.UploadJobRecord) []string {
	if record.MediaIDs == "" {
		return nil
	}
	return strings.Split(record.MediaIDs, ",")
}
