// Package core implements the upload controller: submission, push-channel
// job tracking, two-phase cancellation, and terminal reconciliation.
package core

import (
	"time"

	"github.com/lumetube/lume/internal/client"
)

// Stage is one step of a backend job's lifecycle. Only StageUpload is
// derived locally (transfer progress); everything after arrives over the
// push channel.
type Stage string

const (
	StageUpload        Stage = "upload"
	StageDownload      Stage = "download"
	StageRemoteStore   Stage = "remoteStore"
	StageAIProcessing  Stage = "aiProcessing"
	StageTranscription Stage = "transcription"
	StageComplete      Stage = "complete"
	StageError         Stage = "error"
)

// SubmissionKind classifies a submission's shape.
type SubmissionKind string

const (
	KindSingleFile SubmissionKind = "singleFile"
	KindBatchFiles SubmissionKind = "batchFiles"
	KindSingleURL  SubmissionKind = "singleUrl"
	KindBatchURLs  SubmissionKind = "batchUrls"
)

// Submission is one upload request: local files or remote URLs, never both.
type Submission struct {
	Files    []client.FileInput
	URLs     []string
	Metadata client.Metadata
}

// Kind derives the submission's shape. Validation happens in Submit.
func (s Submission) Kind() SubmissionKind {
	switch {
	case len(s.Files) == 1:
		return KindSingleFile
	case len(s.Files) > 1:
		return KindBatchFiles
	case len(s.URLs) == 1:
		return KindSingleURL
	default:
		return KindBatchURLs
	}
}

// JobProgress is the tracked state of one backend job.
type JobProgress struct {
	JobID    string  `json:"jobId"`
	Stage    Stage   `json:"stage"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
	Details  string  `json:"details,omitempty"`
	Error    bool    `json:"error"`
	MediaID  string  `json:"mediaId,omitempty"`
	Terminal bool    `json:"terminal"`
}

// State is the controller's reactive snapshot, consumed by the HTTP API and
// the websocket relay.
type State struct {
	IsUploading    bool           `json:"isUploading"`
	Kind           SubmissionKind `json:"kind,omitempty"`
	Title          string         `json:"title,omitempty"`
	Jobs           []JobProgress  `json:"jobs"`
	ResultMediaIDs []string       `json:"resultMediaIds"`
	StartedAt      time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// StateListener observes controller state changes.
type StateListener func(State)

// MediaAddedListener is notified once per media id produced by a completed
// job, so external collaborators can refresh.
type MediaAddedListener func(mediaID string)
