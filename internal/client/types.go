// Package client implements the REST transport to the Lume backend: media
// uploads (multipart with transfer progress), remote-URL imports, batch
// variants, best-effort job cancellation, and caption retrieval.
package client

import (
	"fmt"
	"io"
)

// ProgressFunc receives local transfer progress while a multipart body is
// being sent: bytes written so far and the total payload size (-1 when the
// size is unknown).
type ProgressFunc func(sent, total int64)

// TokenProvider supplies a bearer token on demand. Implemented by the
// external auth collaborator.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider returning a fixed token. Useful for tests
// and simple deployments.
type StaticToken string

func (t StaticToken) Token() (string, error) { return string(t), nil }

// FileInput describes one local file to transfer.
type FileInput struct {
	Name   string    // file name presented to the backend
	Size   int64     // -1 when unknown
	Reader io.Reader // consumed exactly once
}

// Close releases the underlying reader when it holds a resource (an open
// file descriptor, a multipart temp file). Whoever completes or abandons
// the transfer owns the close.
func (f FileInput) Close() {
	if closer, ok := f.Reader.(io.Closer); ok {
		closer.Close()
	}
}

// Metadata is the shared descriptive payload attached to submissions.
type Metadata struct {
	Title       string
	Description string
	Visibility  string
	Tags        []string
}

// SubmitResult is the decoded response of every submission endpoint.
type SubmitResult struct {
	JobID   string   `json:"jobId,omitempty"`
	JobIDs  []string `json:"jobIds,omitempty"`
	MediaID string   `json:"mediaId,omitempty"`
}

type submitEnvelope struct {
	Data SubmitResult `json:"data"`
}

// BackendError is a non-2xx response from the backend with its decoded
// message. The upload controller classifies Message by substring.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error (%d)", e.StatusCode)
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CaptionSegmentPayload mirrors the backend caption segment shape.
type CaptionSegmentPayload struct {
	ID         string   `json:"id"`
	StartTime  float64  `json:"startTime"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// CaptionTrackPayload mirrors the backend caption track shape.
type CaptionTrackPayload struct {
	Language string                  `json:"language"`
	Segments []CaptionSegmentPayload `json:"segments"`
}

type captionsEnvelope struct {
	Data []CaptionTrackPayload `json:"data"`
}
