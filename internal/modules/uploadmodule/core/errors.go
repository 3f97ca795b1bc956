package core

import "strings"

// Fixed user-facing messages produced by classification.
const (
	MsgStorageLimit   = "Storage limit reached"
	MsgUnavailableURL = "Invalid or unavailable URL"
	MsgDownloadFailed = "Unable to download content"
	MsgUploadFailed   = "Upload failed"
	MsgCancelled      = "Upload cancelled"
)

// ClassifyMessage maps a backend error message to its user-facing form by
// substring, most specific first. Unrecognized non-empty messages pass
// through raw.
func ClassifyMessage(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "storage quota") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "storage limit"):
		return MsgStorageLimit
	case strings.Contains(lower, "private") ||
		strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "not available") ||
		strings.Contains(lower, "removed by the uploader"):
		return MsgUnavailableURL
	case strings.Contains(lower, "failed to fetch") ||
		strings.Contains(lower, "fetch failed") ||
		strings.Contains(lower, "could not download") ||
		strings.Contains(lower, "download failed"):
		return MsgDownloadFailed
	case message != "":
		return message
	default:
		return MsgUploadFailed
	}
}
