package utils

import (
	"path/filepath"
	"strings"
)

// VideoExtensions contains supported video file extensions. Used by the
// watch-folder uploader to classify files dropped into watched directories.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".3gp":  true,
	".ogv":  true,
}

// AudioExtensions contains supported audio file extensions.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".aac":  true,
	".ogg":  true,
	".wma":  true,
	".m4a":  true,
	".opus": true,
	".aiff": true,
}

// SkippedExtensions contains file extensions that should never be uploaded:
// sidecar metadata, partial downloads, and editor temp files.
var SkippedExtensions = map[string]bool{
	".nfo":        true,
	".srt":        true,
	".vtt":        true,
	".xml":        true,
	".meta":       true,
	".part":       true,
	".tmp":        true,
	".crdownload": true,
	".swp":        true,
}

// IsMediaFile checks if a file has a supported media extension and is not
// explicitly skipped.
func IsMediaFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	if SkippedExtensions[ext] {
		return false
	}
	return VideoExtensions[ext] || AudioExtensions[ext]
}

// IsAudioFile checks if a file has a supported audio extension.
func IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return AudioExtensions[ext]
}

// TitleFromFilename derives a human-readable title from a file name:
// extension stripped, separators normalized to spaces.
func TitleFromFilename(filePath string) string {
	base := filepath.Base(filePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", ".", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
