// Package hls implements the segmented-streaming engine: manifest parsing,
// variant selection, and live playlist refresh.
package hls

import (
	"bufio"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Variant is one stream entry of a master playlist.
type Variant struct {
	Bandwidth  int64
	Resolution string
	URI        string
}

// Manifest is the parsed view of a media playlist.
type Manifest struct {
	IsVOD          bool // #EXT-X-PLAYLIST-TYPE:VOD or #EXT-X-ENDLIST
	TargetDuration time.Duration
	TotalDuration  time.Duration
	SegmentCount   int
	MediaSequence  int64
}

// IsMasterPlaylist reports whether the playlist declares stream variants
// instead of media segments.
func IsMasterPlaylist(playlist string) bool {
	return strings.Contains(playlist, "#EXT-X-STREAM-INF:")
}

// ParseMasterPlaylist extracts the variant entries of a master playlist.
func ParseMasterPlaylist(playlist string) ([]Variant, error) {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	var variants []Variant
	var pending *Variant

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			attrs := strings.TrimPrefix(line, "#EXT-X-STREAM-INF:")
			variant := Variant{}
			for _, attr := range splitAttributes(attrs) {
				key, value, found := strings.Cut(attr, "=")
				if !found {
					continue
				}
				switch strings.ToUpper(strings.TrimSpace(key)) {
				case "BANDWIDTH":
					bw, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
					if err != nil {
						return nil, fmt.Errorf("invalid BANDWIDTH value: %s", value)
					}
					variant.Bandwidth = bw
				case "RESOLUTION":
					variant.Resolution = strings.TrimSpace(value)
				}
			}
			pending = &variant
			continue
		}

		if !strings.HasPrefix(line, "#") && pending != nil {
			pending.URI = line
			variants = append(variants, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("master playlist contains no variants")
	}
	return variants, nil
}

// SelectVariant picks the highest-bandwidth variant.
func SelectVariant(variants []Variant) Variant {
	best := variants[0]
	for _, v := range variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

// ParseMediaPlaylist extracts timeline metadata from a media playlist:
// VOD flag, target duration, and total duration summed over EXTINF tags.
func ParseMediaPlaylist(playlist string) (*Manifest, error) {
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	manifest := &Manifest{}

	var nextDuration time.Duration
	sawHeader := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "#EXTM3U":
			sawHeader = true

		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:VOD"):
			manifest.IsVOD = true

		case line == "#EXT-X-ENDLIST":
			manifest.IsVOD = true

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			secs, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid TARGETDURATION: %s", line)
			}
			manifest.TargetDuration = time.Duration(secs * float64(time.Second))

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			seq, err := strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid MEDIA-SEQUENCE: %s", line)
			}
			manifest.MediaSequence = seq

		case strings.HasPrefix(line, "#EXTINF:"):
			durPart := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(durPart, ","); idx != -1 {
				durPart = durPart[:idx]
			}
			secs, err := strconv.ParseFloat(durPart, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid EXTINF duration: %s", durPart)
			}
			nextDuration = time.Duration(secs * float64(time.Second))

		case !strings.HasPrefix(line, "#"):
			manifest.SegmentCount++
			manifest.TotalDuration += nextDuration
			nextDuration = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, fmt.Errorf("not an M3U playlist")
	}
	return manifest, nil
}

// ResolveURI resolves a possibly-relative playlist URI against its base.
func ResolveURI(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %s: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid playlist URI %s: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// splitAttributes splits an attribute list on commas outside quoted values.
func splitAttributes(attrs string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	for _, r := range attrs {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
