// Package events provides the in-process event bus shared by the push
// channel and the controllers. The push channel publishes backend progress
// events here; controllers subscribe with identity filters so a shared
// channel never leaks another job's events into their state.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Upload events
	EventUploadProgress  EventType = "upload.progress"
	EventUploadComplete  EventType = "upload.complete"
	EventUploadCancelled EventType = "upload.cancelled"
	EventMediaAdded      EventType = "media.added"

	// Playback events
	EventPlaybackStarted  EventType = "playback.started"
	EventPlaybackFinished EventType = "playback.finished"
	EventPlaybackErrored  EventType = "playback.errored"

	// Push channel events
	EventPushConnected    EventType = "push.connected"
	EventPushDisconnected EventType = "push.disconnected"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // push, uploader, player, system
	JobID     string                 `json:"job_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter represents filters for event subscriptions. Empty fields match
// everything; JobIDs is the identity filter used by upload controllers.
type EventFilter struct {
	Types   []EventType `json:"types,omitempty"`
	Sources []string    `json:"sources,omitempty"`
	JobIDs  []string    `json:"job_ids,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID            string       `json:"id"`
	Filter        EventFilter  `json:"filter"`
	Handler       EventHandler `json:"-"`
	Created       time.Time    `json:"created"`
	LastTriggered *time.Time   `json:"last_triggered,omitempty"`
	TriggerCount  int64        `json:"trigger_count"`
}

// EventStats represents statistics about events
type EventStats struct {
	TotalEvents         int64            `json:"total_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	EventsBySource      map[string]int64 `json:"events_by_source"`
	RecentEvents        []Event          `json:"recent_events"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
}

// EventBusConfig represents configuration for the event bus
type EventBusConfig struct {
	BufferSize int `json:"buffer_size"`
}

// DefaultEventBusConfig returns default configuration
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize: 1000,
	}
}

// MatchesFilter reports whether an event passes a subscription filter.
func MatchesFilter(event Event, filter EventFilter) bool {
	if len(filter.Types) > 0 && !containsType(filter.Types, event.Type) {
		return false
	}
	if len(filter.Sources) > 0 && !containsString(filter.Sources, event.Source) {
		return false
	}
	if len(filter.JobIDs) > 0 && !containsString(filter.JobIDs, event.JobID) {
		return false
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
