// Package sse streams per-user state changes and catalog updates to connected apps.
package sse

import (
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventFollowChanged carries the user's full follow map after a listener update.
	EventFollowChanged EventType = "follow.changed"
	// EventUnreadCount carries the number of followed zines with unread issues.
	EventUnreadCount EventType = "follow.unread_count"

	// EventBookmarkToggled reports a bookmark set or cleared.
	EventBookmarkToggled EventType = "issue.bookmark_toggled"
	// EventReadToggled reports an issue marked read or unread.
	EventReadToggled EventType = "issue.read_toggled"

	// EventFanMailCreated is broadcast to everyone when a message is posted.
	EventFanMailCreated EventType = "fanmail.created"
	// EventFanMailUpdated is broadcast when a message's tally changes.
	EventFanMailUpdated EventType = "fanmail.updated"
	// EventVotesChanged carries the user's full vote map after it changes.
	EventVotesChanged EventType = "fanmail.votes_changed"

	// EventCatalogRefreshed is broadcast after a new catalog version loads.
	EventCatalogRefreshed EventType = "catalog.refreshed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
	// UserID limits delivery to one user's clients. Empty means broadcast.
	UserID string `json:"-"`
}

// FollowChangedEventData is the payload of follow.changed.
type FollowChangedEventData struct {
	Following map[string]domain.FollowRecord `json:"following"`
}

// UnreadCountEventData is the payload of follow.unread_count.
type UnreadCountEventData struct {
	UnreadCount int `json:"unread_count"`
}

// IssueMarkEventData is the payload of the bookmark and read toggles.
type IssueMarkEventData struct {
	ZineID  string `json:"zine_id"`
	IssueID string `json:"issue_id"`
	Set     bool   `json:"set"`
}

// FanMailEventData is the payload of the fan mail events.
type FanMailEventData struct {
	Message domain.FanMailMessage `json:"message"`
}

// VotesChangedEventData is the payload of fanmail.votes_changed.
type VotesChangedEventData struct {
	Votes map[string]int `json:"votes"`
}

// CatalogRefreshedEventData is the payload of catalog.refreshed.
type CatalogRefreshedEventData struct {
	Version     string `json:"version"`
	LastUpdated string `json:"last_updated"`
	ZineCount   int    `json:"zine_count"`
}

// HeartbeatEventData is the payload of heartbeat.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newEvent(t EventType, userID string, data any) Event {
	return Event{Type: t, UserID: userID, Data: data, Timestamp: time.Now()}
}

// NewFollowChangedEvent creates a follow.changed event for one user.
func NewFollowChangedEvent(userID string, following map[string]domain.FollowRecord) Event {
	return newEvent(EventFollowChanged, userID, FollowChangedEventData{Following: following})
}

// NewUnreadCountEvent creates a follow.unread_count event for one user.
func NewUnreadCountEvent(userID string, count int) Event {
	return newEvent(EventUnreadCount, userID, UnreadCountEventData{UnreadCount: count})
}

// NewBookmarkToggledEvent creates an issue.bookmark_toggled event for one user.
func NewBookmarkToggledEvent(userID, zineID, issueID string, set bool) Event {
	return newEvent(EventBookmarkToggled, userID, IssueMarkEventData{ZineID: zineID, IssueID: issueID, Set: set})
}

// NewReadToggledEvent creates an issue.read_toggled event for one user.
func NewReadToggledEvent(userID, zineID, issueID string, set bool) Event {
	return newEvent(EventReadToggled, userID, IssueMarkEventData{ZineID: zineID, IssueID: issueID, Set: set})
}

// NewFanMailCreatedEvent creates a broadcast fanmail.created event.
func NewFanMailCreatedEvent(msg domain.FanMailMessage) Event {
	return newEvent(EventFanMailCreated, "", FanMailEventData{Message: msg})
}

// NewFanMailUpdatedEvent creates a broadcast fanmail.updated event.
func NewFanMailUpdatedEvent(msg domain.FanMailMessage) Event {
	return newEvent(EventFanMailUpdated, "", FanMailEventData{Message: msg})
}

// NewVotesChangedEvent creates a fanmail.votes_changed event for one user.
func NewVotesChangedEvent(userID string, votes map[string]int) Event {
	return newEvent(EventVotesChanged, userID, VotesChangedEventData{Votes: votes})
}

// NewCatalogRefreshedEvent creates a broadcast catalog.refreshed event.
func NewCatalogRefreshedEvent(c *domain.Catalog) Event {
	return newEvent(EventCatalogRefreshed, "", CatalogRefreshedEventData{
		Version:     c.Version,
		LastUpdated: c.LastUpdated,
		ZineCount:   len(c.Zines),
	})
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return newEvent(EventHeartbeat, "", HeartbeatEventData{ServerTime: time.Now()})
}
