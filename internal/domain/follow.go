package domain

import (
	"slices"
	"time"
)

// NewNotificationWindow is how recent a notification must be for a followed zine to show as new.
const NewNotificationWindow = 24 * time.Hour

// FollowRecord lives at users/{uid}/followed_zines/{zineId}. Its existence is
// what "following" means; it is deleted on unfollow, never archived.
type FollowRecord struct {
	ZineID             string     `json:"zineId,omitempty"`
	ZineName           string     `json:"zineName"`
	FollowedAt         time.Time  `json:"followedAt"`
	LastViewedAt       *time.Time `json:"lastViewedAt,omitempty"`
	LastNotificationAt *time.Time `json:"lastNotificationAt,omitempty"`
	HasUnreadIssues    bool       `json:"hasUnreadIssues"`
}

// HasUnread derives the unread state from the timestamps: a notification arrived
// after the last view, or the zine was never viewed.
func (r FollowRecord) HasUnread() bool {
	if r.LastNotificationAt == nil {
		return false
	}
	if r.LastViewedAt == nil {
		return true
	}
	return r.LastNotificationAt.After(*r.LastViewedAt)
}

// Notified returns r after a notification sent at at. The notification time never
// moves backwards, and the unread flag follows HasUnread.
func (r FollowRecord) Notified(at time.Time) FollowRecord {
	if r.LastNotificationAt == nil || at.After(*r.LastNotificationAt) {
		r.LastNotificationAt = &at
	}
	r.HasUnreadIssues = r.HasUnread()
	return r
}

// Viewed returns r after the user opened the zine at at. A notification stamped
// later than at (sender clock ahead of ours) counts as seen too.
func (r FollowRecord) Viewed(at time.Time) FollowRecord {
	if r.LastNotificationAt != nil && r.LastNotificationAt.After(at) {
		at = *r.LastNotificationAt
	}
	r.LastViewedAt = &at
	r.HasUnreadIssues = false
	return r
}

// ZineTopic is the push topic for a zine's updates.
func ZineTopic(zineID string) string {
	return "zine_" + zineID
}

// UnreadCount counts records with unread issues, by HasUnread.
func UnreadCount(records map[string]FollowRecord) int {
	n := 0
	for _, r := range records {
		if r.HasUnread() {
			n++
		}
	}
	return n
}

// FeedEntry is one row of the following feed.
type FeedEntry struct {
	Zine   Zine         `json:"zine"`
	Record FollowRecord `json:"follow"`
	IsNew  bool         `json:"isNew"`
}

// IsRecentNotification reports whether at falls within the last 24 hours of now.
func IsRecentNotification(at *time.Time, now time.Time) bool {
	if at == nil {
		return false
	}
	return now.Sub(*at) < NewNotificationWindow
}

// FollowingFeed filters zines to the followed ones and orders them by most
// recent notification. Zines never notified sort last. Equal keys keep catalog order.
func FollowingFeed(zines []Zine, records map[string]FollowRecord, now time.Time) []FeedEntry {
	feed := make([]FeedEntry, 0, len(records))
	for _, z := range zines {
		r, ok := records[z.ID]
		if !ok {
			continue
		}
		r.ZineID = z.ID
		feed = append(feed, FeedEntry{
			Zine:   z,
			Record: r,
			IsNew:  IsRecentNotification(r.LastNotificationAt, now),
		})
	}

	slices.SortStableFunc(feed, func(a, b FeedEntry) int {
		return notifiedAt(b.Record).Compare(notifiedAt(a.Record))
	})
	return feed
}

func notifiedAt(r FollowRecord) time.Time {
	if r.LastNotificationAt == nil {
		return time.Time{}
	}
	return *r.LastNotificationAt
}
