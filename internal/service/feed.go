package service

import (
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
)

// CatalogReader is the read side of the catalog. *catalog.Service implements it.
type CatalogReader interface {
	Zines() []domain.Zine
	Zine(id string) (domain.Zine, bool)
}

// Feed is the user's followed zines, most recently notified first.
type Feed struct {
	Entries     []domain.FeedEntry `json:"entries"`
	UnreadCount int                `json:"unreadCount"`
}

// FeedService builds the following feed.
type FeedService struct {
	catalog CatalogReader
	now     func() time.Time
}

// NewFeedService creates a feed service over the live catalog.
func NewFeedService(catalog CatalogReader) *FeedService {
	return &FeedService{catalog: catalog, now: time.Now}
}

// Following orders the zines the user follows by notification recency. Followed
// zines that left the catalog are not shown.
func (s *FeedService) Following(follows *FollowStore) Feed {
	return Feed{
		Entries:     domain.FollowingFeed(s.catalog.Zines(), follows.Following(), s.now()),
		UnreadCount: follows.UnreadCount(),
	}
}
