package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
)

const (
	// MaxFanMailLength is the longest message, in characters.
	MaxFanMailLength = 140

	// HideThreshold hides messages whose tally is at or below it.
	HideThreshold = -2
)

// FanMailMessage lives at fan_mail/{id}. Messages are append-only; only Votes changes.
type FanMailMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	ZineID    string    `json:"zineId"`
	ZineName  string    `json:"zineName"`
	CreatedAt time.Time `json:"createdAt"`
	Votes     int       `json:"votes"`
}

// UserVotes is the document at user_votes/{uid}: message ID to -1 or +1.
// A missing entry means no vote.
type UserVotes map[string]int

// ComputeVote returns the user's vote after casting isUpvote over current, and
// the signed change to apply to the message tally. Casting the same direction
// again clears the vote.
func ComputeVote(current int, isUpvote bool) (final, delta int) {
	candidate := -1
	if isUpvote {
		candidate = 1
	}
	final = candidate
	if candidate == current {
		final = 0
	}
	return final, final - current
}

// VisibleMessages drops messages voted down to the hide threshold.
func VisibleMessages(msgs []FanMailMessage) []FanMailMessage {
	out := make([]FanMailMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Votes > HideThreshold {
			out = append(out, m)
		}
	}
	return out
}

// FilterByZines keeps messages about the given zines. An empty set keeps everything.
func FilterByZines(msgs []FanMailMessage, zineIDs []string) []FanMailMessage {
	if len(zineIDs) == 0 {
		return msgs
	}
	want := make(map[string]bool, len(zineIDs))
	for _, id := range zineIDs {
		want[id] = true
	}
	out := make([]FanMailMessage, 0, len(msgs))
	for _, m := range msgs {
		if want[m.ZineID] {
			out = append(out, m)
		}
	}
	return out
}

// MatchesZineQuery reports whether every space-separated term of query occurs
// in zineName, in order and without overlapping. Matching ignores case.
func MatchesZineQuery(zineName, query string) bool {
	name := strings.ToLower(zineName)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		i := strings.Index(name, term)
		if i < 0 {
			return false
		}
		name = name[i+len(term):]
	}
	return true
}

// SearchMessages filters msgs with MatchesZineQuery. A blank query keeps everything.
func SearchMessages(msgs []FanMailMessage, query string) []FanMailMessage {
	if strings.TrimSpace(query) == "" {
		return msgs
	}
	out := make([]FanMailMessage, 0, len(msgs))
	for _, m := range msgs {
		if MatchesZineQuery(m.ZineName, query) {
			out = append(out, m)
		}
	}
	return out
}

// ValidateFanMailText trims and NFC-normalizes text and checks its length.
func ValidateFanMailText(text string) (string, error) {
	normalized := norm.NFC.String(strings.TrimSpace(text))
	if normalized == "" {
		return "", domainerrors.Validation("message text is required")
	}
	if n := utf8.RuneCountInString(normalized); n > MaxFanMailLength {
		return "", domainerrors.Validationf("message is %d characters, the limit is %d", n, MaxFanMailLength)
	}
	return normalized, nil
}
