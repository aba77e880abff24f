package domain

import (
	"cmp"
	"slices"
	"time"
)

// IssueKey is the document ID of a bookmark or read record.
// Issue IDs are only unique within a zine, so both stores key by the pair.
func IssueKey(zineID, issueID string) string {
	return zineID + "_" + issueID
}

// IssueRecord is the denormalized snapshot written when an issue is bookmarked
// or marked read. It reflects the issue as it was at Timestamp, not the current catalog.
type IssueRecord struct {
	IssueID       string    `json:"issueId"`
	ZineID        string    `json:"zineId"`
	ZineName      string    `json:"zineName"`
	IssueTitle    string    `json:"issueTitle"`
	CoverImageURL string    `json:"coverImageUrl"`
	LinkURL       string    `json:"linkUrl"`
	PublishedDate string    `json:"publishedDate"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewIssueRecord snapshots issue and its zine.
func NewIssueRecord(z Zine, issue Issue, at time.Time) IssueRecord {
	return IssueRecord{
		IssueID:       issue.ID,
		ZineID:        z.ID,
		ZineName:      z.Name,
		IssueTitle:    issue.Title,
		CoverImageURL: issue.CoverImageURL,
		LinkURL:       issue.LinkURL,
		PublishedDate: issue.PublishedDate,
		Timestamp:     at,
	}
}

// Key returns the record's document ID.
func (r IssueRecord) Key() string {
	return IssueKey(r.ZineID, r.IssueID)
}

// IssueGroup is the records of one zine.
type IssueGroup struct {
	ZineName string        `json:"zineName"`
	Issues   []IssueRecord `json:"issues"`
}

// GroupIssueRecords groups records by zine name. Groups are ordered by zine name
// and the issues in each group by title.
func GroupIssueRecords(records []IssueRecord) []IssueGroup {
	byZine := make(map[string][]IssueRecord)
	for _, r := range records {
		byZine[r.ZineName] = append(byZine[r.ZineName], r)
	}

	groups := make([]IssueGroup, 0, len(byZine))
	for name, issues := range byZine {
		slices.SortStableFunc(issues, func(a, b IssueRecord) int {
			return cmp.Compare(a.IssueTitle, b.IssueTitle)
		})
		groups = append(groups, IssueGroup{ZineName: name, Issues: issues})
	}

	slices.SortFunc(groups, func(a, b IssueGroup) int {
		return cmp.Compare(a.ZineName, b.ZineName)
	})
	return groups
}
