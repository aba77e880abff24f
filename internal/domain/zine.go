package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// PublishedDateLayout is the format of Issue.PublishedDate.
const PublishedDateLayout = "2006-01-02"

// Issue is one published issue of a zine. It belongs to exactly one Zine,
// so per-user state is keyed by the (zine ID, issue ID) pair.
type Issue struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CoverImageURL string `json:"cover_image_url"`
	LinkURL       string `json:"link_url"`
	PublishedDate string `json:"published_date"`
}

// Published parses PublishedDate. The zero time is returned for malformed dates.
func (i Issue) Published() time.Time {
	t, err := time.Parse(PublishedDateLayout, i.PublishedDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Zine is an independently published magazine. Zines are immutable once
// fetched and replaced wholesale on every catalog refresh.
type Zine struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Bio           string  `json:"bio"`
	CoverImageURL string  `json:"cover_image_url"`
	InstagramURL  string  `json:"instagram_url"`
	Issues        []Issue `json:"issues"`
}

// Issue returns the issue with the given ID.
func (z Zine) Issue(issueID string) (Issue, bool) {
	for _, issue := range z.Issues {
		if issue.ID == issueID {
			return issue, true
		}
	}
	return Issue{}, false
}

// Catalog is the versioned document listing every zine.
type Catalog struct {
	Version     string `json:"version"`
	LastUpdated string `json:"last_updated"`
	Zines       []Zine `json:"zines"`
}

// Zine returns the zine with the given ID.
func (c *Catalog) Zine(zineID string) (Zine, bool) {
	if c == nil {
		return Zine{}, false
	}
	for _, z := range c.Zines {
		if z.ID == zineID {
			return z, true
		}
	}
	return Zine{}, false
}

// SortZines orders zines by name, case-insensitively, and each zine's issues
// newest first. The slices are sorted in place.
func SortZines(zines []Zine) {
	slices.SortStableFunc(zines, func(a, b Zine) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	for i := range zines {
		slices.SortStableFunc(zines[i].Issues, func(a, b Issue) int {
			return b.Published().Compare(a.Published())
		})
	}
}

// NewIssueIDs reports, per zine, the issue IDs present in next but not in prev.
// Zines that are new to the catalog are skipped: they have no followers yet.
func NewIssueIDs(prev, next []Zine) map[string][]string {
	known := make(map[string]map[string]bool, len(prev))
	for _, z := range prev {
		ids := make(map[string]bool, len(z.Issues))
		for _, issue := range z.Issues {
			ids[issue.ID] = true
		}
		known[z.ID] = ids
	}

	added := make(map[string][]string)
	for _, z := range next {
		ids, ok := known[z.ID]
		if !ok {
			continue
		}
		for _, issue := range z.Issues {
			if !ids[issue.ID] {
				added[z.ID] = append(added[z.ID], issue.ID)
			}
		}
	}
	return added
}
