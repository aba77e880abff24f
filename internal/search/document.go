// Package search provides full-text search over the zine catalog using Bleve.
// Zines and issues share one in-memory index and are told apart by type.
package search

import (
	"github.com/tellmeastory/zine-server/internal/domain"
)

// DocType represents the type of document in the index.
type DocType string

// Document types for the search index.
const (
	DocTypeZine  DocType = "zine"
	DocTypeIssue DocType = "issue"
)

// SearchDocument is one indexed zine or issue.
//
// Issues carry their zine's name so "Riot" finds every issue of "Riot Grrrl Zine".
type SearchDocument struct {
	ID   string  `json:"id"`
	Type DocType `json:"type"`

	// Zine: zine name. Issue: issue title.
	Name string `json:"name"`

	ZineID   string `json:"zine_id"`
	ZineName string `json:"zine_name,omitempty"`
	IssueID  string `json:"issue_id,omitempty"`
	Bio      string `json:"bio,omitempty"`

	// Unix seconds of the issue's published date.
	PublishedAt int64 `json:"published_at,omitempty"`
}

// ToMap converts the document to a map so field names match the mapping.
func (d *SearchDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":      d.ID,
		"type":    string(d.Type),
		"name":    d.Name,
		"zine_id": d.ZineID,
	}
	if d.ZineName != "" {
		m["zine_name"] = d.ZineName
	}
	if d.IssueID != "" {
		m["issue_id"] = d.IssueID
	}
	if d.Bio != "" {
		m["bio"] = d.Bio
	}
	if d.PublishedAt != 0 {
		m["published_at"] = d.PublishedAt
	}
	return m
}

// ZineToSearchDocument converts a zine.
func ZineToSearchDocument(z *domain.Zine) *SearchDocument {
	return &SearchDocument{
		ID:     "zine:" + z.ID,
		Type:   DocTypeZine,
		Name:   z.Name,
		ZineID: z.ID,
		Bio:    z.Bio,
	}
}

// IssueToSearchDocument converts one issue of z.
func IssueToSearchDocument(z *domain.Zine, issue *domain.Issue) *SearchDocument {
	doc := &SearchDocument{
		ID:       "issue:" + domain.IssueKey(z.ID, issue.ID),
		Type:     DocTypeIssue,
		Name:     issue.Title,
		ZineID:   z.ID,
		ZineName: z.Name,
		IssueID:  issue.ID,
	}
	if t := issue.Published(); !t.IsZero() {
		doc.PublishedAt = t.Unix()
	}
	return doc
}

// CatalogDocuments converts every zine and issue of a catalog.
func CatalogDocuments(c *domain.Catalog) []*SearchDocument {
	if c == nil {
		return nil
	}
	docs := make([]*SearchDocument, 0, len(c.Zines))
	for i := range c.Zines {
		z := &c.Zines[i]
		docs = append(docs, ZineToSearchDocument(z))
		for j := range z.Issues {
			docs = append(docs, IssueToSearchDocument(z, &z.Issues[j]))
		}
	}
	return docs
}
