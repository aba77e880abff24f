package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// DefaultLimit is the page size when none is given.
const DefaultLimit = 20

// SearchParams configures a search query.
type SearchParams struct {
	Query  string
	Types  []DocType // empty = zines and issues
	ZineID string    // restrict to one zine
	Limit  int
	Offset int
}

// SearchResult is one page of hits.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is one matching zine or issue.
type SearchHit struct {
	ID         string            `json:"id"`
	Type       DocType           `json:"type"`
	Score      float64           `json:"score"`
	Name       string            `json:"name"`
	ZineID     string            `json:"zine_id"`
	ZineName   string            `json:"zine_name,omitempty"`
	IssueID    string            `json:"issue_id,omitempty"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Search executes a query. Results are ordered by relevance, newest issue first on ties.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	req.SortBy([]string{"-_score", "-published_at"})
	req.Fields = []string{"type", "name", "zine_id", "zine_name", "issue_id"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("name")
	req.Highlight.AddField("zine_name")

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := SearchHit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["type"].(string); ok {
			hit.Type = DocType(v)
		}
		hit.Name, _ = h.Fields["name"].(string)
		hit.ZineID, _ = h.Fields["zine_id"].(string)
		hit.ZineName, _ = h.Fields["zine_name"].(string)
		hit.IssueID, _ = h.Fields["issue_id"].(string)

		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(h.Fragments))
			for field, frags := range h.Fragments {
				if len(frags) > 0 {
					hit.Highlights[field] = frags[0]
				}
			}
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if q := strings.TrimSpace(params.Query); q != "" {
		nameMatch := bleve.NewMatchQuery(q)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		zineMatch := bleve.NewMatchQuery(q)
		zineMatch.SetField("zine_name")
		zineMatch.SetBoost(1.5)

		bioMatch := bleve.NewMatchQuery(q)
		bioMatch.SetField("bio")
		bioMatch.SetBoost(0.5)

		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
		fuzzy.SetField("name")
		fuzzy.SetFuzziness(1)
		fuzzy.SetBoost(0.8)

		text := []query.Query{nameMatch, zineMatch, bioMatch, fuzzy}
		if len(q) >= 2 {
			prefix := bleve.NewPrefixQuery(strings.ToLower(q))
			prefix.SetField("name")
			prefix.SetBoost(0.5)
			text = append(text, prefix)
		}
		queries = append(queries, bleve.NewDisjunctionQuery(text...))
	}

	if len(params.Types) > 0 {
		types := make([]query.Query, len(params.Types))
		for i, t := range params.Types {
			tq := bleve.NewTermQuery(string(t))
			tq.SetField("type")
			types[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(types...))
	}

	if params.ZineID != "" {
		zq := bleve.NewTermQuery(params.ZineID)
		zq.SetField("zine_id")
		queries = append(queries, zq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
