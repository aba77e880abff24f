// Package catalog loads the zine catalog, keeps the current version in memory
// and refreshes it in the background.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/tellmeastory/zine-server/internal/domain"
)

// maxCatalogSize bounds a catalog body.
const maxCatalogSize = 10 * 1024 * 1024

// Decode reads a catalog document. Bios written as HTML are converted to
// Markdown, zines are sorted by name and issues newest first.
func Decode(r io.Reader) (*domain.Catalog, error) {
	var c domain.Catalog
	if err := json.NewDecoder(io.LimitReader(r, maxCatalogSize)).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if c.Zines == nil {
		c.Zines = []domain.Zine{}
	}
	for i := range c.Zines {
		c.Zines[i].Bio = htmlToMarkdown(c.Zines[i].Bio)
	}
	domain.SortZines(c.Zines)
	return &c, nil
}

var htmlTagPattern = regexp.MustCompile(`<(p|br|div|span|b|i|strong|em|a|ul|ol|li|h[1-6]|blockquote)[\s>/]`)

// htmlToMarkdown converts bio markup. Plain text, and markup the converter
// rejects, pass through unchanged.
func htmlToMarkdown(s string) string {
	if s == "" || !htmlTagPattern.MatchString(strings.ToLower(s)) {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(md)
}
