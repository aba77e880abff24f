package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the mapping: English analysis on names, titles and
// bios, keyword analysis on ids and type.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	text := func(store, vectors bool) *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = en.AnalyzerName
		fm.Store = store
		fm.IncludeTermVectors = vectors
		return fm
	}
	kw := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		return fm
	}

	docMapping.AddFieldMappingsAt("name", text(true, true))
	docMapping.AddFieldMappingsAt("zine_name", text(true, true))
	// Bios can be long; searchable but not stored.
	docMapping.AddFieldMappingsAt("bio", text(false, false))

	docMapping.AddFieldMappingsAt("type", kw())
	docMapping.AddFieldMappingsAt("id", kw())
	docMapping.AddFieldMappingsAt("zine_id", kw())
	docMapping.AddFieldMappingsAt("issue_id", kw())

	published := bleve.NewNumericFieldMapping()
	published.Store = true
	docMapping.AddFieldMappingsAt("published_at", published)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
