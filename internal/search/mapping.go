package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for contact documents.
//
// The mapping is designed with these priorities:
//  1. Fast full-text search on names with term vectors for highlighting
//  2. English stemming on notes, where attendees write free text
//  3. Exact keyword matching on the owner field for scope isolation
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields (full-text searchable) ---

	// Name - primary search target. Simple analyzer: person names should
	// not be stemmed.
	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	// Title - searchable text
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	// Company - simple analyzer, no stemming on brand names
	companyFieldMapping := bleve.NewTextFieldMapping()
	companyFieldMapping.Analyzer = simple.Name
	companyFieldMapping.Store = true
	companyFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("company", companyFieldMapping)

	// Notes - free text, stemmed
	notesFieldMapping := bleve.NewTextFieldMapping()
	notesFieldMapping.Analyzer = en.AnalyzerName
	notesFieldMapping.Store = true
	notesFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("notes", notesFieldMapping)

	// --- Keyword fields (exact match) ---

	// Owner - scope filter, never analyzed
	ownerFieldMapping := bleve.NewTextFieldMapping()
	ownerFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("owner", ownerFieldMapping)

	// ID and card ID - stored but not analyzed
	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	cardIDFieldMapping := bleve.NewTextFieldMapping()
	cardIDFieldMapping.Analyzer = keyword.Name
	cardIDFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("card_id", cardIDFieldMapping)

	// Email - exact match only, stored for display
	emailFieldMapping := bleve.NewTextFieldMapping()
	emailFieldMapping.Analyzer = keyword.Name
	emailFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("email", emailFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
