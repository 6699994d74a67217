package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// Params configures a contact search query.
type Params struct {
	Query string // User's search query

	// Pagination
	Limit  int
	Offset int

	// Options
	Highlight bool // Include match highlighting
}

// DefaultParams returns sensible defaults.
func DefaultParams() Params {
	return Params{
		Limit:     20,
		Offset:    0,
		Highlight: true,
	}
}

// Result represents the search results for one owner scope.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit represents a single matching card.
type Hit struct {
	CardID     string            `json:"card_id"`
	Score      float64           `json:"score"`
	Name       string            `json:"name"`
	Title      string            `json:"title,omitempty"`
	Company    string            `json:"company,omitempty"`
	Email      string            `json:"email,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Search executes a query scoped to one owner's saved cards.
func (s *ContactIndex) Search(ctx context.Context, scope domain.Scope, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	searchQuery := buildSearchQuery(scope, params)

	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)
	searchRequest.SortBy([]string{"-_score"})

	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("name")
		searchRequest.Highlight.AddField("company")
		searchRequest.Highlight.AddField("notes")
	}

	searchRequest.Fields = []string{
		"card_id", "name", "title", "company", "email", "notes",
	}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		h := Hit{Score: hit.Score}

		if v, ok := hit.Fields["card_id"].(string); ok {
			h.CardID = v
		}
		if v, ok := hit.Fields["name"].(string); ok {
			h.Name = v
		}
		if v, ok := hit.Fields["title"].(string); ok {
			h.Title = v
		}
		if v, ok := hit.Fields["company"].(string); ok {
			h.Company = v
		}
		if v, ok := hit.Fields["email"].(string); ok {
			h.Email = v
		}
		if v, ok := hit.Fields["notes"].(string); ok {
			h.Notes = v
		}

		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, h)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
// Every query is conjoined with an owner term so one attendee never sees
// another's saved cards.
func buildSearchQuery(scope domain.Scope, params Params) query.Query {
	ownerQuery := bleve.NewTermQuery(scope.String())
	ownerQuery.SetField("owner")

	if params.Query == "" {
		return bleve.NewConjunctionQuery(ownerQuery, bleve.NewMatchAllQuery())
	}

	textQueries := []query.Query{}

	// Name match with highest boost
	nameMatch := bleve.NewMatchQuery(params.Query)
	nameMatch.SetField("name")
	nameMatch.SetBoost(3.0)
	textQueries = append(textQueries, nameMatch)

	// Company and title matches
	companyMatch := bleve.NewMatchQuery(params.Query)
	companyMatch.SetField("company")
	companyMatch.SetBoost(1.5)
	textQueries = append(textQueries, companyMatch)

	titleMatch := bleve.NewMatchQuery(params.Query)
	titleMatch.SetField("title")
	textQueries = append(textQueries, titleMatch)

	// Notes match - "the drummer from the mixer" lives here
	notesMatch := bleve.NewMatchQuery(params.Query)
	notesMatch.SetField("notes")
	textQueries = append(textQueries, notesMatch)

	// Fuzzy matching for typo tolerance on name
	fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
	fuzzyQuery.SetFuzziness(1)
	fuzzyQuery.SetField("name")
	fuzzyQuery.SetBoost(0.8)
	textQueries = append(textQueries, fuzzyQuery)

	// Prefix query for incremental typing (minimum 2 chars)
	if len(params.Query) >= 2 {
		prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
		prefixQuery.SetField("name")
		prefixQuery.SetBoost(0.5)
		textQueries = append(textQueries, prefixQuery)
	}

	return bleve.NewConjunctionQuery(ownerQuery, bleve.NewDisjunctionQuery(textQueries...))
}
