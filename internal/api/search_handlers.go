package api

import (
	"net/http"
	"strconv"

	"github.com/cardlinkapp/cardlink-server/internal/http/response"
	"github.com/cardlinkapp/cardlink-server/internal/search"
)

// handleSearchCards runs a full-text query over the caller's saved cards.
func (s *Server) handleSearchCards(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	params := parseSearchParams(r)

	result, err := s.searchIndex.Search(r.Context(), scope, params)
	if err != nil {
		s.logger.Error("Search failed", "query", params.Query, "error", err)
		response.InternalError(w, "Search failed", s.logger)
		return
	}

	response.Success(w, result, s.logger)
}

// parseSearchParams parses search parameters from query string.
func parseSearchParams(r *http.Request) search.Params {
	params := search.DefaultParams()
	params.Query = r.URL.Query().Get("q")

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			params.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			params.Offset = offset
		}
	}

	if r.URL.Query().Get("highlight") == "false" {
		params.Highlight = false
	}

	return params
}
