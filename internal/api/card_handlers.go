package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	"github.com/cardlinkapp/cardlink-server/internal/http/response"
	"github.com/cardlinkapp/cardlink-server/internal/util"
)

// nameCollator orders contact lists for the sorted list view.
var nameCollator = util.NewNameCollator()

// handleStartSession loads the exchange state for the authenticated user,
// drains any queued reciprocal shares, and returns the resulting snapshot.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if _, err := s.exchangeService.StartSession(ctx, scope); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	processed, err := s.exchangeService.ProcessInboundMessages(ctx, scope)
	if err != nil {
		// The session is usable without the inbox; queued shares will be
		// retried on the next start.
		s.logger.Warn("inbox processing failed at session start", "scope", scope.String(), "error", err)
	}

	snapshot, err := s.exchangeService.Snapshot(ctx, scope)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, map[string]any{
		"snapshot":           snapshot,
		"processed_messages": processed,
	}, s.logger)
}

// handleProcessInbox drains queued reciprocal shares on demand.
func (s *Server) handleProcessInbox(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	processed, err := s.exchangeService.ProcessInboundMessages(r.Context(), scope)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, map[string]int{"processed_messages": processed}, s.logger)
}

// handleListCards returns the saved contact list. Insertion order is the
// default; ?sort=name returns a collated last-name order instead.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	snapshot, err := s.exchangeService.Snapshot(r.Context(), scope)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	cards := snapshot.Cards
	if r.URL.Query().Get("sort") == "name" {
		cards = cards.Clone()
		nameCollator.SortByLastName(cards)
	}
	if cards == nil {
		cards = domain.ContactList{}
	}

	response.Success(w, cards, s.logger)
}

// handleScanCard merges a scanned card into the contact list.
func (s *Server) handleScanCard(w http.ResponseWriter, r *http.Request) {
	var card domain.Card
	if err := decodeJSON(r, &card); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	if card.ID == "" {
		response.BadRequest(w, "Card ID is required", s.logger)
		return
	}

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if err := s.exchangeService.AddCard(r.Context(), scope, card, false); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, card, s.logger)
}

// handleUpdateCard replaces a saved card, matched by ID.
func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "id")
	if cardID == "" {
		response.BadRequest(w, "Card ID is required", s.logger)
		return
	}

	var card domain.Card
	if err := decodeJSON(r, &card); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	card.ID = cardID

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if err := s.exchangeService.UpdateCard(r.Context(), scope, card); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, card, s.logger)
}

// handleDeleteCard removes a saved card by ID.
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "id")
	if cardID == "" {
		response.BadRequest(w, "Card ID is required", s.logger)
		return
	}

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if err := s.exchangeService.DeleteCard(r.Context(), scope, cardID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.NoContent(w)
}

// handleExportCards renders the contact list as shareable plain text.
func (s *Server) handleExportCards(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	text, err := s.exchangeService.Export(r.Context(), scope)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		s.logger.Error("Failed to write export", "error", err)
	}
}

// handleConnectionCount returns the event-wide scan tally.
func (s *Server) handleConnectionCount(w http.ResponseWriter, r *http.Request) {
	instance, err := s.instanceService.GetInstance(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	total, err := s.exchangeService.ConnectionCount(r.Context(), instance.EventID)
	if err != nil {
		s.logger.Error("Failed to count connections", "error", err)
		response.InternalError(w, "Failed to count connections", s.logger)
		return
	}

	response.Success(w, map[string]int{"total": total}, s.logger)
}
