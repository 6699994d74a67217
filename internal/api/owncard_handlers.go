package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	"github.com/cardlinkapp/cardlink-server/internal/http/response"
)

// maxAvatarUpload caps the avatar request body. Matches the image service's
// own limit so oversized uploads fail fast.
const maxAvatarUpload = 5 << 20

// handleGetOwnCard returns the authenticated user's own card.
func (s *Server) handleGetOwnCard(w http.ResponseWriter, r *http.Request) {
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

	response.Success(w, snapshot.MyCard, s.logger)
}

// handlePutOwnCard replaces the authenticated user's own card.
func (s *Server) handlePutOwnCard(w http.ResponseWriter, r *http.Request) {
	var card domain.Card
	if err := decodeJSON(r, &card); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if err := s.exchangeService.EditOwnCard(r.Context(), scope, card); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	snapshot, err := s.exchangeService.Snapshot(r.Context(), scope)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, snapshot.MyCard, s.logger)
}

// preferencesResponse is the body for preference reads and writes.
type preferencesResponse struct {
	SendOnScan bool `json:"send_on_scan"`
}

// handleGetPreferences returns the exchange preferences.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	enabled, err := s.exchangeService.SendOnScanEnabled(r.Context(), scope)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, preferencesResponse{SendOnScan: enabled}, s.logger)
}

// handlePutPreferences updates the exchange preferences.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesResponse
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if err := s.exchangeService.SetSendOnScan(r.Context(), scope, req.SendOnScan); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, preferencesResponse{SendOnScan: req.SendOnScan}, s.logger)
}

// handlePutAvatar stores an uploaded avatar and stamps its URL and BlurHash
// onto the own card so they travel with every future exchange.
func (s *Server) handlePutAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := getUserID(ctx)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAvatarUpload+1))
	if err != nil {
		response.BadRequest(w, "Failed to read upload", s.logger)
		return
	}
	if len(data) > maxAvatarUpload {
		response.Error(w, http.StatusRequestEntityTooLarge, "Avatar too large", s.logger)
		return
	}

	hash, err := s.avatarService.Save(userID, data)
	if err != nil {
		response.BadRequest(w, "Unsupported image upload", s.logger)
		return
	}

	avatarURL := "/api/v1/users/" + userID + "/avatar"

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	snapshot, err := s.exchangeService.Snapshot(ctx, scope)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	card := snapshot.MyCard
	card.AvatarURL = avatarURL
	card.AvatarBlurHash = hash
	if err := s.exchangeService.EditOwnCard(ctx, scope, card); err != nil {
		// The image is stored either way; a card without names just can't
		// carry the reference yet.
		s.logger.Warn("avatar stored but card not updated", "user_id", userID, "error", err)
	}

	response.Success(w, map[string]string{
		"avatar_url":      avatarURL,
		"avatar_blurhash": hash,
	}, s.logger)
}

// handleDeleteAvatar removes the stored avatar and clears the card reference.
func (s *Server) handleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := getUserID(ctx)

	if err := s.avatarService.Delete(userID); err != nil {
		s.logger.Error("Failed to delete avatar", "user_id", userID, "error", err)
		response.InternalError(w, "Failed to delete avatar", s.logger)
		return
	}

	scope, err := s.requestScope(r)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if snapshot, err := s.exchangeService.Snapshot(ctx, scope); err == nil {
		card := snapshot.MyCard
		if card.AvatarURL != "" || card.AvatarBlurHash != "" {
			card.AvatarURL = ""
			card.AvatarBlurHash = ""
			if err := s.exchangeService.EditOwnCard(ctx, scope, card); err != nil {
				s.logger.Warn("avatar removed but card not updated", "user_id", userID, "error", err)
			}
		}
	}

	response.NoContent(w)
}

// handleGetAvatar serves a stored avatar with ETag-based cache validation.
func (s *Server) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		response.BadRequest(w, "User ID is required", s.logger)
		return
	}

	if !s.avatarService.Exists(userID) {
		response.NotFound(w, "Avatar not found", s.logger)
		return
	}

	etag, err := s.avatarService.ETag(userID)
	if err == nil {
		quoted := `"` + etag + `"`
		if r.Header.Get("If-None-Match") == quoted {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", quoted)
	}

	data, err := s.avatarService.Get(userID)
	if err != nil {
		s.logger.Error("Failed to read avatar", "user_id", userID, "error", err)
		response.InternalError(w, "Failed to read avatar", s.logger)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write avatar", "error", err)
	}
}
