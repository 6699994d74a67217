package api

import (
	"encoding/json/v2"
	"net"
	"net/http"

	"github.com/cardlinkapp/cardlink-server/internal/http/response"
	"github.com/cardlinkapp/cardlink-server/internal/service"
)

// decodeJSON reads a JSON request body into dst using json/v2.
func decodeJSON(r *http.Request, dst any) error {
	return json.UnmarshalRead(r.Body, dst)
}

// remoteIP returns the client address without the port. RealIP middleware has
// already resolved X-Forwarded-For / X-Real-IP into RemoteAddr.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleSetup creates the root user. Can only be called once.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req service.SetupRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	resp, err := s.authService.Setup(r.Context(), req)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, resp, s.logger)
}

// handleRegister creates an attendee account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	resp, err := s.authService.Register(r.Context(), req)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, resp, s.logger)
}

// handleLogin authenticates a user and returns tokens.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	req.IPAddress = remoteIP(r)

	resp, err := s.authService.Login(r.Context(), req)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, resp, s.logger)
}

// handleRefresh exchanges a refresh token for new tokens.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req service.RefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}
	req.IPAddress = remoteIP(r)

	resp, err := s.authService.Refresh(r.Context(), req)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, resp, s.logger)
}

// logoutRequest is the request body for logout.
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogout revokes the session identified by the refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	if err := s.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, map[string]string{"message": "Logged out successfully"}, s.logger)
}

// handleGetCurrentUser returns the authenticated user's account.
func (s *Server) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.authService.GetUser(r.Context(), getUserID(r.Context()))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, user, s.logger)
}

// handleListSessions returns the authenticated user's active sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessionService.ListSessions(r.Context(), getUserID(r.Context()))
	if err != nil {
		s.logger.Error("Failed to list sessions", "error", err)
		response.InternalError(w, "Failed to retrieve sessions", s.logger)
		return
	}

	response.Success(w, sessions, s.logger)
}
