package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/imvu-insight/datasync/internal/auth"
	"github.com/imvu-insight/datasync/internal/logging"
	"github.com/imvu-insight/datasync/internal/store"
)

type loginRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

type userOut struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	IsAdmin      bool       `json:"is_admin"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
}

type loginResponse struct {
	Success bool     `json:"success"`
	User    *userOut `json:"user,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// handleLogin authenticates a username plus client-side password hash
// and issues a token pair. A rejected login is a 200 with success=false,
// not a 401, so the client can distinguish bad credentials from an
// expired session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.UserByCredentials(r.Context(), req.Username, req.PasswordHash)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil {
		writeJSON(w, http.StatusOK, loginResponse{Success: false})
		return
	}

	now := s.now()
	if err := s.users.TouchLastLogin(r.Context(), user.ID, now); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "login failed")
		return
	}

	access, refresh, err := s.issueTokens(r, user.ID, user.Username)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "login failed")
		return
	}

	logging.FromContext(r.Context()).Info("user logged in", "user_id", user.ID, "username", user.Username)

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User: &userOut{
			ID:           user.ID,
			Username:     user.Username,
			IsAdmin:      user.IsAdmin,
			IsActive:     user.IsActive,
			LastLoginAt:  user.LastLoginAt,
			AccessToken:  access,
			RefreshToken: refresh,
		},
	})
}

// handleRefresh rotates a refresh token: the presented token is revoked
// and a fresh pair is issued. Unknown, revoked, or expired tokens get a
// 200 with success=false.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	incomingHash := auth.HashToken(req.RefreshToken)
	rec, err := s.tokens.RefreshTokenByHash(r.Context(), incomingHash)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "refresh failed")
		return
	}

	now := s.now()
	if rec == nil || rec.RevokedAt != nil || !rec.ExpiresAt.After(now) {
		writeJSON(w, http.StatusOK, refreshResponse{Success: false})
		return
	}

	user, err := s.users.UserByID(r.Context(), rec.UserID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "refresh failed")
		return
	}
	username := ""
	if user != nil {
		username = user.Username
	}

	if err := s.tokens.RevokeRefreshToken(r.Context(), incomingHash, now); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "refresh failed")
		return
	}

	access, refresh, err := s.issueTokens(r, rec.UserID, username)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Success:      true,
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

// handleCurrentUser returns the account behind the bearer token.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := s.users.UserByID(r.Context(), claims.UserID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, userOut{
		ID:          user.ID,
		Username:    user.Username,
		IsAdmin:     user.IsAdmin,
		IsActive:    user.IsActive,
		LastLoginAt: user.LastLoginAt,
	})
}

// issueTokens signs a new access token and persists a new refresh token
// for the user.
func (s *Server) issueTokens(r *http.Request, userID int64, username string) (access, refresh string, err error) {
	access, err = s.auth.IssueAccessToken(userID, username)
	if err != nil {
		return "", "", err
	}

	refresh, err = auth.GenerateRefreshToken()
	if err != nil {
		return "", "", err
	}

	userAgent := r.UserAgent()
	ip := r.RemoteAddr
	rt := &store.RefreshToken{
		UserID:    userID,
		TokenHash: auth.HashToken(refresh),
		ExpiresAt: s.auth.RefreshExpiry(),
		UserAgent: &userAgent,
		IPAddress: &ip,
	}
	if err := s.tokens.CreateRefreshToken(r.Context(), rt); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
