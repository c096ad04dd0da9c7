package httpserver

import (
	"net/http"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/users"
	"github.com/lilgiftcorner/server/pkg/responders"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type publicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func sessionResponse(s users.Session) map[string]any {
	return map[string]any{
		"token": s.Token,
		"user": publicUser{
			ID:    s.User.ID,
			Name:  s.User.Name,
			Email: s.User.Email,
			Role:  s.User.Role,
		},
	}
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req users.Registration
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	session, err := h.Users.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "auth.register_failed", err)
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().
		Str("user_id", session.User.ID).
		Str("email", logger.RedactEmail(session.User.Email)).
		Msg("auth.registered")
	responders.JSON(w, http.StatusOK, sessionResponse(session))
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	session, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, "auth.login_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, sessionResponse(session))
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, "auth.me_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, publicUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})
}
