// auth.go — регистрация, вход, выход и профиль текущего пользователя.
package handlers

import (
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/studyshare/internal/api/errors"
	"github.com/bigkaa/studyshare/internal/api/middleware"
	"github.com/bigkaa/studyshare/internal/service"
)

// registerRequest — тело POST /api/auth/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// loginRequest — тело POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse — пользователь и токен.
type authResponse struct {
	userResponse
	Token string `json:"token"`
}

// Register обрабатывает POST /api/auth/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	res, err := h.svc.Auth.Register(r.Context(), service.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "register")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{userResponse: toUserResponse(res.User), Token: res.Token})
}

// Login обрабатывает POST /api/auth/login.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	res, err := h.svc.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err, "login")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{userResponse: toUserResponse(res.User), Token: res.Token})
}

// Logout обрабатывает POST /api/auth/logout.
// Токены не хранятся на сервере: клиент удаляет токен сам.
func (h *APIHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Выход выполнен"})
}

// Me обрабатывает GET /api/auth/me.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Auth.Me(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "me")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
