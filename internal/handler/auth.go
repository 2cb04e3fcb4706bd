package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/machinepark/internal/consent"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/middleware"
	"github.com/machinepark/internal/service"
)

type AuthHandler struct {
	sessions *service.SessionService
	creds    *service.CredentialService
	secure   bool
}

// NewAuthHandler. secure выставляет флаг Secure на сессионных cookies
// (в prod за TLS-терминатором включён, в -dev выключен).
func NewAuthHandler(sessions *service.SessionService, creds *service.CredentialService, secure bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, creds: creds, secure: secure}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Login выдаёт сессию по email и паролю. Без согласия на cookies сессии
// вход невозможен; клиент получает 403 с reason и показывает баннер.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email обязателен")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Пароль обязателен")
		return
	}
	issued, err := h.sessions.Create(r.Context(), service.CreateParams{
		ConsentPref: cookieValue(r, consent.CookieName),
		Email:       req.Email,
		Password:    req.Password,
		RememberMe:  req.RememberMe,
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, service.ErrConsentRequired) {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error":  "Вход требует разрешения cookies сессии",
				"reason": "consent_required",
			})
			return
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Неверный email или пароль")
			return
		}
		if errors.Is(err, service.ErrStore) {
			writeError(w, http.StatusServiceUnavailable, "Сервис временно недоступен")
			return
		}
		logger.Errorf("login error email=%s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "Ошибка входа")
		return
	}
	h.setSessionCookie(w, middleware.SessionCookie, issued.SessionID, issued.MaxAgeSeconds)
	h.setSessionCookie(w, middleware.AccessTokenCookie, issued.AccessToken, issued.MaxAgeSeconds)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"user_id":     issued.Identity.UserID,
		"user_login":  issued.Identity.UserLogin,
		"email":       issued.Identity.Email,
		"expires_at":  issued.ExpiresAt,
		"remember_me": issued.RememberMe,
	})
}

// SessionStatus проверяет сессию из cookies и продлевает её. Для истёкшей
// remember-сессии отдаёт email, чтобы форма входа его подставила.
func (h *AuthHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	v := h.sessions.Validate(r.Context(),
		cookieValue(r, middleware.SessionCookie),
		cookieValue(r, middleware.AccessTokenCookie),
		true)
	if !v.Valid {
		expiredRemember := v.Reason == service.ReasonSessionExpired && v.RememberMe
		if !expiredRemember {
			middleware.ClearSessionCookies(w)
		}
		payload := map[string]any{"valid": false, "reason": v.Reason}
		if expiredRemember {
			payload["email"] = v.Email
			payload["remember_me"] = true
		}
		writeJSON(w, http.StatusUnauthorized, payload)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"user_id":     v.UserID,
		"user_login":  v.UserLogin,
		"email":       v.Email,
		"remember_me": v.RememberMe,
		"expires_at":  v.ExpiresAt,
	})
}

// Logout завершает сессию и снимает cookies. Ответ всегда 200: повторный
// выход или выход без сессии не ошибка.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context(), cookieValue(r, middleware.SessionCookie)); err != nil {
		logger.Errorf("logout: %v", err)
	}
	middleware.ClearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkUserRequest struct {
	Email string `json:"email"`
}

// CheckUser сообщает форме входа, зарегистрирован ли email.
func (h *AuthHandler) CheckUser(w http.ResponseWriter, r *http.Request) {
	var req checkUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email обязателен")
		return
	}
	exists, err := h.creds.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		logger.Errorf("check-user email=%s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "Ошибка проверки пользователя")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
