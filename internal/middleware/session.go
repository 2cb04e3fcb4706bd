package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
	"github.com/machinepark/internal/service"
)

// Имена сессионных cookies. Оба секрета обязательны: session_id без
// access_token не принимается.
const (
	SessionCookie     = "session_id"
	AccessTokenCookie = "access_token"
)

// RequireSession пускает дальше только запросы с действующей сессией и кладёт
// личность пользователя в контекст. Каждый прошедший запрос продлевает
// обычную сессию (remember-сессии живут до своего срока без продления).
func RequireSession(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := cookie(r, SessionCookie)
			v := sessions.Validate(r.Context(), sessionID, cookie(r, AccessTokenCookie), true)
			if !v.Valid {
				logger.Debugf("запрос %s %s отклонён: session=%s reason=%s",
					r.Method, r.URL.Path, MaskSessionID(sessionID), v.Reason)
				expiredRemember := v.Reason == service.ReasonSessionExpired && v.RememberMe
				// cookies истёкшей remember-сессии не трогаем: форма
				// повторного входа подставит email из ответа.
				if !expiredRemember {
					ClearSessionCookies(w)
				}
				payload := map[string]any{"error": "unauthorized", "reason": v.Reason}
				if expiredRemember {
					payload["email"] = v.Email
					payload["remember_me"] = true
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(payload)
				return
			}
			ident := model.Identity{UserID: v.UserID, UserLogin: v.UserLogin, Email: v.Email}
			ctx := context.WithValue(r.Context(), IdentityKey, ident)
			ctx = context.WithValue(ctx, SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClearSessionCookies снимает обе сессионные cookies у клиента.
func ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{SessionCookie, AccessTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func cookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
