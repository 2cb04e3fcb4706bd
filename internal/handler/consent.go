package handler

import (
	"encoding/json"
	"net/http"

	"github.com/machinepark/internal/consent"
)

// ConsentHandler обслуживает баннер cookies. Сам выбор хранится только в
// cookie клиента, сервер его не запоминает.
type ConsentHandler struct {
	secure bool
}

func NewConsentHandler(secure bool) *ConsentHandler {
	return &ConsentHandler{secure: secure}
}

// Accept принимает все категории cookies.
func (h *ConsentHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.setConsentCookie(w, consent.Accept(), consent.AcceptMaxAge)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type selectRequest struct {
	Functional bool `json:"functional"`
	Session    bool `json:"session"`
}

// Select принимает выбранные категории. Пустой выбор эквивалентен отказу
// и не сохраняется.
func (h *ConsentHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var selected []string
	if req.Functional {
		selected = append(selected, consent.CategoryFunctional)
	}
	if req.Session {
		selected = append(selected, consent.CategorySession)
	}
	if len(selected) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "rejected",
			"message": "Не выбрано ни одного типа cookies",
		})
		return
	}
	h.setConsentCookie(w, consent.Selected(selected), consent.AcceptMaxAge)
	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "selected": selected})
}

// Reject отклоняет все необязательные cookies. Сам отказ тоже запоминается
// в cookie, но на меньший срок, чтобы баннер вернулся.
func (h *ConsentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.setConsentCookie(w, consent.Reject(), consent.RejectMaxAge)
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// Status отдаёт текущий выбор по категориям для инициализации баннера.
func (h *ConsentHandler) Status(w http.ResponseWriter, r *http.Request) {
	pref := cookieValue(r, consent.CookieName)
	writeJSON(w, http.StatusOK, map[string]bool{
		"cookies_accepted": consent.Given(pref),
		"all_accepted":     consent.All(pref),
		"functional":       consent.Allowed(pref, consent.CategoryFunctional),
		"session":          consent.Allowed(pref, consent.CategorySession),
	})
}

func (h *ConsentHandler) setConsentCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     consent.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
