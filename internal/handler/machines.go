package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/middleware"
	"github.com/machinepark/internal/model"
)

// MachineDirectory — срез справочника станков, нужный HTTP-слою.
type MachineDirectory interface {
	List(ctx context.Context, query, machineType string, limit int) ([]model.Machine, error)
	Types(ctx context.Context) ([]string, error)
}

type MachineHandler struct {
	machines MachineDirectory
}

func NewMachineHandler(machines MachineDirectory) *MachineHandler {
	return &MachineHandler{machines: machines}
}

// List отдаёт станки с фильтром по подстроке имени (?q=) и типу (?type=).
func (h *MachineHandler) List(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	if ident.UserID == 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	machineType := strings.TrimSpace(r.URL.Query().Get("type"))
	limit := queryInt(r, "limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	list, err := h.machines.List(r.Context(), query, machineType, limit)
	if err != nil {
		logger.Errorf("machines list q=%q type=%q: %v", query, machineType, err)
		writeError(w, http.StatusInternalServerError, "Ошибка загрузки станков")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"machines": list})
}

// Types отдаёт список типов станков для фильтра.
func (h *MachineHandler) Types(w http.ResponseWriter, r *http.Request) {
	ident := middleware.GetIdentity(r.Context())
	if ident.UserID == 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	types, err := h.machines.Types(r.Context())
	if err != nil {
		logger.Errorf("machine types: %v", err)
		writeError(w, http.StatusInternalServerError, "Ошибка загрузки типов станков")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": types})
}
