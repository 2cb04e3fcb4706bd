package handler

import (
	"net/http"

	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/service"
)

// OpsHandler — операторские ручки. Наружу не экспонируются, доступ
// ограничивает middleware.InternalOnly.
type OpsHandler struct {
	janitor *service.Janitor
	store   service.SweepStore
}

func NewOpsHandler(janitor *service.Janitor, store service.SweepStore) *OpsHandler {
	return &OpsHandler{janitor: janitor, store: store}
}

// Sweep запускает внеплановый проход уборки истёкших сессий.
func (h *OpsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.janitor.RunOnce(r.Context())
	if err != nil {
		logger.Errorf("ops sweep: %v", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Stats отдаёт счётчики сессий.
func (h *OpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		logger.Errorf("ops stats: %v", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"active":        stats.Active,
		"expiring_soon": stats.ExpiringSoon,
	})
}
