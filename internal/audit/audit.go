// Package audit записывает события жизненного цикла сессий в журнал:
// создание, истечение, отзыв, уборка, сбой хранилища. Запись best-effort —
// сбой журнала логируется и никогда не влияет на вызывающий код.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
	"github.com/machinepark/internal/repository"
)

// Виды событий журнала.
const (
	KindCreated    = "created"
	KindExpired    = "expired"
	KindRevoked    = "revoked"
	KindSweep      = "sweep"
	KindStoreError = "store_error"
)

// Event — событие в момент фиксации. SessionID передаётся как есть,
// маскирование выполняет Recorder перед записью.
type Event struct {
	Kind      string
	UserID    int
	UserLogin string
	SessionID string
	Detail    string
}

// Recorder принимает события жизненного цикла. Реализации не возвращают
// ошибок: журнал не должен ломать бизнес-операции.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// NopRecorder отбрасывает события (тесты, пустая конфигурация).
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}

// PGRecorder сохраняет события в таблицу session_events.
type PGRecorder struct {
	events *repository.EventRepository
}

func NewPGRecorder(events *repository.EventRepository) *PGRecorder {
	return &PGRecorder{events: events}
}

func (r *PGRecorder) Record(ctx context.Context, e Event) {
	ev := &model.SessionEvent{
		ID:        uuid.New().String(),
		Kind:      e.Kind,
		UserID:    e.UserID,
		UserLogin: e.UserLogin,
		SessionID: maskSessionID(e.SessionID),
		Detail:    e.Detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.events.Insert(ctx, ev); err != nil {
		logger.Errorf("audit: запись события %s: %v", e.Kind, err)
	}
}

func maskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
