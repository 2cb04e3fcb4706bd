package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
)

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Insert(ctx context.Context, e *model.SessionEvent) error {
	defer logger.DeferLogDuration("event.Insert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (id, kind, user_id, user_login, session_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Kind, e.UserID, e.UserLogin, e.SessionID, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("eventRepo.Insert: %w", err)
	}
	return nil
}

// ListRecent возвращает последние события журнала (для операторского инструмента).
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]model.SessionEvent, error) {
	defer logger.DeferLogDuration("event.ListRecent", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, user_id, user_login, session_id, detail, created_at
		 FROM session_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("eventRepo.ListRecent: %w", err)
	}
	defer rows.Close()
	events := make([]model.SessionEvent, 0, limit)
	for rows.Next() {
		var e model.SessionEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.UserID, &e.UserLogin, &e.SessionID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("eventRepo.ListRecent scan: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
