package service

import (
	"context"
	"fmt"
	"time"

	"github.com/machinepark/internal/audit"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/repository"
)

const (
	defaultSweepInterval = time.Hour
	defaultSweepRetry    = 60 * time.Second
)

// SweepStore — срез хранилища, нужный уборщику.
type SweepStore interface {
	SweepExpired(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (repository.SessionStats, error)
}

type SweepReport struct {
	Deleted      int64 `json:"deleted"`
	Active       int64 `json:"active"`
	ExpiringSoon int64 `json:"expiring_soon"`
}

// Janitor периодически удаляет истёкшие сессии. Ошибки очередного прохода
// логируются, следующая попытка через retry; цикл живёт до отмены контекста.
type Janitor struct {
	store    SweepStore
	events   audit.Recorder
	interval time.Duration
	retry    time.Duration
}

func NewJanitor(store SweepStore, events audit.Recorder, interval, retry time.Duration) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if retry <= 0 {
		retry = defaultSweepRetry
	}
	if events == nil {
		events = audit.NopRecorder{}
	}
	return &Janitor{store: store, events: events, interval: interval, retry: retry}
}

// RunOnce выполняет один проход уборки и возвращает отчёт.
// Ошибка подсчёта статистики проход не заваливает.
func (j *Janitor) RunOnce(ctx context.Context) (SweepReport, error) {
	deleted, err := j.store.SweepExpired(ctx)
	if err != nil {
		j.events.Record(ctx, audit.Event{Kind: audit.KindStoreError, Detail: "sweep"})
		return SweepReport{}, fmt.Errorf("janitor: sweep expired: %w", err)
	}
	report := SweepReport{Deleted: deleted}
	stats, err := j.store.Stats(ctx)
	if err != nil {
		logger.Errorf("janitor: статистика сессий: %v", err)
	} else {
		report.Active = stats.Active
		report.ExpiringSoon = stats.ExpiringSoon
	}
	logger.Infof("уборка сессий: удалено %d, активных %d, истекает в ближайший час %d",
		report.Deleted, report.Active, report.ExpiringSoon)
	j.events.Record(ctx, audit.Event{Kind: audit.KindSweep,
		Detail: fmt.Sprintf("deleted=%d active=%d expiring_soon=%d", report.Deleted, report.Active, report.ExpiringSoon)})
	return report, nil
}

// Run крутит проходы уборки до отмены контекста. Первый проход выполняет
// вызывающая сторона до старта цикла, поэтому цикл сначала ждёт.
func (j *Janitor) Run(ctx context.Context) {
	wait := j.interval
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("уборщик сессий остановлен")
			return
		case <-timer.C:
		}
		if err := j.sweepSafe(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("уборщик сессий остановлен")
				return
			}
			logger.Errorf("janitor: проход не удался, повтор через %s: %v", j.retry, err)
			wait = j.retry
		} else {
			wait = j.interval
		}
		timer.Reset(wait)
	}
}

// sweepSafe превращает панику прохода в ошибку: уборщик не роняет процесс.
func (j *Janitor) sweepSafe(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("janitor: panic: %v", r)
		}
	}()
	_, err = j.RunOnce(ctx)
	return err
}
