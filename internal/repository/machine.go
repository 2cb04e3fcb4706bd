package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
)

// machineCols — список колонок для SELECT (порядок соответствует scanMachine).
const machineCols = `id, name, type, owner_login, COALESCE(location,''), commissioned_at`

type MachineRepository struct {
	pool *pgxpool.Pool
}

func NewMachineRepository(pool *pgxpool.Pool) *MachineRepository {
	return &MachineRepository{pool: pool}
}

func scanMachine(s interface{ Scan(dest ...any) error }, m *model.Machine) error {
	return s.Scan(&m.ID, &m.Name, &m.Type, &m.OwnerLogin, &m.Location, &m.CommissionedAt)
}

// List возвращает машины парка: query — подстрока имени (без учёта регистра),
// machineType — точное совпадение типа; пустой фильтр не ограничивает.
func (r *MachineRepository) List(ctx context.Context, query, machineType string, limit int) ([]model.Machine, error) {
	defer logger.DeferLogDuration("machine.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+machineCols+` FROM machines
		 WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		   AND ($2 = '' OR type = $2)
		 ORDER BY name LIMIT $3`,
		query, machineType, limit)
	if err != nil {
		return nil, fmt.Errorf("machineRepo.List: %w", err)
	}
	defer rows.Close()
	machines := make([]model.Machine, 0, limit)
	for rows.Next() {
		var m model.Machine
		if err := scanMachine(rows, &m); err != nil {
			return nil, fmt.Errorf("machineRepo.List scan: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("machineRepo.List rows: %w", err)
	}
	return machines, nil
}

func (r *MachineRepository) Types(ctx context.Context) ([]string, error) {
	defer logger.DeferLogDuration("machine.Types", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT type FROM machines ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("machineRepo.Types: %w", err)
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("machineRepo.Types scan: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}
