package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
)

var ErrNotFound = errors.New("not found")

// userCols — список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, login, email, password_hash, created_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.CreatedAt)
}

// Create вставляет учётную запись и заполняет u.ID. Email должен быть заранее
// нормализован (нижний регистр): уникальность в БД сравнивает точные строки.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users_auth (login, email, password_hash, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		u.Login, u.Email, u.PasswordHash, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users_auth WHERE email = $1`, email)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	defer logger.DeferLogDuration("user.ExistsByEmail", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users_auth WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("userRepo.ExistsByEmail: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) List(ctx context.Context, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("user.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+userCols+` FROM users_auth ORDER BY login LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}
	defer rows.Close()
	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("userRepo.List scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.List rows: %w", err)
	}
	return users, nil
}
