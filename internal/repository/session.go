package repository

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
)

// Сроки жизни сессий. Окно обычной сессии на сервере (60 минут) шире срока её
// cookie (30 минут): cookie истекает раньше, серверный запас покрывает
// продление «на лету».
const (
	rememberTTL = 7 * 24 * time.Hour
	sessionTTL  = 60 * time.Minute

	rememberCookieMaxAge = 7 * 24 * 3600
	sessionCookieMaxAge  = 30 * 60
)

// maxUserAgentLen — предел длины сохраняемого User-Agent (в символах).
const maxUserAgentLen = 500

// sessionCols — список колонок для SELECT (порядок соответствует scanSession).
const sessionCols = `session_id, user_id, user_login, email, access_token, created_at, last_activity, expires_at, COALESCE(ip_address,''), COALESCE(user_agent,''), remember_me`

// IssuedSession — выданная при входе пара секретов и срок жизни cookie.
type IssuedSession struct {
	SessionID     string
	AccessToken   string
	MaxAgeSeconds int
	ExpiresAt     time.Time
}

// SessionStats — счётчики для журнала уборки: живые сессии и истекающие в
// ближайший час.
type SessionStats struct {
	Active       int64
	ExpiringSoon int64
}

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// scanSession сканирует строку в model.Session (порядок соответствует sessionCols).
func scanSession(s interface{ Scan(dest ...any) error }, sess *model.Session) error {
	return s.Scan(&sess.SessionID, &sess.UserID, &sess.UserLogin, &sess.Email, &sess.AccessToken,
		&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt, &sess.IPAddress, &sess.UserAgent, &sess.RememberMe)
}

// Create удаляет все прежние сессии пользователя и вставляет новую одной
// транзакцией: в любой момент у пользователя не больше одной строки. При любой
// ошибке транзакция откатывается и секреты не выдаются.
func (r *SessionRepository) Create(ctx context.Context, ident model.Identity, rememberMe bool, ip, userAgent string) (*IssuedSession, error) {
	defer logger.DeferLogDuration("session.Create", time.Now())()
	sessionID, err := token(32)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Create: %w", err)
	}
	accessToken, err := token(48)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Create: %w", err)
	}
	now := time.Now().UTC()
	var expiresAt time.Time
	var maxAge int
	if rememberMe {
		expiresAt = now.Add(rememberTTL)
		maxAge = rememberCookieMaxAge
	} else {
		expiresAt = now.Add(sessionTTL)
		maxAge = sessionCookieMaxAge
	}
	userAgent = truncateRunes(userAgent, maxUserAgentLen)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Create begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, ident.UserID); err != nil {
		return nil, fmt.Errorf("sessionRepo.Create delete old: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO user_sessions (session_id, user_id, user_login, email, access_token, created_at, last_activity, expires_at, ip_address, user_agent, remember_me)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sessionID, ident.UserID, ident.UserLogin, ident.Email, accessToken, now, now, expiresAt, ip, userAgent, rememberMe,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Create insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("sessionRepo.Create commit: %w", err)
	}
	return &IssuedSession{SessionID: sessionID, AccessToken: accessToken, MaxAgeSeconds: maxAge, ExpiresAt: expiresAt}, nil
}

// Lookup требует точного совпадения обеих частей пары; несовпадение любой из
// них неотличимо от отсутствия строки.
func (r *SessionRepository) Lookup(ctx context.Context, sessionID, accessToken string) (*model.Session, error) {
	defer logger.DeferLogDuration("session.Lookup", time.Now())()
	s := &model.Session{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM user_sessions WHERE session_id = $1 AND access_token = $2`,
		sessionID, accessToken)
	if err := scanSession(row, s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.Lookup: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, sessionID string) error {
	defer logger.DeferLogDuration("session.Touch", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE user_sessions SET last_activity = NOW() WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("sessionRepo.Touch: %w", err)
	}
	return nil
}

// Renew переносит expires_at безусловно; право на продление (не remember-me)
// проверяет вызывающий код.
func (r *SessionRepository) Renew(ctx context.Context, sessionID string, expiresAt time.Time) error {
	defer logger.DeferLogDuration("session.Renew", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE user_sessions SET expires_at = $1 WHERE session_id = $2`, expiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("sessionRepo.Renew: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	defer logger.DeferLogDuration("session.Delete", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("sessionRepo.Delete: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID int) (int64, error) {
	defer logger.DeferLogDuration("session.DeleteAllForUser", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("sessionRepo.DeleteAllForUser: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepExpired удаляет все истёкшие строки одним DELETE; для параллельных
// вызовов каждая строка либо целиком видна, либо целиком удалена.
func (r *SessionRepository) SweepExpired(ctx context.Context) (int64, error) {
	defer logger.DeferLogDuration("session.SweepExpired", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("sessionRepo.SweepExpired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) Stats(ctx context.Context) (SessionStats, error) {
	defer logger.DeferLogDuration("session.Stats", time.Now())()
	var st SessionStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE expires_at >= NOW()),
		        COUNT(*) FILTER (WHERE expires_at >= NOW() AND expires_at < NOW() + INTERVAL '1 hour')
		 FROM user_sessions`).Scan(&st.Active, &st.ExpiringSoon)
	if err != nil {
		return SessionStats{}, fmt.Errorf("sessionRepo.Stats: %w", err)
	}
	return st, nil
}

// token возвращает URL-safe base64 (без паддинга) от n случайных байт.
func token(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// truncateRunes обрезает строку до max символов, не разрывая UTF-8.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
