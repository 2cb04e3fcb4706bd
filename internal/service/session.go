// Package service содержит жизненный цикл сессий: создание с проверкой
// согласия и учётных данных, валидацию пары секретов с продлением и чистку
// истёкших сессий.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/machinepark/internal/audit"
	"github.com/machinepark/internal/consent"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
	"github.com/machinepark/internal/repository"
)

var (
	ErrConsentRequired    = errors.New("session cookies not allowed by consent")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrStore              = errors.New("session store failure")
)

// Причины отказа в Validation.Reason.
const (
	ReasonNoSession       = "no_session"
	ReasonSessionNotFound = "session_not_found"
	ReasonSessionExpired  = "session_expired"
	ReasonError           = "error"
)

// renewTTL — на сколько продлевается обычная сессия при каждой успешной
// проверке с prolong. Remember-сессии не продлеваются никогда.
const renewTTL = 30 * time.Minute

func maskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}

// SessionStore — операции хранилища сессий (реализация в repository).
// Все операции атомарны относительно таблицы сессий.
type SessionStore interface {
	Create(ctx context.Context, ident model.Identity, rememberMe bool, ip, userAgent string) (*repository.IssuedSession, error)
	Lookup(ctx context.Context, sessionID, accessToken string) (*model.Session, error)
	Touch(ctx context.Context, sessionID string) error
	Renew(ctx context.Context, sessionID string, expiresAt time.Time) error
	Delete(ctx context.Context, sessionID string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID int) (int64, error)
}

// UserDirectory отвечает на вопрос «кто это» по паре email+пароль.
// Менеджер сессий потребляет только результат; устройство справочника его не касается.
type UserDirectory interface {
	VerifyCredentials(ctx context.Context, email, password string) (model.Identity, error)
}

type SessionService struct {
	store     SessionStore
	directory UserDirectory
	events    audit.Recorder
}

func NewSessionService(store SessionStore, directory UserDirectory, events audit.Recorder) *SessionService {
	if events == nil {
		events = audit.NopRecorder{}
	}
	return &SessionService{store: store, directory: directory, events: events}
}

type CreateParams struct {
	ConsentPref string
	Email       string
	Password    string
	RememberMe  bool
	IPAddress   string
	UserAgent   string
}

// Issued — результат успешного входа.
type Issued struct {
	SessionID     string
	AccessToken   string
	MaxAgeSeconds int
	ExpiresAt     time.Time
	Identity      model.Identity
	RememberMe    bool
}

// Create выдаёт новую сессию: согласие → учётные данные → запись в хранилище.
// Порядок обязателен: при отказе согласия или неверном пароле хранилище не
// трогается вовсе. Ошибка хранилища означает «сессия не выдана» — частичных
// состояний не остаётся, транзакция откатана.
func (s *SessionService) Create(ctx context.Context, p CreateParams) (*Issued, error) {
	if !consent.MayIssueSessionCookie(p.ConsentPref) {
		logger.Infof("create session: cookies сессии не разрешены (email=%s)", p.Email)
		return nil, ErrConsentRequired
	}
	ident, err := s.directory.VerifyCredentials(ctx, p.Email, p.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, err
		}
		logger.Errorf("create session: справочник пользователей: %v", err)
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	issued, err := s.store.Create(ctx, ident, p.RememberMe, p.IPAddress, p.UserAgent)
	if err != nil {
		logger.Errorf("create session user_id=%d: %v", ident.UserID, err)
		s.events.Record(ctx, audit.Event{Kind: audit.KindStoreError, UserID: ident.UserID, Detail: "create"})
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	logger.Infof("сессия создана для пользователя %s, remember_me=%v, expires_at=%s",
		ident.UserLogin, p.RememberMe, issued.ExpiresAt.Format(time.RFC3339))
	s.events.Record(ctx, audit.Event{Kind: audit.KindCreated, UserID: ident.UserID, UserLogin: ident.UserLogin, SessionID: issued.SessionID})
	return &Issued{
		SessionID:     issued.SessionID,
		AccessToken:   issued.AccessToken,
		MaxAgeSeconds: issued.MaxAgeSeconds,
		ExpiresAt:     issued.ExpiresAt,
		Identity:      ident,
		RememberMe:    p.RememberMe,
	}, nil
}

// Validation — результат проверки пары секретов. При Valid=false Reason
// объясняет причину; для истёкшей remember-сессии дополнительно заполняются
// Email и RememberMe, чтобы форма повторного входа подставила email.
type Validation struct {
	Valid      bool
	Reason     string
	UserID     int
	UserLogin  string
	Email      string
	RememberMe bool
	ExpiresAt  time.Time
}

// Validate проверяет пару секретов и продлевает обычную сессию при prolong.
// Истёкшая строка удаляется сразу при обнаружении, не дожидаясь уборки.
// Любая ошибка хранилища превращается в Reason="error" и не покидает метод.
func (s *SessionService) Validate(ctx context.Context, sessionID, accessToken string, prolong bool) Validation {
	if sessionID == "" || accessToken == "" {
		return Validation{Reason: ReasonNoSession}
	}
	row, err := s.store.Lookup(ctx, sessionID, accessToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Debugf("validate: сессия %s не найдена", maskSessionID(sessionID))
			return Validation{Reason: ReasonSessionNotFound}
		}
		return s.storeFail(ctx, sessionID, "lookup", err)
	}
	now := time.Now().UTC()
	if row.Expired(now) {
		logger.Infof("сессия %s истекла в %s", maskSessionID(row.SessionID), row.ExpiresAt.Format(time.RFC3339))
		if _, err := s.store.Delete(ctx, row.SessionID); err != nil {
			return s.storeFail(ctx, row.SessionID, "delete expired", err)
		}
		s.events.Record(ctx, audit.Event{Kind: audit.KindExpired, UserID: row.UserID, UserLogin: row.UserLogin, SessionID: row.SessionID})
		if row.RememberMe {
			return Validation{Reason: ReasonSessionExpired, Email: row.Email, RememberMe: true}
		}
		return Validation{Reason: ReasonSessionExpired}
	}
	if err := s.store.Touch(ctx, row.SessionID); err != nil {
		return s.storeFail(ctx, row.SessionID, "touch", err)
	}
	if prolong && !row.RememberMe {
		if err := s.store.Renew(ctx, row.SessionID, now.Add(renewTTL)); err != nil {
			return s.storeFail(ctx, row.SessionID, "renew", err)
		}
		logger.Debugf("сессия %s продлена до %s", maskSessionID(row.SessionID), now.Add(renewTTL).Format(time.RFC3339))
	}
	return Validation{
		Valid:      true,
		UserID:     row.UserID,
		UserLogin:  row.UserLogin,
		Email:      row.Email,
		RememberMe: row.RememberMe,
		ExpiresAt:  row.ExpiresAt,
	}
}

func (s *SessionService) storeFail(ctx context.Context, sessionID, op string, err error) Validation {
	logger.Errorf("validate: %s session_id=%s: %v", op, maskSessionID(sessionID), err)
	s.events.Record(ctx, audit.Event{Kind: audit.KindStoreError, SessionID: sessionID, Detail: op})
	return Validation{Reason: ReasonError}
}

// Logout завершает сессию по её идентификатору. Отсутствующая строка не
// считается ошибкой: выход идемпотентен.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	deleted, err := s.store.Delete(ctx, sessionID)
	if err != nil {
		logger.Errorf("logout session_id=%s: %v", maskSessionID(sessionID), err)
		s.events.Record(ctx, audit.Event{Kind: audit.KindStoreError, SessionID: sessionID, Detail: "logout"})
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if deleted {
		logger.Infof("сессия %s завершена по запросу пользователя", maskSessionID(sessionID))
		s.events.Record(ctx, audit.Event{Kind: audit.KindRevoked, SessionID: sessionID, Detail: "logout"})
	}
	return nil
}

// RevokeUser снимает все сессии пользователя (операторская команда).
func (s *SessionService) RevokeUser(ctx context.Context, userID int) (int64, error) {
	n, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		logger.Errorf("revoke user_id=%d: %v", userID, err)
		s.events.Record(ctx, audit.Event{Kind: audit.KindStoreError, UserID: userID, Detail: "revoke"})
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if n > 0 {
		logger.Infof("отозваны сессии пользователя user_id=%d: %d", userID, n)
		s.events.Record(ctx, audit.Event{Kind: audit.KindRevoked, UserID: userID, Detail: fmt.Sprintf("revoked=%d", n)})
	}
	return n, nil
}
