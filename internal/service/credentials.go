package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/model"
	"github.com/machinepark/internal/repository"
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// bcryptCost выше дефолтного: входы в портал редкие, лишние ~100мс не мешают.
const bcryptCost = 12

// UserStore — операции справочника пользователей (реализация в repository).
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit int) ([]model.User, error)
}

// CredentialService проверяет и заводит учётные данные. Хэши bcrypt;
// строки со старым sha256-хэксом продолжают проверяться, пока пользователь
// не сменит пароль.
type CredentialService struct {
	users UserStore
}

func NewCredentialService(users UserStore) *CredentialService {
	return &CredentialService{users: users}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VerifyCredentials возвращает личность пользователя по email и паролю.
// Неизвестный email и неверный пароль неразличимы снаружи: оба дают
// ErrInvalidCredentials.
func (c *CredentialService) VerifyCredentials(ctx context.Context, email, password string) (model.Identity, error) {
	email = normalizeEmail(email)
	u, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Identity{}, ErrInvalidCredentials
		}
		return model.Identity{}, fmt.Errorf("credentials: get user: %w", err)
	}
	if !verifyPassword(u.PasswordHash, password) {
		logger.Infof("неверный пароль для %s", u.Login)
		return model.Identity{}, ErrInvalidCredentials
	}
	return u.Identity(), nil
}

func verifyPassword(hash, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	// Старый формат: hex(sha256(password)) без соли.
	sum := sha256.Sum256([]byte(password))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(hash)), []byte(want)) == 1
}

// CreateUser регистрирует пользователя с bcrypt-хэшем пароля.
func (c *CredentialService) CreateUser(ctx context.Context, login, email, password string) (*model.User, error) {
	login = strings.TrimSpace(login)
	email = normalizeEmail(email)
	if login == "" {
		return nil, errors.New("login is required")
	}
	if !emailRegexp.MatchString(email) {
		return nil, fmt.Errorf("invalid email format: %s", email)
	}
	if utf8.RuneCountInString(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	exists, err := c.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("credentials: check email: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("user with email %s already exists", email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credentials: hash password: %w", err)
	}
	u := &model.User{
		Login:        login,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("credentials: create user: %w", err)
	}
	logger.Infof("заведён пользователь %s (%s)", login, email)
	return u, nil
}

// ExistsByEmail сообщает форме входа, есть ли такой пользователь.
func (c *CredentialService) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	exists, err := c.users.ExistsByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return false, fmt.Errorf("credentials: check email: %w", err)
	}
	return exists, nil
}

// List отдаёт пользователей для операторской утилиты.
func (c *CredentialService) List(ctx context.Context, limit int) ([]model.User, error) {
	return c.users.List(ctx, limit)
}
