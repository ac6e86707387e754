// auth.go — регистрация, вход и выпуск JWT (HS256).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/notify"
	"github.com/bigkaa/studyshare/internal/repository"
)

// Ограничения пароля. bcrypt учитывает не более 72 байт.
const (
	minPasswordLength = 6
	maxPasswordBytes  = 72
)

// maxEmailLength совпадает с шириной колонки users.email.
const maxEmailLength = 320

// welcomeSubject — тема приветственного письма.
const welcomeSubject = "Welcome to Student File Sharing"

// welcomeTimeout — таймаут отправки приветственного письма.
const welcomeTimeout = 30 * time.Second

// Кэш email → локальный ID для пользователей внешнего IdP.
const (
	externalCacheSize = 1024
	externalCacheTTL  = 10 * time.Minute
)

// RealmAccess — роли внешнего IdP (Keycloak realm_access).
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// TokenClaims — claims JWT StudyShare.
// Собственные токены несут role; токены внешнего IdP — realm_access.roles.
type TokenClaims struct {
	jwt.RegisteredClaims
	// Email — email пользователя
	Email string `json:"email,omitempty"`
	// Role — user или admin
	Role string `json:"role,omitempty"`
	// RealmAccess — роли внешнего IdP
	RealmAccess *RealmAccess `json:"realm_access,omitempty"`
}

// AuthConfig — параметры выпуска токенов и регистрации.
type AuthConfig struct {
	Secret           []byte
	TTL              time.Duration
	Issuer           string
	AllowAdminSignup bool
}

// RegisterParams — данные регистрации.
type RegisterParams struct {
	Email    string
	Password string
	// Role — user (по умолчанию) или admin
	Role string
}

// AuthResult — пользователь и выпущенный токен.
type AuthResult struct {
	User  *model.User
	Token string
}

// AuthService — учётные записи и токены.
type AuthService struct {
	users    repository.UserRepository
	notifier notify.Notifier
	cfg      AuthConfig
	now      func() time.Time
	logger   *slog.Logger

	// external — локальные ID пользователей внешнего IdP по email
	external *expirable.LRU[string, string]

	// wg — фоновые отправки писем
	wg sync.WaitGroup
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(
	users repository.UserRepository,
	notifier notify.Notifier,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "auth_service")),
		external: expirable.NewLRU[string, string](externalCacheSize, nil, externalCacheTTL),
	}
}

// Register создаёт пользователя, выпускает токен и отправляет приветственное письмо.
// Ошибка отправки письма не влияет на результат.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, err
	}

	role := params.Role
	if role == "" {
		role = model.RoleUser
	}
	if !model.ValidRole(role) {
		return nil, fmt.Errorf("%w: недопустимая роль %q", ErrValidation, role)
	}
	if role == model.RoleAdmin && !s.cfg.AllowAdminSignup {
		return nil, fmt.Errorf("%w: регистрация с ролью admin запрещена", ErrForbidden)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("хэширование пароля: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: пользователь %s уже зарегистрирован", ErrConflict, email)
		}
		return nil, fmt.Errorf("создание пользователя: %w", err)
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	s.sendWelcome(ctx, user.Email)

	return &AuthResult{User: user, Token: token}, nil
}

// Login проверяет email и пароль. Для неизвестного email и неверного
// пароля возвращается одна и та же ошибка ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("Неверный пароль", slog.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Me возвращает профиль пользователя по ID из токена.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: пользователь %s", ErrNotFound, userID)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь %s", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// ResolveExternalUser возвращает локальный ID пользователя внешнего IdP.
// Пользователь сопоставляется по email; при первом обращении создаётся
// учётная запись без пароля, войти в неё через Login нельзя.
// Токен без email — ErrValidation.
func (s *AuthService) ResolveExternalUser(ctx context.Context, subject, email, role string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", fmt.Errorf("токен внешнего IdP (sub %s): %w", subject, err)
	}
	if id, ok := s.external.Get(email); ok {
		return id, nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		user, err = s.provisionExternal(ctx, subject, email, role)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("поиск пользователя %s: %w", email, err)
	}

	s.external.Add(email, user.ID)
	return user.ID, nil
}

// provisionExternal создаёт учётную запись пользователя внешнего IdP.
// Параллельный запрос мог создать её раньше: тогда она перечитывается.
func (s *AuthService) provisionExternal(ctx context.Context, subject, email, role string) (*model.User, error) {
	if !model.ValidRole(role) {
		role = model.RoleUser
	}
	user := &model.User{
		ID:    uuid.NewString(),
		Email: email,
		Role:  role,
	}
	err := s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrConflict) {
		user, err = s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("учётная запись внешнего пользователя %s: %w", email, err)
	}

	s.logger.Info("Создана учётная запись пользователя внешнего IdP",
		slog.String("user_id", user.ID),
		slog.String("external_sub", subject),
		slog.String("role", user.Role),
	)
	return user, nil
}

// IssueToken подписывает HS256 токен для пользователя.
func (s *AuthService) IssueToken(user *model.User) (string, error) {
	now := s.now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
		Email: user.Email,
		Role:  user.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// Wait дожидается завершения фоновых отправок писем.
func (s *AuthService) Wait() {
	s.wg.Wait()
}

// sendWelcome отправляет приветственное письмо в фоне.
func (s *AuthService) sendWelcome(ctx context.Context, email string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), welcomeTimeout)
		defer cancel()

		err := s.notifier.Send(sendCtx, notify.Message{
			To:      email,
			Subject: welcomeSubject,
			Body: "Hello,\n\nyour StudyShare account has been created. " +
				"You can now upload, search and share study materials.\n",
		})
		if err != nil {
			s.logger.Warn("Не удалось отправить приветственное письмо",
				slog.String("to", email),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// normalizeEmail приводит email к нижнему регистру и проверяет формат.
// Допускается только голый адрес, без отображаемого имени.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email обязателен", ErrValidation)
	}
	if len(email) > maxEmailLength {
		return "", fmt.Errorf("%w: email длиннее %d символов", ErrValidation, maxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: некорректный email %q", ErrValidation, raw)
	}
	return email, nil
}

// validatePassword проверяет длину пароля.
func validatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return fmt.Errorf("%w: пароль должен содержать не менее %d символов", ErrValidation, minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: пароль длиннее %d байт", ErrValidation, maxPasswordBytes)
	}
	return nil
}
