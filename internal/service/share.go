// share.go — выпуск и разрешение токенов публичных ссылок.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/repository"
)

// shareTokenBytes — энтропия токена: 32 байта = 256 бит, 64 hex-символа.
const shareTokenBytes = 32

// maxTokenAttempts — число попыток при коллизии токена.
const maxTokenAttempts = 3

// ShareService — выпуск и разрешение токенов ссылок.
type ShareService struct {
	repo    repository.CatalogRepository
	cache   *CacheService
	random  io.Reader
	baseURL string
	logger  *slog.Logger
}

// NewShareService создаёт сервис ссылок.
// baseURL — внешний адрес сервиса без завершающего "/".
func NewShareService(
	repo repository.CatalogRepository,
	cache *CacheService,
	baseURL string,
	logger *slog.Logger,
) *ShareService {
	return &ShareService{
		repo:    repo,
		cache:   cache,
		random:  rand.Reader,
		baseURL: baseURL,
		logger:  logger.With(slog.String("component", "share_service")),
	}
}

// WithRandom подменяет источник случайности (для тестов).
func (s *ShareService) WithRandom(r io.Reader) *ShareService {
	s.random = r
	return s
}

// Issue выпускает новый токен для карточки. Предыдущий токен перестаёт действовать.
// Доступно любому аутентифицированному пользователю.
func (s *ShareService) Issue(ctx context.Context, id, requesterID string) (string, error) {
	if requesterID == "" {
		return "", ErrUnauthenticated
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: карточка %s", ErrNotFound, id)
	}

	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return "", err
		}

		err = s.repo.SetShareToken(ctx, id, token)
		switch {
		case err == nil:
			s.cache.Delete(id)
			s.logger.Info("Выпущена ссылка",
				slog.String("file_id", id),
				slog.String("requested_by", requesterID),
			)
			return token, nil
		case errors.Is(err, repository.ErrNotFound):
			return "", fmt.Errorf("%w: карточка %s", ErrNotFound, id)
		case errors.Is(err, repository.ErrConflict) && attempt < maxTokenAttempts:
			s.logger.Warn("Коллизия токена ссылки, повтор", slog.Int("attempt", attempt))
			continue
		default:
			return "", fmt.Errorf("сохранение токена: %w", err)
		}
	}
}

// Resolve возвращает карточку по токену.
// Токен неверного формата отклоняется без обращения к БД.
func (s *ShareService) Resolve(ctx context.Context, token string) (*model.CatalogRecord, error) {
	if !validShareToken(token) {
		return nil, ErrInvalidShareLink
	}

	rec, err := s.repo.GetByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidShareLink
		}
		return nil, fmt.Errorf("поиск карточки по токену: %w", err)
	}
	return rec, nil
}

// URL возвращает публичную ссылку скачивания для токена.
func (s *ShareService) URL(token string) string {
	return s.baseURL + "/api/files/share/" + token + "/download"
}

// newToken генерирует 256-битный токен в hex.
func (s *ShareService) newToken() (string, error) {
	buf := make([]byte, shareTokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("генерация токена: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// validShareToken проверяет длину и алфавит токена (нижний регистр hex).
func validShareToken(token string) bool {
	if len(token) != shareTokenBytes*2 {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
