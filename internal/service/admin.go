// admin.go — операции администратора: пользователи, файлы, удаление.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/repository"
	"github.com/bigkaa/studyshare/internal/storage/blobstore"
)

// AdminService — сервис администрирования.
type AdminService struct {
	users  repository.UserRepository
	repo   repository.CatalogRepository
	store  blobstore.Store
	cache  *CacheService
	logger *slog.Logger
}

// NewAdminService создаёт сервис администрирования.
func NewAdminService(
	users repository.UserRepository,
	repo repository.CatalogRepository,
	store blobstore.Store,
	cache *CacheService,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		users:  users,
		repo:   repo,
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "admin_service")),
	}
}

// ListUsers возвращает всех пользователей, новые сначала.
func (s *AdminService) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка пользователей: %w", err)
	}
	return users, nil
}

// ListFiles возвращает все карточки, новые сначала.
func (s *AdminService) ListFiles(ctx context.Context) ([]*model.CatalogRecord, error) {
	records, err := s.repo.List(ctx, repository.CatalogFilter{})
	if err != nil {
		return nil, fmt.Errorf("получение списка карточек: %w", err)
	}
	return records, nil
}

// DeleteFile удаляет карточку, затем blob.
// Ошибка удаления blob'а только логируется: карточка уже удалена,
// оставшийся blob удалит сверка хранилища.
// Повторное удаление возвращает ErrNotFound.
func (s *AdminService) DeleteFile(ctx context.Context, id, adminID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: карточка %s", ErrNotFound, id)
	}

	rec, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: карточка %s", ErrNotFound, id)
		}
		return fmt.Errorf("удаление карточки: %w", err)
	}
	s.cache.Delete(id)

	if err := s.store.Delete(context.WithoutCancel(ctx), rec.StorageLocator); err != nil {
		s.logger.Warn("Blob не удалён, карточка удалена",
			slog.String("file_id", id),
			slog.String("locator", rec.StorageLocator),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Файл удалён администратором",
		slog.String("file_id", id),
		slog.String("title", rec.Title),
		slog.String("admin_id", adminID),
	)
	return nil
}
