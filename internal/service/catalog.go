// Пакет service — бизнес-логика StudyShare.
// catalog.go — чтение каталога: карточка по ID и список с фильтрами.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/repository"
)

// CatalogService — сервис чтения каталога.
type CatalogService struct {
	repo   repository.CatalogRepository
	cache  *CacheService
	logger *slog.Logger
}

// NewCatalogService создаёт сервис каталога.
func NewCatalogService(repo repository.CatalogRepository, cache *CacheService, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		cache:  cache,
		logger: logger.With(slog.String("component", "catalog_service")),
	}
}

// Get возвращает карточку по ID (кэш, затем БД).
// Некорректный UUID обрабатывается как отсутствующая карточка.
func (s *CatalogService) Get(ctx context.Context, id string) (*model.CatalogRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: карточка %s", ErrNotFound, id)
	}

	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: карточка %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("получение карточки: %w", err)
	}

	s.cache.Set(rec)
	return rec, nil
}

// List возвращает карточки по фильтру, новые сначала.
func (s *CatalogService) List(ctx context.Context, filter repository.CatalogFilter) ([]*model.CatalogRecord, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("получение списка карточек: %w", err)
	}

	s.logger.Debug("Список карточек получен", slog.Int("count", len(records)))
	return records, nil
}
