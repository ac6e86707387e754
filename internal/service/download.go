// download.go — выдача содержимого по ID карточки или по токену ссылки.
// Pipeline: карточка → blob → проверка наличия → поток → счётчик.
// Счётчик увеличивает вызывающий код, когда ответ действительно отдаёт файл целиком.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/repository"
	"github.com/bigkaa/studyshare/internal/storage/blobstore"
)

// Пути скачивания для метрик.
const (
	DownloadPathDirect = "direct"
	DownloadPathShare  = "share"
)

// Prometheus-метрики скачивания.
var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ss_downloads_total",
	Help: "Общее количество запросов на скачивание (по пути и результату).",
}, []string{"path", "result"})

// Download — карточка и открытый blob. Вызывающий код обязан закрыть Blob.Body.
type Download struct {
	Record *model.CatalogRecord
	Blob   *blobstore.Blob
}

// DownloadService — сервис скачивания.
type DownloadService struct {
	catalog *CatalogService
	shares  *ShareService
	repo    repository.CatalogRepository
	store   blobstore.Store
	cache   *CacheService
	logger  *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	catalog *CatalogService,
	shares *ShareService,
	repo repository.CatalogRepository,
	store blobstore.Store,
	cache *CacheService,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		catalog: catalog,
		shares:  shares,
		repo:    repo,
		store:   store,
		cache:   cache,
		logger:  logger.With(slog.String("component", "download_service")),
	}
}

// OpenByID открывает файл по ID карточки. ErrNotFound для неизвестного ID.
func (s *DownloadService) OpenByID(ctx context.Context, id string) (*Download, error) {
	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		downloadsTotal.WithLabelValues(DownloadPathDirect, resultLabel(err)).Inc()
		return nil, err
	}
	return s.open(ctx, rec, DownloadPathDirect)
}

// OpenByShareToken открывает файл по токену. ErrInvalidShareLink для неизвестного токена.
func (s *DownloadService) OpenByShareToken(ctx context.Context, token string) (*Download, error) {
	rec, err := s.shares.Resolve(ctx, token)
	if err != nil {
		downloadsTotal.WithLabelValues(DownloadPathShare, resultLabel(err)).Inc()
		return nil, err
	}
	return s.open(ctx, rec, DownloadPathShare)
}

// open открывает blob карточки.
func (s *DownloadService) open(ctx context.Context, rec *model.CatalogRecord, path string) (*Download, error) {
	blob, err := s.store.Open(ctx, rec.StorageLocator)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Error("Blob карточки отсутствует в хранилище",
				slog.String("file_id", rec.ID),
				slog.String("locator", rec.StorageLocator),
			)
			downloadsTotal.WithLabelValues(path, "blob_missing").Inc()
			return nil, fmt.Errorf("%w: карточка %s", ErrBlobMissing, rec.ID)
		}
		downloadsTotal.WithLabelValues(path, "error").Inc()
		return nil, fmt.Errorf("открытие blob %s: %w", rec.StorageLocator, err)
	}

	downloadsTotal.WithLabelValues(path, "success").Inc()
	s.logger.Debug("Файл отдаётся",
		slog.String("file_id", rec.ID),
		slog.String("path", path),
		slog.Int64("size", blob.Size),
	)

	return &Download{Record: rec, Blob: blob}, nil
}

// RecordDownload увеличивает счётчик скачиваний и инвалидирует кэш карточки.
// Ошибка счётчика не прерывает скачивание, только логируется.
func (s *DownloadService) RecordDownload(ctx context.Context, dl *Download) {
	rec := dl.Record
	count, err := s.repo.IncrementDownloadCount(ctx, rec.ID)
	if err != nil {
		s.logger.Warn("Не удалось увеличить счётчик скачиваний",
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	rec.DownloadCount = count
	s.cache.Delete(rec.ID)
}

// resultLabel сводит ошибку разрешения к метке метрики.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidShareLink):
		return "invalid_link"
	default:
		return "error"
	}
}
