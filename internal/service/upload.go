// upload.go — сервис загрузки файлов: проверка, blob, карточка.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/repository"
	"github.com/bigkaa/studyshare/internal/storage/blobstore"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_uploads_total",
		Help: "Общее количество попыток загрузки (по результату).",
	}, []string{"result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_upload_bytes_total",
		Help: "Общее количество принятых байт.",
	})
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalName — имя файла от клиента
	OriginalName string
	// MimeType — заявленный Content-Type части multipart
	MimeType string
	// Size — заявленный размер в байтах
	Size int64
	// OwnerID — ID аутентифицированного пользователя (sub из JWT)
	OwnerID string
	// OwnerEmail — email пользователя для ответа
	OwnerEmail string

	Metadata UploadMetadata
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	policy *UploadPolicy
	store  blobstore.Store
	repo   repository.CatalogRepository
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	policy *UploadPolicy,
	store blobstore.Store,
	repo repository.CatalogRepository,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		policy: policy,
		store:  store,
		repo:   repo,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload принимает файл.
//
// Поток:
//  1. Проверка пользователя, метаданных, MIME-типа и заявленного размера
//  2. Запись blob'а (не более лимита + 1 байт)
//  3. Проверка фактического размера
//  4. Создание карточки
//
// При ошибке после шага 2 записанный blob удаляется.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*model.CatalogRecord, error) {
	if params.OwnerID == "" {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrUnauthenticated
	}
	if err := s.policy.ValidateMetadata(params.Metadata); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	mimeType := NormalizeMimeType(params.MimeType)
	if err := s.policy.ValidateFile(mimeType, params.Size); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// Заявленный размер может быть занижен: ограничиваем поток
	limited := io.LimitReader(params.Reader, s.policy.MaxFileSize()+1)
	put, err := s.store.Put(ctx, limited, params.OriginalName)
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("запись blob: %w", err)
	}

	if put.Size > s.policy.MaxFileSize() {
		s.discardBlob(ctx, put.Locator)
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: фактический размер превышает %d байт", ErrTooLarge, s.policy.MaxFileSize())
	}

	rec := &model.CatalogRecord{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(params.Metadata.Title),
		Subject:        model.Subject(params.Metadata.Subject),
		Description:    params.Metadata.Description,
		StorageLocator: put.Locator,
		MimeType:       mimeType,
		OriginalName:   params.OriginalName,
		Size:           put.Size,
		Checksum:       put.Checksum,
		OwnerID:        params.OwnerID,
		OwnerEmail:     params.OwnerEmail,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.discardBlob(ctx, put.Locator)
		switch {
		case errors.Is(err, repository.ErrUnknownOwner):
			uploadsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: пользователь %s не зарегистрирован", ErrUnauthenticated, rec.OwnerID)
		case errors.Is(err, repository.ErrInvalidValue):
			uploadsTotal.WithLabelValues("rejected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
		uploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("создание карточки: %w", err)
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(put.Size))

	s.logger.Info("Файл загружен",
		slog.String("file_id", rec.ID),
		slog.String("filename", rec.OriginalName),
		slog.String("subject", string(rec.Subject)),
		slog.Int64("size", rec.Size),
		slog.String("checksum", rec.Checksum),
		slog.String("owner_id", rec.OwnerID),
	)

	return rec, nil
}

// discardBlob удаляет blob, для которого не будет карточки.
// Ошибка только логируется: blob подберёт сверка хранилища.
func (s *UploadService) discardBlob(ctx context.Context, locator string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), locator); err != nil {
		s.logger.Warn("Не удалось удалить blob без карточки",
			slog.String("locator", locator),
			slog.String("error", err.Error()),
		)
	}
}
