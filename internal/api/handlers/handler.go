// handler.go — основной обработчик API StudyShare.
// Объединяет health, файловые, auth и admin обработчики поверх сервисного слоя.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/studyshare/internal/api/errors"
	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/service"
)

// Services — сервисы, используемые обработчиками.
type Services struct {
	Policy    *service.UploadPolicy
	Upload    *service.UploadService
	Catalog   *service.CatalogService
	Share     *service.ShareService
	Download  *service.DownloadService
	Auth      *service.AuthService
	Admin     *service.AdminService
	Reconcile *service.ReconcileService
}

// APIHandler — основной обработчик API.
type APIHandler struct {
	health *HealthHandler
	svc    Services
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	svc Services,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health: health,
		svc:    svc,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Представления ответов ---

// fileResponse — карточка в ответах API.
// Locator хранилища, checksum и токен ссылки не сериализуются.
type fileResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Subject       string `json:"subject"`
	Description   string `json:"description"`
	FileType      string `json:"fileType"`
	OriginalName  string `json:"originalName"`
	Size          int64  `json:"size"`
	UploaderID    string `json:"uploaderId"`
	UploaderName  string `json:"uploaderName"`
	UploadDate    string `json:"uploadDate"`
	DownloadCount int64  `json:"downloadCount"`
}

func toFileResponse(rec *model.CatalogRecord) fileResponse {
	return fileResponse{
		ID:            rec.ID,
		Title:         rec.Title,
		Subject:       string(rec.Subject),
		Description:   rec.Description,
		FileType:      rec.MimeType,
		OriginalName:  rec.OriginalName,
		Size:          rec.Size,
		UploaderID:    rec.OwnerID,
		UploaderName:  rec.OwnerEmail,
		UploadDate:    formatTime(rec.UploadedAt),
		DownloadCount: rec.DownloadCount,
	}
}

func toFileResponses(recs []*model.CatalogRecord) []fileResponse {
	result := make([]fileResponse, 0, len(recs))
	for _, rec := range recs {
		result = append(result, toFileResponse(rec))
	}
	return result
}

// userResponse — пользователь в ответах API (без хэша пароля).
type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{ID: u.ID, Email: u.Email, Role: u.Role}
	if !u.CreatedAt.IsZero() {
		resp.CreatedAt = formatTime(u.CreatedAt)
	}
	return resp
}

// messageResponse — ответ с текстовым сообщением.
type messageResponse struct {
	Message string `json:"message"`
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса. Неизвестные поля отклоняются.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// formatTime форматирует время для API-ответов.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Неизвестные ошибки логируются и отдаются как 500 без деталей.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthorized(w, "Требуется аутентификация")
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.Unauthorized(w, "Неверный email или пароль")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrInvalidMetadata):
		apierrors.InvalidMetadata(w, err.Error())
	case errors.Is(err, service.ErrUnsupportedType):
		apierrors.UnsupportedType(w, err.Error())
	case errors.Is(err, service.ErrTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrInvalidShareLink):
		apierrors.InvalidShareLink(w, "Ссылка недействительна")
	case errors.Is(err, service.ErrBlobMissing):
		apierrors.BlobMissing(w, "Содержимое файла отсутствует в хранилище")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrReconcileInProgress):
		apierrors.ReconcileInProgress(w, "Сверка хранилища уже выполняется")
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("action", action),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
