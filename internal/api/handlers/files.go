// files.go — HTTP handlers файлового каталога.
// Upload, List/search, Get, Download, Share, Download по ссылке.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/studyshare/internal/api/errors"
	"github.com/bigkaa/studyshare/internal/api/middleware"
	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/repository"
	"github.com/bigkaa/studyshare/internal/service"
)

// multipartMemory — объём multipart в памяти, остальное — во временных файлах.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки частей и текстовые поля формы.
const multipartOverhead = 1 << 20

// dateLayout — формат даты без времени в фильтрах.
const dateLayout = "2006-01-02"

// uploadResponse — ответ на успешную загрузку.
type uploadResponse struct {
	Message string       `json:"message"`
	File    fileResponse `json:"file"`
}

// shareResponse — ответ на выпуск ссылки.
type shareResponse struct {
	ShareURL string `json:"shareUrl"`
}

// UploadFile обрабатывает POST /api/files/upload.
// Multipart form: file (обязательно), title, subject (обязательно), description.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.svc.Policy.MaxFileSize()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Файл превышает лимит %d байт", h.svc.Policy.MaxFileSize()))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка разбора multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	rec, err := h.svc.Upload.Upload(r.Context(), service.UploadParams{
		Reader:       file,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
		OwnerID:      claims.Subject,
		OwnerEmail:   claims.Email,
		Metadata: service.UploadMetadata{
			Title:       r.FormValue("title"),
			Subject:     r.FormValue("subject"),
			Description: r.FormValue("description"),
		},
	})
	if err != nil {
		h.writeServiceError(w, r, err, "upload")
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Message: "Файл загружен",
		File:    toFileResponse(rec),
	})
}

// ListFiles обрабатывает GET /api/files.
// Фильтры: subject, uploader, startDate, endDate, search; пагинация: limit, offset.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCatalogFilter(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	records, err := h.svc.Catalog.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err, "list")
		return
	}

	writeJSON(w, http.StatusOK, toFileResponses(records))
}

// GetFile обрабатывает GET /api/files/{id}.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(rec))
}

// DownloadFile обрабатывает GET /api/files/{id}/download.
func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	dl, err := h.svc.Download.OpenByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err, "download")
		return
	}
	h.serveDownload(w, r, dl)
}

// ShareFile обрабатывает POST /api/files/{id}/share.
// Выпускает новый токен; предыдущая ссылка перестаёт действовать.
func (h *APIHandler) ShareFile(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.Share.Issue(r.Context(), chi.URLParam(r, "id"), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err, "share")
		return
	}
	writeJSON(w, http.StatusOK, shareResponse{ShareURL: h.svc.Share.URL(token)})
}

// DownloadShared обрабатывает GET /api/files/share/{token}/download.
func (h *APIHandler) DownloadShared(w http.ResponseWriter, r *http.Request) {
	dl, err := h.svc.Download.OpenByShareToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(w, r, err, "download_shared")
		return
	}
	h.serveDownload(w, r, dl)
}

// serveDownload отдаёт содержимое под исходным именем файла.
// Seekable blob'ы (disk) отдаются через http.ServeContent с поддержкой Range и ETag,
// остальные (s3) — потоком.
// Счётчик скачиваний растёт только при полном ответе 200 на GET.
func (h *APIHandler) serveDownload(rw http.ResponseWriter, r *http.Request, dl *service.Download) {
	defer dl.Blob.Body.Close()

	w := &downloadWriter{ResponseWriter: rw}
	if r.Method == http.MethodGet {
		w.onFull = func() { h.svc.Download.RecordDownload(r.Context(), dl) }
	}

	rec := dl.Record
	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", contentDisposition(rec.OriginalName))
	if rec.Checksum != "" {
		w.Header().Set("ETag", fmt.Sprintf("%q", rec.Checksum))
	}

	if rs, ok := dl.Blob.Body.(io.ReadSeeker); ok {
		w.Header().Set("Accept-Ranges", "bytes")
		http.ServeContent(w, r, "", dl.Blob.ModTime, rs)
		return
	}

	if dl.Blob.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Blob.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, dl.Blob.Body); err != nil {
		h.logger.Warn("Скачивание прервано",
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// downloadWriter вызывает onFull один раз, если ответ начинается со статуса 200.
// 206, 304 и ошибки Range проходят мимо.
type downloadWriter struct {
	http.ResponseWriter
	onFull      func()
	wroteHeader bool
}

func (w *downloadWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if code == http.StatusOK && w.onFull != nil {
			w.onFull()
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *downloadWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *downloadWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// contentDisposition формирует заголовок attachment с именем файла.
// Не-ASCII имена кодируются по RFC 2231 (filename*=utf-8'').
func contentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

// parseCatalogFilter разбирает параметры запроса списка.
// Пустые параметры означают отсутствие фильтра.
func parseCatalogFilter(q url.Values) (repository.CatalogFilter, error) {
	var filter repository.CatalogFilter

	if v := strings.TrimSpace(q.Get("subject")); v != "" {
		if !model.Subject(v).Valid() {
			return filter, fmt.Errorf("недопустимый subject %q", v)
		}
		filter.Subject = &v
	}

	if v := strings.TrimSpace(q.Get("uploader")); v != "" {
		if _, err := uuid.Parse(v); err != nil {
			return filter, fmt.Errorf("параметр uploader должен быть UUID")
		}
		filter.OwnerID = &v
	}

	if v := strings.TrimSpace(q.Get("startDate")); v != "" {
		from, _, err := parseDate(v)
		if err != nil {
			return filter, fmt.Errorf("параметр startDate: %w", err)
		}
		filter.UploadedFrom = &from
	}

	if v := strings.TrimSpace(q.Get("endDate")); v != "" {
		to, dateOnly, err := parseDate(v)
		if err != nil {
			return filter, fmt.Errorf("параметр endDate: %w", err)
		}
		// Дата без времени включает весь день
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.UploadedTo = &to
	}

	if filter.UploadedFrom != nil && filter.UploadedTo != nil && filter.UploadedFrom.After(*filter.UploadedTo) {
		return filter, errors.New("startDate позже endDate")
	}

	if v := q.Get("search"); strings.TrimSpace(v) != "" {
		filter.Search = &v
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			return filter, errors.New("параметр limit должен быть от 1 до 1000")
		}
		filter.Limit = limit
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, errors.New("параметр offset не может быть отрицательным")
		}
		filter.Offset = offset
	}

	return filter, nil
}

// parseDate принимает RFC 3339 или YYYY-MM-DD (UTC).
// dateOnly сообщает, что время не было указано.
func parseDate(v string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	if t, err = time.Parse(dateLayout, v); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("некорректная дата %q, ожидается YYYY-MM-DD или RFC 3339", v)
}
