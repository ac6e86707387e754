// Пакет errors — конструкторы ответов с ошибками StudyShare.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInvalidMetadata     = "INVALID_METADATA"
	CodeUnsupportedType     = "UNSUPPORTED_TYPE"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidShareLink    = "INVALID_SHARE_LINK"
	CodeBlobMissing         = "BLOB_MISSING"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeConflict            = "CONFLICT"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeInternalError       = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// InvalidMetadata — 400 отсутствуют или некорректны title/subject/description.
func InvalidMetadata(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidMetadata, message)
}

// UnsupportedType — 400 MIME-тип вне списка разрешённых.
func UnsupportedType(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeUnsupportedType, message)
}

// FileTooLarge — 400 файл превышает лимит размера.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeFileTooLarge, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// InvalidShareLink — 404 токен ссылки неизвестен или устарел.
func InvalidShareLink(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeInvalidShareLink, message)
}

// BlobMissing — 404 карточка есть, содержимого в хранилище нет.
func BlobMissing(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeBlobMissing, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// Conflict — 409 ресурс уже существует.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
