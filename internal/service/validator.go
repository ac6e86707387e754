// validator.go — проверка загрузки до записи байтов в хранилище.
package service

import (
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/bigkaa/studyshare/internal/domain/model"
)

// UploadPolicy — неизменяемые параметры приёма файлов.
type UploadPolicy struct {
	maxFileSize  int64
	allowedTypes map[string]struct{}
}

// NewUploadPolicy создаёт политику загрузки.
// maxFileSize — лимит в байтах, allowedTypes — разрешённые MIME-типы.
func NewUploadPolicy(maxFileSize int64, allowedTypes []string) *UploadPolicy {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &UploadPolicy{maxFileSize: maxFileSize, allowedTypes: allowed}
}

// MaxFileSize возвращает лимит размера файла в байтах.
func (p *UploadPolicy) MaxFileSize() int64 {
	return p.maxFileSize
}

// UploadMetadata — поля формы загрузки.
type UploadMetadata struct {
	Title       string
	Subject     string
	Description string
}

// ValidateMetadata проверяет обязательные поля и длину описания.
func (p *UploadPolicy) ValidateMetadata(m UploadMetadata) error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: поле title обязательно", ErrInvalidMetadata)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: поле subject обязательно", ErrInvalidMetadata)
	}
	if !model.Subject(m.Subject).Valid() {
		return fmt.Errorf("%w: недопустимый subject %q", ErrInvalidMetadata, m.Subject)
	}
	if n := utf8.RuneCountInString(m.Description); n > model.MaxDescriptionLength {
		return fmt.Errorf("%w: description длиной %d символов превышает %d",
			ErrInvalidMetadata, n, model.MaxDescriptionLength)
	}
	return nil
}

// ValidateFile проверяет заявленный MIME-тип и размер.
func (p *UploadPolicy) ValidateFile(mimeType string, size int64) error {
	if _, ok := p.allowedTypes[mimeType]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if size > p.maxFileSize {
		return fmt.Errorf("%w: %d байт при лимите %d", ErrTooLarge, size, p.maxFileSize)
	}
	return nil
}

// NormalizeMimeType приводит Content-Type части multipart к виду "type/subtype".
// Параметры (charset и т.д.) отбрасываются. Пустое значение — application/octet-stream.
func NormalizeMimeType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Нераспознанный заголовок: берём часть до ";"
		if idx := strings.Index(contentType, ";"); idx != -1 {
			contentType = contentType[:idx]
		}
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
