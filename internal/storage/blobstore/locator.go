package blobstore

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxExtLength — максимальная длина расширения в locator'е (без точки).
const maxExtLength = 10

// LocatorFunc генерирует имя blob'а по оригинальному имени файла.
type LocatorFunc func(originalName string) string

// NewLocatorFunc создаёт генератор locator'ов.
// Формат: {unix_ms}-{uuid}{.ext}
// Пример: 1700000000000-0b5c6f3e-8a4d-4a52-9d0e-3f1c2b7a9e11.pdf
//
// now и newID подменяются в тестах; nil — time.Now и uuid.NewString.
func NewLocatorFunc(now func() time.Time, newID func() string) LocatorFunc {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return func(originalName string) string {
		ts := strconv.FormatInt(now().UTC().UnixMilli(), 10)
		return ts + "-" + newID() + sanitizeExt(originalName)
	}
}

// sanitizeExt возвращает безопасное расширение с точкой или пустую строку.
// Оставляет только латинские буквы и цифры в нижнем регистре.
func sanitizeExt(originalName string) string {
	ext := strings.TrimPrefix(filepath.Ext(originalName), ".")
	if ext == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range strings.ToLower(ext) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}

	s := b.String()
	if len(s) > maxExtLength {
		s = s[:maxExtLength]
	}
	return "." + s
}

// validLocator проверяет, что locator — простое имя без путей.
func validLocator(locator string) bool {
	if locator == "" || strings.HasPrefix(locator, ".") {
		return false
	}
	return !strings.ContainsAny(locator, `/\`)
}
