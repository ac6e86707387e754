// Пакет blobstore — хранилище содержимого загруженных файлов.
// Две реализации: локальный диск и S3-совместимое объектное хранилище.
// Blob адресуется непрозрачным locator'ом, который генерирует LocatorFunc.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound — blob с указанным locator'ом отсутствует.
var ErrNotFound = errors.New("blob не найден")

// PutResult — результат записи blob'а.
type PutResult struct {
	// Locator — имя blob'а в хранилище
	Locator string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого (hex)
	Checksum string
}

// Blob — открытый для чтения blob.
// Вызывающий код обязан закрыть Body.
type Blob struct {
	// Body — поток содержимого. Для disk backend реализует io.ReadSeeker.
	Body io.ReadCloser
	// Size — размер в байтах
	Size int64
	// ModTime — время последней записи
	ModTime time.Time
}

// Entry — элемент листинга хранилища для reconciliation.
type Entry struct {
	Locator string
	ModTime time.Time
}

// Store — операции над blob'ами.
type Store interface {
	// Put атомарно записывает поток и возвращает новый locator.
	// Частично записанный blob никогда не виден под locator'ом.
	Put(ctx context.Context, r io.Reader, originalName string) (*PutResult, error)
	// Open открывает blob на чтение. ErrNotFound, если blob отсутствует.
	Open(ctx context.Context, locator string) (*Blob, error)
	// Exists проверяет наличие blob'а.
	Exists(ctx context.Context, locator string) (bool, error)
	// Delete удаляет blob. Отсутствие blob'а не является ошибкой.
	Delete(ctx context.Context, locator string) error
	// List возвращает все blob'ы хранилища.
	List(ctx context.Context) ([]Entry, error)
	// Ping проверяет доступность хранилища (для readiness).
	Ping(ctx context.Context) error
}
