package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// tmpPrefix — префикс незавершённой записи. Locator не начинается с точки,
// поэтому временный файл не совпадает ни с одним blob'ом.
const tmpPrefix = ".upload-"

// DiskStore — blob'ы как файлы в одной директории.
type DiskStore struct {
	// dataDir — корневая директория хранения (SS_DATA_DIR)
	dataDir string
	locate  LocatorFunc
}

// NewDiskStore создаёт DiskStore. Создаёт директорию, если её нет.
func NewDiskStore(dataDir string, locate LocatorFunc) (*DiskStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	if locate == nil {
		locate = NewLocatorFunc(nil, nil)
	}
	return &DiskStore{dataDir: dataDir, locate: locate}, nil
}

// DataDir возвращает путь к директории данных.
func (s *DiskStore) DataDir() string {
	return s.dataDir
}

// Put записывает поток на диск с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *DiskStore) Put(ctx context.Context, r io.Reader, originalName string) (*PutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	locator := s.locate(originalName)
	if !validLocator(locator) {
		return nil, fmt.Errorf("некорректный locator %q", locator)
	}
	fullPath := filepath.Join(s.dataDir, locator)
	tmpPath := filepath.Join(s.dataDir, tmpPrefix+locator)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &PutResult{
		Locator:  locator,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл. Body — *os.File, поддерживает Seek для Range-запросов.
func (s *DiskStore) Open(_ context.Context, locator string) (*Blob, error) {
	if !validLocator(locator) {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.dataDir, locator))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", locator, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", locator, err)
	}

	return &Blob{Body: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Exists проверяет существование файла.
func (s *DiskStore) Exists(_ context.Context, locator string) (bool, error) {
	if !validLocator(locator) {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(s.dataDir, locator))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("ошибка проверки файла %s: %w", locator, err)
}

// Delete удаляет файл. nil, если файла уже нет.
func (s *DiskStore) Delete(_ context.Context, locator string) error {
	if !validLocator(locator) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dataDir, locator))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", locator, err)
	}
	return nil
}

// List возвращает файлы директории, пропуская служебные и незавершённые.
func (s *DiskStore) List(ctx context.Context) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории данных: %w", err)
	}

	result := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := de.Name()
		// Скрытые имена: незавершённые записи и служебные файлы
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		result = append(result, Entry{Locator: name, ModTime: info.ModTime()})
	}
	return result, nil
}

// Ping проверяет, что директория данных доступна.
func (s *DiskStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return fmt.Errorf("директория данных недоступна: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является директорией", s.dataDir)
	}
	return nil
}
