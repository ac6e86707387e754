package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/notify"
	"github.com/bigkaa/studyshare/internal/repository"
	"github.com/bigkaa/studyshare/internal/storage/blobstore"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeCatalogRepo — in-memory реализация repository.CatalogRepository.
type fakeCatalogRepo struct {
	mu      sync.Mutex
	records map[string]*model.CatalogRecord
	clock   time.Time

	createErr    error
	incrementErr error
	getCalls     int
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		records: make(map[string]*model.CatalogRecord),
		clock:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeCatalogRepo) Create(_ context.Context, rec *model.CatalogRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.records[rec.ID]; ok {
		return repository.ErrConflict
	}
	f.clock = f.clock.Add(time.Second)
	rec.UploadedAt = f.clock
	rec.DownloadCount = 0
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeCatalogRepo) GetByID(_ context.Context, id string) (*model.CatalogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	rec, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeCatalogRepo) GetByShareToken(_ context.Context, token string) (*model.CatalogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ShareToken != nil && *rec.ShareToken == token {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCatalogRepo) List(_ context.Context, filter repository.CatalogFilter) ([]*model.CatalogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*model.CatalogRecord, 0)
	for _, rec := range f.records {
		if filter.Subject != nil && string(rec.Subject) != *filter.Subject {
			continue
		}
		if filter.OwnerID != nil && rec.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.UploadedFrom != nil && rec.UploadedAt.Before(*filter.UploadedFrom) {
			continue
		}
		if filter.UploadedTo != nil && rec.UploadedAt.After(*filter.UploadedTo) {
			continue
		}
		if filter.Search != nil && *filter.Search != "" {
			s := strings.ToLower(*filter.Search)
			if !strings.Contains(strings.ToLower(rec.Title), s) &&
				!strings.Contains(strings.ToLower(rec.Description), s) {
				continue
			}
		}
		cp := *rec
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UploadedAt.After(result[j].UploadedAt) })
	return result, nil
}

func (f *fakeCatalogRepo) IncrementDownloadCount(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	rec, ok := f.records[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	rec.DownloadCount++
	return rec.DownloadCount, nil
}

func (f *fakeCatalogRepo) SetShareToken(_ context.Context, id, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for otherID, rec := range f.records {
		if otherID != id && rec.ShareToken != nil && *rec.ShareToken == token {
			return repository.ErrConflict
		}
	}
	rec, ok := f.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	t := token
	rec.ShareToken = &t
	return nil
}

func (f *fakeCatalogRepo) Delete(_ context.Context, id string) (*model.CatalogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(f.records, id)
	return rec, nil
}

func (f *fakeCatalogRepo) ListLocators(_ context.Context) ([]repository.LocatorEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []repository.LocatorEntry
	for _, rec := range f.records {
		result = append(result, repository.LocatorEntry{RecordID: rec.ID, StorageLocator: rec.StorageLocator})
	}
	return result, nil
}

func (f *fakeCatalogRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeCatalogRepo) downloads(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok {
		return rec.DownloadCount
	}
	return -1
}

// fakeUserRepo — in-memory реализация repository.UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrConflict
		}
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) List(_ context.Context) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*model.User, 0, len(f.users))
	for _, u := range f.users {
		cp := *u
		result = append(result, &cp)
	}
	return result, nil
}

// failingDeleteStore — blobstore.Store, у которого Delete всегда завершается ошибкой.
type failingDeleteStore struct {
	blobstore.Store
}

func (s failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("диск недоступен")
}

// recordingNotifier запоминает отправленные письма.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.sent...)
}

// newTestDiskStore создаёт DiskStore во временной директории.
func newTestDiskStore(t *testing.T) *blobstore.DiskStore {
	t.Helper()
	store, err := blobstore.NewDiskStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("ошибка создания DiskStore: %v", err)
	}
	return store
}
