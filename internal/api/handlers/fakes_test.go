package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/studyshare/internal/domain/model"
	"github.com/bigkaa/studyshare/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memCatalog — in-memory repository.CatalogRepository.
type memCatalog struct {
	mu      sync.Mutex
	records map[string]*model.CatalogRecord
	clock   time.Time
	// owners — если задан, owner_id проверяется как внешний ключ
	owners *memUsers
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		records: make(map[string]*model.CatalogRecord),
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memCatalog) Create(ctx context.Context, rec *model.CatalogRecord) error {
	if m.owners != nil {
		if _, err := m.owners.GetByID(ctx, rec.OwnerID); err != nil {
			return fmt.Errorf("%w: owner %s", repository.ErrUnknownOwner, rec.OwnerID)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	rec.UploadedAt = m.clock
	rec.DownloadCount = 0
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memCatalog) GetByID(_ context.Context, id string) (*model.CatalogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memCatalog) GetByShareToken(_ context.Context, token string) (*model.CatalogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ShareToken != nil && *rec.ShareToken == token {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCatalog) List(_ context.Context, filter repository.CatalogFilter) ([]*model.CatalogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*model.CatalogRecord, 0)
	for _, rec := range m.records {
		if filter.Subject != nil && string(rec.Subject) != *filter.Subject {
			continue
		}
		if filter.OwnerID != nil && rec.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Search != nil {
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

func (m *memCatalog) IncrementDownloadCount(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	rec.DownloadCount++
	return rec.DownloadCount, nil
}

func (m *memCatalog) SetShareToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.ShareToken = &token
	return nil
}

func (m *memCatalog) Delete(_ context.Context, id string) (*model.CatalogRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.records, id)
	return rec, nil
}

func (m *memCatalog) ListLocators(_ context.Context) ([]repository.LocatorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]repository.LocatorEntry, 0, len(m.records))
	for _, rec := range m.records {
		result = append(result, repository.LocatorEntry{RecordID: rec.ID, StorageLocator: rec.StorageLocator})
	}
	return result, nil
}

// memUsers — in-memory repository.UserRepository.
type memUsers struct {
	mu    sync.Mutex
	users []*model.User
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrConflict
		}
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.users = append(m.users, &cp)
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) List(_ context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*model.User, 0, len(m.users))
	for i := len(m.users) - 1; i >= 0; i-- {
		cp := *m.users[i]
		result = append(result, &cp)
	}
	return result, nil
}

// staticChecker — ReadinessChecker с фиксированным ответом.
type staticChecker struct {
	status, message string
}

func (c staticChecker) CheckReady() (string, string) {
	return c.status, c.message
}
