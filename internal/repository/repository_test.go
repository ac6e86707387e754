package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/studyshare/internal/config"
	"github.com/bigkaa/studyshare/internal/database"
	"github.com/bigkaa/studyshare/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("studyshare_test"),
		postgres.WithUsername("studyshare"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("SS_DB_HOST", host)
	t.Setenv("SS_DB_PORT", port.Port())
	t.Setenv("SS_DB_NAME", "studyshare_test")
	t.Setenv("SS_DB_USER", "studyshare")
	t.Setenv("SS_DB_PASSWORD", "test-password")
	t.Setenv("SS_JWT_SECRET", "integration-test-secret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// createTestUser создаёт пользователя для внешнего ключа owner_id.
func createTestUser(t *testing.T, repo UserRepository, email string) *model.User {
	t.Helper()
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		Role:         model.RoleUser,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create(user) ошибка: %v", err)
	}
	return u
}

// newTestRecord возвращает карточку с уникальным locator.
func newTestRecord(ownerID, title, description string, subject model.Subject) *model.CatalogRecord {
	id := uuid.NewString()
	return &model.CatalogRecord{
		ID:             id,
		Title:          title,
		Subject:        subject,
		Description:    description,
		StorageLocator: "1700000000000-" + id + ".pdf",
		MimeType:       "application/pdf",
		OriginalName:   title + ".pdf",
		Size:           12,
		Checksum:       "abc",
		OwnerID:        ownerID,
	}
}

func TestUserCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	u := createTestUser(t, repo, "Student@Example.com")
	if u.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// Повторный email без учёта регистра — конфликт
	dup := &model.User{ID: uuid.NewString(), Email: "student@example.com", PasswordHash: "x", Role: model.RoleUser}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Create(dup) = %v, ожидался ErrConflict", err)
	}

	got, err := repo.GetByEmail(ctx, "student@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() ошибка: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %q, ожидался %q", got.ID, u.ID)
	}

	if _, err := repo.GetByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(unknown) = %v, ожидался ErrNotFound", err)
	}

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("List() = %d пользователей, ожидался 1", len(users))
	}
}

func TestCatalogCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	repo := NewCatalogRepository(pool)

	owner := createTestUser(t, users, "owner@example.com")
	rec := newTestRecord(owner.ID, "Notes", "", model.SubjectMath)

	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if rec.UploadedAt.IsZero() {
		t.Error("UploadedAt не установлен")
	}
	if rec.DownloadCount != 0 {
		t.Errorf("DownloadCount = %d, ожидался 0", rec.DownloadCount)
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Title != "Notes" || got.Subject != model.SubjectMath {
		t.Errorf("получена карточка %+v", got)
	}
	if got.OwnerEmail != "owner@example.com" {
		t.Errorf("OwnerEmail = %q, ожидался owner@example.com", got.OwnerEmail)
	}
	if got.ShareToken != nil {
		t.Error("ShareToken должен отсутствовать до выпуска ссылки")
	}

	// Атомарный счётчик
	for i := int64(1); i <= 3; i++ {
		n, err := repo.IncrementDownloadCount(ctx, rec.ID)
		if err != nil {
			t.Fatalf("IncrementDownloadCount() ошибка: %v", err)
		}
		if n != i {
			t.Errorf("IncrementDownloadCount() = %d, ожидался %d", n, i)
		}
	}
	if _, err := repo.IncrementDownloadCount(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementDownloadCount(unknown) = %v, ожидался ErrNotFound", err)
	}

	// Токен: повторный выпуск перезаписывает предыдущий
	if err := repo.SetShareToken(ctx, rec.ID, "token-1"); err != nil {
		t.Fatalf("SetShareToken() ошибка: %v", err)
	}
	if err := repo.SetShareToken(ctx, rec.ID, "token-2"); err != nil {
		t.Fatalf("SetShareToken() ошибка: %v", err)
	}
	if _, err := repo.GetByShareToken(ctx, "token-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByShareToken(old) = %v, ожидался ErrNotFound", err)
	}
	byToken, err := repo.GetByShareToken(ctx, "token-2")
	if err != nil {
		t.Fatalf("GetByShareToken() ошибка: %v", err)
	}
	if byToken.ID != rec.ID {
		t.Errorf("GetByShareToken() вернул %q, ожидался %q", byToken.ID, rec.ID)
	}
	if err := repo.SetShareToken(ctx, uuid.NewString(), "token-3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetShareToken(unknown) = %v, ожидался ErrNotFound", err)
	}

	locators, err := repo.ListLocators(ctx)
	if err != nil {
		t.Fatalf("ListLocators() ошибка: %v", err)
	}
	if len(locators) != 1 || locators[0].StorageLocator != rec.StorageLocator {
		t.Errorf("ListLocators() = %v", locators)
	}

	// Удаление: повторное удаление — ErrNotFound
	deleted, err := repo.Delete(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if deleted.StorageLocator != rec.StorageLocator {
		t.Errorf("Delete() вернул locator %q, ожидался %q", deleted.StorageLocator, rec.StorageLocator)
	}
	if _, err := repo.Delete(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() = %v, ожидался ErrNotFound", err)
	}
}

// TestCatalogCreate_LongValuesAndUnknownOwner проверяет длинные строки и внешний ключ владельца.
func TestCatalogCreate_LongValuesAndUnknownOwner(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	repo := NewCatalogRepository(pool)

	owner := createTestUser(t, users, "long@example.com")
	title := strings.Repeat("т", 300)
	rec := newTestRecord(owner.ID, title, "", model.SubjectPhysics)
	rec.OriginalName = strings.Repeat("n", 2000) + ".pdf"
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() с title из 300 символов: %v", err)
	}
	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Title != title || got.OriginalName != rec.OriginalName {
		t.Error("длинные title и original_name должны сохраняться без усечения")
	}

	orphan := newTestRecord(uuid.NewString(), "Orphan", "", model.SubjectMath)
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrUnknownOwner) {
		t.Errorf("Create() с неизвестным владельцем = %v, ожидался ErrUnknownOwner", err)
	}

	if err := users.Create(ctx, &model.User{
		ID:    uuid.NewString(),
		Email: "LONG@example.com",
		Role:  model.RoleUser,
	}); !errors.Is(err, ErrConflict) {
		t.Errorf("Create() с занятым email = %v, ожидался ErrConflict", err)
	}
}

func TestCatalogList_SearchAndFilters(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(pool)
	repo := NewCatalogRepository(pool)

	alice := createTestUser(t, users, "alice@example.com")
	bob := createTestUser(t, users, "bob@example.com")

	calculus := newTestRecord(alice.ID, "Calculus Notes", "", model.SubjectMath)
	review := newTestRecord(bob.ID, "Midterm", "calc review", model.SubjectMath)
	other := newTestRecord(alice.ID, "Organic Chemistry", "reactions", model.SubjectChemistry)
	percent := newTestRecord(bob.ID, "100% guide", "", model.SubjectOther)

	for _, rec := range []*model.CatalogRecord{calculus, review, other, percent} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	search := "CALC"
	got, err := repo.List(ctx, CatalogFilter{Search: &search})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List(search=calc) = %d карточек, ожидалось 2", len(got))
	}
	// Новые сначала
	if got[0].ID != review.ID || got[1].ID != calculus.ID {
		t.Errorf("порядок = [%s, %s], ожидался [review, calculus]", got[0].Title, got[1].Title)
	}

	subject := string(model.SubjectMath)
	owner := alice.ID
	got, err = repo.List(ctx, CatalogFilter{Subject: &subject, OwnerID: &owner})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(got) != 1 || got[0].ID != calculus.ID {
		t.Errorf("List(subject+owner) = %v", got)
	}

	// % ищется как литерал, а не шаблон
	pct := "%"
	got, err = repo.List(ctx, CatalogFilter{Search: &pct})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(got) != 1 || got[0].ID != percent.ID {
		t.Errorf("List(search=%%) = %d карточек, ожидалась 1", len(got))
	}

	// Включительные границы дат
	from := other.UploadedAt
	to := other.UploadedAt
	got, err = repo.List(ctx, CatalogFilter{UploadedFrom: &from, UploadedTo: &to})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(got) != 1 || got[0].ID != other.ID {
		t.Errorf("List(date range) = %d карточек, ожидалась 1", len(got))
	}

	all, err := repo.List(ctx, CatalogFilter{Limit: 2})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(limit=2) = %d карточек, ожидалось 2", len(all))
	}
}
