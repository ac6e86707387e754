package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/studyshare/internal/domain/model"
)

// catalogColumns — столбцы карточки для SELECT с JOIN на users.
const catalogColumns = `c.id, c.title, c.subject, c.description, c.storage_locator,
	c.mime_type, c.original_name, c.size, c.checksum, c.owner_id,
	COALESCE(u.email, ''), c.uploaded_at, c.download_count, c.share_token`

// catalogFrom — источник данных для чтения карточек.
const catalogFrom = `catalog_records c LEFT JOIN users u ON u.id = c.owner_id`

// CatalogFilter — фильтры списка карточек.
// Все поля — указатели, nil = фильтр не применяется.
type CatalogFilter struct {
	// Subject — точное совпадение предмета
	Subject *string
	// OwnerID — точное совпадение загрузившего
	OwnerID *string
	// UploadedFrom — нижняя граница uploaded_at (включительно)
	UploadedFrom *time.Time
	// UploadedTo — верхняя граница uploaded_at (включительно)
	UploadedTo *time.Time
	// Search — подстрока без учёта регистра в title ИЛИ description
	Search *string
	// Limit — количество результатов (0 — без ограничения)
	Limit int
	// Offset — смещение
	Offset int
}

// LocatorEntry — пара (карточка, blob) для сверки хранилища.
type LocatorEntry struct {
	RecordID       string
	StorageLocator string
}

// CatalogRepository — доступ к таблице catalog_records.
type CatalogRepository interface {
	// Create сохраняет новую карточку. UploadedAt и DownloadCount
	// заполняются из БД.
	Create(ctx context.Context, rec *model.CatalogRecord) error
	// GetByID возвращает карточку по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.CatalogRecord, error)
	// GetByShareToken возвращает карточку по точному совпадению токена.
	GetByShareToken(ctx context.Context, token string) (*model.CatalogRecord, error)
	// List возвращает карточки по фильтру, новые сначала.
	List(ctx context.Context, filter CatalogFilter) ([]*model.CatalogRecord, error)
	// IncrementDownloadCount атомарно увеличивает счётчик и возвращает новое значение.
	IncrementDownloadCount(ctx context.Context, id string) (int64, error)
	// SetShareToken записывает новый токен поверх предыдущего.
	SetShareToken(ctx context.Context, id, token string) error
	// Delete удаляет карточку и возвращает её последнее состояние.
	Delete(ctx context.Context, id string) (*model.CatalogRecord, error)
	// ListLocators возвращает все пары (id, storage_locator).
	ListLocators(ctx context.Context) ([]LocatorEntry, error)
}

// catalogRepo — реализация CatalogRepository через pgx.
type catalogRepo struct {
	db DBTX
}

// NewCatalogRepository создаёт репозиторий карточек.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) Create(ctx context.Context, rec *model.CatalogRecord) error {
	query := `
		INSERT INTO catalog_records (id, title, subject, description, storage_locator,
			mime_type, original_name, size, checksum, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING uploaded_at, download_count`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.Title, string(rec.Subject), rec.Description, rec.StorageLocator,
		rec.MimeType, rec.OriginalName, rec.Size, rec.Checksum, rec.OwnerID,
	).Scan(&rec.UploadedAt, &rec.DownloadCount)
	if err != nil {
		return classifyPgError(err, "создание карточки")
	}
	return nil
}

func (r *catalogRepo) GetByID(ctx context.Context, id string) (*model.CatalogRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE c.id = $1`, catalogColumns, catalogFrom)
	rec, err := scanCatalogRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения карточки: %w", err)
	}
	return rec, nil
}

func (r *catalogRepo) GetByShareToken(ctx context.Context, token string) (*model.CatalogRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE c.share_token = $1`, catalogColumns, catalogFrom)
	rec, err := scanCatalogRecord(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска карточки по токену: %w", err)
	}
	return rec, nil
}

func (r *catalogRepo) List(ctx context.Context, filter CatalogFilter) ([]*model.CatalogRecord, error) {
	where, args := buildCatalogWhere(filter, 1)

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY c.uploaded_at DESC, c.id`,
		catalogColumns, catalogFrom, where)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка карточек: %w", err)
	}
	defer rows.Close()

	result := make([]*model.CatalogRecord, 0)
	for rows.Next() {
		rec, err := scanCatalogRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования карточки: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

func (r *catalogRepo) IncrementDownloadCount(ctx context.Context, id string) (int64, error) {
	query := `
		UPDATE catalog_records
		SET download_count = download_count + 1
		WHERE id = $1
		RETURNING download_count`

	var count int64
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка увеличения счётчика скачиваний: %w", err)
	}
	return count, nil
}

func (r *catalogRepo) SetShareToken(ctx context.Context, id, token string) error {
	tag, err := r.db.Exec(ctx, `UPDATE catalog_records SET share_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return classifyPgError(err, "сохранение токена")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *catalogRepo) Delete(ctx context.Context, id string) (*model.CatalogRecord, error) {
	query := `
		DELETE FROM catalog_records c
		WHERE c.id = $1
		RETURNING c.id, c.title, c.subject, c.description, c.storage_locator,
			c.mime_type, c.original_name, c.size, c.checksum, c.owner_id,
			'', c.uploaded_at, c.download_count, c.share_token`

	rec, err := scanCatalogRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления карточки: %w", err)
	}
	return rec, nil
}

func (r *catalogRepo) ListLocators(ctx context.Context) ([]LocatorEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, storage_locator FROM catalog_records`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения locator'ов: %w", err)
	}
	defer rows.Close()

	var result []LocatorEntry
	for rows.Next() {
		var e LocatorEntry
		if err := rows.Scan(&e.RecordID, &e.StorageLocator); err != nil {
			return nil, fmt.Errorf("ошибка сканирования locator'а: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// scanCatalogRecord сканирует строку в порядке catalogColumns.
func scanCatalogRecord(row pgx.Row) (*model.CatalogRecord, error) {
	rec := &model.CatalogRecord{}
	var subject string
	err := row.Scan(
		&rec.ID, &rec.Title, &subject, &rec.Description, &rec.StorageLocator,
		&rec.MimeType, &rec.OriginalName, &rec.Size, &rec.Checksum, &rec.OwnerID,
		&rec.OwnerEmail, &rec.UploadedAt, &rec.DownloadCount, &rec.ShareToken,
	)
	if err != nil {
		return nil, err
	}
	rec.Subject = model.Subject(subject)
	return rec, nil
}

// buildCatalogWhere строит WHERE-условие и аргументы для списка карточек.
// startArg — номер первого $-параметра.
func buildCatalogWhere(filter CatalogFilter, startArg int) (whereClause string, args []any) {
	var conditions []string
	argNum := startArg

	if filter.Subject != nil {
		conditions = append(conditions, fmt.Sprintf("c.subject = $%d", argNum))
		args = append(args, *filter.Subject)
		argNum++
	}

	if filter.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("c.owner_id = $%d", argNum))
		args = append(args, *filter.OwnerID)
		argNum++
	}

	if filter.UploadedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("c.uploaded_at >= $%d", argNum))
		args = append(args, *filter.UploadedFrom)
		argNum++
	}

	if filter.UploadedTo != nil {
		conditions = append(conditions, fmt.Sprintf("c.uploaded_at <= $%d", argNum))
		args = append(args, *filter.UploadedTo)
		argNum++
	}

	// title и description ищутся одним параметром через OR
	if filter.Search != nil && *filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			`(c.title ILIKE $%d ESCAPE '\' OR c.description ILIKE $%d ESCAPE '\')`, argNum, argNum))
		args = append(args, "%"+escapeLike(*filter.Search)+"%")
	}

	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args
}

// likeEscaper экранирует спецсимволы шаблона LIKE.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike превращает пользовательскую строку в литеральную подстроку для ILIKE.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
