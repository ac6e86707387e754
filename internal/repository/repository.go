// Пакет repository — хранение пользователей и карточек каталога в PostgreSQL.
// Запросы пишутся на SQL и выполняются через pgx.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — пользователь или карточка отсутствуют.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — занятый email, locator или токен ссылки.
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrUnknownOwner — owner_id карточки не ссылается на пользователя.
	ErrUnknownOwner = errors.New("владелец карточки не найден")
	// ErrInvalidValue — значение отклонено ограничениями схемы.
	ErrInvalidValue = errors.New("значение не соответствует схеме")
)

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classifyPgError переводит SQLSTATE PostgreSQL в ошибку репозитория.
// what описывает операцию и попадает в текст ошибки.
// Ошибки без известного SQLSTATE оборачиваются как есть.
func classifyPgError(err error, what string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", what, err)
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%w: %s (%s)", ErrConflict, what, pgErr.ConstraintName)
	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrUnknownOwner, what)
	case pgerrcode.StringDataRightTruncationDataException,
		pgerrcode.CheckViolation,
		pgerrcode.NotNullViolation,
		pgerrcode.InvalidTextRepresentation:
		return fmt.Errorf("%w: %s: %s", ErrInvalidValue, what, pgErr.Message)
	}
	return fmt.Errorf("%s: %w", what, err)
}
