// errors.go — ошибки бизнес-логики сервисного слоя.
// Детали прикрепляются через fmt.Errorf("%w: ...", ErrX),
// handlers сопоставляют ошибки через errors.Is.
package service

import "errors"

var (
	// ErrUnauthenticated — запрос без валидного пользователя.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden — недостаточно прав.
	ErrForbidden = errors.New("недостаточно прав")
	// ErrInvalidMetadata — отсутствуют или некорректны title/subject/description.
	ErrInvalidMetadata = errors.New("некорректные метаданные файла")
	// ErrUnsupportedType — MIME-тип вне списка разрешённых.
	ErrUnsupportedType = errors.New("неподдерживаемый тип файла")
	// ErrTooLarge — размер файла превышает лимит.
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	// ErrNotFound — карточка или пользователь не найдены.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrInvalidShareLink — токен ссылки не соответствует ни одной карточке.
	ErrInvalidShareLink = errors.New("недействительная ссылка")
	// ErrBlobMissing — карточка существует, но содержимое отсутствует в хранилище.
	ErrBlobMissing = errors.New("содержимое файла отсутствует в хранилище")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrInvalidCredentials — неверный email или пароль.
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrReconcileInProgress — сверка хранилища уже выполняется.
	ErrReconcileInProgress = errors.New("сверка хранилища уже выполняется")
)
