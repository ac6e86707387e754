// Пакет model — доменные модели StudyShare.
// CatalogRecord — маппинг таблицы catalog_records.
package model

import "time"

// Subject — учебный предмет карточки.
type Subject string

// Допустимые предметы.
const (
	SubjectMath      Subject = "Math"
	SubjectPhysics   Subject = "Physics"
	SubjectChemistry Subject = "Chemistry"
	SubjectBiology   Subject = "Biology"
	SubjectEnglish   Subject = "English"
	SubjectOther     Subject = "Other"
)

// Subjects — фиксированный перечень предметов в порядке отображения.
var Subjects = []Subject{
	SubjectMath, SubjectPhysics, SubjectChemistry,
	SubjectBiology, SubjectEnglish, SubjectOther,
}

// Valid сообщает, входит ли предмет в фиксированный перечень.
// Сравнение регистрозависимое.
func (s Subject) Valid() bool {
	for _, known := range Subjects {
		if s == known {
			return true
		}
	}
	return false
}

// MaxDescriptionLength — максимальная длина описания в символах.
const MaxDescriptionLength = 500

// CatalogRecord — карточка одного загруженного файла.
type CatalogRecord struct {
	// ID — UUID карточки, назначается при создании
	ID string
	// Title — название, непустое
	Title string
	// Subject — учебный предмет
	Subject Subject
	// Description — описание (может быть пустым)
	Description string
	// StorageLocator — имя blob'а в хранилище. Клиентам не отдаётся.
	StorageLocator string
	// MimeType — заявленный MIME-тип на момент загрузки
	MimeType string
	// OriginalName — имя файла от клиента, используется в Content-Disposition
	OriginalName string
	// Size — размер blob'а в байтах
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
	// OwnerID — UUID загрузившего пользователя
	OwnerID string
	// OwnerEmail — email загрузившего (заполняется JOIN'ом при чтении)
	OwnerEmail string
	// UploadedAt — время загрузки
	UploadedAt time.Time
	// DownloadCount — количество успешных скачиваний
	DownloadCount int64
	// ShareToken — токен публичной ссылки, nil пока ссылка не выпущена
	ShareToken *string
}
