package model

import "time"

// Роли пользователей.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole сообщает, является ли строка допустимой ролью.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// User — учётная запись пользователя (таблица users).
type User struct {
	// ID — UUID пользователя
	ID string
	// Email — адрес в нижнем регистре, уникален
	Email string
	// PasswordHash — bcrypt-хэш пароля. Никогда не сериализуется в ответы.
	PasswordHash string
	// Role — user или admin
	Role string
	// CreatedAt — время регистрации
	CreatedAt time.Time
}
