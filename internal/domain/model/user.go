// Пакет model — доменные модели Submission Portal.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role — роль пользователя портала.
type Role string

const (
	// RoleStudent — студент: загружает и просматривает свою работу
	RoleStudent Role = "STUDENT"
	// RoleAdmin — администратор: проверяет работы, управляет пользователями
	RoleAdmin Role = "ADMIN"
)

// User — пользователь портала.
// Хранится в таблице users. ID совпадает с claim sub из JWT.
type User struct {
	// ID — идентификатор пользователя (sub в IdP)
	ID string
	// Name — отображаемое имя
	Name string
	// Email — адрес электронной почты (уникальный)
	Email string
	// Role — роль (STUDENT, ADMIN)
	Role Role
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// IsAdmin сообщает, является ли пользователь администратором.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsStudent сообщает, является ли пользователь студентом.
func (u *User) IsStudent() bool {
	return u != nil && u.Role == RoleStudent
}

// ParseRole преобразует строку в Role (без учёта регистра).
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleStudent, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("недопустимая роль: %q, допустимые: STUDENT, ADMIN", s)
	}
}
