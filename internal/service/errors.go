// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrForbidden — недостаточно прав. Частный случай ErrValidation.
	ErrForbidden = fmt.Errorf("%w: недостаточно прав", ErrValidation)
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrInvalidTransition — переход статуса работы недопустим.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
	// ErrBlobWrite — не удалось записать файл в хранилище blob.
	ErrBlobWrite = errors.New("ошибка записи в хранилище файлов")
	// ErrBlobDelete — не удалось удалить файл из хранилища blob.
	ErrBlobDelete = errors.New("ошибка удаления из хранилища файлов")
	// ErrRecordWrite — не удалось сохранить запись в хранилище записей.
	ErrRecordWrite = errors.New("ошибка записи в хранилище записей")
)
