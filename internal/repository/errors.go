package repository

import "errors"

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи (например, вторая активная подписка ресторана
	// или повторное получение купона тем же пользователем)
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData неверные входные данные
	ErrInvalidData = errors.New("invalid input data")
)
