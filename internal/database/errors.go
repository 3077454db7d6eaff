package database

import "errors"

var (
	// ErrSlotNotFound нет слота с таким id
	ErrSlotNotFound = errors.New("slot not found")

	// ErrSlotUnavailable слот уже занят или недоступен на момент коммита
	ErrSlotUnavailable = errors.New("slot is not available")

	// ErrConcurrentModification конфликт версий при конкурентном обновлении
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrUserNotFound нет такого пользователя
	ErrUserNotFound = errors.New("user not found")
)
