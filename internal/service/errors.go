package service

import "errors"

var (
	// ErrForbidden пользователь пытается управлять чужой бронью
	ErrForbidden = errors.New("slot is owned by another user")

	// ErrTooSoon до начала слота осталось меньше минимального запаса
	ErrTooSoon = errors.New("slot starts too soon to be booked")

	// ErrEmptyContact бронь без контактных данных не принимаем
	ErrEmptyContact = errors.New("client contact data is required")
)
