package models

import "time"

const (
	// SlotDuration ширина одного слота записи
	SlotDuration = 30 * time.Minute

	// DefaultOpenTime и DefaultCloseTime рабочее окно мастера по умолчанию
	DefaultOpenTime  = "09:00"
	DefaultCloseTime = "22:00"

	// ResponseWindow время, которое мастер "должен" ответить на заявку (информационно)
	ResponseWindow = 30 * time.Minute

	// DefaultMaxAdvanceDays насколько далеко вперед можно записаться
	DefaultMaxAdvanceDays = 90

	// RateLimitReservations количество заявок в окне
	RateLimitReservations = 5

	// RateLimitWindow окно ограничения частоты заявок
	RateLimitWindow = 10 * time.Minute
)

const (
	TimeLayout = "15:04"
	DateLayout = "2006-01-02"
)

const ParseModeMarkdown = "Markdown"
