package model

import "time"

// User stores Telegram user metadata and preferences.
type User struct {
	ID                 uint  `gorm:"primaryKey"`
	TelegramID         int64 `gorm:"uniqueIndex"`
	FirstName          string
	LastName           string
	Username           string
	DailyCalorieTarget *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
