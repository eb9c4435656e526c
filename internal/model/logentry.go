package model

import "time"

// LogEntry is one timestamped consumption record. A non-null non-zero
// CaloriesOverride is authoritative; otherwise calories derive from the
// referenced food. Timestamp and food linkage are fixed after creation.
type LogEntry struct {
	ID               uint      `gorm:"primaryKey"`
	UserID           uint      `gorm:"index"`
	Timestamp        time.Time `gorm:"index"`
	Description      string
	CaloriesOverride *float64
	FoodID           *string `gorm:"index"`
	Amount           *float64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LogEntryRow is the read projection of a LogEntry left-joined with its
// referenced food. FoodName and FoodCaloriesP100 stay nil when the entry has
// no food reference or the food was deleted.
type LogEntryRow struct {
	ID               uint
	UserID           uint
	Timestamp        time.Time
	Description      string
	CaloriesOverride *float64
	FoodID           *string
	Amount           *float64
	FoodName         *string
	FoodCaloriesP100 *float64
}
