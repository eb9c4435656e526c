package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"calorie-log/internal/model"
)

// LogEntryRepository handles CRUD for log entries.
type LogEntryRepository struct {
	db *gorm.DB
}

func NewLogEntryRepository(db *gorm.DB) *LogEntryRepository {
	return &LogEntryRepository{db: db}
}

func (r *LogEntryRepository) Create(ctx context.Context, entry *model.LogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create log entry: %w", err)
	}
	return nil
}

// ListByDay returns the user's entries within [start, end), each left-joined
// with the referenced food's name and per-100g calories. Entries whose food
// was deleted come back with nil food fields rather than being dropped.
func (r *LogEntryRepository) ListByDay(ctx context.Context, userID uint, start, end time.Time) ([]model.LogEntryRow, error) {
	var rows []model.LogEntryRow
	err := r.db.WithContext(ctx).
		Table("log_entries").
		Select("log_entries.id, log_entries.user_id, log_entries.timestamp, log_entries.description, "+
			"log_entries.calories_override, log_entries.food_id, log_entries.amount, "+
			"foods.name AS food_name, foods.calories_p100 AS food_calories_p100").
		Joins("LEFT JOIN foods ON foods.id = log_entries.food_id").
		Where("log_entries.user_id = ? AND log_entries.timestamp >= ? AND log_entries.timestamp < ?", userID, start, end).
		Order("log_entries.timestamp ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	return rows, nil
}

func (r *LogEntryRepository) FindByID(ctx context.Context, userID, entryID uint) (*model.LogEntry, error) {
	var entry model.LogEntry
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, entryID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateFields rewrites description and calories override. Timestamp and
// food linkage are not editable after creation.
func (r *LogEntryRepository) UpdateFields(ctx context.Context, userID, entryID uint, description string, override *float64) error {
	updates := map[string]interface{}{
		"description":       description,
		"calories_override": override,
	}
	if err := r.db.WithContext(ctx).Model(&model.LogEntry{}).
		Where("user_id = ? AND id = ?", userID, entryID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("update log entry: %w", err)
	}
	return nil
}

func (r *LogEntryRepository) Delete(ctx context.Context, userID, entryID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, entryID).
		Delete(&model.LogEntry{}).Error; err != nil {
		return fmt.Errorf("delete log entry: %w", err)
	}
	return nil
}
