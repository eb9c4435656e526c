package service

import (
	"context"
	"fmt"
	"time"

	"calorie-log/internal/daycache"
	"calorie-log/internal/model"
)

const logEntriesCollection = "log_entries"

// EntryStore is the backing store for log entries. Implemented by
// repository.LogEntryRepository; tests substitute an in-memory fake.
type EntryStore interface {
	Create(ctx context.Context, entry *model.LogEntry) error
	ListByDay(ctx context.Context, userID uint, start, end time.Time) ([]model.LogEntryRow, error)
	FindByID(ctx context.Context, userID, entryID uint) (*model.LogEntry, error)
	UpdateFields(ctx context.Context, userID, entryID uint, description string, override *float64) error
	Delete(ctx context.Context, userID, entryID uint) error
}

// EntryInput represents data required to create a log entry.
type EntryInput struct {
	Timestamp        time.Time
	Description      string
	CaloriesOverride *float64
	FoodID           *string
	Amount           *float64
}

// LogService mediates all reads and writes of log entries through a
// day-partitioned cache. Two reads of the same day hit the store once; a
// successful write invalidates exactly the affected day's partition, so the
// next read re-fetches. Failed writes invalidate nothing.
type LogService struct {
	store EntryStore
	cache *daycache.Cache[[]model.LogEntryRow]
	loc   *time.Location
}

func NewLogService(store EntryStore, loc *time.Location) *LogService {
	if loc == nil {
		loc = time.Local
	}
	return &LogService{
		store: store,
		cache: daycache.New[[]model.LogEntryRow](),
		loc:   loc,
	}
}

func (s *LogService) dayKey(t time.Time) string {
	return daycache.Key(logEntriesCollection, t.In(s.loc))
}

// dayBounds returns [startOfDay, endOfDay) in the service's location.
func (s *LogService) dayBounds(day time.Time) (time.Time, time.Time) {
	local := day.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// EntriesForDay returns the user's enriched entries for one calendar day,
// serving the cached partition when present. A store error is returned as-is
// rather than as an empty day, so callers can tell failure from no entries.
func (s *LogService) EntriesForDay(ctx context.Context, user *model.User, day time.Time) ([]model.LogEntryRow, error) {
	key := s.dayKey(day)
	if rows, ok := s.cache.Get(key); ok {
		return copyRows(rows), nil
	}

	start, end := s.dayBounds(day)
	rows, err := s.store.ListByDay(ctx, user.ID, start, end)
	if err != nil {
		return nil, err
	}

	s.cache.Put(key, copyRows(rows))
	return rows, nil
}

// DayTotalFor fetches the day's entries and sums their resolved calories.
func (s *LogService) DayTotalFor(ctx context.Context, user *model.User, day time.Time) (float64, error) {
	rows, err := s.EntriesForDay(ctx, user, day)
	if err != nil {
		return 0, err
	}
	return DayTotal(rows), nil
}

// AddEntry validates and persists a new log entry, then invalidates the
// partition for the entry's own day.
func (s *LogService) AddEntry(ctx context.Context, user *model.User, input EntryInput) (*model.LogEntry, error) {
	if input.CaloriesOverride != nil && *input.CaloriesOverride == 0 {
		return nil, fmt.Errorf("zero calories is not a valid override")
	}
	if input.CaloriesOverride == nil && (input.FoodID == nil || input.Amount == nil) {
		return nil, fmt.Errorf("entry needs either calories or a food with an amount")
	}

	entry := model.LogEntry{
		UserID:           user.ID,
		Timestamp:        input.Timestamp,
		Description:      input.Description,
		CaloriesOverride: input.CaloriesOverride,
		FoodID:           input.FoodID,
		Amount:           input.Amount,
	}
	if err := s.store.Create(ctx, &entry); err != nil {
		return nil, err
	}

	s.cache.Invalidate(s.dayKey(entry.Timestamp))
	return &entry, nil
}

// EditEntry rewrites an entry's description and calorie override. The
// invalidated day comes from the stored timestamp, which is immutable.
func (s *LogService) EditEntry(ctx context.Context, user *model.User, entryID uint, description string, override *float64) (*model.LogEntry, error) {
	if override != nil && *override <= 0 {
		return nil, fmt.Errorf("calories must be a positive number")
	}

	entry, err := s.store.FindByID(ctx, user.ID, entryID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateFields(ctx, user.ID, entryID, description, override); err != nil {
		return nil, err
	}

	entry.Description = description
	entry.CaloriesOverride = override
	s.cache.Invalidate(s.dayKey(entry.Timestamp))
	return entry, nil
}

// DeleteEntry removes an entry and invalidates its day's partition.
func (s *LogService) DeleteEntry(ctx context.Context, user *model.User, entryID uint) (*model.LogEntry, error) {
	entry, err := s.store.FindByID(ctx, user.ID, entryID)
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, user.ID, entryID); err != nil {
		return nil, err
	}

	s.cache.Invalidate(s.dayKey(entry.Timestamp))
	return entry, nil
}

// GetEntry looks up a single entry without touching the cache.
func (s *LogService) GetEntry(ctx context.Context, user *model.User, entryID uint) (*model.LogEntry, error) {
	return s.store.FindByID(ctx, user.ID, entryID)
}

// Subscribe registers fn to run whenever the given day's partition is
// invalidated by a write.
func (s *LogService) Subscribe(day time.Time, fn func()) {
	s.cache.Subscribe(s.dayKey(day), fn)
}

func copyRows(rows []model.LogEntryRow) []model.LogEntryRow {
	out := make([]model.LogEntryRow, len(rows))
	copy(out, rows)
	return out
}
