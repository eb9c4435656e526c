package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"calorie-log/internal/model"
)

// fakeEntryStore is an in-memory EntryStore that counts reads and can be
// switched into failure mode.
type fakeEntryStore struct {
	entries    map[uint]*model.LogEntry
	foods      map[string]model.Food
	nextID     uint
	listCalls  int
	failReads  bool
	failWrites bool
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{
		entries: make(map[uint]*model.LogEntry),
		foods:   make(map[string]model.Food),
		nextID:  1,
	}
}

func (f *fakeEntryStore) Create(_ context.Context, entry *model.LogEntry) error {
	if f.failWrites {
		return fmt.Errorf("store unavailable")
	}
	entry.ID = f.nextID
	f.nextID++
	stored := *entry
	f.entries[entry.ID] = &stored
	return nil
}

func (f *fakeEntryStore) ListByDay(_ context.Context, userID uint, start, end time.Time) ([]model.LogEntryRow, error) {
	f.listCalls++
	if f.failReads {
		return nil, fmt.Errorf("store unavailable")
	}
	var rows []model.LogEntryRow
	for _, entry := range f.entries {
		if entry.UserID != userID || entry.Timestamp.Before(start) || !entry.Timestamp.Before(end) {
			continue
		}
		row := model.LogEntryRow{
			ID:               entry.ID,
			UserID:           entry.UserID,
			Timestamp:        entry.Timestamp,
			Description:      entry.Description,
			CaloriesOverride: entry.CaloriesOverride,
			FoodID:           entry.FoodID,
			Amount:           entry.Amount,
		}
		if entry.FoodID != nil {
			if food, ok := f.foods[*entry.FoodID]; ok {
				name := food.Name
				row.FoodName = &name
				row.FoodCaloriesP100 = food.CaloriesP100
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeEntryStore) FindByID(_ context.Context, userID, entryID uint) (*model.LogEntry, error) {
	entry, ok := f.entries[entryID]
	if !ok || entry.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	found := *entry
	return &found, nil
}

func (f *fakeEntryStore) UpdateFields(_ context.Context, userID, entryID uint, description string, override *float64) error {
	if f.failWrites {
		return fmt.Errorf("store unavailable")
	}
	entry, ok := f.entries[entryID]
	if !ok || entry.UserID != userID {
		return gorm.ErrRecordNotFound
	}
	entry.Description = description
	entry.CaloriesOverride = override
	return nil
}

func (f *fakeEntryStore) Delete(_ context.Context, userID, entryID uint) error {
	if f.failWrites {
		return fmt.Errorf("store unavailable")
	}
	entry, ok := f.entries[entryID]
	if ok && entry.UserID == userID {
		delete(f.entries, entryID)
	}
	return nil
}

func (f *fakeEntryStore) seed(entry model.LogEntry) uint {
	entry.ID = f.nextID
	f.nextID++
	stored := entry
	f.entries[entry.ID] = &stored
	return entry.ID
}

var testUser = &model.User{ID: 1}

func testDay(day string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		panic(err)
	}
	return d
}

func at(day string, hour int) time.Time {
	return testDay(day).Add(time.Duration(hour) * time.Hour)
}

func TestEntriesForDayCachesReads(t *testing.T) {
	store := newFakeEntryStore()
	store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 12), CaloriesOverride: fptr(350)})
	svc := NewLogService(store, time.UTC)

	first, err := svc.EntriesForDay(context.Background(), testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := svc.EntriesForDay(context.Background(), testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatalf("second read: %v", err)
	}

	if store.listCalls != 1 {
		t.Errorf("Expected 1 store call for two reads of the same day, got %d", store.listCalls)
	}
	if len(first) != 1 || len(second) != 1 || first[0].ID != second[0].ID {
		t.Errorf("Expected identical data on both reads, got %v and %v", first, second)
	}
}

func TestAddEntryInvalidatesOwnDayOnly(t *testing.T) {
	store := newFakeEntryStore()
	store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 9), CaloriesOverride: fptr(350)})
	store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-16", 9), CaloriesOverride: fptr(500)})
	svc := NewLogService(store, time.UTC)

	ctx := context.Background()
	if _, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-16")); err != nil {
		t.Fatal(err)
	}
	if store.listCalls != 2 {
		t.Fatalf("Expected 2 priming reads, got %d", store.listCalls)
	}

	if _, err := svc.AddEntry(ctx, testUser, EntryInput{
		Timestamp:        at("2024-01-15", 12),
		CaloriesOverride: fptr(650),
	}); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	rows, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatal(err)
	}
	if store.listCalls != 3 {
		t.Errorf("Expected re-fetch of the written day, got %d store calls", store.listCalls)
	}
	if len(rows) != 2 {
		t.Errorf("Expected 2 entries on the written day, got %d", len(rows))
	}

	// The neighbouring day stays cached.
	if _, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-16")); err != nil {
		t.Fatal(err)
	}
	if store.listCalls != 3 {
		t.Errorf("Expected neighbouring day to stay cached, got %d store calls", store.listCalls)
	}
}

func TestFailedWriteKeepsCache(t *testing.T) {
	store := newFakeEntryStore()
	svc := NewLogService(store, time.UTC)
	ctx := context.Background()

	if _, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15")); err != nil {
		t.Fatal(err)
	}

	store.failWrites = true
	if _, err := svc.AddEntry(ctx, testUser, EntryInput{
		Timestamp:        at("2024-01-15", 12),
		CaloriesOverride: fptr(100),
	}); err == nil {
		t.Fatal("Expected write error to surface")
	}

	if _, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15")); err != nil {
		t.Fatal(err)
	}
	if store.listCalls != 1 {
		t.Errorf("Expected failed write to leave cache intact, got %d store calls", store.listCalls)
	}
}

func TestReadErrorSurfaces(t *testing.T) {
	store := newFakeEntryStore()
	store.failReads = true
	svc := NewLogService(store, time.UTC)

	rows, err := svc.EntriesForDay(context.Background(), testUser, testDay("2024-01-15"))
	if err == nil {
		t.Fatalf("Expected read error, got rows %v", rows)
	}
}

func TestEditEntryInvalidatesStoredDay(t *testing.T) {
	store := newFakeEntryStore()
	id := store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 12), CaloriesOverride: fptr(350)})
	svc := NewLogService(store, time.UTC)
	ctx := context.Background()

	if _, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.EditEntry(ctx, testUser, id, "corrected", fptr(300)); err != nil {
		t.Fatalf("edit entry: %v", err)
	}

	rows, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatal(err)
	}
	if store.listCalls != 2 {
		t.Errorf("Expected edit to invalidate the entry's stored day, got %d store calls", store.listCalls)
	}
	if len(rows) != 1 || EntryCalories(rows[0]) != 300 {
		t.Errorf("Expected edited override 300, got %v", rows)
	}
}

func TestDeleteEntryInvalidatesStoredDay(t *testing.T) {
	store := newFakeEntryStore()
	id := store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 12), CaloriesOverride: fptr(350)})
	svc := NewLogService(store, time.UTC)
	ctx := context.Background()

	if _, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15")); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.DeleteEntry(ctx, testUser, id); err != nil {
		t.Fatalf("delete entry: %v", err)
	}

	rows, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected empty day after delete, got %d rows", len(rows))
	}
	if store.listCalls != 2 {
		t.Errorf("Expected delete to invalidate the day, got %d store calls", store.listCalls)
	}
}

func TestAddEntryValidation(t *testing.T) {
	store := newFakeEntryStore()
	svc := NewLogService(store, time.UTC)
	ctx := context.Background()

	if _, err := svc.AddEntry(ctx, testUser, EntryInput{
		Timestamp:        at("2024-01-15", 12),
		CaloriesOverride: fptr(0),
	}); err == nil {
		t.Error("Expected zero override to be rejected")
	}

	if _, err := svc.AddEntry(ctx, testUser, EntryInput{
		Timestamp: at("2024-01-15", 12),
	}); err == nil {
		t.Error("Expected entry without calories or food to be rejected")
	}

	if _, err := svc.EditEntry(ctx, testUser, 1, "x", fptr(-5)); err == nil {
		t.Error("Expected non-positive edit override to be rejected")
	}
}

func TestDayTotalForScenario(t *testing.T) {
	store := newFakeEntryStore()
	foodID := "food-1"
	store.foods[foodID] = model.Food{
		ID:           foodID,
		Name:         "Chicken Breast",
		Type:         model.FoodByWeight,
		CaloriesP100: fptr(165),
		ServingGrams: fptr(100),
	}
	store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 12), FoodID: &foodID, Amount: fptr(150)})
	store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 9), CaloriesOverride: fptr(350)})
	store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 19), CaloriesOverride: fptr(650)})

	svc := NewLogService(store, time.UTC)
	total, err := svc.DayTotalFor(context.Background(), testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1247.5 {
		t.Errorf("Expected day total 1247.5, got %v", total)
	}
}

func TestOrphanedFoodReferenceStillResolves(t *testing.T) {
	store := newFakeEntryStore()
	foodID := "food-1"
	store.foods[foodID] = model.Food{ID: foodID, Name: "Chicken Breast", CaloriesP100: fptr(165)}
	store.seed(model.LogEntry{UserID: 1, Timestamp: at("2024-01-15", 12), FoodID: &foodID, Amount: fptr(150)})
	svc := NewLogService(store, time.UTC)
	ctx := context.Background()

	rows, err := svc.EntriesForDay(ctx, testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatal(err)
	}
	if EntryCalories(rows[0]) != 247.5 || EntryLabel(rows[0]) != "Chicken Breast" {
		t.Fatalf("Expected resolved food entry before deletion, got %v", rows[0])
	}

	// Deleting the food orphans the entry: it must still resolve, via
	// fallbacks, without error.
	delete(store.foods, foodID)
	svc.cache.Invalidate(svc.dayKey(testDay("2024-01-15")))

	rows, err = svc.EntriesForDay(ctx, testUser, testDay("2024-01-15"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected orphaned entry to stay listed, got %d rows", len(rows))
	}
	if EntryCalories(rows[0]) != 0 {
		t.Errorf("Expected orphaned entry to fall back to 0, got %v", EntryCalories(rows[0]))
	}
	if EntryLabel(rows[0]) != ManualEntryLabel {
		t.Errorf("Expected label fallback %q, got %q", ManualEntryLabel, EntryLabel(rows[0]))
	}
}

func TestSubscribeNotifiesOnWrite(t *testing.T) {
	store := newFakeEntryStore()
	svc := NewLogService(store, time.UTC)
	ctx := context.Background()

	notified := 0
	svc.Subscribe(testDay("2024-01-15"), func() { notified++ })
	svc.Subscribe(testDay("2024-01-16"), func() { t.Error("neighbouring day subscriber must not fire") })

	if _, err := svc.AddEntry(ctx, testUser, EntryInput{
		Timestamp:        at("2024-01-15", 12),
		CaloriesOverride: fptr(100),
	}); err != nil {
		t.Fatal(err)
	}

	if notified != 1 {
		t.Errorf("Expected exactly one notification for the written day, got %d", notified)
	}
}
