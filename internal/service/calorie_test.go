package service

import (
	"testing"

	"calorie-log/internal/model"
)

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func TestEntryCaloriesOverridePrecedence(t *testing.T) {
	row := model.LogEntryRow{
		CaloriesOverride: fptr(350),
		Amount:           fptr(150),
		FoodCaloriesP100: fptr(165),
	}
	if got := EntryCalories(row); got != 350 {
		t.Errorf("Expected override 350 to win, got %v", got)
	}

	// Negative overrides are corrections, not errors.
	row.CaloriesOverride = fptr(-120)
	if got := EntryCalories(row); got != -120 {
		t.Errorf("Expected negative override -120, got %v", got)
	}
}

func TestEntryCaloriesZeroOverrideFallsThrough(t *testing.T) {
	row := model.LogEntryRow{
		CaloriesOverride: fptr(0),
		Amount:           fptr(150),
		FoodCaloriesP100: fptr(165),
	}
	if got := EntryCalories(row); got != 247.5 {
		t.Errorf("Expected zero override to fall through to 247.5, got %v", got)
	}
}

func TestEntryCaloriesLinearScaling(t *testing.T) {
	row := model.LogEntryRow{
		Amount:           fptr(150),
		FoodCaloriesP100: fptr(165),
	}
	if got := EntryCalories(row); got != 247.5 {
		t.Errorf("Expected 150g at 165cal/100g = 247.5, got %v", got)
	}
}

func TestEntryCaloriesUnresolved(t *testing.T) {
	row := model.LogEntryRow{Description: "mystery snack"}
	if got := EntryCalories(row); got != 0 {
		t.Errorf("Expected unresolved entry to count as 0, got %v", got)
	}
	if EntryResolved(row) {
		t.Error("Expected entry with no override and no food data to be unresolved")
	}

	// Amount alone is not enough either (orphaned food reference).
	row.Amount = fptr(150)
	if EntryResolved(row) {
		t.Error("Expected entry with amount but no food calories to be unresolved")
	}
}

func TestDayTotal(t *testing.T) {
	rows := []model.LogEntryRow{
		{CaloriesOverride: fptr(350)},
		{Amount: fptr(150), FoodCaloriesP100: fptr(165)},
		{CaloriesOverride: fptr(650)},
	}
	if got := DayTotal(rows); got != 1247.5 {
		t.Errorf("Expected day total 1247.5, got %v", got)
	}

	if got := DayTotal(nil); got != 0 {
		t.Errorf("Expected empty day total 0, got %v", got)
	}

	// Unresolved entries contribute 0 but are not excluded.
	rows = append(rows, model.LogEntryRow{Description: "unresolved"})
	if got := DayTotal(rows); got != 1247.5 {
		t.Errorf("Expected unresolved entry to add 0, got %v", got)
	}
}

func TestEntryLabelFallbackOrder(t *testing.T) {
	row := model.LogEntryRow{Description: "lunch", FoodName: sptr("Chicken Breast")}
	if got := EntryLabel(row); got != "lunch" {
		t.Errorf("Expected description to win, got %q", got)
	}

	row.Description = ""
	if got := EntryLabel(row); got != "Chicken Breast" {
		t.Errorf("Expected empty description to fall through to food name, got %q", got)
	}

	row.FoodName = nil
	if got := EntryLabel(row); got != ManualEntryLabel {
		t.Errorf("Expected fallback label %q, got %q", ManualEntryLabel, got)
	}
}

func TestFormatCalories(t *testing.T) {
	if got := FormatCalories(247.5); got != "247.5" {
		t.Errorf("Expected 247.5, got %q", got)
	}
	if got := FormatCalories(350); got != "350" {
		t.Errorf("Expected 350 without trailing zeros, got %q", got)
	}
}
