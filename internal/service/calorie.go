package service

import (
	"calorie-log/internal/model"
)

// ManualEntryLabel is the display fallback for entries with no description
// and no resolvable food name.
const ManualEntryLabel = "Manual Entry"

// EntryCalories resolves the calorie value of one enriched log entry row.
// A non-nil, non-zero override wins outright, negatives included (they are
// corrections). A zero override counts as absent and falls through to the
// food-derived path: amount * calories-per-100g / 100, unrounded. When
// neither rule applies the entry is worth 0 but is never dropped.
func EntryCalories(row model.LogEntryRow) float64 {
	if row.CaloriesOverride != nil && *row.CaloriesOverride != 0 {
		return *row.CaloriesOverride
	}
	if row.Amount != nil && row.FoodCaloriesP100 != nil {
		return *row.Amount * *row.FoodCaloriesP100 / 100
	}
	return 0
}

// EntryResolved reports whether either calorie rule applied. Unresolved
// entries still aggregate as 0; callers mark them visually instead.
func EntryResolved(row model.LogEntryRow) bool {
	if row.CaloriesOverride != nil && *row.CaloriesOverride != 0 {
		return true
	}
	return row.Amount != nil && row.FoodCaloriesP100 != nil
}

// EntryLabel picks the display label: description if non-empty, else the
// joined food name, else ManualEntryLabel.
func EntryLabel(row model.LogEntryRow) string {
	if row.Description != "" {
		return row.Description
	}
	if row.FoodName != nil && *row.FoodName != "" {
		return *row.FoodName
	}
	return ManualEntryLabel
}

// DayTotal sums EntryCalories over all rows of one day. Empty input is 0.
func DayTotal(rows []model.LogEntryRow) float64 {
	var total float64
	for _, row := range rows {
		total += EntryCalories(row)
	}
	return total
}
