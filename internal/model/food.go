package model

import "time"

// FoodType selects how calories are computed for a catalogue food.
type FoodType string

const (
	FoodByWeight     FoodType = "by_weight"
	FoodFixedServing FoodType = "fixed_serving"
)

// Food is a reusable catalogue entry. Exactly one mode's fields are
// populated: CaloriesP100+ServingGrams for by_weight, CaloriesFixed for
// fixed_serving. Writes always set all four so a mode switch clears the
// inactive pair.
type Food struct {
	ID            string `gorm:"primaryKey"`
	OwnerID       uint   `gorm:"index"`
	Name          string
	Description   string
	Type          FoodType
	CaloriesP100  *float64
	ServingGrams  *float64
	CaloriesFixed *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
