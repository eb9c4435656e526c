package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"calorie-log/internal/model"
)

// FoodRepository manages the food catalogue. Foods are not day-scoped.
type FoodRepository struct {
	db *gorm.DB
}

func NewFoodRepository(db *gorm.DB) *FoodRepository {
	return &FoodRepository{db: db}
}

func (r *FoodRepository) Create(ctx context.Context, food *model.Food) error {
	if err := r.db.WithContext(ctx).Create(food).Error; err != nil {
		return fmt.Errorf("create food: %w", err)
	}
	return nil
}

func (r *FoodRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Food, error) {
	var foods []model.Food
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name ASC").Find(&foods).Error; err != nil {
		return nil, err
	}
	return foods, nil
}

func (r *FoodRepository) FindByID(ctx context.Context, ownerID uint, id string) (*model.Food, error) {
	var food model.Food
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).First(&food).Error; err != nil {
		return nil, err
	}
	return &food, nil
}

// FindByName matches a catalogue food by name, case-insensitively.
func (r *FoodRepository) FindByName(ctx context.Context, ownerID uint, name string) (*model.Food, error) {
	var food model.Food
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND LOWER(name) = ?", ownerID, strings.ToLower(strings.TrimSpace(name))).
		First(&food).Error; err != nil {
		return nil, err
	}
	return &food, nil
}

// Update rewrites all mode-relevant fields so switching the serving type
// clears the previous mode's pair.
func (r *FoodRepository) Update(ctx context.Context, food *model.Food) error {
	updates := map[string]interface{}{
		"name":           food.Name,
		"description":    food.Description,
		"type":           food.Type,
		"calories_p100":  food.CaloriesP100,
		"serving_grams":  food.ServingGrams,
		"calories_fixed": food.CaloriesFixed,
	}
	if err := r.db.WithContext(ctx).Model(&model.Food{}).
		Where("owner_id = ? AND id = ?", food.OwnerID, food.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("update food: %w", err)
	}
	return nil
}

// Delete removes a food unconditionally. Log entries referencing it are left
// in place and resolve through their fallback path.
func (r *FoodRepository) Delete(ctx context.Context, ownerID uint, id string) error {
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).
		Delete(&model.Food{}).Error; err != nil {
		return fmt.Errorf("delete food: %w", err)
	}
	return nil
}
