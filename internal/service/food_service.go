package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"calorie-log/internal/model"
	"calorie-log/internal/repository"
)

var calorieValuePattern = regexp.MustCompile(`^[0-9]+$`)

// IsValidCalorieValue reports whether raw is an acceptable calorie figure
// for the food catalogue: a non-negative integer-like string.
func IsValidCalorieValue(raw string) bool {
	return calorieValuePattern.MatchString(strings.TrimSpace(raw))
}

// FoodInput represents data required to create or rewrite a catalogue food.
// Calories is per-100g for by_weight foods and per-serving for fixed_serving
// ones; ServingGrams applies to by_weight only.
type FoodInput struct {
	Name         string
	Description  string
	Type         model.FoodType
	Calories     string
	ServingGrams string
}

// FoodService wraps food catalogue business logic.
type FoodService struct {
	repo *repository.FoodRepository
}

func NewFoodService(repo *repository.FoodRepository) *FoodService {
	return &FoodService{repo: repo}
}

// Create validates input and writes exactly the chosen mode's fields,
// leaving the other mode's pair null.
func (s *FoodService) Create(ctx context.Context, user *model.User, input FoodInput) (*model.Food, error) {
	food, err := buildFood(input)
	if err != nil {
		return nil, err
	}
	food.ID = uuid.NewString()
	food.OwnerID = user.ID

	if err := s.repo.Create(ctx, food); err != nil {
		return nil, err
	}
	return food, nil
}

// Update re-validates and rewrites all mode-relevant fields; switching the
// serving type on edit nulls out the previous mode's pair.
func (s *FoodService) Update(ctx context.Context, user *model.User, foodID string, input FoodInput) (*model.Food, error) {
	food, err := buildFood(input)
	if err != nil {
		return nil, err
	}
	food.ID = foodID
	food.OwnerID = user.ID

	if err := s.repo.Update(ctx, food); err != nil {
		return nil, err
	}
	return food, nil
}

// Delete hard-deletes a food. Log entries referencing it are not checked or
// blocked; they fall back to override or unresolved-zero on read.
func (s *FoodService) Delete(ctx context.Context, user *model.User, foodID string) error {
	return s.repo.Delete(ctx, user.ID, foodID)
}

func (s *FoodService) List(ctx context.Context, user *model.User) ([]model.Food, error) {
	return s.repo.ListByOwner(ctx, user.ID)
}

func (s *FoodService) Get(ctx context.Context, user *model.User, foodID string) (*model.Food, error) {
	return s.repo.FindByID(ctx, user.ID, foodID)
}

func (s *FoodService) FindByName(ctx context.Context, user *model.User, name string) (*model.Food, error) {
	return s.repo.FindByName(ctx, user.ID, name)
}

func buildFood(input FoodInput) (*model.Food, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !IsValidCalorieValue(input.Calories) {
		return nil, fmt.Errorf("calories must be a non-negative whole number")
	}
	calories, err := strconv.ParseFloat(strings.TrimSpace(input.Calories), 64)
	if err != nil {
		return nil, fmt.Errorf("parse calories: %w", err)
	}

	food := model.Food{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Type:        input.Type,
	}

	switch input.Type {
	case model.FoodByWeight:
		serving := strings.TrimSpace(input.ServingGrams)
		if serving == "" {
			serving = "100"
		}
		grams, err := strconv.ParseFloat(serving, 64)
		if err != nil || grams <= 0 {
			return nil, fmt.Errorf("serving size must be a positive number of grams")
		}
		food.CaloriesP100 = &calories
		food.ServingGrams = &grams
	case model.FoodFixedServing:
		food.CaloriesFixed = &calories
	default:
		return nil, fmt.Errorf("unknown serving type %q", input.Type)
	}

	return &food, nil
}
