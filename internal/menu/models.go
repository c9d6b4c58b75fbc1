package menu

import (
	"errors"
	"sort"
	"time"
)

var ErrNotFound = errors.New("menu item not found")

// Meal slots, in display order.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealSnack     = "snack"
	MealDinner    = "dinner"
)

var mealOrder = map[string]int{
	MealBreakfast: 0,
	MealLunch:     1,
	MealSnack:     2,
	MealDinner:    3,
}

type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       int       `json:"price"`
	Meal        string    `json:"meal"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupByMeal buckets items per meal slot, name-sorted within each slot.
// Items with an unknown slot land in snack, mirroring the menu display.
func GroupByMeal(items []Item) map[string][]Item {
	grouped := map[string][]Item{
		MealBreakfast: {},
		MealLunch:     {},
		MealSnack:     {},
		MealDinner:    {},
	}
	for _, it := range items {
		slot := it.Meal
		if _, ok := mealOrder[slot]; !ok {
			slot = MealSnack
		}
		grouped[slot] = append(grouped[slot], it)
	}
	for slot := range grouped {
		items := grouped[slot]
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	}
	return grouped
}
