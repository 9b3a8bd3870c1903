package domain

import "time"

// Category is a spending category a transaction can be filed under
type Category struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"uniqueIndex;not null"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Built-in category ids. They are stable so stored transactions survive reseeding.
const (
	CategoryBills          = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"
	CategoryFoodDining     = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a12"
	CategoryShopping       = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a13"
	CategoryEntertainment  = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a14"
	CategoryTransportation = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a15"
	CategoryTravel         = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a16"
	CategoryHealth         = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a17"
	CategorySubscriptions  = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a18"
)

// DefaultCategories lists the seeded categories in rule order
func DefaultCategories() []Category {
	return []Category{
		{ID: CategoryBills, Name: "Bills", Position: 1},
		{ID: CategoryFoodDining, Name: "Food & Dining", Position: 2},
		{ID: CategoryShopping, Name: "Shopping", Position: 3},
		{ID: CategoryEntertainment, Name: "Entertainment", Position: 4},
		{ID: CategoryTransportation, Name: "Transportation", Position: 5},
		{ID: CategoryTravel, Name: "Travel", Position: 6},
		{ID: CategoryHealth, Name: "Health", Position: 7},
		{ID: CategorySubscriptions, Name: "Subscriptions", Position: 8},
	}
}
