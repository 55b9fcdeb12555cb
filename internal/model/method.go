// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import (
	"math"
	"sort"
	"time"
)

// Method is a preservation technique (a recipe plus its instructions).
//
// Identity (ID) never changes once created. Content fields change through
// the update operation; methods are never deleted.
//
// OPTIONAL FIELDS:
// Steps, Ingredients, and the yield fields are optional. They are stored as
// JSON columns by the sqlite repository and omitted from API responses when empty.
type Method struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"       validate:"required,max=200"`
	Description string       `json:"description" validate:"required"`
	Category    string       `json:"category"    validate:"required,max=60"`
	Duration    string       `json:"duration"    validate:"required,max=60"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	Steps       []Step       `json:"steps,omitempty"       validate:"dive"`
	Ingredients []Ingredient `json:"ingredients,omitempty" validate:"dive"`
	BaseYield   float64      `json:"baseYield,omitempty"   validate:"gte=0"`
	YieldUnit   string       `json:"yieldUnit,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Step is one instruction within a Method. Order is 1-based and contiguous.
type Step struct {
	Order       int    `json:"order"       validate:"gte=1"`
	Title       string `json:"title"       validate:"required"`
	Description string `json:"description"`
}

// Ingredient is a quantity of something used by a Method.
type Ingredient struct {
	Name     string  `json:"name"     validate:"required"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Unit     string  `json:"unit,omitempty"`
}

// SortedSteps returns a copy of the method's steps ordered by Order ascending.
// The stored order of the slice does not matter.
func (m *Method) SortedSteps() []Step {
	steps := make([]Step, len(m.Steps))
	copy(steps, m.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}

// RenumberSteps sorts steps and rewrites Order so it runs 1..n with no gaps.
func RenumberSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i + 1
	}
	return out
}

// RemoveStep drops the step with the given order; later steps shift down by one.
func RemoveStep(steps []Step, order int) []Step {
	kept := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Order != order {
			kept = append(kept, s)
		}
	}
	return RenumberSteps(kept)
}

// ScaleIngredients returns ingredients with quantities multiplied by
// targetYield / baseYield, rounded to two decimals.
//
// A non-positive baseYield is treated as 1 so a method without yield
// information still scales linearly instead of dividing by zero.
func ScaleIngredients(ingredients []Ingredient, baseYield, targetYield float64) []Ingredient {
	safeBase := baseYield
	if safeBase <= 0 {
		safeBase = 1
	}
	scale := targetYield / safeBase

	out := make([]Ingredient, len(ingredients))
	for i, ing := range ingredients {
		out[i] = ing
		out[i].Quantity = roundTo2(ing.Quantity * scale)
	}
	return out
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
