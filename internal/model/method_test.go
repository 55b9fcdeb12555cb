package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedSteps(t *testing.T) {
	m := &Method{Steps: []Step{
		{Order: 2, Title: "Pack jars"},
		{Order: 1, Title: "Make brine"},
		{Order: 3, Title: "Rest"},
	}}

	got := m.SortedSteps()

	assert.Equal(t, []int{1, 2, 3}, orders(got))
	assert.Equal(t, "Make brine", got[0].Title)
	// the method itself is untouched
	assert.Equal(t, 2, m.Steps[0].Order)
}

func TestSortedSteps_Empty(t *testing.T) {
	m := &Method{}
	assert.Empty(t, m.SortedSteps())
}

func TestRemoveStep_RenumbersFollowingSteps(t *testing.T) {
	steps := []Step{
		{Order: 1, Title: "a"},
		{Order: 2, Title: "b"},
		{Order: 3, Title: "c"},
		{Order: 4, Title: "d"},
	}

	got := RemoveStep(steps, 2)

	assert.Equal(t, []int{1, 2, 3}, orders(got))
	assert.Equal(t, []string{"a", "c", "d"}, titles(got))
}

func TestRenumberSteps_ClosesGaps(t *testing.T) {
	got := RenumberSteps([]Step{{Order: 7, Title: "x"}, {Order: 3, Title: "y"}})
	assert.Equal(t, []int{1, 2}, orders(got))
	assert.Equal(t, []string{"y", "x"}, titles(got))
}

func TestScaleIngredients(t *testing.T) {
	tests := []struct {
		name   string
		base   float64
		target float64
		qty    float64
		want   float64
	}{
		{"double", 4, 8, 2, 4.00},
		{"halve", 4, 2, 3, 1.5},
		{"rounds to two decimals", 3, 1, 1, 0.33},
		{"zero base treated as one", 0, 2, 1.5, 3},
		{"negative base treated as one", -5, 0.25, 2, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleIngredients([]Ingredient{{Name: "salt", Quantity: tt.qty, Unit: "tbsp"}}, tt.base, tt.target)
			assert.InDelta(t, tt.want, got[0].Quantity, 1e-9)
			assert.Equal(t, "tbsp", got[0].Unit)
		})
	}
}

func orders(steps []Step) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.Order
	}
	return out
}

func titles(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Title
	}
	return out
}
