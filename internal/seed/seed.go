// Package seed holds the sample catalog of preservation methods.
//
// The same Seed function fills a fresh server database directly (SEED_ON_START)
// and, from the CLI, an empty remote catalog through the API client. Both
// satisfy repository.MethodRepository.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
)

const unsplash = "https://images.unsplash.com/"

// Methods returns a fresh copy of the sample catalog.
func Methods() []model.Method {
	return []model.Method{
		{
			Title: "Quick Pickle Vegetables",
			Description: "A fast and easy way to preserve fresh vegetables using vinegar brine. " +
				"Perfect for cucumbers, carrots, and onions. This method extends shelf life for weeks " +
				"while adding delicious tangy flavor.",
			Category:  "Pickling",
			Duration:  "30 min",
			ImageURL:  unsplash + "photo-1641738219797-c814f6fab4d3?q=80&w=774&auto=format&fit=crop",
			BaseYield: 2,
			YieldUnit: "jars",
			Steps: []model.Step{
				{Order: 1, Title: "Prep the vegetables", Description: "Slice into spears or coins and pack tightly into clean jars."},
				{Order: 2, Title: "Make the brine", Description: "Bring vinegar, water, salt, and sugar to a simmer until dissolved."},
				{Order: 3, Title: "Fill and cool", Description: "Pour hot brine over the vegetables, leaving 1/2 inch headspace. Cool, then refrigerate."},
			},
			Ingredients: []model.Ingredient{
				{Name: "cucumbers", Quantity: 500, Unit: "g"},
				{Name: "white vinegar", Quantity: 1, Unit: "cup"},
				{Name: "water", Quantity: 1, Unit: "cup"},
				{Name: "kosher salt", Quantity: 1, Unit: "tbsp"},
				{Name: "sugar", Quantity: 2, Unit: "tsp"},
			},
		},
		{
			Title: "Water Bath Canning",
			Description: "Traditional method for preserving high-acid foods like tomatoes, jams, and fruits. " +
				"Creates shelf-stable jars that last for years. Essential technique for maximizing your harvest.",
			Category: "Canning",
			Duration: "2 hours",
			ImageURL: unsplash + "photo-1531928351158-2f736078e0a1?q=80&w=774&auto=format&fit=crop",
			Steps: []model.Step{
				{Order: 1, Title: "Heat the canner", Description: "Fill with enough water to cover jars by an inch and bring to a simmer."},
				{Order: 2, Title: "Fill the jars", Description: "Ladle hot food into hot jars, remove air bubbles, wipe rims, and fit lids."},
				{Order: 3, Title: "Process", Description: "Lower jars into boiling water and process for the time your recipe gives."},
				{Order: 4, Title: "Rest", Description: "Lift out and leave undisturbed for 24 hours, then check the seals."},
			},
		},
		{
			Title: "Dehydrate Fruit & Herbs",
			Description: "Remove moisture to create dried fruits, herbs, and vegetables. Use a dehydrator " +
				"or oven on low heat. Produces lightweight, portable snacks that store for months.",
			Category: "Drying",
			Duration: "6-12 hours",
			ImageURL: unsplash + "photo-1519681393784-d120267933ba?q=80&w=774&auto=format&fit=crop",
		},
		{
			Title: "Fermented Vegetables",
			Description: "Create probiotic-rich foods like sauerkraut and kimchi through natural fermentation. " +
				"Salt and time transform vegetables into tangy, gut-healthy treats that improve with age.",
			Category:  "Fermenting",
			Duration:  "1-4 weeks",
			ImageURL:  unsplash + "photo-1600555379765-c510d544bdbc?q=80&w=774&auto=format&fit=crop",
			BaseYield: 1,
			YieldUnit: "quart",
			Ingredients: []model.Ingredient{
				{Name: "green cabbage", Quantity: 1, Unit: "kg"},
				{Name: "sea salt", Quantity: 20, Unit: "g"},
			},
		},
		{
			Title: "Pressure Canning",
			Description: "Advanced method for low-acid foods like vegetables, meats, and soups. Requires " +
				"special equipment but allows safe long-term storage of a wider variety of foods at room temperature.",
			Category: "Canning",
			Duration: "1-3 hours",
			ImageURL: unsplash + "photo-1568043210943-0ce4e915b02a?q=80&w=774&auto=format&fit=crop",
		},
		{
			Title: "Jam & Jelly Making",
			Description: "Turn fresh or frozen fruit into delicious spreads using sugar and pectin. Water bath " +
				"canning makes them shelf-stable. Perfect for preserving summer berries year-round.",
			Category: "Canning",
			Duration: "1 hour",
			ImageURL: unsplash + "photo-1534639077088-d702bcf6857a?q=80&w=774&auto=format&fit=crop",
		},
	}
}

// Seed creates the sample catalog when repo has no methods yet. It returns
// how many methods it created; an already populated catalog is left alone.
func Seed(ctx context.Context, repo repository.MethodRepository, logger *slog.Logger) (int, error) {
	n, err := repo.CountMethods(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed: counting methods: %w", err)
	}
	if n > 0 {
		logger.Info("seed: catalog already populated", slog.Int("methods", n))
		return 0, nil
	}

	created := 0
	for _, m := range Methods() {
		if err := repo.CreateMethod(ctx, &m); err != nil {
			return created, fmt.Errorf("seed: creating %q: %w", m.Title, err)
		}
		created++
	}
	logger.Info("seed: catalog created", slog.Int("methods", created))
	return created, nil
}
