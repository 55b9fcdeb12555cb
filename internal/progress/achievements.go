package progress

import (
	"math"
)

// Snapshot is the set of counts the achievement rules look at.
//
// SavedCount may be a prospective value: when a save is in flight the caller
// passes current+1 so the award lands together with the save.
type Snapshot struct {
	SavedCount          int      `json:"savedCount"`
	CompletedCount      int      `json:"completedCount"`
	CompletedCategories []string `json:"completedCategories"`
	AllMethodsLearned   bool     `json:"allMethodsLearned"`
	TotalMethods        int      `json:"totalMethods"`
}

// Achievement is one entry of the static catalog. Only awards are persisted;
// definitions live in code.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Points      int    `json:"points"`

	qualifies func(Snapshot) bool
	progress  func(Snapshot) float64
}

// Qualifies reports whether s satisfies the achievement's requirement.
func (a Achievement) Qualifies(s Snapshot) bool {
	return a.qualifies != nil && a.qualifies(s)
}

var catalog = []Achievement{
	{
		ID:          "first-save",
		Name:        "Quick Save",
		Description: "Save your first preservation method",
		Icon:        "heart",
		Points:      10,
		qualifies:   func(s Snapshot) bool { return s.SavedCount >= 1 },
		progress:    func(s Snapshot) float64 { return ratio(s.SavedCount, 1) },
	},
	{
		ID:          "save-collector",
		Name:        "Collection Builder",
		Description: "Save 10 preservation methods",
		Icon:        "heart",
		Points:      50,
		qualifies:   func(s Snapshot) bool { return s.SavedCount >= 10 },
		progress:    func(s Snapshot) float64 { return ratio(s.SavedCount, 10) },
	},
	{
		ID:          "first-completion",
		Name:        "First Success",
		Description: "Master your first preservation method",
		Icon:        "checkCircle",
		Points:      25,
		qualifies:   func(s Snapshot) bool { return s.CompletedCount >= 1 },
		progress:    func(s Snapshot) float64 { return ratio(s.CompletedCount, 1) },
	},
	{
		ID:          "category-master",
		Name:        "Category Champion",
		Description: "Master every method in one category",
		Icon:        "trophy",
		Points:      75,
		qualifies:   func(s Snapshot) bool { return len(s.CompletedCategories) >= 1 },
		progress:    func(s Snapshot) float64 { return ratio(len(s.CompletedCategories), 1) },
	},
	{
		ID:          "multi-category",
		Name:        "Preservation Specialist",
		Description: "Master every method in three categories",
		Icon:        "star",
		Points:      150,
		qualifies:   func(s Snapshot) bool { return len(s.CompletedCategories) >= 3 },
		progress:    func(s Snapshot) float64 { return ratio(len(s.CompletedCategories), 3) },
	},
	{
		ID:          "master-preserver",
		Name:        "Master Preserver",
		Description: "Master every preservation method",
		Icon:        "award",
		Points:      250,
		qualifies:   func(s Snapshot) bool { return s.AllMethodsLearned },
		progress: func(s Snapshot) float64 {
			if s.AllMethodsLearned {
				return 1
			}
			return ratio(s.SavedCount, s.TotalMethods)
		},
	},
}

// Catalog returns a copy of every achievement in display order.
func Catalog() []Achievement {
	out := make([]Achievement, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up a catalog entry.
func ByID(id string) (Achievement, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Evaluate returns every achievement whose requirement s satisfies, in catalog order.
func Evaluate(s Snapshot) []Achievement {
	var out []Achievement
	for _, a := range catalog {
		if a.Qualifies(s) {
			out = append(out, a)
		}
	}
	return out
}

// Pending drops achievements already in earned and repeated ids within the batch,
// leaving exactly the awards still to be made.
func Pending(qualifying []Achievement, earned []string) []Achievement {
	seen := make(map[string]bool, len(earned)+len(qualifying))
	for _, id := range earned {
		seen[id] = true
	}
	var out []Achievement
	for _, a := range qualifying {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

// NextAchievement returns the first catalog entry not yet earned.
func NextAchievement(earned []string) (Achievement, bool) {
	have := make(map[string]bool, len(earned))
	for _, id := range earned {
		have[id] = true
	}
	for _, a := range catalog {
		if !have[a.ID] {
			return a, true
		}
	}
	return Achievement{}, false
}

// ProgressFor returns, per achievement id, the whole percentage toward it (0–100).
func ProgressFor(s Snapshot) map[string]int {
	out := make(map[string]int, len(catalog))
	for _, a := range catalog {
		out[a.ID] = clamp(int(math.Round(a.progress(s)*100)), 0, 100)
	}
	return out
}

// TotalPoints sums the rewards of the given achievements.
func TotalPoints(list []Achievement) int {
	total := 0
	for _, a := range list {
		total += a.Points
	}
	return total
}

func ratio(have, need int) float64 {
	if need <= 0 {
		return 0
	}
	return float64(have) / float64(need)
}
