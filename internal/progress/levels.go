// Package progress holds PickleIt's gamification rules: the level tiers that
// turn a point total into a title, and the achievement catalog that turns
// progress counts into awards.
//
// Everything here is pure: no I/O, no clocks, no globals that change. The same
// input always gives the same output, which is what lets the server, the CLI,
// and the tests share one definition of the rules.
package progress

import (
	"math"
)

// Unbounded marks the open-ended top of the last tier.
const Unbounded = math.MaxInt

// Tier is a named band of points. Min and Max are both inclusive.
type Tier struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Contains reports whether points falls inside the tier.
func (t Tier) Contains(points int) bool {
	return points >= t.Min && points <= t.Max
}

// Tiers is ordered and partitions 0..∞ with no gaps or overlaps.
var Tiers = []Tier{
	{Name: "Fresh Picker", Min: 0, Max: 50},
	{Name: "Brine Beginner", Min: 51, Max: 150},
	{Name: "Vinegar Vanguard", Min: 151, Max: 300},
	{Name: "Salt Savant", Min: 301, Max: 500},
	{Name: "Fermentation Fanatic", Min: 501, Max: 700},
	{Name: "Curing Curator", Min: 701, Max: 850},
	{Name: "Time Lord of the Pantry", Min: 851, Max: Unbounded},
}

// LevelProgress is what a profile screen shows: where you are, what is next,
// and how far along you are.
type LevelProgress struct {
	Points     int   `json:"points"`
	Current    Tier  `json:"current"`
	Next       *Tier `json:"next,omitempty"`
	Percentage int   `json:"percentage"`
}

// TierFor returns the first tier whose range contains points.
// Negative totals (which the backend never produces) fall back to the first tier.
func TierFor(points int) Tier {
	return tierIn(Tiers, points)
}

// NextTier returns the tier after the one containing points.
// ok is false at the last tier.
func NextTier(points int) (Tier, bool) {
	return nextTierIn(Tiers, points)
}

// ProgressToNext returns the whole percentage (0–100) of the way from the
// current tier's minimum to the next tier's minimum. At the last tier it is 100.
func ProgressToNext(points int) int {
	return progressIn(Tiers, points)
}

// Level bundles TierFor, NextTier, and ProgressToNext.
func Level(points int) LevelProgress {
	lp := LevelProgress{
		Points:     points,
		Current:    TierFor(points),
		Percentage: ProgressToNext(points),
	}
	if next, ok := NextTier(points); ok {
		lp.Next = &next
	}
	return lp
}

func tierIn(tiers []Tier, points int) Tier {
	for _, t := range tiers {
		if t.Contains(points) {
			return t
		}
	}
	return tiers[0]
}

func nextTierIn(tiers []Tier, points int) (Tier, bool) {
	cur := tierIn(tiers, points)
	for i, t := range tiers {
		if t == cur && i+1 < len(tiers) {
			return tiers[i+1], true
		}
	}
	return Tier{}, false
}

func progressIn(tiers []Tier, points int) int {
	next, ok := nextTierIn(tiers, points)
	if !ok {
		return 100
	}
	cur := tierIn(tiers, points)
	span := float64(next.Min - cur.Min)
	pct := int(math.Round(float64(points-cur.Min) / span * 100))
	return clamp(pct, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
