package model

import "time"

// SavedMethod is a user's bookmark of a method. The (UserID, MethodID) pair is unique;
// its existence is the only signal of "saved".
type SavedMethod struct {
	UserID    string    `json:"userId"`
	MethodID  int64     `json:"methodId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CompletedMethod marks a method as mastered by a user. Upserted per pair.
type CompletedMethod struct {
	UserID      string    `json:"userId"`
	MethodID    int64     `json:"methodId"`
	Notes       string    `json:"notes,omitempty"`
	Rating      int       `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	CompletedAt time.Time `json:"completedAt"`
}

// UserAchievement records that a user earned an achievement from the static catalog.
type UserAchievement struct {
	UserID        string    `json:"userId"`
	AchievementID string    `json:"achievementId"`
	EarnedAt      time.Time `json:"earnedAt"`
}

// Profile holds the user's point total. Points only grow, through an atomic add.
type Profile struct {
	UserID string `json:"id"`
	Points int    `json:"points"`
}
