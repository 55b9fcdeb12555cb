package model

import "time"

// User represents a registered user account.
//
// Accounts come from two identity sources: email + password, or GitHub OAuth.
// We generate our own internal string ID (xid) either way, so the rest of the
// app (profiles, saved methods, achievements) keys on one stable value.
//
// WHY GitHubID *int64?
// Email accounts have no GitHub identity. A nil pointer maps to SQL NULL, which
// lets the UNIQUE constraint on github_id ignore email-only accounts.
//
// PasswordHash is never serialised; the json:"-" tag keeps it out of API responses.
type User struct {
	ID           string    `json:"id"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
