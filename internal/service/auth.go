// Package service: authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//	                   ↘ session.Bus (sign-in/sign-out events)
//
// KEY RESPONSIBILITIES:
//   - Email sign-up and sign-in with bcrypt-hashed passwords
//   - The GitHub OAuth callback: upsert the user, issue a token
//   - Announce session changes on the bus so open session streams follow along
//   - Decide who the admin is (ADMIN_EMAIL)
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/auth"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/session"
)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → generate/validate JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - bus        session.Bus                → session-change events (may be nil)
//   - adminEmail string                     → the one account allowed to edit methods
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users      repository.UserRepository
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	bus        session.Bus
	adminEmail string
	logger     *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	bus session.Bus,
	adminEmail string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		passwords:  passwords,
		bus:        bus,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		logger:     logger,
	}
}

// AuthResult is returned by authentication operations.
// It bundles the user record and the issued JWT together so the caller
// (the HTTP handler) can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// TokenTTL is how long issued tokens (and their cookies) live.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// SignUp registers an email/password account and signs it in.
//
// VALIDATION:
//   - the email must look like one (contain an "@")
//   - the password must pass PasswordService.CheckStrength
//
// A second sign-up with the same email returns apperror.ErrConflict.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "Please enter a valid email address")
	}
	if err := s.passwords.CheckStrength(password); err != nil {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Login:        strings.SplitN(email, "@", 2)[0],
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if apperror.IsDuplicate(err) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "User already registered",
				Field:   "email",
			}
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return s.signIn(ctx, user)
}

// SignIn checks an email/password pair.
//
// Unknown email and wrong password produce the same error, so the response
// never tells an attacker which accounts exist.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthenticated("Invalid login credentials")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("sign-in rejected", slog.String("userID", user.ID))
		return nil, invalid
	}

	return s.signIn(ctx, user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback.
//
// After the handler exchanges the GitHub code for a GitHubUser profile, this:
//
//  1. Upserts the user in the database (create on first login, update afterwards)
//  2. Generates a JWT access token for the authenticated user
//  3. Publishes a signed_in event
//
// It does NOT set cookies. That stays in the handler.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	githubID := ghUser.ID
	user := &model.User{
		GitHubID:  &githubID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)

	return s.signIn(ctx, user)
}

// SignOut announces that userID's session ended. The token itself is
// stateless; the handler clears the cookie.
func (s *AuthService) SignOut(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	s.publish(ctx, session.KindSignedOut, userID)
	s.logger.Info("user signed out", slog.String("userID", userID))
}

// GetUserByID returns the user for the given internal ID, with IsAdmin filled in.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	user.IsAdmin = s.isAdminEmail(user.Email)

	return user, nil
}

// IsAdmin reports whether userID belongs to the admin account.
// It has the shape of auth.AdminCheck so it plugs into RequireAdmin.
func (s *AuthService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if s.adminEmail == "" || userID == "" {
		return false, nil
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("service/auth: checking admin: %w", err)
	}
	return s.isAdminEmail(user.Email), nil
}

// ValidateToken validates a JWT string and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) signIn(ctx context.Context, user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	user.IsAdmin = s.isAdminEmail(user.Email)

	signInsTotal.Inc()
	s.publish(ctx, session.KindSignedIn, user.ID)

	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) isAdminEmail(email string) bool {
	return s.adminEmail != "" && strings.EqualFold(strings.TrimSpace(email), s.adminEmail)
}

// publish is best effort: a dead bus must not fail a sign-in.
func (s *AuthService) publish(ctx context.Context, kind session.Kind, userID string) {
	if s.bus == nil {
		return
	}
	ev := session.Event{Kind: kind, UserID: userID, At: time.Now()}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish session event",
			slog.String("kind", string(kind)),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}
}
