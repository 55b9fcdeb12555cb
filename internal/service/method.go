// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never *sqlite.DB, so tests can run
// them against an in-memory database and the server can swap backends in
// one place (server.New).
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/statscache"
	"github.com/sakif/pickleit/internal/storage"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// methodValidate checks the `validate` tags on model.Method and its parts.
var methodValidate = validator.New()

// MethodService handles the method catalog: listing, admin edits, and images.
//
// DEPENDENCIES:
//   - repo:   the catalog table
//   - images: where uploaded images live (nil disables uploads)
//   - stats:  the shared counts cache (total_methods_count)
type MethodService struct {
	repo   repository.MethodRepository
	images storage.Store
	stats  *statscache.Stats
	logger *slog.Logger
}

func NewMethodService(
	repo repository.MethodRepository,
	images storage.Store,
	stats *statscache.Stats,
	logger *slog.Logger,
) *MethodService {
	return &MethodService{
		repo:   repo,
		images: images,
		stats:  stats,
		logger: logger,
	}
}

// List returns methods, optionally filtered by category.
// limit is clamped to 1..MaxListLimit (DefaultListLimit when unset).
func (s *MethodService) List(ctx context.Context, category string, limit, offset int) ([]model.Method, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	methods, err := s.repo.ListMethods(ctx, repository.ListOptions{
		Category: strings.TrimSpace(category),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.logger.Error("failed to list methods", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing methods: %w", err)
	}
	return methods, nil
}

// Get returns one method. Returns apperror.ErrNotFound if it doesn't exist.
func (s *MethodService) Get(ctx context.Context, id int64) (*model.Method, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "Invalid method ID")
	}
	return s.repo.GetMethod(ctx, id)
}

// Count returns the catalog size and refreshes the cached total.
func (s *MethodService) Count(ctx context.Context) (int, error) {
	n, err := s.repo.CountMethods(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting methods: %w", err)
	}
	s.stats.SetInt(ctx, statscache.KeyTotalMethods, n)
	return n, nil
}

// Create validates and stores a new method. Steps are renumbered 1..n.
func (s *MethodService) Create(ctx context.Context, m *model.Method) (*model.Method, error) {
	if m == nil {
		return nil, apperror.ValidationFailed("method", "Please fill in all required fields")
	}
	normalizeMethod(m)
	if err := validateMethod(m); err != nil {
		return nil, err
	}

	if err := s.repo.CreateMethod(ctx, m); err != nil {
		s.logger.Error("failed to create method",
			slog.String("title", m.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating method: %w", err)
	}
	s.stats.Invalidate(ctx, statscache.KeyTotalMethods)

	s.logger.Info("method created",
		slog.Int64("id", m.ID),
		slog.String("title", m.Title),
	)
	return m, nil
}

// Update replaces the content of method id with in.
//
// STRATEGY: "Fetch then update", as for every edit: the NotFound comes from
// GetMethod, and the caller gets the full stored record back. An empty
// ImageURL keeps the current image; images change through ReplaceImage.
func (s *MethodService) Update(ctx context.Context, id int64, in *model.Method) (*model.Method, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "Invalid method ID")
	}
	if in == nil {
		return nil, apperror.ValidationFailed("method", "Please fill in all required fields")
	}

	existing, err := s.repo.GetMethod(ctx, id)
	if err != nil {
		return nil, err
	}

	normalizeMethod(in)
	existing.Title = in.Title
	existing.Description = in.Description
	existing.Category = in.Category
	existing.Duration = in.Duration
	existing.Steps = in.Steps
	existing.Ingredients = in.Ingredients
	existing.BaseYield = in.BaseYield
	existing.YieldUnit = in.YieldUnit
	if in.ImageURL != "" {
		existing.ImageURL = in.ImageURL
	}
	if err := validateMethod(existing); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateMethod(ctx, existing); err != nil {
		s.logger.Error("failed to update method",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating method: %w", err)
	}

	s.logger.Info("method updated", slog.Int64("id", id))
	return existing, nil
}

// ImageUpload is one uploaded file.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ReplaceImage points method id at a newly uploaded image.
//
// ORDER OF OPERATIONS:
//  1. upload the new file under a fresh unique name
//  2. update the method record (on failure, delete the new upload)
//  3. delete the old image, if this store issued it
//
// A failure in step 3 is only logged: the method already shows the new image
// and an orphaned file is harmless.
func (s *MethodService) ReplaceImage(ctx context.Context, id int64, img ImageUpload) (*model.Method, error) {
	if s.images == nil {
		return nil, apperror.ValidationFailed("image", "Image uploads are not configured")
	}
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "Invalid method ID")
	}
	if err := storage.CheckImage(img.ContentType, img.Size); err != nil {
		return nil, err
	}

	m, err := s.repo.GetMethod(ctx, id)
	if err != nil {
		return nil, err
	}
	oldURL := m.ImageURL

	name := storage.UniqueFilename(img.Filename, time.Now())
	newURL, err := s.images.Upload(ctx, name, img.Body, img.ContentType)
	if err != nil {
		imageUploads.WithLabelValues("error").Inc()
		if errors.Is(err, apperror.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("uploading image for method %d: %w", id, err)
	}

	m.ImageURL = newURL
	if err := s.repo.UpdateMethod(ctx, m); err != nil {
		imageUploads.WithLabelValues("error").Inc()
		if delErr := s.images.Delete(context.WithoutCancel(ctx), newURL); delErr != nil {
			s.logger.Warn("failed to remove orphaned upload",
				slog.String("url", newURL),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("updating image for method %d: %w", id, err)
	}
	imageUploads.WithLabelValues("success").Inc()

	if oldURL != "" {
		if _, ours := storage.ObjectKeyFromURL(s.images.PublicBase(), oldURL); ours {
			if err := s.images.Delete(ctx, oldURL); err != nil {
				s.logger.Warn("failed to delete replaced image",
					slog.String("url", oldURL),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.Info("method image replaced",
		slog.Int64("id", id),
		slog.String("url", newURL),
	)
	return m, nil
}

// ParseMethodID parses a path or argument id. Anything that is not a
// positive integer is a validation error.
func ParseMethodID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed("methodId", "Invalid method ID")
	}
	return id, nil
}

func normalizeMethod(m *model.Method) {
	m.Title = strings.TrimSpace(m.Title)
	m.Description = strings.TrimSpace(m.Description)
	m.Category = strings.TrimSpace(m.Category)
	m.Duration = strings.TrimSpace(m.Duration)
	m.ImageURL = strings.TrimSpace(m.ImageURL)
	m.YieldUnit = strings.TrimSpace(m.YieldUnit)
	m.Steps = model.RenumberSteps(m.Steps)
}

// validateMethod runs the struct tags. A missing required field anywhere
// reports the form-level message; other failures name the field.
func validateMethod(m *model.Method) error {
	err := methodValidate.Struct(m)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating method: %w", err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return apperror.ValidationFailed(fieldName(fe), "Please fill in all required fields")
		}
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fieldName(fe), fmt.Sprintf("%s is invalid", fe.Field()))
}

func fieldName(fe validator.FieldError) string {
	return strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
}
