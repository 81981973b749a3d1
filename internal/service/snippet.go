// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// The service is where the collaboration rules live: what a partial update
// means, when protection blocks an edit, and when a delta gets broadcast to
// the other sessions. It knows nothing about HTTP or SQL.
//
// DEPENDENCY INJECTION:
// SnippetService takes a repository.SnippetRepository and a pubsub.Broker —
// interfaces, not concrete types. Tests inject an in-memory repository and
// a recording broker; main wires SQLite and Redis. The service can't tell
// the difference, and that's the point.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/codefile/internal/apperror"
	"github.com/sakif/codefile/internal/model"
	"github.com/sakif/codefile/internal/pubsub"
	"github.com/sakif/codefile/internal/repository"
)

// Defaults for newly created snippets and validation bounds.
const (
	DefaultCode     = "// Start coding here...\n"
	DefaultLanguage = "javascript"

	MaxCodeLength     = 100000 // ~100KB of code
	MaxLanguageLength = 50
)

// SnippetService is the mutation gateway: every change to a snippet flows
// through it, gets validated against the protection rule, is persisted, and
// — on success — is republished to the snippet's channel for live viewers.
type SnippetService struct {
	repo   repository.SnippetRepository
	broker pubsub.Broker
	logger *slog.Logger
}

// NewSnippetService creates a new SnippetService.
func NewSnippetService(repo repository.SnippetRepository, broker pubsub.Broker, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		broker: broker,
		logger: logger,
	}
}

// Create validates and saves a new snippet.
//
// All fields are optional; a nil patch field falls back to the documented
// default (placeholder code, "javascript", unprotected). Nothing is
// published on create — a channel with no snippet id yet has no subscribers.
func (s *SnippetService) Create(ctx context.Context, initial model.SnippetPatch) (*model.Snippet, error) {
	snippet := &model.Snippet{
		Code:     DefaultCode,
		Language: DefaultLanguage,
	}

	if initial.Code != nil {
		if len(*initial.Code) > MaxCodeLength {
			return nil, apperror.ValidationFailed("code",
				fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
		}
		snippet.Code = *initial.Code
	}
	if initial.Language != nil {
		language, err := validLanguage(*initial.Language)
		if err != nil {
			return nil, err
		}
		snippet.Language = language
	}
	if initial.Protected != nil {
		snippet.Protected = *initial.Protected
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("language", snippet.Language),
	)

	return snippet, nil
}

// GetByID retrieves a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}

	return s.repo.GetByID(ctx, id)
}

// Update applies a partial update to a snippet.
//
// SEMANTICS (the heart of the whole system):
//
//  1. The snippet must exist → otherwise NotFound.
//  2. If the stored snippet is protected AND the patch carries a code field
//     (even an empty one — nil means absent, pointer-to-"" means present),
//     the whole patch is rejected with Forbidden. Atomic reject: the
//     language/protected parts of that patch are NOT applied either.
//  3. Otherwise only the present fields are merged, updatedAt refreshed,
//     and the record persisted. Protection guards code only — flipping
//     protected itself or changing language is always allowed.
//  4. After a successful persist, the {code, language} delta is published
//     to channel "snippet-{id}" so other live sessions converge.
//
// Note there is no read-modify-write lock around steps 1–3. Two concurrent
// updates race and the later persisted write wins; that is the documented
// consistency model (see repository.Update).
func (s *SnippetService) Update(ctx context.Context, id string, patch model.SnippetPatch) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}

	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if snippet.Protected && patch.Code != nil {
		return nil, apperror.Forbidden("This snippet is protected and cannot be modified")
	}

	if patch.Code != nil {
		if len(*patch.Code) > MaxCodeLength {
			return nil, apperror.ValidationFailed("code",
				fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
		}
		snippet.Code = *patch.Code
	}
	if patch.Language != nil {
		language, err := validLanguage(*patch.Language)
		if err != nil {
			return nil, err
		}
		snippet.Language = language
	}
	if patch.Protected != nil {
		snippet.Protected = *patch.Protected
	}

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	// BEST-EFFORT PUBLISH:
	// The write is already durable. If the broker is down (or is the noop
	// broker), the other sessions miss this delta and catch up on their
	// next full fetch — we log and return success regardless. Publish
	// failure must never fail, or roll back, the mutation itself.
	delta := pubsub.Delta{Code: snippet.Code, Language: snippet.Language}
	if err := s.broker.Publish(ctx, pubsub.SnippetChannel(id), pubsub.EventCodeUpdate, delta); err != nil {
		s.logger.Warn("failed to publish snippet delta",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}

	return snippet, nil
}

// Delete removes a snippet by its ID. Protection does not block deletion —
// the flag guards the content, not the record. Deleting an id that doesn't
// exist returns NotFound.
func (s *SnippetService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "snippet ID is required")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// validLanguage checks shape, not membership: language is an open set of
// editor modes and new modes appear on the frontend without server
// releases, so the server only rejects the obviously broken.
func validLanguage(language string) (string, error) {
	language = strings.TrimSpace(language)
	if language == "" {
		return "", apperror.ValidationFailed("language", "language cannot be empty")
	}
	if len(language) > MaxLanguageLength {
		return "", apperror.ValidationFailed("language",
			fmt.Sprintf("language must be %d characters or less", MaxLanguageLength))
	}
	return language, nil
}
