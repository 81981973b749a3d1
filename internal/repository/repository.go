package repository

import (
	"context"

	"github.com/sakif/codefile/internal/model"
)

// SnippetRepository is the storage contract for snippets. The service layer
// depends on this interface, never on a concrete database — swapping SQLite
// for Postgres (or a mock in tests) is a one-line change in the wiring.
type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
}
