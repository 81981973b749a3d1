package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/codefile/internal/apperror"
	"github.com/sakif/codefile/internal/model"
	"github.com/sakif/codefile/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// This line verifies AT COMPILE TIME that *DB implements repository.SnippetRepository.
// `var _ X = (*Y)(nil)` assigns a nil *Y to a variable of interface type X;
// if *Y is missing a method, the compiler errors immediately instead of at
// some distant call site.
var _ repository.SnippetRepository = (*DB)(nil)

// Create inserts a new snippet into the database.
//
// ID GENERATION WITH xid:
// xid generates globally unique IDs that are 20 chars, URL-safe, and
// sortable by creation time (they start with a timestamp). Short URL-safe
// IDs matter here — the ID *is* the shareable link.
// Example: "cv37rs3pp9olc6atsptg".
//
// The snippet is passed by pointer so the generated ID and timestamps are
// visible to the caller after Create returns.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()

	now := time.Now()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	// The ? placeholders are filled in order by the arguments after the SQL
	// string. The driver handles escaping — never build SQL with Sprintf.
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets (id, code, language, protected, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.Code,
		snippet.Language,
		snippet.Protected,
		snippet.CreatedAt,
		snippet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	return nil
}

// GetByID retrieves a single snippet by its ID.
//
// sql.ErrNoRows is not really an error — it just means "no matching row
// exists". We translate it to our app's NotFound error so the handler knows
// to return 404. Translating database errors into domain errors at the
// repository boundary keeps SQL details out of the upper layers.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	var snippet model.Snippet

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, code, language, protected, created_at, updated_at
		 FROM snippets
		 WHERE id = ?`,
		id,
	).Scan(
		&snippet.ID,
		&snippet.Code,
		&snippet.Language,
		&snippet.Protected,
		&snippet.CreatedAt,
		&snippet.UpdatedAt,
	)

	if err != nil {
		// sql.ErrNoRows is a sentinel error — we check with ==
		// (not errors.Is, because database/sql doesn't wrap it)
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("Snippet")
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	return &snippet, nil
}

// Update writes a snippet's mutable fields back to the database.
//
// LAST WRITE WINS:
// There is deliberately no version column and no compare-and-swap here.
// Two concurrent updates to the same snippet race, and whichever UPDATE
// lands last is the state everyone converges on. That is the documented
// consistency model of the whole system, not an oversight — adding
// optimistic locking would change observable behaviour under concurrent
// editors.
//
// ExecContext returns a sql.Result with RowsAffected(). If no rows were
// affected, the snippet doesn't exist → NotFound. One query instead of a
// SELECT + UPDATE pair.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET code = ?, language = ?, protected = ?, updated_at = ?
		 WHERE id = ?`,
		snippet.Code,
		snippet.Language,
		snippet.Protected,
		snippet.UpdatedAt,
		snippet.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Snippet")
	}

	return nil
}

// Delete removes a snippet from the database by its ID.
// Hard delete, no tombstone. Same RowsAffected pattern as Update to detect
// "not found".
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Snippet")
	}

	return nil
}
