package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/codefile/internal/apperror"
	"github.com/sakif/codefile/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// Using ":memory:" creates a fresh database that exists only during the test.
// Fast (no disk I/O), isolated (each test gets its own database), and clean
// (destroyed when the connection closes).
//
// newTestDB is a "test helper". The `t.Helper()` call tells Go's test
// framework to report errors at the CALLER's line number, not inside this
// function, which makes failure output much clearer.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	// t.Cleanup registers a function to run when the test finishes.
	// Like defer, but scoped to the test — even works in subtests.
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestSnippet(t *testing.T, db *DB, code, language string, protected bool) *model.Snippet {
	t.Helper()
	snippet := &model.Snippet{Code: code, Language: language, Protected: protected}
	if err := db.Create(context.Background(), snippet); err != nil {
		t.Fatalf("failed to create test snippet: %v", err)
	}
	return snippet
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate(t *testing.T) {
	db := newTestDB(t)

	snippet := &model.Snippet{
		Code:     "print('hello')",
		Language: "python",
	}

	err := db.Create(context.Background(), snippet)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Verify the snippet was modified in-place (pointer receiver!)
	if snippet.ID == "" {
		t.Error("Create() did not set snippet.ID")
	}
	if snippet.CreatedAt.IsZero() {
		t.Error("Create() did not set snippet.CreatedAt")
	}
	if snippet.UpdatedAt.IsZero() {
		t.Error("Create() did not set snippet.UpdatedAt")
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	db := newTestDB(t)

	a := createTestSnippet(t, db, "a", "go", false)
	b := createTestSnippet(t, db, "b", "go", false)

	if a.ID == b.ID {
		t.Errorf("two snippets share ID %q", a.ID)
	}
}

func TestCreate_VerifyPersistence(t *testing.T) {
	db := newTestDB(t)

	original := createTestSnippet(t, db, "print('hi')", "python", true)

	found, err := db.GetByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.Code != original.Code {
		t.Errorf("Code = %q, want %q", found.Code, original.Code)
	}
	if found.Language != original.Language {
		t.Errorf("Language = %q, want %q", found.Language, original.Language)
	}
	if !found.Protected {
		t.Error("Protected = false, want true")
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("GetByID() should error for missing snippet")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate(t *testing.T) {
	db := newTestDB(t)
	snippet := createTestSnippet(t, db, "old", "javascript", false)
	createdAt := snippet.CreatedAt

	snippet.Code = "new"
	snippet.Language = "go"
	snippet.Protected = true

	if err := db.Update(context.Background(), snippet); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	found, err := db.GetByID(context.Background(), snippet.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Code != "new" {
		t.Errorf("Code = %q, want %q", found.Code, "new")
	}
	if found.Language != "go" {
		t.Errorf("Language = %q, want %q", found.Language, "go")
	}
	if !found.Protected {
		t.Error("Protected = false, want true")
	}
	// created_at is immutable; updated_at is refreshed. Compare with a
	// tolerance — the driver round-trips timestamps through its own
	// DATETIME encoding.
	if d := found.CreatedAt.Sub(createdAt); d > time.Second || d < -time.Second {
		t.Errorf("CreatedAt changed: %v → %v", createdAt, found.CreatedAt)
	}
	if found.UpdatedAt.Add(time.Second).Before(createdAt) {
		t.Errorf("UpdatedAt = %v, should not precede CreatedAt %v", found.UpdatedAt, createdAt)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Update(context.Background(), &model.Snippet{ID: "nope", Code: "x"})
	if err == nil {
		t.Fatal("Update() should error for missing snippet")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	snippet := createTestSnippet(t, db, "doomed", "go", false)

	if err := db.Delete(context.Background(), snippet.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := db.GetByID(context.Background(), snippet.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after delete, GetByID error = %v, want ErrNotFound", err)
	}
}

func TestDelete_Protected(t *testing.T) {
	// Protection guards the content, not the record — a protected snippet
	// can still be deleted.
	db := newTestDB(t)
	snippet := createTestSnippet(t, db, "locked", "go", true)

	if err := db.Delete(context.Background(), snippet.ID); err != nil {
		t.Fatalf("Delete() of protected snippet error = %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.Delete(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("Delete() should error for missing snippet")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
