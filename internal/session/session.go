// Package session is the client side of the collaboration loop: it presents
// one snippet as a live-editable surface.
//
// A Session does four things:
//  1. loads the snippet's full state once over HTTP
//  2. subscribes to the snippet's channel and shallow-merges inbound deltas
//  3. forwards local edits to the server, fire-and-forget
//  4. unsubscribes on Close so deliveries don't leak into a stale view
//
// CONSISTENCY MODEL (inherited from the bus):
// Deltas carry no sequence numbers. The last delta *received* wins, even if
// two deltas arrive out of publish order. A session that misses a delta
// (transport outage, noop broker) diverges silently until its next Load.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/sakif/codefile/internal/model"
	"github.com/sakif/codefile/internal/pubsub"
)

// ErrNotFound is the terminal state for a session whose snippet id doesn't
// exist. The UI shows a "gone" page with a link home — no retry loop.
var ErrNotFound = errors.New("session: snippet not found")

// ErrProtected is returned for local edits while the snippet is protected.
// The editor disables input when Protected is set, so hitting this error
// means the UI check was bypassed; the server enforces the rule either way.
var ErrProtected = errors.New("session: snippet is protected")

// Session is one live view of one snippet.
//
// Concurrency: the delta pump goroutine and the caller both touch the local
// snapshot, so it sits behind a mutex. Saves are synchronous HTTP calls the
// caller is expected to run from its own goroutine (the editor's on-change
// hook) — inFlight counts them for the "saving…" indicator.
type Session struct {
	id      string
	baseURL string
	client  *http.Client
	broker  pubsub.Broker
	logger  *slog.Logger

	mu       sync.RWMutex
	snapshot model.Snippet

	sub      pubsub.Subscription
	pumpDone chan struct{}
	inFlight atomic.Int64
}

// New creates a session for the snippet id served at baseURL
// (e.g. "http://localhost:8080"). Nothing is fetched until Start.
func New(id, baseURL string, broker pubsub.Broker, logger *slog.Logger) *Session {
	return &Session{
		id:      id,
		baseURL: baseURL,
		client:  http.DefaultClient,
		broker:  broker,
		logger:  logger,
	}
}

// Start loads the snippet's current state and begins applying live deltas.
//
// The order matters: fetch first, subscribe second. The bus has no replay,
// so state converges by "full snapshot + every delta after it"; subscribing
// first could still miss deltas published before the subscribe took effect,
// and the system accepts that (see package comment).
//
// Returns ErrNotFound for an unknown id — a terminal condition.
// A failed subscribe is NOT fatal: the session degrades to single-client
// mode (load + edit + save still work, live propagation is lost).
func (s *Session) Start(ctx context.Context) error {
	snapshot, err := s.fetch(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = *snapshot
	s.mu.Unlock()

	sub, err := s.broker.Subscribe(ctx, pubsub.SnippetChannel(s.id))
	if err != nil {
		s.logger.Warn("live updates unavailable for session",
			slog.String("id", s.id),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.sub = sub
	s.pumpDone = make(chan struct{})
	go s.pump()

	return nil
}

// pump applies inbound deltas until the subscription closes.
func (s *Session) pump() {
	defer close(s.pumpDone)
	for ev := range s.sub.Events() {
		if ev.Event != pubsub.EventCodeUpdate {
			continue
		}
		var delta pubsub.Delta
		if err := json.Unmarshal(ev.Data, &delta); err != nil {
			s.logger.Warn("dropping malformed delta",
				slog.String("id", s.id),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Shallow merge: the delta's live fields overwrite ours, everything
		// else (id, protected, timestamps) is untouched.
		s.mu.Lock()
		s.snapshot.Code = delta.Code
		s.snapshot.Language = delta.Language
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the session's current view of the snippet.
func (s *Session) Snapshot() model.Snippet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Saving reports whether any local edits are still in flight, for the
// "saving…" indicator next to the editor.
func (s *Session) Saving() bool {
	return s.inFlight.Load() > 0
}

// SetCode sends a local code edit to the server.
//
// Fire-and-forget in spirit: the editor does not block further typing on
// the response, it just calls SetCode again on the next change with the
// newer content — later writes simply supersede earlier ones server-side.
// The local snapshot is updated optimistically; the authoritative value
// comes back as a delta on the channel.
func (s *Session) SetCode(ctx context.Context, code string) error {
	s.mu.Lock()
	if s.snapshot.Protected {
		s.mu.Unlock()
		return ErrProtected
	}
	s.snapshot.Code = code
	s.mu.Unlock()

	_, err := s.patch(ctx, model.SnippetPatch{Code: &code})
	return err
}

// SetLanguage sends a local language change to the server.
func (s *Session) SetLanguage(ctx context.Context, language string) error {
	s.mu.Lock()
	if s.snapshot.Protected {
		s.mu.Unlock()
		return ErrProtected
	}
	s.snapshot.Language = language
	s.mu.Unlock()

	_, err := s.patch(ctx, model.SnippetPatch{Language: &language})
	return err
}

// ToggleProtection flips the protection flag.
//
// Unlike code edits, the response here REPLACES the local snapshot instead
// of being merged: whether edits are allowed from this moment on must be
// the server's view, not an optimistic local guess.
func (s *Session) ToggleProtection(ctx context.Context) error {
	s.mu.RLock()
	next := !s.snapshot.Protected
	s.mu.RUnlock()

	updated, err := s.patch(ctx, model.SnippetPatch{Protected: &next})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = *updated
	s.mu.Unlock()
	return nil
}

// Close tears the session down: the subscription is closed so no further
// deltas reach this (now stale) view. Safe to call on a session whose
// subscribe failed.
func (s *Session) Close() error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Close()
	<-s.pumpDone
	return err
}

func (s *Session) fetch(ctx context.Context) (*model.Snippet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("session: building fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: fetching snippet %s: %w", s.id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var snippet model.Snippet
		if err := json.NewDecoder(resp.Body).Decode(&snippet); err != nil {
			return nil, fmt.Errorf("session: decoding snippet %s: %w", s.id, err)
		}
		return &snippet, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("session: fetching snippet %s: unexpected status %d", s.id, resp.StatusCode)
	}
}

func (s *Session) patch(ctx context.Context, patch model.SnippetPatch) (*model.Snippet, error) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("session: marshaling patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.url(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("session: building patch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: saving snippet %s: %w", s.id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var snippet model.Snippet
		if err := json.NewDecoder(resp.Body).Decode(&snippet); err != nil {
			return nil, fmt.Errorf("session: decoding save response: %w", err)
		}
		return &snippet, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusForbidden:
		return nil, ErrProtected
	default:
		// Transient server trouble: logged by the caller, the local state
		// keeps working and the next edit retries naturally.
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("session: saving snippet %s: unexpected status %d", s.id, resp.StatusCode)
	}
}

func (s *Session) url() string {
	return s.baseURL + "/api/snippets/" + s.id
}
