package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jxucoder/latexgen/pkg/model"
	"github.com/jxucoder/latexgen/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func makeSession(id, name string, at time.Time) *model.Session {
	return &model.Session{
		ID:             id,
		DocumentName:   name,
		OriginalPrompt: "a cover letter",
		CurrentVersion: 1,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// ---------------------------------------------------------------------------
// Store creation
// ---------------------------------------------------------------------------

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New("/no/such/dir/test.db"); err == nil {
		t.Fatal("expected error for invalid path, got nil")
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func TestSessionCRUD(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	sess := makeSession("letter-abcd1234", "letter", now)
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != sess.ID || got.DocumentName != "letter" || got.OriginalPrompt != "a cover letter" || got.CurrentVersion != 1 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	got.CurrentVersion = 3
	got.DocumentName = "letter-final"
	if err := s.UpdateSession(got); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got2, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get updated session: %v", err)
	}
	if got2.CurrentVersion != 3 || got2.DocumentName != "letter-final" {
		t.Fatalf("update not persisted: %+v", got2)
	}
	if got2.UpdatedAt.Before(now) {
		t.Errorf("UpdatedAt not bumped: %v", got2.UpdatedAt)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession("does-not-exist")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateSession(makeSession("ghost", "ghost", time.Now().UTC()))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)

	sessions, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected 0 sessions, got %d", len(sessions))
	}

	older := makeSession("a-1", "a", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := makeSession("b-2", "b", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	for _, sess := range []*model.Session{older, newer} {
		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("CreateSession(%s): %v", sess.ID, err)
		}
	}

	sessions, err = s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "b-2" || sessions[1].ID != "a-1" {
		t.Errorf("expected most recent first, got %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

// ---------------------------------------------------------------------------
// Versions
// ---------------------------------------------------------------------------

func TestVersions(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	if err := s.CreateSession(makeSession("doc-1", "doc", now)); err != nil {
		t.Fatal(err)
	}

	for i, desc := range []string{"Initial version", "Make title bold"} {
		v := &model.Version{
			SessionID:         "doc-1",
			Number:            i + 1,
			LaTeX:             "\\documentclass{article}",
			ChangeDescription: desc,
			CreatedAt:         now,
		}
		if err := s.AddVersion(v); err != nil {
			t.Fatalf("AddVersion(%d): %v", v.Number, err)
		}
	}

	v2, err := s.GetVersion("doc-1", 2)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if v2.ChangeDescription != "Make title bold" {
		t.Errorf("ChangeDescription = %q", v2.ChangeDescription)
	}

	versions, err := s.ListVersions("doc-1")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].Number != 1 || versions[1].Number != 2 {
		t.Fatalf("unexpected versions: %+v", versions)
	}
}

func TestAddVersion_DuplicateNumber(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	s.CreateSession(makeSession("doc-1", "doc", now))

	v := &model.Version{SessionID: "doc-1", Number: 1, LaTeX: "x", CreatedAt: now}
	if err := s.AddVersion(v); err != nil {
		t.Fatal(err)
	}
	if err := s.AddVersion(v); err == nil {
		t.Fatal("expected error for duplicate version number")
	}
}

func TestAppendVersion(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	s.CreateSession(makeSession("doc-1", "doc", now))
	s.AddVersion(&model.Version{SessionID: "doc-1", Number: 1, LaTeX: "v1", CreatedAt: now})

	later := now.Add(time.Minute)
	if err := s.AppendVersion(&model.Version{SessionID: "doc-1", Number: 2, LaTeX: "v2", CreatedAt: later}); err != nil {
		t.Fatalf("AppendVersion: %v", err)
	}
	sess, err := s.GetSession("doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.CurrentVersion != 2 || !sess.UpdatedAt.Equal(later) {
		t.Errorf("session not advanced: %+v", sess)
	}
}

func TestAppendVersion_Conflict(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	s.CreateSession(makeSession("doc-1", "doc", now))

	err := s.AppendVersion(&model.Version{SessionID: "doc-1", Number: 3, LaTeX: "x", CreatedAt: now})
	if !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if _, err := s.GetVersion("doc-1", 3); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("conflicting version was stored: %v", err)
	}
}

func TestAppendVersion_UnknownSession(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendVersion(&model.Version{SessionID: "ghost", Number: 1, LaTeX: "x", CreatedAt: time.Now().UTC()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if versions, _ := s.ListVersions("ghost"); len(versions) != 0 {
		t.Errorf("versions = %d, want 0", len(versions))
	}
}

func TestGetVersion_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetVersion("doc-1", 9)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestEvents_AfterID(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	s.CreateSession(makeSession("doc-ev", "doc", now))

	var ids []int64
	for _, typ := range []string{model.EventStatus, model.EventOutput, model.EventDone} {
		e := &model.Event{SessionID: "doc-ev", Type: typ, Data: typ, CreatedAt: now}
		if err := s.AddEvent(e); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
		if e.ID == 0 {
			t.Fatal("expected ID to be set after AddEvent")
		}
		ids = append(ids, e.ID)
	}

	all, err := s.GetEvents("doc-ev", 0)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(all) != 3 || all[0].Type != model.EventStatus {
		t.Fatalf("unexpected events: %+v", all)
	}

	tail, err := s.GetEvents("doc-ev", ids[1])
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != ids[2] || tail[0].Type != model.EventDone {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}
