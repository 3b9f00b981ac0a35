// Package store defines the SessionStore interface for editing-session
// persistence.
package store

import (
	"errors"

	"github.com/jxucoder/latexgen/pkg/model"
)

var (
	// ErrNotFound is returned when a session or version does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a version does not follow the
	// session's current version.
	ErrVersionConflict = errors.New("version conflict")
)

// SessionStore provides persistence for sessions, versions and events.
type SessionStore interface {
	CreateSession(sess *model.Session) error
	GetSession(id string) (*model.Session, error)
	ListSessions() ([]*model.Session, error)
	UpdateSession(sess *model.Session) error
	AddVersion(v *model.Version) error
	// AppendVersion stores v and makes it the session's current version in
	// one transaction. v.Number must be the current version plus one.
	AppendVersion(v *model.Version) error
	GetVersion(sessionID string, number int) (*model.Version, error)
	ListVersions(sessionID string) ([]*model.Version, error)
	AddEvent(event *model.Event) error
	GetEvents(sessionID string, afterID int64) ([]*model.Event, error)
	Close() error
}
