// Package model holds the persistent types shared by the editor, the store
// and the HTTP API.
package model

import (
	"fmt"
	"time"
)

// Session is an iteratively edited document. Its history lives in Versions.
type Session struct {
	ID             string    `json:"id"`
	DocumentName   string    `json:"document_name"`
	OriginalPrompt string    `json:"original_prompt"`
	CurrentVersion int       `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Version is an immutable snapshot of a session's LaTeX source.
type Version struct {
	SessionID         string    `json:"session_id"`
	Number            int       `json:"number"`
	LaTeX             string    `json:"latex"`
	ChangeDescription string    `json:"change_description"`
	CreatedAt         time.Time `json:"created_at"`
}

// TeXName is the file name of this version inside the session directory.
func (v *Version) TeXName() string { return fmt.Sprintf("v%d.tex", v.Number) }

// PDFName is the file name of this version's compiled PDF.
func (v *Version) PDFName() string { return fmt.Sprintf("v%d.pdf", v.Number) }

// Event types.
const (
	EventStatus = "status"
	EventOutput = "output"
	EventError  = "error"
	EventDone   = "done"
)

// Event is a single entry in a session's activity stream.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}
