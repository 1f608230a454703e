package scribe

import (
	"context"
	"time"
)

// Note is a single note owned by a user.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the note schema before writes.
func (n *Note) Validate() error {
	if n.Title == "" {
		return E(KindValidation, "Title is required.")
	}
	if n.UserID == "" {
		return E(KindValidation, "Note must have an owner.")
	}
	return nil
}

// NoteStore persists notes. Lookups by malformed ids fail with
// ErrMalformedID; missing notes fail with ErrNoteNotFound.
type NoteStore interface {
	Create(ctx context.Context, n *Note) (*Note, error)
	FindByID(ctx context.Context, id string) (*Note, error)
	FindByUser(ctx context.Context, userID string) ([]*Note, error)
	Update(ctx context.Context, n *Note) error
	Delete(ctx context.Context, id string) error
}
