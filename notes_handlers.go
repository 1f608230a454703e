package scribe

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Notes serves the per-user note CRUD. Every handler runs behind the
// authentication gate, so a user is always on the request context.
type Notes struct {
	Store  NoteStore
	Logger *zap.Logger
}

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (n *Notes) HandleCreate(w http.ResponseWriter, r *http.Request) error {
	user := UserFrom(r.Context())
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Title == "" {
		return E(KindValidation, "Title is required.")
	}

	note, err := n.Store.Create(r.Context(), &Note{
		UserID:  user.ID,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"note":    note,
	})
}

func (n *Notes) HandleList(w http.ResponseWriter, r *http.Request) error {
	user := UserFrom(r.Context())
	notes, err := n.Store.FindByUser(r.Context(), user.ID)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"notes":   notes,
	})
}

// ownedNote loads the note in the path and enforces owner-only access.
func (n *Notes) ownedNote(r *http.Request) (*Note, error) {
	user := UserFrom(r.Context())
	note, err := n.Store.FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	if note.UserID != user.ID {
		return nil, E(KindUnauthorized, "Unauthorized access.")
	}
	return note, nil
}

func (n *Notes) HandleGet(w http.ResponseWriter, r *http.Request) error {
	note, err := n.ownedNote(r)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"note":    note,
	})
}

func (n *Notes) HandleUpdate(w http.ResponseWriter, r *http.Request) error {
	note, err := n.ownedNote(r)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Title != "" {
		note.Title = req.Title
	}
	note.Content = req.Content
	if err := n.Store.Update(r.Context(), note); err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"note":    note,
	})
}

func (n *Notes) HandleDelete(w http.ResponseWriter, r *http.Request) error {
	note, err := n.ownedNote(r)
	if err != nil {
		return err
	}
	if err := n.Store.Delete(r.Context(), note.ID); err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Note deleted successfully.",
	})
}
