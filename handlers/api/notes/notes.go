package notes

import (
	"encoding/json"
	"errors"
	"net/http"
	"notes-server/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type (
	CreateNoteRequest struct {
		Title string `json:"title" validate:"required,max=200"`
	}

	UpdateNoteRequest struct {
		Content *string `json:"content" validate:"required"`
	}
)

var validate = validator.New()

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}

// HandleCreate creates an empty note with the given title.
func HandleCreate(store core.NoteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithField("error", err).Warn("Failed to decode request")
			renderError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			renderError(w, r, http.StatusBadRequest, "Title is required")
			return
		}

		note, err := store.Create(r.Context(), req.Title)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to create note")
			renderError(w, r, http.StatusInternalServerError, "Failed to create note")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, note)
	}
}

// HandleGet returns a note by id.
func HandleGet(store core.NoteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logrus.WithField("note_id", id)

		if err := core.ValidateNoteID(id); err != nil {
			log.Debug("Invalid note ID format")
			renderError(w, r, http.StatusBadRequest, "Invalid note ID format")
			return
		}

		note, err := store.FindByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, core.ErrNoteNotFound) {
				renderError(w, r, http.StatusNotFound, "Note not found")
				return
			}
			log.WithField("error", err).Error("Error fetching note")
			renderError(w, r, http.StatusInternalServerError, "Failed to fetch note")
			return
		}

		render.JSON(w, r, note)
	}
}

// HandleUpdate replaces a note's content. Peers connected over socket.io are
// not notified; live edits go through the collaboration channel.
func HandleUpdate(store core.NoteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		log := logrus.WithField("note_id", id)

		var req UpdateNoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.WithField("error", err).Warn("Failed to decode request")
			renderError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			renderError(w, r, http.StatusBadRequest, "Content is required")
			return
		}

		note, err := store.UpdateContent(r.Context(), id, *req.Content)
		if err != nil {
			if errors.Is(err, core.ErrNoteNotFound) {
				renderError(w, r, http.StatusNotFound, "Note not found")
				return
			}
			log.WithField("error", err).Error("Failed to update note")
			renderError(w, r, http.StatusInternalServerError, "Failed to update note")
			return
		}

		render.JSON(w, r, note)
	}
}
