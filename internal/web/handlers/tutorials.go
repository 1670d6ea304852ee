package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/saltyorg/routedb/internal/database"
	"github.com/saltyorg/routedb/internal/tutorials"
)

const maxPageSize = 500

// TutorialsList returns tutorials, optionally filtered by ?published= and ?q=
func (h *Handlers) TutorialsList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := database.TutorialFilter{
		Query: strings.TrimSpace(query.Get("q")),
	}

	if v := query.Get("published"); v != "" {
		published, err := strconv.ParseBool(v)
		if err != nil {
			h.jsonError(w, "Invalid published filter", http.StatusBadRequest)
			return
		}
		filter.Published = &published
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			h.jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = min(limit, maxPageSize)
	}
	if v := query.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			h.jsonError(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		filter.Offset = offset
	}

	list, err := h.tutorials.List(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if list == nil {
		list = []*database.Tutorial{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// TutorialGet returns a single tutorial
func (h *Handlers) TutorialGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.jsonError(w, "Invalid tutorial ID", http.StatusBadRequest)
		return
	}

	t, err := h.tutorials.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// TutorialCreate creates a tutorial from a JSON body
func (h *Handlers) TutorialCreate(w http.ResponseWriter, r *http.Request) {
	var in tutorials.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.tutorials.Create(r.Context(), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, t)
}

// TutorialUpdate replaces the title and description of a tutorial
func (h *Handlers) TutorialUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.jsonError(w, "Invalid tutorial ID", http.StatusBadRequest)
		return
	}

	var in tutorials.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.tutorials.Update(r.Context(), id, in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// TutorialPublish publishes a tutorial
func (h *Handlers) TutorialPublish(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.jsonError(w, "Invalid tutorial ID", http.StatusBadRequest)
		return
	}

	t, err := h.tutorials.Publish(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// TutorialDelete deletes a tutorial
func (h *Handlers) TutorialDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.jsonError(w, "Invalid tutorial ID", http.StatusBadRequest)
		return
	}

	if err := h.tutorials.Delete(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonSuccess(w, "Tutorial deleted")
}

// List returns every tutorial as a bare array
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.tutorials.List(r.Context(), database.TutorialFilter{})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if list == nil {
		list = []*database.Tutorial{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// Create inserts a fixed "primary" tutorial and answers true on success.
// It exists to check which pool receives writes.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	if _, err := h.tutorials.Create(r.Context(), tutorials.Input{Title: "primary", Description: "primary"}); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, true)
}
