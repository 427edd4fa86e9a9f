package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleListDocuments returns one page of documents with section counts.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), 1)
	if err != nil {
		jsonError(w, "invalid_input", "page must be an integer", http.StatusBadRequest)
		return
	}
	size, err := queryInt(q.Get("page_size"), 0)
	if err != nil {
		jsonError(w, "invalid_input", "page_size must be an integer", http.StatusBadRequest)
		return
	}

	result, err := s.gateway.ListDocuments(r.Context(), page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetDocument returns a document with every section's content.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.gateway.GetDocument(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range doc.Sections {
		s.shapeSection(&doc.Sections[i].Section)
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleGetTree returns the section hierarchy without content.
func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.gateway.GetTree(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleGetSection returns one section addressed by its number path.
func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	sec, err := s.gateway.GetSectionByPath(r.Context(), chi.URLParam(r, "docID"), chi.URLParam(r, "path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.shapeSection(&sec.Section)
	writeJSON(w, http.StatusOK, sec)
}

// handleDeleteDocument deletes a document and all its sections.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.DeleteDocument(r.Context(), chi.URLParam(r, "docID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
