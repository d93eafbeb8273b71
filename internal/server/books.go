package server

import (
	"net/http"
	"strings"

	"elib/internal/app"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r)
	case http.MethodPost:
		s.withUser(s.handleCreateBook)(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

// /api/books/{bookId}
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, r, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetBook(w, r, id)
	case http.MethodPut:
		s.withUser(func(w http.ResponseWriter, r *http.Request) { s.handleUpdateBook(w, r, id) })(w, r)
	case http.MethodDelete:
		s.withUser(func(w http.ResponseWriter, r *http.Request) { s.handleDeleteBook(w, r, id) })(w, r)
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	form, err := s.readBookForm(w, r)
	if err != nil {
		s.writeFormError(w, r, err)
		return
	}
	book, err := s.app.CreateBook(r.Context(), callerID(r.Context()), app.CreateBookInput{
		Title: form.Title,
		Genre: form.Genre,
		Cover: form.Cover,
		File:  form.File,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": book.ID})
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, id string) {
	form, err := s.readBookForm(w, r)
	if err != nil {
		s.writeFormError(w, r, err)
		return
	}
	book, err := s.app.UpdateBook(r.Context(), callerID(r.Context()), id, app.UpdateBookInput{
		Title: form.Title,
		Genre: form.Genre,
		Cover: form.Cover,
		File:  form.File,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.app.ListBooks(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request, id string) {
	book, err := s.app.GetBook(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.app.DeleteBook(r.Context(), callerID(r.Context()), id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
