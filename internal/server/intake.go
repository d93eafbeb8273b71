package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"elib/internal/util"
	"elib/pkg/storage"
)

const (
	coverField = "coverImage"
	fileField  = "file"

	maxFieldBytes = 1 << 20

	msgFileTooLarge    = "File too large"
	msgUnexpectedField = "Unexpected field"
	msgInvalidForm     = "invalid form data"
	msgInvalidJSON     = "invalid JSON body"
)

var (
	errUnexpectedField = errors.New("unexpected file field")
	errInvalidForm     = errors.New("invalid form data")
)

// bookForm is the decoded body of a create or update request. Files are
// already staged on disk.
type bookForm struct {
	Title string              `json:"title"`
	Genre string              `json:"genre"`
	Cover *storage.StagedFile `json:"-"`
	File  *storage.StagedFile `json:"-"`
}

func (f *bookForm) staged() []*storage.StagedFile {
	return []*storage.StagedFile{f.Cover, f.File}
}

// readBookForm streams a multipart body into the staging area, accepting at
// most one coverImage and one file part. JSON bodies are accepted for the
// text fields only. On error nothing stays staged.
func (s *Server) readBookForm(w http.ResponseWriter, r *http.Request) (*bookForm, error) {
	form := &bookForm{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		if err := json.NewDecoder(io.LimitReader(r.Body, maxFieldBytes)).Decode(form); err != nil {
			return nil, errInvalidForm
		}
		return form, nil
	case !strings.HasPrefix(mediaType, "multipart/"):
		return form, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2*s.maxUploadBytes+maxFieldBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errInvalidForm
	}
	fail := func(err error) (*bookForm, error) {
		s.discard(r, form.staged()...)
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			return fail(bodyError(err))
		}
		name := part.FormName()
		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			_ = part.Close()
			if err != nil {
				return fail(bodyError(err))
			}
			if len(value) > maxFieldBytes {
				return fail(errInvalidForm)
			}
			switch name {
			case "title":
				form.Title = string(value)
			case "genre":
				form.Genre = string(value)
			}
			continue
		}

		var slot **storage.StagedFile
		switch name {
		case coverField:
			slot = &form.Cover
		case fileField:
			slot = &form.File
		default:
			_ = part.Close()
			return fail(errUnexpectedField)
		}
		if *slot != nil {
			_ = part.Close()
			return fail(errUnexpectedField)
		}
		staged, err := s.staging.Save(part, part.FileName(), part.Header.Get("Content-Type"), s.maxUploadBytes)
		_ = part.Close()
		if err != nil {
			if errors.Is(err, storage.ErrFileTooLarge) {
				return fail(err)
			}
			return fail(bodyError(err))
		}
		*slot = &staged
	}
}

// bodyError maps a read failure to ErrFileTooLarge when the request body hit
// its size cap, and to errInvalidForm otherwise.
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return storage.ErrFileTooLarge
	}
	return errInvalidForm
}

func (s *Server) writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrFileTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, msgFileTooLarge)
	case errors.Is(err, errUnexpectedField):
		writeError(w, r, http.StatusBadRequest, msgUnexpectedField)
	default:
		writeError(w, r, http.StatusBadRequest, msgInvalidForm)
	}
}

func (s *Server) discard(r *http.Request, files ...*storage.StagedFile) {
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := s.staging.Remove(*f); err != nil {
			util.LoggerFromContext(r.Context()).Warn("remove staged file failed", "path", f.Path, "err", err)
		}
	}
}
