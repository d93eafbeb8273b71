package app

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"elib/internal/util"
	"elib/pkg/domain"
	"elib/pkg/storage"
	"elib/pkg/store"
)

// CreateBookInput is a validated multipart create request.
type CreateBookInput struct {
	Title string
	Genre string
	Cover *storage.StagedFile
	File  *storage.StagedFile
}

func (in CreateBookInput) validate() error {
	if in.Cover == nil || in.File == nil {
		return ErrBookFilesRequired
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Genre) == "" {
		return ErrAllFieldsRequired
	}
	return nil
}

// UpdateBookInput carries optional replacements. Empty fields and nil files keep
// the stored values.
type UpdateBookInput struct {
	Title string
	Genre string
	Cover *storage.StagedFile
	File  *storage.StagedFile
}

// CreateBook uploads both assets, then persists the book owned by callerID.
// Staged files are removed on every path.
func (a *App) CreateBook(ctx context.Context, callerID string, in CreateBookInput) (domain.Book, error) {
	defer a.discard(ctx, in.Cover, in.File)
	if callerID == "" {
		return domain.Book{}, ErrTokenRequired
	}
	if err := in.validate(); err != nil {
		return domain.Book{}, err
	}
	if a.requirePDF {
		if err := inspectPDF(in.File.Path); err != nil {
			return domain.Book{}, wrap(ErrInvalidPDF, err)
		}
	}
	logger := util.LoggerFromContext(ctx)

	cover, err := a.uploadCover(ctx, *in.Cover)
	if err != nil {
		logger.Error("upload cover failed", "err", err)
		return domain.Book{}, wrap(ErrUploadFiles, err)
	}
	file, err := a.uploadFile(ctx, *in.File)
	if err != nil {
		logger.Error("upload book file failed", "err", err)
		a.destroyAll(ctx, asset{cover.PublicID, storage.ResourceImage})
		return domain.Book{}, wrap(ErrUploadFiles, err)
	}

	book, err := a.store.CreateBook(ctx, domain.Book{
		Title:      strings.TrimSpace(in.Title),
		Genre:      strings.TrimSpace(in.Genre),
		Author:     callerID,
		CoverImage: cover.SecureURL,
		File:       file.SecureURL,
	})
	if err != nil {
		logger.Error("persist book failed", "err", err)
		a.destroyAll(ctx,
			asset{cover.PublicID, storage.ResourceImage},
			asset{file.PublicID, storage.ResourceRaw},
		)
		return domain.Book{}, wrap(ErrCreateBook, err)
	}
	logger.Info("book created", "book_id", book.ID, "author", callerID)
	return book, nil
}

// UpdateBook applies a partial update to a book owned by callerID. Replaced
// assets are removed from the media host after the record is saved.
func (a *App) UpdateBook(ctx context.Context, callerID, bookID string, in UpdateBookInput) (domain.Book, error) {
	defer a.discard(ctx, in.Cover, in.File)
	logger := util.LoggerFromContext(ctx)

	book, ok, err := a.store.GetBook(ctx, bookID)
	if err != nil {
		logger.Error("load book failed", "book_id", bookID, "err", err)
		return domain.Book{}, wrap(ErrLoadBook, err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if book.Author != callerID {
		return domain.Book{}, ErrUpdateForbidden
	}
	if a.requirePDF && in.File != nil {
		if err := inspectPDF(in.File.Path); err != nil {
			return domain.Book{}, wrap(ErrInvalidPDF, err)
		}
	}

	patch := domain.BookPatch{Title: in.Title, Genre: in.Genre}
	var uploaded, replaced []asset
	if in.Cover != nil {
		res, err := a.uploadCover(ctx, *in.Cover)
		if err != nil {
			logger.Error("upload cover failed", "book_id", bookID, "err", err)
			return domain.Book{}, wrap(ErrUploadFiles, err)
		}
		patch.CoverImage = res.SecureURL
		uploaded = append(uploaded, asset{res.PublicID, storage.ResourceImage})
		replaced = append(replaced, asset{coverPublicID(book.CoverImage), storage.ResourceImage})
	}
	if in.File != nil {
		res, err := a.uploadFile(ctx, *in.File)
		if err != nil {
			logger.Error("upload book file failed", "book_id", bookID, "err", err)
			a.destroyAll(ctx, uploaded...)
			return domain.Book{}, wrap(ErrUploadFiles, err)
		}
		patch.File = res.SecureURL
		uploaded = append(uploaded, asset{res.PublicID, storage.ResourceRaw})
		replaced = append(replaced, asset{filePublicID(book.File), storage.ResourceRaw})
	}

	updated, err := a.store.UpdateBook(ctx, bookID, patch)
	if err != nil {
		a.destroyAll(ctx, uploaded...)
		if errors.Is(err, store.ErrBookNotFound) {
			return domain.Book{}, ErrBookNotFound
		}
		logger.Error("persist book update failed", "book_id", bookID, "err", err)
		return domain.Book{}, wrap(ErrUpdateBook, err)
	}
	a.destroyAll(ctx, replaced...)
	return updated, nil
}

// ListBooks returns every book in store order.
func (a *App) ListBooks(ctx context.Context) ([]domain.Book, error) {
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		util.LoggerFromContext(ctx).Error("list books failed", "err", err)
		return nil, wrap(ErrLoadBooks, err)
	}
	return books, nil
}

// GetBook returns a single book.
func (a *App) GetBook(ctx context.Context, bookID string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(ctx, bookID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("load book failed", "book_id", bookID, "err", err)
		return domain.Book{}, wrap(ErrLoadBook, err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// DeleteBook removes both media assets and then the record. There is no
// rollback: if either asset cannot be destroyed the record is kept.
func (a *App) DeleteBook(ctx context.Context, callerID, bookID string) error {
	logger := util.LoggerFromContext(ctx)
	book, ok, err := a.store.GetBook(ctx, bookID)
	if err != nil {
		logger.Error("load book failed", "book_id", bookID, "err", err)
		return wrap(ErrLoadBook, err)
	}
	if !ok {
		return ErrBookNotFound
	}
	if book.Author != callerID {
		return ErrDeleteForbidden
	}

	coverID := coverPublicID(book.CoverImage)
	fileID := filePublicID(book.File)
	var g errgroup.Group
	g.Go(func() error { return a.media.Destroy(ctx, coverID, storage.ResourceImage) })
	g.Go(func() error { return a.media.Destroy(ctx, fileID, storage.ResourceRaw) })
	if err := g.Wait(); err != nil {
		logger.Error("destroy book assets failed", "book_id", bookID, "cover", coverID, "file", fileID, "err", err)
		return wrap(ErrDeleteFiles, err)
	}

	if err := a.store.DeleteBook(ctx, bookID); err != nil {
		logger.Error("delete book failed", "book_id", bookID, "err", err)
		return wrap(ErrDeleteBook, err)
	}
	logger.Info("book deleted", "book_id", bookID)
	return nil
}
