package store

import (
	"context"
	"errors"

	"elib/pkg/domain"
)

var (
	// ErrEmailTaken is returned by CreateUser when the unique email index rejects the row.
	ErrEmailTaken = errors.New("email already registered")
	// ErrBookNotFound is returned by UpdateBook when no row matches the id.
	ErrBookNotFound = errors.New("book not found")
)

// Store defines persistence operations for users and books.
type Store interface {
	// users
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	HasUserEmail(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)

	// books
	CreateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (domain.Book, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	DeleteBook(ctx context.Context, id string) error
}

// SessionStore issues and validates access tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(ctx context.Context, token string) (string, bool, error)
	DeleteSession(ctx context.Context, token string) error
}
