package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"elib/pkg/domain"
)

// MemoryStore keeps users and books in-process. Used by tests and local runs
// without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[string]domain.Book
	orders []string
	users  map[string]domain.User // key: user ID
	email  map[string]string      // email -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[string]domain.Book),
		users: make(map[string]domain.User),
		email: make(map[string]string),
	}
}

// CreateUser registers a user, rejecting duplicate emails.
func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[u.Email]; exists {
		return domain.User{}, ErrEmailTaken
	}
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return u, nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateBook stores a new book and tracks insertion order.
func (m *MemoryStore) CreateBook(_ context.Context, b domain.Book) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now
	m.books[b.ID] = b
	m.orders = append(m.orders, b.ID)
	return b, nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(_ context.Context, id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// UpdateBook applies the non-empty fields of patch.
func (m *MemoryStore) UpdateBook(_ context.Context, id string, patch domain.BookPatch) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if v := strings.TrimSpace(patch.Title); v != "" {
		book.Title = v
	}
	if v := strings.TrimSpace(patch.Genre); v != "" {
		book.Genre = v
	}
	if patch.CoverImage != "" {
		book.CoverImage = patch.CoverImage
	}
	if patch.File != "" {
		book.File = patch.File
	}
	book.UpdatedAt = time.Now().UTC()
	m.books[id] = book
	return book, nil
}

// ListBooks returns books in insertion order.
func (m *MemoryStore) ListBooks(_ context.Context) ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.orders))
	for _, id := range m.orders {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// DeleteBook removes a book.
func (m *MemoryStore) DeleteBook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	filtered := m.orders[:0]
	for _, item := range m.orders {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.orders = filtered
	return nil
}
