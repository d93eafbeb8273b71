package domain

import "time"

// Book is a library entry owned by the user who created it.
type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Genre      string    `json:"genre"`
	Author     string    `json:"author"`
	CoverImage string    `json:"coverImage"`
	File       string    `json:"file"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BookPatch carries the fields an update may overwrite. Empty strings keep
// the stored value.
type BookPatch struct {
	Title      string
	Genre      string
	CoverImage string
	File       string
}
