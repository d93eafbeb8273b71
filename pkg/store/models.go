package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID         string    `gorm:"primaryKey"`
	Title      string    `gorm:"not null"`
	Genre      string    `gorm:"not null"`
	AuthorID   string    `gorm:"not null;index"`
	CoverImage string    `gorm:"not null"`
	File       string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time `gorm:"not null"`
}
