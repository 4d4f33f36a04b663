package database

import (
	"context"
	"errors"
	"fmt"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/models"

	"gorm.io/gorm"
)

// BookStore is the read-mostly persistence layer for the book catalog.
// The payment core only looks up books and maintains the aggregate
// download counter; catalog CRUD is owned elsewhere.
type BookStore struct {
	db *gorm.DB
}

// NewBookStore creates a book store over the shared DB
func NewBookStore() *BookStore {
	return &BookStore{db: DB}
}

// NewBookStoreWithDB creates a book store over an explicit DB handle
func NewBookStoreWithDB(db *gorm.DB) *BookStore {
	return &BookStore{db: db}
}

// FindByID gets a book by its public book ID
func (s *BookStore) FindByID(ctx context.Context, bookID string) (*models.Book, error) {
	var book models.Book
	err := s.db.WithContext(ctx).Where("book_id = ?", bookID).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("book %s: %w", bookID, apperr.ErrBookNotFound)
		}
		return nil, err
	}
	return &book, nil
}

// IncrementDownloads bumps the book's aggregate purchase counter
func (s *BookStore) IncrementDownloads(ctx context.Context, bookID string) error {
	return s.db.WithContext(ctx).Model(&models.Book{}).
		Where("book_id = ?", bookID).
		Update("download_count", gorm.Expr("download_count + 1")).Error
}

// DecrementDownloads reverses one counter increment, floored at zero
func (s *BookStore) DecrementDownloads(ctx context.Context, bookID string) error {
	return s.db.WithContext(ctx).Model(&models.Book{}).
		Where("book_id = ? AND download_count > 0", bookID).
		Update("download_count", gorm.Expr("download_count - 1")).Error
}
