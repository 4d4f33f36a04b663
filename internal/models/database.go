package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel provides common fields for all database models
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

// Book represents a digital book in the catalog. The payment core reads
// it for price snapshots and maintains the aggregate download counter;
// catalog CRUD lives elsewhere.
type Book struct {
	BaseModel
	BookID   string `json:"book_id" gorm:"not null;size:36;uniqueIndex"`
	Title    string `json:"title" gorm:"not null"`
	Author   string `json:"author"`
	Price    int64  `json:"price"` // minor currency units (paise)
	IsPaid   bool   `json:"is_paid" gorm:"default:true"`
	FileURL  string `json:"file_url" gorm:"type:varchar(500)"` // PDF artifact location
	IsActive bool   `json:"is_active" gorm:"default:true"`

	// Aggregate purchase counter. Incremented when a transaction
	// completes, decremented when an admin force-deletes a completed
	// transaction.
	DownloadCount int64 `json:"download_count" gorm:"default:0"`
}

// TableName specifies the table name
func (Book) TableName() string {
	return "books"
}

// Principal is the request-scoped identity resolved by the auth
// middleware and passed explicitly into every core call.
type Principal struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}
