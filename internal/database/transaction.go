package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/models"

	"gorm.io/gorm"
)

// TransactionStore is the GORM-backed persistence layer for purchase
// transactions. All status mutations are compare-and-set on the current
// status so concurrent reconciliations cannot flip a terminal record.
type TransactionStore struct {
	db *gorm.DB
}

// NewTransactionStore creates a transaction store over the shared DB
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{db: DB}
}

// NewTransactionStoreWithDB creates a transaction store over an explicit DB handle
func NewTransactionStoreWithDB(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create persists a new transaction
func (s *TransactionStore) Create(ctx context.Context, txn *models.Transaction) error {
	return s.db.WithContext(ctx).Create(txn).Error
}

// FindByID gets a transaction by its public transaction ID
func (s *TransactionStore) FindByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &txn, nil
}

// FindByOrderID gets a transaction by its gateway order ID
func (s *TransactionStore) FindByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &txn, nil
}

// FindByDownloadToken gets a transaction by its download token
func (s *TransactionStore) FindByDownloadToken(ctx context.Context, token string) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).Where("download_token = ?", token).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("download token: %w", apperr.ErrNotFound)
		}
		return nil, err
	}
	return &txn, nil
}

// FindByUser lists a user's transactions, newest first
func (s *TransactionStore) FindByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&txns).Error
	return txns, err
}

// FindByIDs gets transactions for a set of public transaction IDs
func (s *TransactionStore) FindByIDs(ctx context.Context, transactionIDs []string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.WithContext(ctx).Where("transaction_id IN ?", transactionIDs).Find(&txns).Error
	return txns, err
}

// CountCompleted counts COMPLETED transactions for a (user, book) pair.
// Used for duplicate-charge audit flagging.
func (s *TransactionStore) CountCompleted(ctx context.Context, userID, bookID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND book_id = ? AND payment_status = ?", userID, bookID, models.PaymentStatusCompleted).
		Count(&count).Error
	return count, err
}

// UpdateStatus applies a state-machine transition with compare-and-set on
// the current status. An illegal edge fails with ErrInvalidTransition and
// nothing is written; a CAS miss (the record already moved) fails the same
// way so callers can treat the race as benign.
func (s *TransactionStore) UpdateStatus(ctx context.Context, transactionID string, from, to models.PaymentStatus) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, apperr.ErrInvalidTransition)
	}

	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("transaction_id = ? AND payment_status = ?", transactionID, from).
		Update("payment_status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("transaction %s is no longer %s: %w", transactionID, from, apperr.ErrInvalidTransition)
	}
	return nil
}

// MarkCompleted transitions PENDING -> COMPLETED and writes the download
// grant in the same conditional update. Returns false when the CAS misses
// because the transaction already reached a terminal state; the caller
// must then skip all completion side effects.
func (s *TransactionStore) MarkCompleted(ctx context.Context, transactionID string, grant models.DownloadGrant) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("transaction_id = ? AND payment_status = ?", transactionID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status":      models.PaymentStatusCompleted,
			"download_token":      grant.Token,
			"max_downloads":       grant.MaxDownloads,
			"download_expires_at": grant.ExpiresAt,
			"purchased_at":        grant.PurchasedAt,
			"gateway_txn_id":      grant.GatewayTxnID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RedeemDownload consumes one download from the token's quota. The
// precondition (completed, unexpired, quota left) is part of the same
// UPDATE so two concurrent redemptions can never both take the last slot.
func (s *TransactionStore) RedeemDownload(ctx context.Context, token string) (*models.Transaction, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("download_token = ? AND payment_status = ? AND download_count < max_downloads AND download_expires_at > ?",
			token, models.PaymentStatusCompleted, now).
		Update("download_count", gorm.Expr("download_count + 1"))
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		// Re-read to classify why the conditional update missed
		txn, err := s.FindByDownloadToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if txn.DownloadExpiresAt == nil || !now.Before(*txn.DownloadExpiresAt) {
			return nil, fmt.Errorf("download token: %w", apperr.ErrExpired)
		}
		if txn.DownloadCount >= txn.MaxDownloads {
			return nil, fmt.Errorf("download token: %w", apperr.ErrQuotaExceeded)
		}
		return nil, fmt.Errorf("download token not redeemable: %w", apperr.ErrNotFound)
	}

	return s.FindByDownloadToken(ctx, token)
}

// DeleteTransactions removes the given transactions in one database
// transaction, decrementing each associated book's aggregate counter for
// every COMPLETED record removed. Force-guard policy lives in the caller.
func (s *TransactionStore) DeleteTransactions(ctx context.Context, transactionIDs []string) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txns []models.Transaction
		if err := tx.Where("transaction_id IN ?", transactionIDs).Find(&txns).Error; err != nil {
			return err
		}

		for i := range txns {
			if txns[i].PaymentStatus != models.PaymentStatusCompleted {
				continue
			}
			// Compensating action for the counter increment at
			// reconciliation time; floored at zero.
			if err := tx.Model(&models.Book{}).
				Where("book_id = ? AND download_count > 0", txns[i].BookID).
				Update("download_count", gorm.Expr("download_count - 1")).Error; err != nil {
				return err
			}
		}

		result := tx.Where("transaction_id IN ?", transactionIDs).Delete(&models.Transaction{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	return deleted, err
}

// DeleteFailedBefore removes FAILED transactions created before the
// cutoff. PENDING records are never touched; only the gateway can fail
// them first.
func (s *TransactionStore) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ?", models.PaymentStatusFailed, cutoff).
		Delete(&models.Transaction{})
	return result.RowsAffected, result.Error
}
