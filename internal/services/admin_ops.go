package services

import (
	"context"
	"fmt"
	"time"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/models"
	"bookstore-api/pkg/logging"
)

// AdminOps is the guarded mutation surface over the transaction store.
// Every call re-checks the admin flag on the principal even though the
// routing layer gates the endpoints as well.
type AdminOps struct {
	store TransactionStore
}

// NewAdminOps creates the admin operations service
func NewAdminOps(store TransactionStore) *AdminOps {
	return &AdminOps{store: store}
}

// DeleteTransaction removes one transaction. COMPLETED and REFUNDED
// records carry live entitlement and require the force flag; deleting a
// COMPLETED record reverses the book's counter increment inside the same
// store transaction.
func (a *AdminOps) DeleteTransaction(ctx context.Context, actor models.Principal, transactionID string, force bool) error {
	if !actor.IsAdmin {
		return fmt.Errorf("admin required: %w", apperr.ErrForbidden)
	}

	txn, err := a.store.FindByID(ctx, transactionID)
	if err != nil {
		return err
	}

	if isProtected(txn.PaymentStatus) && !force {
		return &apperr.ProtectedStateError{Protected: 1, Total: 1}
	}

	// Audit before the record disappears
	logging.Auditf("Transaction delete - actor: %s, transaction: %s, prior status: %s, force: %t",
		actor.UserID, txn.TransactionID, txn.PaymentStatus, force)

	_, err = a.store.DeleteTransactions(ctx, []string{transactionID})
	return err
}

// BulkDeleteResult summarizes a bulk delete
type BulkDeleteResult struct {
	Deleted int `json:"deleted"`
}

// BulkDeleteTransactions removes a set of transactions with the same
// per-item protection rule, all-or-nothing: if any selected transaction
// is protected and force is unset, nothing is deleted and the error
// reports how many were protected.
func (a *AdminOps) BulkDeleteTransactions(ctx context.Context, actor models.Principal, transactionIDs []string, force bool) (*BulkDeleteResult, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("admin required: %w", apperr.ErrForbidden)
	}
	if len(transactionIDs) == 0 {
		return nil, fmt.Errorf("no transaction ids supplied: %w", apperr.ErrValidation)
	}

	txns, err := a.store.FindByIDs(ctx, transactionIDs)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, fmt.Errorf("no matching transactions: %w", apperr.ErrNotFound)
	}

	protected := 0
	for i := range txns {
		if isProtected(txns[i].PaymentStatus) {
			protected++
		}
	}
	if protected > 0 && !force {
		return nil, &apperr.ProtectedStateError{Protected: protected, Total: len(txns)}
	}

	ids := make([]string, 0, len(txns))
	for i := range txns {
		logging.Auditf("Transaction bulk delete - actor: %s, transaction: %s, prior status: %s, force: %t",
			actor.UserID, txns[i].TransactionID, txns[i].PaymentStatus, force)
		ids = append(ids, txns[i].TransactionID)
	}

	deleted, err := a.store.DeleteTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &BulkDeleteResult{Deleted: int(deleted)}, nil
}

// CleanupResult summarizes a failed-transaction sweep
type CleanupResult struct {
	Deleted int   `json:"deleted"`
	DaysOld int   `json:"days_old"`
	Cutoff  int64 `json:"cutoff"`
}

// CleanupFailedTransactions deletes FAILED transactions older than
// daysOld. No force flag: FAILED records carry no entitlement. PENDING
// records are never swept; only the gateway can fail them first.
func (a *AdminOps) CleanupFailedTransactions(ctx context.Context, actor models.Principal, daysOld int) (*CleanupResult, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("admin required: %w", apperr.ErrForbidden)
	}
	if daysOld <= 0 {
		return nil, fmt.Errorf("daysOld must be positive: %w", apperr.ErrValidation)
	}

	cutoff := time.Now().AddDate(0, 0, -daysOld)
	deleted, err := a.store.DeleteFailedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	logging.Auditf("Failed transaction cleanup - actor: %s, days old: %d, deleted: %d", actor.UserID, daysOld, deleted)

	return &CleanupResult{
		Deleted: int(deleted),
		DaysOld: daysOld,
		Cutoff:  cutoff.Unix(),
	}, nil
}

func isProtected(status models.PaymentStatus) bool {
	return status == models.PaymentStatusCompleted || status == models.PaymentStatusRefunded
}
