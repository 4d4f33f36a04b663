package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/models"
)

var (
	adminPrincipal = models.Principal{UserID: "admin-1", IsAdmin: true}
	userPrincipal  = models.Principal{UserID: "user-1", IsAdmin: false}
)

func newTestAdminOps() (*AdminOps, *MockTransactionStore, *MockBookStore) {
	store := NewMockTransactionStore()
	books := NewMockBookStore()
	store.Books = books
	books.Put(&models.Book{BookID: testBookID, Title: "Paid Book", Price: testPrice, IsPaid: true, IsActive: true, DownloadCount: 1})
	return NewAdminOps(store), store, books
}

func completedTxn(id string) *models.Transaction {
	now := time.Now()
	return &models.Transaction{
		TransactionID:  id,
		UserID:         testUserID,
		BookID:         testBookID,
		Amount:         testPrice,
		PaymentStatus:  models.PaymentStatusCompleted,
		GatewayOrderID: "ORD-" + id,
		DownloadToken:  "tok-" + id,
		MaxDownloads:   5,
		PurchasedAt:    &now,
	}
}

func failedTxn(id string) *models.Transaction {
	return &models.Transaction{
		TransactionID:  id,
		UserID:         testUserID,
		BookID:         testBookID,
		Amount:         testPrice,
		PaymentStatus:  models.PaymentStatusFailed,
		GatewayOrderID: "ORD-" + id,
	}
}

func TestAdminOps_DeleteTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("Given a non-admin Then Forbidden", func(t *testing.T) {
		ops, store, _ := newTestAdminOps()
		store.Put(failedTxn("t1"))
		err := ops.DeleteTransaction(ctx, userPrincipal, "t1", false)
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if store.Get("t1") == nil {
			t.Error("record must survive a forbidden delete")
		}
	})

	t.Run("Given an unknown transaction Then NotFound", func(t *testing.T) {
		ops, _, _ := newTestAdminOps()
		err := ops.DeleteTransaction(ctx, adminPrincipal, "missing", false)
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Given a COMPLETED transaction without force Then ProtectedState and nothing changes", func(t *testing.T) {
		ops, store, books := newTestAdminOps()
		store.Put(completedTxn("t1"))

		err := ops.DeleteTransaction(ctx, adminPrincipal, "t1", false)
		var protected *apperr.ProtectedStateError
		if !errors.As(err, &protected) {
			t.Fatalf("expected ProtectedStateError, got %v", err)
		}
		if protected.Protected != 1 || protected.Total != 1 {
			t.Errorf("unexpected counts: %+v", protected)
		}
		if store.Get("t1") == nil {
			t.Error("record must survive a blocked delete")
		}
		if got := books.Get(testBookID).DownloadCount; got != 1 {
			t.Errorf("book counter must be unchanged, got %d", got)
		}
	})

	t.Run("Given force Then the record is removed and the counter drops by one", func(t *testing.T) {
		ops, store, books := newTestAdminOps()
		store.Put(completedTxn("t1"))

		if err := ops.DeleteTransaction(ctx, adminPrincipal, "t1", true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.Get("t1") != nil {
			t.Error("record must be deleted")
		}
		if got := books.Get(testBookID).DownloadCount; got != 0 {
			t.Errorf("expected counter 0 after compensation, got %d", got)
		}
	})

	t.Run("Given a FAILED transaction Then no force needed and no counter change", func(t *testing.T) {
		ops, store, books := newTestAdminOps()
		store.Put(failedTxn("t2"))

		if err := ops.DeleteTransaction(ctx, adminPrincipal, "t2", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.Get("t2") != nil {
			t.Error("record must be deleted")
		}
		if got := books.Get(testBookID).DownloadCount; got != 1 {
			t.Errorf("counter must be unchanged for failed deletes, got %d", got)
		}
	})
}

func TestAdminOps_BulkDeleteTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("Given mixed statuses without force Then nothing is deleted and the summary reports the protected count", func(t *testing.T) {
		ops, store, _ := newTestAdminOps()
		store.Put(completedTxn("c1"))
		store.Put(completedTxn("c2"))
		store.Put(failedTxn("f1"))

		_, err := ops.BulkDeleteTransactions(ctx, adminPrincipal, []string{"c1", "c2", "f1"}, false)
		var protected *apperr.ProtectedStateError
		if !errors.As(err, &protected) {
			t.Fatalf("expected ProtectedStateError, got %v", err)
		}
		if protected.Protected != 2 || protected.Total != 3 {
			t.Errorf("expected 2 of 3 protected, got %+v", protected)
		}
		for _, id := range []string{"c1", "c2", "f1"} {
			if store.Get(id) == nil {
				t.Errorf("record %s deleted despite all-or-nothing guard", id)
			}
		}
	})

	t.Run("Given force Then everything goes and one decrement per completed record", func(t *testing.T) {
		ops, store, books := newTestAdminOps()
		books.Put(&models.Book{BookID: testBookID, Price: testPrice, IsPaid: true, IsActive: true, DownloadCount: 2})
		store.Put(completedTxn("c1"))
		store.Put(completedTxn("c2"))
		store.Put(failedTxn("f1"))

		result, err := ops.BulkDeleteTransactions(ctx, adminPrincipal, []string{"c1", "c2", "f1"}, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Deleted != 3 {
			t.Errorf("expected 3 deleted, got %d", result.Deleted)
		}
		if got := books.Get(testBookID).DownloadCount; got != 0 {
			t.Errorf("expected counter decremented to 0, got %d", got)
		}
	})

	t.Run("Given only unprotected records Then force is not required", func(t *testing.T) {
		ops, store, _ := newTestAdminOps()
		store.Put(failedTxn("f1"))
		store.Put(failedTxn("f2"))

		result, err := ops.BulkDeleteTransactions(ctx, adminPrincipal, []string{"f1", "f2"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Deleted != 2 {
			t.Errorf("expected 2 deleted, got %d", result.Deleted)
		}
	})

	t.Run("Given an empty id list Then validation error", func(t *testing.T) {
		ops, _, _ := newTestAdminOps()
		_, err := ops.BulkDeleteTransactions(ctx, adminPrincipal, nil, false)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestAdminOps_CleanupFailedTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("Given old FAILED, recent FAILED and old PENDING Then only old FAILED is swept", func(t *testing.T) {
		ops, store, _ := newTestAdminOps()

		old := failedTxn("old-failed")
		store.Put(old)
		store.Transactions["old-failed"].CreatedAt = time.Now().AddDate(0, 0, -40)

		recent := failedTxn("recent-failed")
		store.Put(recent)
		store.Transactions["recent-failed"].CreatedAt = time.Now().AddDate(0, 0, -5)

		pending := &models.Transaction{
			TransactionID:  "old-pending",
			UserID:         testUserID,
			BookID:         testBookID,
			PaymentStatus:  models.PaymentStatusPending,
			GatewayOrderID: "ORD-old-pending",
		}
		store.Put(pending)
		store.Transactions["old-pending"].CreatedAt = time.Now().AddDate(0, 0, -40)

		result, err := ops.CleanupFailedTransactions(ctx, adminPrincipal, 30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Deleted != 1 {
			t.Errorf("expected 1 deleted, got %d", result.Deleted)
		}
		if store.Get("old-failed") != nil {
			t.Error("old failed transaction must be swept")
		}
		if store.Get("recent-failed") == nil {
			t.Error("recent failed transaction must survive")
		}
		if store.Get("old-pending") == nil {
			t.Error("pending transactions are never swept")
		}
	})

	t.Run("Given a non-admin Then Forbidden", func(t *testing.T) {
		ops, _, _ := newTestAdminOps()
		_, err := ops.CleanupFailedTransactions(ctx, userPrincipal, 30)
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("Given a non-positive window Then validation error", func(t *testing.T) {
		ops, _, _ := newTestAdminOps()
		_, err := ops.CleanupFailedTransactions(ctx, adminPrincipal, 0)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}
