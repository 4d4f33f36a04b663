package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/models"
	"bookstore-api/pkg/logging"

	"github.com/google/uuid"
)

// ReconcileSource identifies who triggered a reconciliation
type ReconcileSource string

const (
	SourceCallback ReconcileSource = "callback"
	SourcePoll     ReconcileSource = "poll"
)

// TransactionStore is the persistence contract the orchestrator runs on
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, transactionID string) (*models.Transaction, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	FindByDownloadToken(ctx context.Context, token string) (*models.Transaction, error)
	FindByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	FindByIDs(ctx context.Context, transactionIDs []string) ([]models.Transaction, error)
	CountCompleted(ctx context.Context, userID, bookID string) (int64, error)
	UpdateStatus(ctx context.Context, transactionID string, from, to models.PaymentStatus) error
	MarkCompleted(ctx context.Context, transactionID string, grant models.DownloadGrant) (bool, error)
	RedeemDownload(ctx context.Context, token string) (*models.Transaction, error)
	DeleteTransactions(ctx context.Context, transactionIDs []string) (int64, error)
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BookStore is the catalog contract the orchestrator reads from
type BookStore interface {
	FindByID(ctx context.Context, bookID string) (*models.Book, error)
	IncrementDownloads(ctx context.Context, bookID string) error
	DecrementDownloads(ctx context.Context, bookID string) error
}

// ReceiptSender delivers the purchase receipt after a completed payment.
// Implementations must not block; delivery happens off the request path.
type ReceiptSender interface {
	SendPurchaseReceipt(txn *models.Transaction, book *models.Book)
}

// OrchestratorConfig carries the entitlement policy applied at grant time
type OrchestratorConfig struct {
	GatewayName      string
	MaxDownloads     int
	DownloadValidity time.Duration
}

// PaymentOrchestrator is the purchase state machine. It owns every
// paymentStatus transition; the gateway client and the stores never
// decide entitlement on their own.
type PaymentOrchestrator struct {
	store   TransactionStore
	books   BookStore
	gateway PaymentGateway
	cfg     OrchestratorConfig

	// Optional collaborators; nil disables the concern
	Replay *ReplayProtection
	Cache  StatusCache
	Mailer ReceiptSender
}

// NewPaymentOrchestrator wires the state machine over its collaborators
func NewPaymentOrchestrator(store TransactionStore, books BookStore, gateway PaymentGateway, cfg OrchestratorConfig) *PaymentOrchestrator {
	if cfg.MaxDownloads <= 0 {
		cfg.MaxDownloads = 5
	}
	if cfg.DownloadValidity <= 0 {
		cfg.DownloadValidity = 30 * 24 * time.Hour
	}
	return &PaymentOrchestrator{
		store:   store,
		books:   books,
		gateway: gateway,
		cfg:     cfg,
	}
}

// InitiateResult is returned to the client to start checkout
type InitiateResult struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	PaymentURL    string `json:"payment_url"`
}

// Initiate validates the book, snapshots its current price into a new
// PENDING transaction and returns the gateway redirect handle. The
// client-supplied request never carries an amount.
func (o *PaymentOrchestrator) Initiate(ctx context.Context, principal models.Principal, bookID string) (*InitiateResult, error) {
	book, err := o.books.FindByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.IsActive {
		return nil, fmt.Errorf("book %s is not available: %w", bookID, apperr.ErrInvalidBookState)
	}
	if !book.IsPaid || book.Price <= 0 {
		return nil, fmt.Errorf("book %s is free, use the free download flow: %w", bookID, apperr.ErrInvalidBookState)
	}

	transactionID := uuid.NewString()
	orderID := "ORD-" + uuid.NewString()

	signed, err := o.gateway.BuildPaymentRequest(orderID, principal.UserID, book.Price)
	if err != nil {
		return nil, err
	}

	txn := &models.Transaction{
		TransactionID:  transactionID,
		UserID:         principal.UserID,
		BookID:         book.BookID,
		CustomerEmail:  principal.Email,
		Amount:         book.Price,
		PaymentStatus:  models.PaymentStatusPending,
		PaymentGateway: o.cfg.GatewayName,
		GatewayOrderID: orderID,
		MaxDownloads:   o.cfg.MaxDownloads,
	}
	if err := o.store.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	logging.Infof("Payment initiated - transaction: %s, order: %s, book: %s, amount: %d",
		transactionID, orderID, book.BookID, book.Price)

	return &InitiateResult{
		TransactionID: transactionID,
		OrderID:       orderID,
		PaymentURL:    signed.PaymentURL,
	}, nil
}

// callbackEnvelope is the minimal shape read off an inbound callback
// before verification; used only for replay keying. Status and amount
// fields inside the payload are untrusted and never read.
type callbackEnvelope struct {
	OrderID   string `json:"orderId"`
	Timestamp int64  `json:"timestamp"`
}

// Reconcile resolves the transaction's true status from the gateway and
// applies the resulting transition. Safe to invoke any number of times
// for the same order: terminal records are returned unchanged and side
// effects run at most once, guarded by the compare-and-set in the store.
func (o *PaymentOrchestrator) Reconcile(ctx context.Context, orderID string, source ReconcileSource, payload []byte, signature string) (*models.Transaction, error) {
	txn, err := o.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// FAILED and REFUNDED are final; COMPLETED can still move to
	// REFUNDED when the gateway reports one.
	if txn.PaymentStatus == models.PaymentStatusFailed || txn.PaymentStatus == models.PaymentStatusRefunded {
		return txn, nil
	}

	if source == SourceCallback {
		var envelope callbackEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, fmt.Errorf("malformed callback payload: %w", apperr.ErrIntegrity)
		}
		if o.Replay != nil && o.Replay.IsReplay(envelope.OrderID, envelope.Timestamp) {
			return nil, fmt.Errorf("replayed callback for order %s: %w", orderID, apperr.ErrIntegrity)
		}
		if !o.gateway.VerifyCallback(payload, signature) {
			logging.Errorf("Callback signature mismatch - order: %s", orderID)
			return nil, fmt.Errorf("callback signature mismatch for order %s: %w", orderID, apperr.ErrIntegrity)
		}
	}

	status, err := o.fetchStatus(ctx, orderID, source, txn)
	if err != nil {
		return nil, err
	}
	if status == nil {
		// Poll was rate limited; report the stored state
		return txn, nil
	}

	switch status.Status {
	case GatewayStatusSuccess:
		return o.complete(ctx, txn, status)
	case GatewayStatusFailure:
		return o.fail(ctx, txn)
	case GatewayStatusRefunded:
		return o.refund(ctx, txn)
	default:
		// Still pending at the gateway; the caller retries later
		return txn, nil
	}
}

// Status is the poll endpoint's entry: it drives a reconciliation so the
// client poll loop and the webhook independently converge on the same
// terminal state. Only the purchase owner (or an admin) may poll an
// order; the minted download token rides on the status response.
func (o *PaymentOrchestrator) Status(ctx context.Context, principal models.Principal, orderID string) (*models.Transaction, error) {
	txn, err := o.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != principal.UserID && !principal.IsAdmin {
		// Indistinguishable from an unknown order to other users
		return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	return o.Reconcile(ctx, orderID, SourcePoll, nil, "")
}

// FreeDownload grants an entitlement for a free book without touching the
// gateway. The grant carries the same quota and expiry rules as a paid
// purchase.
func (o *PaymentOrchestrator) FreeDownload(ctx context.Context, principal models.Principal, bookID string) (*models.Transaction, error) {
	book, err := o.books.FindByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.IsActive {
		return nil, fmt.Errorf("book %s is not available: %w", bookID, apperr.ErrInvalidBookState)
	}
	if book.IsPaid && book.Price > 0 {
		return nil, fmt.Errorf("book %s requires payment: %w", bookID, apperr.ErrInvalidBookState)
	}

	now := time.Now()
	expiresAt := now.Add(o.cfg.DownloadValidity)
	txn := &models.Transaction{
		TransactionID:     uuid.NewString(),
		UserID:            principal.UserID,
		BookID:            book.BookID,
		CustomerEmail:     principal.Email,
		Amount:            0,
		PaymentStatus:     models.PaymentStatusCompleted,
		PaymentGateway:    "free",
		GatewayOrderID:    "FREE-" + uuid.NewString(),
		DownloadToken:     uuid.NewString(),
		MaxDownloads:      o.cfg.MaxDownloads,
		DownloadExpiresAt: &expiresAt,
		PurchasedAt:       &now,
	}
	if err := o.store.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to create free download grant: %w", err)
	}

	logging.Infof("Free download granted - transaction: %s, book: %s, user: %s",
		txn.TransactionID, book.BookID, principal.UserID)

	return txn, nil
}

// ListPurchases returns the caller's transactions, newest first
func (o *PaymentOrchestrator) ListPurchases(ctx context.Context, principal models.Principal) ([]models.Transaction, error) {
	return o.store.FindByUser(ctx, principal.UserID)
}

// fetchStatus performs the out-of-band status query, going through the
// cache and rate limiter for poll-driven calls. A nil status with nil
// error means the poll was rate limited.
func (o *PaymentOrchestrator) fetchStatus(ctx context.Context, orderID string, source ReconcileSource, txn *models.Transaction) (*GatewayStatus, error) {
	if source == SourcePoll && o.Cache != nil {
		if !o.Cache.AllowPoll(ctx, orderID) {
			return nil, nil
		}
		if cached, ok := o.Cache.GetStatus(ctx, orderID); ok {
			return &GatewayStatus{Status: cached}, nil
		}
	}

	status, err := o.gateway.QueryStatus(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if source == SourcePoll && o.Cache != nil {
		o.Cache.PutStatus(ctx, orderID, status.Status)
	}
	return status, nil
}

// complete applies PENDING -> COMPLETED and runs the grant side effects
// exactly once, gated on winning the compare-and-set.
func (o *PaymentOrchestrator) complete(ctx context.Context, txn *models.Transaction, status *GatewayStatus) (*models.Transaction, error) {
	if txn.PaymentStatus == models.PaymentStatusCompleted {
		return txn, nil
	}

	now := time.Now()
	grant := models.DownloadGrant{
		Token:        uuid.NewString(),
		MaxDownloads: txn.MaxDownloads,
		ExpiresAt:    now.Add(o.cfg.DownloadValidity),
		PurchasedAt:  now,
		GatewayTxnID: status.GatewayTxnID,
	}
	if grant.MaxDownloads <= 0 {
		grant.MaxDownloads = o.cfg.MaxDownloads
	}

	applied, err := o.store.MarkCompleted(ctx, txn.TransactionID, grant)
	if err != nil {
		return nil, fmt.Errorf("failed to complete transaction %s: %w", txn.TransactionID, err)
	}

	if applied {
		o.runCompletionEffects(ctx, txn)
	}

	return o.store.FindByID(ctx, txn.TransactionID)
}

// runCompletionEffects increments the book counter, flags duplicate
// charges for audit and mails the receipt. Runs only for the
// reconciliation that won the CAS.
func (o *PaymentOrchestrator) runCompletionEffects(ctx context.Context, txn *models.Transaction) {
	book, err := o.books.FindByID(ctx, txn.BookID)
	if err != nil {
		logging.Errorf("Completed transaction %s references missing book %s: %v", txn.TransactionID, txn.BookID, err)
		return
	}

	if book.IsPaid {
		if err := o.books.IncrementDownloads(ctx, book.BookID); err != nil {
			logging.Errorf("Failed to increment download counter for book %s: %v", book.BookID, err)
		}
	}

	// Duplicate-charge guard: never merged silently, only flagged
	if count, err := o.store.CountCompleted(ctx, txn.UserID, txn.BookID); err == nil && count > 1 {
		logging.Auditf("Duplicate charge detected - user: %s, book: %s, completed transactions: %d",
			txn.UserID, txn.BookID, count)
	}

	if o.Mailer != nil && txn.CustomerEmail != "" {
		fresh, err := o.store.FindByID(ctx, txn.TransactionID)
		if err != nil {
			fresh = txn
		}
		o.Mailer.SendPurchaseReceipt(fresh, book)
	}

	logging.Infof("Payment completed - transaction: %s, order: %s, book: %s",
		txn.TransactionID, txn.GatewayOrderID, txn.BookID)
}

// fail applies PENDING -> FAILED. Losing the CAS to a concurrent
// reconciliation is benign; the stored state wins.
func (o *PaymentOrchestrator) fail(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if txn.PaymentStatus == models.PaymentStatusCompleted {
		// A stale failure report must never flip a completed payment
		return txn, nil
	}
	err := o.store.UpdateStatus(ctx, txn.TransactionID, models.PaymentStatusPending, models.PaymentStatusFailed)
	if err != nil && !errors.Is(err, apperr.ErrInvalidTransition) {
		return nil, err
	}
	logging.Infof("Payment failed - transaction: %s, order: %s", txn.TransactionID, txn.GatewayOrderID)
	return o.store.FindByID(ctx, txn.TransactionID)
}

// refund applies COMPLETED -> REFUNDED when the gateway reports a refund
func (o *PaymentOrchestrator) refund(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if txn.PaymentStatus != models.PaymentStatusCompleted {
		// A refund can only follow a completed payment; leave the
		// record for the next reconciliation to resolve.
		return txn, nil
	}
	err := o.store.UpdateStatus(ctx, txn.TransactionID, models.PaymentStatusCompleted, models.PaymentStatusRefunded)
	if err != nil && !errors.Is(err, apperr.ErrInvalidTransition) {
		return nil, err
	}
	logging.Auditf("Payment refunded - transaction: %s, order: %s", txn.TransactionID, txn.GatewayOrderID)
	return o.store.FindByID(ctx, txn.TransactionID)
}
