package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/models"
)

// MockTransactionStore is an in-memory TransactionStore with the same
// compare-and-set semantics as the database implementation.
type MockTransactionStore struct {
	mu           sync.Mutex
	Transactions map[string]*models.Transaction // by TransactionID
	Books        *MockBookStore                 // for delete-time counter decrements
}

func NewMockTransactionStore() *MockTransactionStore {
	return &MockTransactionStore{Transactions: make(map[string]*models.Transaction)}
}

func cloneTxn(txn *models.Transaction) *models.Transaction {
	cp := *txn
	return &cp
}

func (m *MockTransactionStore) Put(txn *models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transactions[txn.TransactionID] = cloneTxn(txn)
}

func (m *MockTransactionStore) Get(transactionID string) *models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn, ok := m.Transactions[transactionID]; ok {
		return cloneTxn(txn)
	}
	return nil
}

func (m *MockTransactionStore) Create(ctx context.Context, txn *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Transactions[txn.TransactionID]; exists {
		return fmt.Errorf("duplicate transaction id %s", txn.TransactionID)
	}
	stored := cloneTxn(txn)
	stored.CreatedAt = time.Now()
	m.Transactions[txn.TransactionID] = stored
	return nil
}

func (m *MockTransactionStore) FindByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn, ok := m.Transactions[transactionID]; ok {
		return cloneTxn(txn), nil
	}
	return nil, fmt.Errorf("transaction %s: %w", transactionID, apperr.ErrNotFound)
}

func (m *MockTransactionStore) FindByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.Transactions {
		if txn.GatewayOrderID == orderID {
			return cloneTxn(txn), nil
		}
	}
	return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
}

func (m *MockTransactionStore) FindByDownloadToken(ctx context.Context, token string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.Transactions {
		if txn.DownloadToken != "" && txn.DownloadToken == token {
			return cloneTxn(txn), nil
		}
	}
	return nil, fmt.Errorf("download token: %w", apperr.ErrNotFound)
}

func (m *MockTransactionStore) FindByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var txns []models.Transaction
	for _, txn := range m.Transactions {
		if txn.UserID == userID {
			txns = append(txns, *cloneTxn(txn))
		}
	}
	return txns, nil
}

func (m *MockTransactionStore) FindByIDs(ctx context.Context, transactionIDs []string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var txns []models.Transaction
	for _, id := range transactionIDs {
		if txn, ok := m.Transactions[id]; ok {
			txns = append(txns, *cloneTxn(txn))
		}
	}
	return txns, nil
}

func (m *MockTransactionStore) CountCompleted(ctx context.Context, userID, bookID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, txn := range m.Transactions {
		if txn.UserID == userID && txn.BookID == bookID && txn.PaymentStatus == models.PaymentStatusCompleted {
			count++
		}
	}
	return count, nil
}

func (m *MockTransactionStore) UpdateStatus(ctx context.Context, transactionID string, from, to models.PaymentStatus) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, apperr.ErrInvalidTransition)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.Transactions[transactionID]
	if !ok || txn.PaymentStatus != from {
		return fmt.Errorf("transaction %s is no longer %s: %w", transactionID, from, apperr.ErrInvalidTransition)
	}
	txn.PaymentStatus = to
	return nil
}

func (m *MockTransactionStore) MarkCompleted(ctx context.Context, transactionID string, grant models.DownloadGrant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.Transactions[transactionID]
	if !ok || txn.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	txn.PaymentStatus = models.PaymentStatusCompleted
	txn.DownloadToken = grant.Token
	txn.MaxDownloads = grant.MaxDownloads
	expires := grant.ExpiresAt
	txn.DownloadExpiresAt = &expires
	purchased := grant.PurchasedAt
	txn.PurchasedAt = &purchased
	txn.GatewayTxnID = grant.GatewayTxnID
	return true, nil
}

func (m *MockTransactionStore) RedeemDownload(ctx context.Context, token string) (*models.Transaction, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.Transactions {
		if txn.DownloadToken == "" || txn.DownloadToken != token {
			continue
		}
		if txn.PaymentStatus != models.PaymentStatusCompleted {
			return nil, fmt.Errorf("download token not redeemable: %w", apperr.ErrNotFound)
		}
		if txn.DownloadExpiresAt == nil || !now.Before(*txn.DownloadExpiresAt) {
			return nil, fmt.Errorf("download token: %w", apperr.ErrExpired)
		}
		if txn.DownloadCount >= txn.MaxDownloads {
			return nil, fmt.Errorf("download token: %w", apperr.ErrQuotaExceeded)
		}
		txn.DownloadCount++
		return cloneTxn(txn), nil
	}
	return nil, fmt.Errorf("download token: %w", apperr.ErrNotFound)
}

func (m *MockTransactionStore) DeleteTransactions(ctx context.Context, transactionIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for _, id := range transactionIDs {
		txn, ok := m.Transactions[id]
		if !ok {
			continue
		}
		if txn.PaymentStatus == models.PaymentStatusCompleted && m.Books != nil {
			m.Books.decrementLocked(txn.BookID)
		}
		delete(m.Transactions, id)
		deleted++
	}
	return deleted, nil
}

func (m *MockTransactionStore) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, txn := range m.Transactions {
		if txn.PaymentStatus == models.PaymentStatusFailed && txn.CreatedAt.Before(cutoff) {
			delete(m.Transactions, id)
			deleted++
		}
	}
	return deleted, nil
}

// MockBookStore is an in-memory BookStore
type MockBookStore struct {
	mu    sync.Mutex
	Books map[string]*models.Book
}

func NewMockBookStore() *MockBookStore {
	return &MockBookStore{Books: make(map[string]*models.Book)}
}

func (m *MockBookStore) Put(book *models.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *book
	m.Books[book.BookID] = &cp
}

func (m *MockBookStore) Get(bookID string) *models.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok := m.Books[bookID]; ok {
		cp := *book
		return &cp
	}
	return nil
}

func (m *MockBookStore) FindByID(ctx context.Context, bookID string) (*models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok := m.Books[bookID]; ok {
		cp := *book
		return &cp, nil
	}
	return nil, fmt.Errorf("book %s: %w", bookID, apperr.ErrBookNotFound)
}

func (m *MockBookStore) IncrementDownloads(ctx context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book, ok := m.Books[bookID]; ok {
		book.DownloadCount++
	}
	return nil
}

func (m *MockBookStore) DecrementDownloads(ctx context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decrementLocked(bookID)
	return nil
}

func (m *MockBookStore) decrementLocked(bookID string) {
	if book, ok := m.Books[bookID]; ok && book.DownloadCount > 0 {
		book.DownloadCount--
	}
}

// MockGateway is a scripted PaymentGateway
type MockGateway struct {
	mu           sync.Mutex
	StatusResult *GatewayStatus
	StatusErr    error
	VerifyOK     bool
	BuildErr     error
	QueryCalls   int
}

func (g *MockGateway) BuildPaymentRequest(orderID, userID string, amount int64) (*SignedRequest, error) {
	if g.BuildErr != nil {
		return nil, g.BuildErr
	}
	return &SignedRequest{
		OrderID:    orderID,
		Signature:  "mock-signature",
		PaymentURL: "https://gateway.test/pay?orderId=" + orderID,
	}, nil
}

func (g *MockGateway) VerifyCallback(payload []byte, signature string) bool {
	return g.VerifyOK
}

func (g *MockGateway) QueryStatus(ctx context.Context, orderID string) (*GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.QueryCalls++
	if g.StatusErr != nil {
		return nil, g.StatusErr
	}
	return g.StatusResult, nil
}

func (g *MockGateway) Queries() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.QueryCalls
}

// MockReceiptSender records receipt deliveries
type MockReceiptSender struct {
	mu   sync.Mutex
	Sent []string // transaction IDs
}

func (m *MockReceiptSender) SendPurchaseReceipt(txn *models.Transaction, book *models.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, txn.TransactionID)
}

func (m *MockReceiptSender) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// MockStatusCache is a scripted StatusCache
type MockStatusCache struct {
	mu       sync.Mutex
	Statuses map[string]string
	PollOK   bool
}

func NewMockStatusCache() *MockStatusCache {
	return &MockStatusCache{Statuses: make(map[string]string), PollOK: true}
}

func (c *MockStatusCache) GetStatus(ctx context.Context, orderID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Statuses[orderID]
	return s, ok
}

func (c *MockStatusCache) PutStatus(ctx context.Context, orderID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[orderID] = status
}

func (c *MockStatusCache) AllowPoll(ctx context.Context, orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PollOK
}
