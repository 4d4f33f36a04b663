package services

import (
	"context"

	"bookstore-api/pkg/logging"
)

// EntitlementGuard enforces the per-purchase download quota and expiry
// before releasing the artifact URL.
type EntitlementGuard struct {
	store TransactionStore
	books BookStore
}

// NewEntitlementGuard creates the guard over the stores
func NewEntitlementGuard(store TransactionStore, books BookStore) *EntitlementGuard {
	return &EntitlementGuard{store: store, books: books}
}

// DownloadLink is one redeemed download
type DownloadLink struct {
	DownloadURL        string `json:"download_url"`
	RemainingDownloads int    `json:"remaining_downloads"`
}

// IssueDownloadLink redeems one download from the token's quota. The
// quota check and the increment are a single conditional update in the
// store, so two concurrent redemptions can never both take the last slot.
func (g *EntitlementGuard) IssueDownloadLink(ctx context.Context, token string) (*DownloadLink, error) {
	txn, err := g.store.RedeemDownload(ctx, token)
	if err != nil {
		return nil, err
	}

	book, err := g.books.FindByID(ctx, txn.BookID)
	if err != nil {
		return nil, err
	}

	logging.Infof("Download redeemed - transaction: %s, book: %s, remaining: %d",
		txn.TransactionID, txn.BookID, txn.RemainingDownloads())

	return &DownloadLink{
		DownloadURL:        book.FileURL,
		RemainingDownloads: txn.RemainingDownloads(),
	}, nil
}
