package api

import (
	"encoding/json"
	"io"
	"net/http"

	"bookstore-api/internal/middleware"
	"bookstore-api/internal/response"
	"bookstore-api/internal/services"

	"github.com/gin-gonic/gin"
)

// InitiatePaymentRequest represents the initiate payment request
type InitiatePaymentRequest struct {
	BookID string `json:"book_id" binding:"required"`
}

// InitiatePayment starts a purchase for a paid book
// POST /api/payments/initiate
func InitiatePayment(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	result, err := Orchestrator.Initiate(c.Request.Context(), principal, req.BookID)
	if err != nil {
		response.ErrorJSON(c, httpStatusFor(err), err.Error())
		return
	}

	response.SuccessJSON(c, result)
}

// PaymentStatusResponse represents the poll endpoint response
type PaymentStatusResponse struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	PurchasedAt   string `json:"purchased_at,omitempty"`
	DownloadToken string `json:"download_token,omitempty"`
}

// GetPaymentStatus polls a transaction's status, driving reconciliation
// GET /api/payments/status/:orderId
func GetPaymentStatus(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	orderID := c.Param("orderId")
	if orderID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Order ID is required")
		return
	}

	txn, err := Orchestrator.Status(c.Request.Context(), principal, orderID)
	if err != nil {
		response.ErrorJSON(c, httpStatusFor(err), err.Error())
		return
	}

	resp := PaymentStatusResponse{
		TransactionID: txn.TransactionID,
		OrderID:       txn.GatewayOrderID,
		Status:        string(txn.PaymentStatus),
		DownloadToken: txn.DownloadToken,
	}
	if txn.PurchasedAt != nil {
		resp.PurchasedAt = txn.PurchasedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	response.SuccessJSON(c, resp)
}

// GatewayWebhook receives the gateway's signed payment callback. No
// bearer auth: the checksum is the callback's authentication, and an
// unverifiable payload is rejected outright.
// POST /api/payments/webhook
func GatewayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Failed to read callback body")
		return
	}

	orderID := c.Query("orderId")
	if orderID == "" {
		orderID = c.GetHeader("X-Order-ID")
	}
	if orderID == "" {
		// Last resort: the gateway also carries the order id in the body
		var envelope struct {
			OrderID string `json:"orderId"`
		}
		if err := json.Unmarshal(payload, &envelope); err == nil {
			orderID = envelope.OrderID
		}
	}
	if orderID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Order ID is required")
		return
	}

	signature := c.GetHeader("X-Gateway-Signature")

	txn, err := Orchestrator.Reconcile(c.Request.Context(), orderID, services.SourceCallback, payload, signature)
	if err != nil {
		response.ErrorJSON(c, httpStatusFor(err), err.Error())
		return
	}

	response.SuccessJSON(c, gin.H{
		"order_id": txn.GatewayOrderID,
		"status":   string(txn.PaymentStatus),
	})
}

// FreeDownloadResponse represents the free download grant response
type FreeDownloadResponse struct {
	TransactionID string `json:"transaction_id"`
	DownloadToken string `json:"download_token"`
	DownloadURL   string `json:"download_url"`
	MaxDownloads  int    `json:"max_downloads"`
}

// FreeDownload grants an entitlement for a free book
// POST /api/payments/downloadfree/:bookId
func FreeDownload(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	bookID := c.Param("bookId")
	if bookID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "Book ID is required")
		return
	}

	txn, err := Orchestrator.FreeDownload(c.Request.Context(), principal, bookID)
	if err != nil {
		response.ErrorJSON(c, httpStatusFor(err), err.Error())
		return
	}

	response.SuccessJSON(c, FreeDownloadResponse{
		TransactionID: txn.TransactionID,
		DownloadToken: txn.DownloadToken,
		DownloadURL:   "/api/payments/download/" + txn.DownloadToken,
		MaxDownloads:  txn.MaxDownloads,
	})
}

// MyPurchases lists the caller's transactions
// GET /api/payments/my-purchases
func MyPurchases(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	txns, err := Orchestrator.ListPurchases(c.Request.Context(), principal)
	if err != nil {
		response.ErrorJSON(c, httpStatusFor(err), err.Error())
		return
	}

	response.SuccessJSON(c, txns)
}
