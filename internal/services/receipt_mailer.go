package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bookstore-api/internal/config"
	"bookstore-api/internal/models"
	"bookstore-api/pkg/logging"
)

// ReceiptMailer sends purchase receipts through the Brevo transactional
// email API. Called from a goroutine after completion; failures are
// logged and never affect the payment outcome.
type ReceiptMailer struct {
	apiKey     string
	fromEmail  string
	fromName   string
	httpClient *http.Client
}

// NewReceiptMailer creates a mailer from app configuration
func NewReceiptMailer() *ReceiptMailer {
	return &ReceiptMailer{
		apiKey:    config.AppConfig.BrevoAPIKey,
		fromEmail: config.AppConfig.BrevoFromEmail,
		fromName:  config.AppConfig.BrevoFromName,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// EmailRequest represents Brevo email request structure
type EmailRequest struct {
	Sender      EmailSender `json:"sender"`
	To          []EmailTo   `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
	TextContent string      `json:"textContent"`
}

type EmailSender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type EmailTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SendPurchaseReceipt mails the download details for a completed
// purchase. Delivery runs in its own goroutine so the reconciliation
// request never waits on the email API.
func (m *ReceiptMailer) SendPurchaseReceipt(txn *models.Transaction, book *models.Book) {
	if m.apiKey == "" || txn.CustomerEmail == "" {
		return
	}
	go m.deliver(txn, book)
}

func (m *ReceiptMailer) deliver(txn *models.Transaction, book *models.Book) {
	subject := fmt.Sprintf("Your purchase: %s", book.Title)
	expires := ""
	if txn.DownloadExpiresAt != nil {
		expires = txn.DownloadExpiresAt.Format("2 January 2006")
	}

	textContent := fmt.Sprintf(
		"Thank you for your purchase!\n\nBook: %s\nAuthor: %s\nAmount paid: %d.%02d INR\n\nYou can download your book up to %d times until %s.\n",
		book.Title, book.Author, txn.Amount/100, txn.Amount%100, txn.MaxDownloads, expires)

	htmlContent := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head><meta charset="UTF-8"><title>Purchase Receipt</title></head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<h2>Thank you for your purchase!</h2>
			<p><strong>Book:</strong> %s</p>
			<p><strong>Author:</strong> %s</p>
			<p><strong>Amount paid:</strong> %d.%02d INR</p>
			<p>You can download your book up to %d times until %s.</p>
		</body>
		</html>`,
		book.Title, book.Author, txn.Amount/100, txn.Amount%100, txn.MaxDownloads, expires)

	emailReq := EmailRequest{
		Sender:      EmailSender{Name: m.fromName, Email: m.fromEmail},
		To:          []EmailTo{{Email: txn.CustomerEmail}},
		Subject:     subject,
		HTMLContent: htmlContent,
		TextContent: textContent,
	}

	if err := m.send(emailReq); err != nil {
		logging.Errorf("Failed to send purchase receipt - transaction: %s, error: %v", txn.TransactionID, err)
		return
	}
	logging.Infof("Purchase receipt sent - transaction: %s, to: %s", txn.TransactionID, txn.CustomerEmail)
}

// send posts the email to the Brevo SMTP API
func (m *ReceiptMailer) send(emailReq EmailRequest) error {
	jsonData, err := json.Marshal(emailReq)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("brevo returned status %d", resp.StatusCode)
	}
	return nil
}
