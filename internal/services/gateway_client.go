package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bookstore-api/internal/apperr"
	"bookstore-api/internal/config"
)

// Canonical gateway statuses. Raw provider payloads are normalized to
// these immediately at the edge; nothing deeper in the orchestrator ever
// branches on raw payload shape.
const (
	GatewayStatusSuccess  = "SUCCESS"
	GatewayStatusFailure  = "FAILURE"
	GatewayStatusPending  = "PENDING"
	GatewayStatusRefunded = "REFUNDED"
)

// GatewayStatus is the normalized result of an out-of-band status query
type GatewayStatus struct {
	Status       string                 `json:"status"`
	GatewayTxnID string                 `json:"gateway_txn_id,omitempty"`
	Raw          map[string]interface{} `json:"-"`
}

// SignedRequest is a payment-initiation request ready for the gateway
type SignedRequest struct {
	OrderID    string `json:"order_id"`
	Body       []byte `json:"-"`
	Signature  string `json:"signature"`
	PaymentURL string `json:"payment_url"`
}

// PaymentGateway builds signed payment requests and queries transaction
// status from the external provider. It never decides entitlement by
// itself.
type PaymentGateway interface {
	BuildPaymentRequest(orderID, userID string, amount int64) (*SignedRequest, error)
	VerifyCallback(payload []byte, signature string) bool
	QueryStatus(ctx context.Context, orderID string) (*GatewayStatus, error)
}

// GatewayClient is the HTTP PaymentGateway implementation
type GatewayClient struct {
	merchantID  string
	baseURL     string
	callbackURL string
	signer      ChecksumSigner
	httpClient  *http.Client
}

// NewGatewayClient creates a gateway client from app configuration
func NewGatewayClient(signer ChecksumSigner) *GatewayClient {
	return &GatewayClient{
		merchantID:  config.AppConfig.GatewayMerchantID,
		baseURL:     strings.TrimRight(config.AppConfig.GatewayBaseURL, "/"),
		callbackURL: config.AppConfig.GatewayCallbackURL,
		signer:      signer,
		httpClient: &http.Client{
			Timeout: time.Duration(config.AppConfig.GatewayTimeoutSeconds) * time.Second,
		},
	}
}

// paymentRequestBody is the canonical initiation body. A struct keeps the
// serialized field order stable so the signature covers the exact bytes
// the gateway receives.
type paymentRequestBody struct {
	MerchantID  string `json:"mid"`
	OrderID     string `json:"orderId"`
	Amount      string `json:"txnAmount"`
	Currency    string `json:"currency"`
	CustomerID  string `json:"custId"`
	CallbackURL string `json:"callbackUrl"`
}

// BuildPaymentRequest assembles and signs the payment-initiation request
func (g *GatewayClient) BuildPaymentRequest(orderID, userID string, amount int64) (*SignedRequest, error) {
	body := paymentRequestBody{
		MerchantID:  g.merchantID,
		OrderID:     orderID,
		Amount:      formatAmount(amount),
		Currency:    "INR",
		CustomerID:  userID,
		CallbackURL: g.callbackURL,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payment request: %w", err)
	}

	signature, err := g.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payment request: %w", err)
	}

	return &SignedRequest{
		OrderID:    orderID,
		Body:       payload,
		Signature:  signature,
		PaymentURL: fmt.Sprintf("%s/theia/processTransaction?mid=%s&orderId=%s", g.baseURL, g.merchantID, orderID),
	}, nil
}

// VerifyCallback checks the checksum on an inbound callback payload.
// Fail closed: a missing or mismatched signature rejects the callback no
// matter what status the payload claims.
func (g *GatewayClient) VerifyCallback(payload []byte, signature string) bool {
	return g.signer.Verify(payload, signature)
}

// statusQueryBody is the out-of-band status check body
type statusQueryBody struct {
	MerchantID string `json:"mid"`
	OrderID    string `json:"orderId"`
}

// QueryStatus performs the server-initiated status check used for
// polling reconciliation. Distinct from trusting an inbound callback.
func (g *GatewayClient) QueryStatus(ctx context.Context, orderID string) (*GatewayStatus, error) {
	body := statusQueryBody{MerchantID: g.merchantID, OrderID: orderID}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize status query: %w", err)
	}

	signature, err := g.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to sign status query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v3/order/status", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Checksum", signature)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status query for order %s: %w", orderID, apperr.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("gateway returned %d for order %s: %w", resp.StatusCode, orderID, apperr.ErrGatewayUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %d for order %s: %w", resp.StatusCode, orderID, apperr.ErrValidation)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode gateway status response: %w", err)
	}

	return NormalizeGatewayStatus(raw), nil
}

// NormalizeGatewayStatus canonicalizes a raw gateway payload. Providers
// report status under several keys and value vocabularies; everything
// funnels through here once, right after receipt.
func NormalizeGatewayStatus(raw map[string]interface{}) *GatewayStatus {
	status := GatewayStatusPending

	if v := firstStringField(raw, "status", "STATUS", "txnStatus", "state", "resultStatus"); v != "" {
		switch strings.ToUpper(v) {
		case "TXN_SUCCESS", "SUCCESS", "COMPLETED", "PAYMENT_SUCCESS", "CHARGED":
			status = GatewayStatusSuccess
		case "TXN_FAILURE", "FAILURE", "FAILED", "PAYMENT_ERROR", "DECLINED":
			status = GatewayStatusFailure
		case "TXN_REFUND", "REFUND", "REFUNDED", "PAYMENT_REFUNDED":
			status = GatewayStatusRefunded
		case "PENDING", "TXN_PENDING", "PAYMENT_PENDING", "OPEN", "INITIATED":
			status = GatewayStatusPending
		}
	}

	return &GatewayStatus{
		Status:       status,
		GatewayTxnID: firstStringField(raw, "txnId", "transactionId", "TXNID", "gatewayTxnId"),
		Raw:          raw,
	}
}

func firstStringField(raw map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	// Some providers nest the result under a resultInfo object
	if nested, ok := raw["resultInfo"].(map[string]interface{}); ok {
		for _, key := range keys {
			if v, ok := nested[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

// formatAmount renders minor currency units as the gateway's expected
// two-decimal string, e.g. 19900 -> "199.00"
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
