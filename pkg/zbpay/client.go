/**
 * @description
 * This package provides a thin client for the ZbPay payments gateway. It wraps
 * the two endpoints the service depends on: initiating a hosted-checkout
 * transaction and querying the status of a previously initiated transaction.
 * The client shapes requests, normalizes responses, and carries no business
 * logic.
 *
 * Callers must distinguish the two failure modes the client reports: an
 * *APIError (the gateway answered with a non-2xx status, i.e. it rejected the
 * request) and a plain transport error (the gateway could not be reached).
 * Neither means the payment itself was declined; declines are ordinary status
 * values in a 2xx response.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Exact decimal arithmetic for money.
 */

package zbpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a client for the ZbPay payments gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

// NewClient creates a new ZbPay client.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		APISecret: apiSecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// InitiateRequest is the payload for initiating a hosted-checkout payment.
// Field casing follows the gateway's wire format.
type InitiateRequest struct {
	Amount         decimal.Decimal `json:"Amount"`
	CurrencyCode   int             `json:"CurrencyCode"`
	ReturnURL      string          `json:"returnUrl"`
	ResultURL      string          `json:"resultUrl"`
	OrderReference string          `json:"orderReference"`
	TransactionID  string          `json:"transactionId"`
	StudentID      string          `json:"studentId,omitempty"`
	TermKey        string          `json:"termKey,omitempty"`
}

// InitiateResponse is the gateway's answer to a successful initiation.
type InitiateResponse struct {
	PaymentURL string `json:"paymentUrl"`
	Error      string `json:"error,omitempty"`
}

// StatusResult is the normalized output of a status query. RawStatus is the
// gateway's status word (PAID, FAILED, PENDING, ...); RawPayload is the
// unparsed response body, persisted on the transaction for audit.
type StatusResult struct {
	RawStatus  string
	RawPayload json.RawMessage
}

// APIError is a non-2xx answer from the gateway. It means the gateway rejected
// the request, not that a payment was declined.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zbpay api error: status %d: %s", e.StatusCode, e.Body)
}

// Initiate asks the gateway to create a hosted-checkout transaction and
// returns the payment URL the payer should be redirected to.
func (c *Client) Initiate(ctx context.Context, payload InitiateRequest) (*InitiateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initiate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/payments/initiate-transaction", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create initiate request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute initiate request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read initiate response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var out InitiateResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return nil, fmt.Errorf("failed to decode initiate response: %w", err)
	}
	if out.PaymentURL == "" {
		// The gateway answered 2xx but without a checkout URL; treat it as a
		// rejection so the caller does not leave a payer without a next step.
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return &out, nil
}

// statusEnvelope tolerates both field names the gateway has been observed to
// use for the status word.
type statusEnvelope struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

// QueryStatus asks the gateway for the current status of an order.
func (c *Client) QueryStatus(ctx context.Context, orderReference string) (*StatusResult, error) {
	url := fmt.Sprintf("%s/payments/transaction/%s/status/check", c.BaseURL, orderReference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute status request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var envelope statusEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	status := envelope.Status
	if status == "" {
		status = envelope.PaymentStatus
	}

	return &StatusResult{RawStatus: status, RawPayload: bodyBytes}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("x-api-secret", c.APISecret)
}
