package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookingcore/internal/domain"
)

// RefundState is the provider's view of a refund.
type RefundState string

const (
	RefundStateInitiated RefundState = "initiated"
	RefundStateProcessed RefundState = "processed"
	RefundStateCompleted RefundState = "completed"
	RefundStateFailed    RefundState = "failed"
)

type RefundRequest struct {
	BookingNumber  string       `json:"bookingNumber"`
	PaymentID      string       `json:"paymentId"`
	Amount         domain.Money `json:"amount"`
	Reason         string       `json:"reason,omitempty"`
	IdempotencyKey string       `json:"-"`
}

type RefundReceipt struct {
	Reference string      `json:"reference"`
	State     RefundState `json:"status"`
}

// Client talks to the payment provider's refund API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Refund asks the provider to refund a settled payment. The idempotency key is
// forwarded so a retried call after a lost response does not refund twice.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (RefundReceipt, error) {
	if c.BaseURL == "" {
		return RefundReceipt{}, domain.GatewayError{Op: "refund", Err: errors.New("gateway not configured")}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return RefundReceipt{}, domain.GatewayError{Op: "refund", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return RefundReceipt{}, domain.GatewayError{Op: "refund", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	var out RefundReceipt
	if err := c.do(httpReq, &out); err != nil {
		return RefundReceipt{}, domain.GatewayError{Op: "refund", Err: err}
	}
	if out.Reference == "" {
		return RefundReceipt{}, domain.GatewayError{Op: "refund", Err: errors.New("empty refund reference")}
	}
	return out, nil
}

// RefundStatus fetches the provider's state for a refund reference.
func (c *Client) RefundStatus(ctx context.Context, reference string) (RefundState, error) {
	if c.BaseURL == "" {
		return "", domain.GatewayError{Op: "refund_status", Err: errors.New("gateway not configured")}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/refunds/"+url.PathEscape(reference), nil)
	if err != nil {
		return "", domain.GatewayError{Op: "refund_status", Err: err}
	}
	var out RefundReceipt
	if err := c.do(httpReq, &out); err != nil {
		return "", domain.GatewayError{Op: "refund_status", Err: err}
	}
	return out.State, nil
}

func (c *Client) do(req *http.Request, dst any) error {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, dst)
}

// Sign returns the hex HMAC-SHA256 of body under secret, the format the
// provider uses in the X-Gateway-Signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook body against its signature header.
func VerifySignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
