package liqpay

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/olehbas/marshrut/internal/core/domain"
	"github.com/olehbas/marshrut/internal/pkg/metrics"
)

const apiVersion = "3"

// Client implements ports.PaymentGateway against the LiqPay merchant
// API. Every call is a single attempt with a bounded timeout; retries
// belong to the caller or the refund escalation pipeline.
type Client struct {
	endpoint   string
	publicKey  string
	privateKey string
	http       *http.Client
}

func New(endpoint, publicKey, privateKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		publicKey:  publicKey,
		privateKey: privateKey,
		http:       &http.Client{Timeout: timeout},
	}
}

type statusResponse struct {
	Result         string  `json:"result"`
	Status         string  `json:"status"`
	PaymentID      int64   `json:"payment_id"`
	OrderID        string  `json:"order_id"`
	Amount         float64 `json:"amount"`
	SenderCardMask string  `json:"sender_card_mask2"`
	ErrCode        string  `json:"err_code"`
	ErrDescription string  `json:"err_description"`
}

// FetchPayment looks up a payment by the gateway's order reference.
func (c *Client) FetchPayment(ctx context.Context, orderID string) (*domain.Payment, error) {
	resp, err := c.request(ctx, "status", map[string]any{
		"order_id": orderID,
	})
	if err != nil {
		return nil, err
	}

	var st statusResponse
	if err := json.Unmarshal(resp, &st); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if st.Result != "ok" && st.Status == "" {
		return nil, fmt.Errorf("gateway status %q: %s", st.ErrCode, st.ErrDescription)
	}

	return &domain.Payment{
		PaymentID:     fmt.Sprintf("%d", st.PaymentID),
		OrderID:       st.OrderID,
		Amount:        int64(st.Amount * 100),
		PayerCardMask: st.SenderCardMask,
		Status:        st.Status,
	}, nil
}

// Refund asks the gateway to return the amount for an order. Amount is
// in minor currency units.
func (c *Client) Refund(ctx context.Context, orderID string, amount int64) error {
	resp, err := c.request(ctx, "refund", map[string]any{
		"order_id": orderID,
		"amount":   float64(amount) / 100,
	})
	if err != nil {
		return err
	}

	var st statusResponse
	if err := json.Unmarshal(resp, &st); err != nil {
		return fmt.Errorf("decode refund response: %w", err)
	}
	switch st.Status {
	case "reversed", "refund_wait", "wait_reserve", "success":
		return nil
	}
	return fmt.Errorf("refund rejected %q: %s", st.ErrCode, st.ErrDescription)
}

func (c *Client) request(ctx context.Context, action string, params map[string]any) ([]byte, error) {
	start := time.Now()
	body, err := c.do(ctx, action, params)

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GatewayRequestDuration.WithLabelValues(action, result).Observe(time.Since(start).Seconds())

	return body, err
}

func (c *Client) do(ctx context.Context, action string, params map[string]any) ([]byte, error) {
	envelope := map[string]any{
		"action":     action,
		"version":    apiVersion,
		"public_key": c.publicKey,
	}
	for k, v := range params {
		envelope[k] = v
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	data := base64.StdEncoding.EncodeToString(raw)

	form := url.Values{}
	form.Set("data", data)
	form.Set("signature", c.Sign(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: http %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return body.Bytes(), nil
}

// Sign computes base64(sha1(private_key + data + private_key)), the
// signature scheme the gateway verifies on both requests and callbacks.
func (c *Client) Sign(data string) string {
	h := sha1.Sum([]byte(c.privateKey + data + c.privateKey))
	return base64.StdEncoding.EncodeToString(h[:])
}

// VerifyCallback checks the signature on an inbound server-to-server
// callback and returns the decoded payload.
func (c *Client) VerifyCallback(data, signature string) ([]byte, error) {
	if c.Sign(data) != signature {
		return nil, errors.New("callback signature mismatch")
	}
	return base64.StdEncoding.DecodeString(data)
}
