package oxapay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// resultOK is OxaPay's success code for merchant API responses.
const resultOK = 100

type Client struct {
	merchantKey string
	baseURL     string
	httpClient  *http.Client
	log         *slog.Logger
}

func NewClient(merchantKey, baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		merchantKey: merchantKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type PaymentRequest struct {
	Merchant       string  `json:"merchant"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	LifeTime       int     `json:"lifeTime"`
	FeePaidByPayer int     `json:"feePaidByPayer"`
	UnderPaidCover int     `json:"underPaidCover"`
	CallbackURL    string  `json:"callbackUrl"`
	ReturnURL      string  `json:"returnUrl"`
	Description    string  `json:"description"`
	OrderID        string  `json:"orderId"`
	Email          string  `json:"email,omitempty"`
}

type PaymentResponse struct {
	Result  int    `json:"result"`
	Message string `json:"message"`
	TrackID int64  `json:"trackId"`
	PayLink string `json:"payLink"`
}

// CallbackData is the provider-initiated payment notification. Numeric
// fields stay json.Number so the HMAC message preserves their exact wire
// form.
type CallbackData struct {
	TrackID  json.Number `json:"trackId"`
	Type     string      `json:"type"`
	Status   string      `json:"status"`
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	Date     string      `json:"date"`
	TxID     string      `json:"txID"`
	HMAC     string      `json:"hmac"`
}

// CreatePayment creates a payable crypto invoice. A transport failure or a
// non-success result code is an error.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if req.Merchant == "" {
		req.Merchant = c.merchantKey
	}

	var parsed PaymentResponse
	if err := c.post(ctx, "/merchants/request", req, &parsed); err != nil {
		return nil, err
	}
	if parsed.Result != resultOK {
		return nil, fmt.Errorf("oxapay rejected payment: %s (result=%d)", parsed.Message, parsed.Result)
	}
	if parsed.TrackID == 0 || parsed.PayLink == "" {
		return nil, fmt.Errorf("oxapay response missing trackId or payLink")
	}
	return &parsed, nil
}

type InquiryResponse struct {
	Result  int     `json:"result"`
	Message string  `json:"message"`
	TrackID int64   `json:"trackId"`
	Status  string  `json:"status"`
	Amount  float64 `json:"amount"`
}

// Inquiry fetches the provider-side status of a payment.
func (c *Client) Inquiry(ctx context.Context, trackID int64) (*InquiryResponse, error) {
	payload := map[string]any{
		"merchant": c.merchantKey,
		"trackId":  trackID,
	}
	var parsed InquiryResponse
	if err := c.post(ctx, "/merchants/inquiry", payload, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// VerifyCallback checks the HMAC-SHA512 signature over the canonical field
// ordering. Callbacks failing this check must never be acted on.
func (c *Client) VerifyCallback(data CallbackData) bool {
	message := fmt.Sprintf("%s*%s*%s*%s*%s*%s*%s",
		data.TrackID.String(), data.Type, data.Status, data.Amount.String(), data.Currency, data.Date, data.TxID)
	mac := hmac.New(sha512.New, []byte(c.merchantKey))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(data.HMAC)))
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post oxapay: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read oxapay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oxapay status %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode oxapay response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
