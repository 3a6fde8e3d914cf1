// Package payment connects wallet deposits to an external hosted checkout.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/errandhub/backend/internal/apperr"
)

// Gateway status values carried on the return redirect.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// CheckoutRequest describes the deposit the payer is sent to pay for.
type CheckoutRequest struct {
	OrderID uuid.UUID
	Amount  int64
	Method  string
}

// Checkout is where the client should redirect the payer.
type Checkout struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// Result is a verified gateway return.
type Result struct {
	OrderID     uuid.UUID
	Amount      int64
	Success     bool
	ExternalRef string
	Reason      string
}

// Gateway is an external payment provider.
type Gateway interface {
	Initiate(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	ParseReturn(values url.Values) (*Result, error)
}

// HostedCheckout signs checkout parameters with HMAC-SHA256 and verifies the
// signature the provider puts on the return redirect.
type HostedCheckout struct {
	BaseURL    string
	MerchantID string
	Secret     []byte
	Currency   string
	ReturnURL  string
	Now        func() time.Time
}

func NewHostedCheckout(baseURL, merchantID, secret, currency, returnURL string) *HostedCheckout {
	return &HostedCheckout{
		BaseURL:    baseURL,
		MerchantID: merchantID,
		Secret:     []byte(secret),
		Currency:   currency,
		ReturnURL:  returnURL,
		Now:        time.Now,
	}
}

func (g *HostedCheckout) Initiate(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	if g.BaseURL == "" || len(g.Secret) == 0 {
		return nil, fmt.Errorf("hosted checkout not configured: %w", apperr.ErrExternalPaymentFailed)
	}
	fields := map[string]string{
		"merchant_id": g.MerchantID,
		"order_id":    req.OrderID.String(),
		"amount":      strconv.FormatInt(req.Amount, 10),
		"currency":    g.Currency,
		"method":      req.Method,
		"return_url":  g.ReturnURL,
		"timestamp":   g.Now().UTC().Format(time.RFC3339),
	}
	fields["signature"] = g.sign(fields)

	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	sep := "?"
	if strings.Contains(g.BaseURL, "?") {
		sep = "&"
	}
	return &Checkout{URL: g.BaseURL + sep + q.Encode(), Fields: fields}, nil
}

// ParseReturn verifies and decodes the provider's return redirect. A bad or
// missing signature is reported as apperr.ErrUnauthorized.
func (g *HostedCheckout) ParseReturn(values url.Values) (*Result, error) {
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	got, err := hex.DecodeString(fields["signature"])
	if err != nil || !hmac.Equal(got, g.mac(fields)) {
		return nil, fmt.Errorf("payment return signature mismatch: %w", apperr.ErrUnauthorized)
	}
	if fields["merchant_id"] != g.MerchantID {
		return nil, fmt.Errorf("%w: unexpected merchant %q", apperr.ErrInvalidInput, fields["merchant_id"])
	}
	orderID, err := uuid.Parse(fields["order_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: order_id: %v", apperr.ErrInvalidInput, err)
	}
	amount, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", apperr.ErrInvalidInput, err)
	}
	res := &Result{
		OrderID:     orderID,
		Amount:      amount,
		ExternalRef: fields["reference"],
		Reason:      fields["reason"],
	}
	switch fields["status"] {
	case StatusSuccess:
		res.Success = true
	case StatusFailed:
	default:
		return nil, fmt.Errorf("%w: status %q", apperr.ErrInvalidInput, fields["status"])
	}
	return res, nil
}

func (g *HostedCheckout) sign(fields map[string]string) string {
	return hex.EncodeToString(g.mac(fields))
}

// mac is HMAC-SHA256 over "k=v" pairs sorted by key and joined by "&",
// excluding the signature itself.
func (g *HostedCheckout) mac(fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "signature" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	m := hmac.New(sha256.New, g.Secret)
	m.Write([]byte(b.String()))
	return m.Sum(nil)
}
