// Package payment models the external payment gateway as a pass/fail
// oracle. The core never credits points before the oracle reports success,
// and a timed-out authorization fails closed.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrDeclined = errors.New("payment declined by gateway")
	ErrTimeout  = errors.New("payment gateway timed out")
)

// AuthorizationRequest is the charge we ask the gateway to capture.
type AuthorizationRequest struct {
	PaymentRef  string `json:"paymentRef"`
	AccountID   string `json:"accountId"`
	MoneyAmount int64  `json:"moneyAmount"`
	Method      string `json:"method"`
}

// AuthorizationResult is the gateway's verdict for one payment reference.
type AuthorizationResult struct {
	PaymentRef string `json:"paymentRef"`
	Approved   bool   `json:"approved"`
	Reason     string `json:"reason,omitempty"`
}

// Oracle decides whether a purchase was paid. Implementations must be safe
// for concurrent use.
type Oracle interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error)
}

// HTTPGateway calls a remote gateway over JSON/HTTP with a hard timeout.
type HTTPGateway struct {
	url    string
	client *http.Client
}

func NewHTTPGateway(url string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			log.Printf("[PAYMENT] Gateway timeout for ref %s: %v", req.PaymentRef, err)
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var result AuthorizationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("gateway response decode failed: %w", err)
	}

	if !result.Approved {
		log.Printf("[PAYMENT] Gateway declined ref %s: %s", req.PaymentRef, result.Reason)
		return &result, ErrDeclined
	}

	return &result, nil
}

func isClientTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
