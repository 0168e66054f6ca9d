package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MikeMC777/storefront/internal/order"
)

type statusDTO struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
	CardLast4    string `json:"card_last4"`
	PayerID      string `json:"payer_id"`
}

// HTTPVerifier looks transactions up at GET {BaseURL}/payments/{id}.
type HTTPVerifier struct {
	HTTP    *http.Client
	BaseURL string
}

func NewHTTPVerifier(baseURL string) *HTTPVerifier {
	return &HTTPVerifier{HTTP: &http.Client{Timeout: 5 * time.Second}, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (v *HTTPVerifier) Verify(ctx context.Context, method order.PaymentMethod, txnID string) (order.Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/payments/%s", v.BaseURL, url.PathEscape(txnID)), nil)
	if err != nil {
		return order.Verification{}, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := v.HTTP.Do(req)
	if err != nil {
		return order.Verification{}, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return order.Verification{State: order.VerifyDeclined}, nil
	default:
		return order.Verification{}, fmt.Errorf("payment provider: %s", res.Status)
	}

	var dto statusDTO
	if err := json.NewDecoder(res.Body).Decode(&dto); err != nil {
		return order.Verification{}, fmt.Errorf("decode payment status: %w", err)
	}
	switch strings.ToUpper(dto.Status) {
	case "COMPLETED", "CAPTURED", "SUCCEEDED":
	case "DECLINED", "FAILED", "VOIDED", "CANCELLED":
		return order.Verification{State: order.VerifyDeclined}, nil
	default:
		return order.Verification{State: order.VerifyPending}, nil
	}

	at := time.Now().UTC()
	if dto.UpdateTime != "" {
		if t, err := time.Parse(time.RFC3339, dto.UpdateTime); err == nil {
			at = t
		}
	}
	id := dto.ID
	if id == "" {
		id = txnID
	}
	return order.Verification{State: order.VerifyCompleted, Payment: order.PaymentInput{
		Capture: order.Capture{
			TransactionID: id,
			Status:        order.StatusCompleted,
			ConfirmedAt:   at,
			PayerEmail:    dto.EmailAddress,
		},
		CardLast4: dto.CardLast4,
		PayerID:   dto.PayerID,
	}}, nil
}
