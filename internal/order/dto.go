package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderItem is one cart line as sent by the client. Name, price and
// image are replaced by the catalog snapshot when a catalog is configured.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID string          `json:"product_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Name      string          `json:"name"       example:"Wireless Mouse"`
	Quantity  int             `json:"quantity"   example:"2"`
	UnitPrice decimal.Decimal `json:"unit_price" swaggertype:"string" example:"54.99"`
	Image     string          `json:"image,omitempty"`
}

// CreateOrderRequest is the body of POST /orders. The owner comes from the
// bearer token.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items            []CreateOrderItem `json:"items"`
	ShippingAddress  Address           `json:"shipping_address"`
	PaymentMethod    string            `json:"payment_method" example:"CreditCard"`
	TotalPrice       decimal.Decimal   `json:"total_price"    swaggertype:"string" example:"109.98"`
	PaymentReference string            `json:"payment_reference,omitempty" example:"CARD_1712345678901"`
}

func (r CreateOrderRequest) Input(userID, idemKey string) (CreateInput, error) {
	method, err := ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return CreateInput{}, err
	}
	items := make([]Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = Item(it)
	}
	return CreateInput{
		UserID:           userID,
		Items:            items,
		ShippingAddress:  r.ShippingAddress,
		PaymentMethod:    method,
		TotalPrice:       r.TotalPrice,
		PaymentReference: strings.TrimSpace(r.PaymentReference),
		IdempotencyKey:   strings.TrimSpace(idemKey),
	}, nil
}

// PayRequest is the provider payment result sent to PUT /orders/{id}/pay.
// swagger:model PayRequest
type PayRequest struct {
	ID           string `json:"id"            example:"CARD_1712345678901"`
	Status       string `json:"status"        example:"COMPLETED"`
	UpdateTime   string `json:"update_time"   example:"2024-04-05T18:21:18Z"`
	EmailAddress string `json:"email_address" example:"buyer@example.com"`
	CardLast4    string `json:"card_last4,omitempty" example:"1111"`
	PayerID      string `json:"payer_id,omitempty"`
}

// Input converts the request, defaulting update_time to now.
func (r PayRequest) Input(now time.Time) (PaymentInput, error) {
	at := now
	if s := strings.TrimSpace(r.UpdateTime); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return PaymentInput{}, &ValidationError{Field: "update_time", Msg: "must be RFC3339"}
		}
		at = t
	}
	return PaymentInput{
		Capture: Capture{
			TransactionID: strings.TrimSpace(r.ID),
			Status:        strings.TrimSpace(r.Status),
			ConfirmedAt:   at,
			PayerEmail:    strings.TrimSpace(r.EmailAddress),
		},
		CardLast4: strings.TrimSpace(r.CardLast4),
		PayerID:   strings.TrimSpace(r.PayerID),
	}, nil
}

// OrderResponse is the public view of an order.
// swagger:model OrderResponse
type OrderResponse struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []Item          `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentResult   *PaymentRecord  `json:"payment_result,omitempty"`
	PaymentIntent   *PaymentIntent  `json:"payment_intent,omitempty"`
	TotalPrice      decimal.Decimal `json:"total_price" swaggertype:"string"`
	Status          Status          `json:"status"`
	IsPaid          bool            `json:"is_paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	IsDelivered     bool            `json:"is_delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func ToResponse(o *Order) OrderResponse {
	items := o.Items
	if items == nil {
		items = []Item{}
	}
	return OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentResult:   RecordOf(o.Payment),
		PaymentIntent:   o.Intent,
		TotalPrice:      o.TotalPrice,
		Status:          o.Status(),
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func ToResponses(list []Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(list))
	for i := range list {
		out = append(out, ToResponse(&list[i]))
	}
	return out
}
