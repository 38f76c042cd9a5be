package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"

	EventVersion = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    int64      `json:"order_id"`
	UserID     string     `json:"user_id"`
	Status     Status     `json:"status"`
	TotalPrice string     `json:"total_price"`
	Items      []ItemLine `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID     int64     `json:"order_id"`
	UserID      string    `json:"user_id"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Source      string    `json:"source"` // gateway | user | admin | sweeper
	PaymentType string    `json:"payment_type,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

const (
	SourceGateway = "gateway"
	SourceUser    = "user"
	SourceAdmin   = "admin"
	SourceSweeper = "sweeper"
)
