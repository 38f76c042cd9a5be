package orders

import (
	"context"
	kafkax "github.com/ariefcatur/go-order-reconciler/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"strconv"
	"time"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// EventBus publishes lifecycle events after commit. A nil bus or nil publisher drops events.
type EventBus struct {
	Created       Publisher
	StatusChanged Publisher
	Producer      string
}

func (b *EventBus) orderCreated(ctx context.Context, o Order) {
	if b == nil || b.Created == nil {
		return
	}
	items := make([]ItemLine, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemLine{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice.String()})
	}
	b.publish(ctx, b.Created, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice.String(),
		Items:      items,
	})
}

func (b *EventBus) statusChanged(ctx context.Context, p OrderStatusChangedPayload) {
	if b == nil || b.StatusChanged == nil {
		return
	}
	p.ChangedAt = time.Now().UTC()
	b.publish(ctx, b.StatusChanged, EventOrderStatusChanged, p.OrderID, p)
}

func (b *EventBus) publish(ctx context.Context, p Publisher, eventType string, orderID int64, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      b.Producer,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       kafkax.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(EventVersion))},
	)
}
