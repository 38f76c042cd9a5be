package projector

import (
	"context"
	"encoding/json"
	"fmt"
	kafkax "github.com/ariefcatur/go-order-reconciler/internal/kafka"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/ariefcatur/go-order-reconciler/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Cache interface {
	Put(ctx context.Context, s redisx.OrderStatus) (bool, error)
	MarkOnce(ctx context.Context, service, eventID string) (bool, error)
	Forget(ctx context.Context, service, eventID string) error
}

// Service keeps order_status:{id} in line with the order lifecycle topics.
type Service struct {
	Cache       Cache
	ServiceName string
	Log         *zap.Logger
}

// Handle dipasang sebagai handler consumer untuk kedua topic.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	log := s.logger()

	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// pesan rusak tidak akan pernah sukses, jangan diulang terus
		log.Error("undecodable event dropped", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderCreated && env.EventType != orders.EventOrderStatusChanged {
		return nil
	}
	if env.EventVersion != orders.EventVersion {
		log.Warn("unsupported event version", zap.String("event_type", env.EventType), zap.Int("version", env.EventVersion))
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	first, err := s.Cache.MarkOnce(ctx, s.ServiceName, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !first {
		return nil
	}

	// 3) apply; kalau gagal tanda dedup dilepas supaya redelivery diproses
	if err := s.apply(ctx, env); err != nil {
		if ferr := s.Cache.Forget(context.WithoutCancel(ctx), s.ServiceName, env.EventID); ferr != nil {
			log.Warn("dedup release failed", zap.String("event_id", env.EventID), zap.Error(ferr))
		}
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			s.logger().Error("bad OrderCreated payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return s.put(ctx, redisx.OrderStatus{
			OrderID:   p.OrderID,
			UserID:    p.UserID,
			Status:    string(p.Status),
			UpdatedAt: env.OccurredAt,
		})

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			s.logger().Error("bad OrderStatusChanged payload", zap.String("event_id", env.EventID), zap.Error(err))
			return nil
		}
		return s.put(ctx, redisx.OrderStatus{
			OrderID:   p.OrderID,
			UserID:    p.UserID,
			Status:    string(p.To),
			UpdatedAt: p.ChangedAt,
		})
	}
	return nil
}

// put skips entries older than what is already cached; topics are not ordered between each other.
func (s *Service) put(ctx context.Context, next redisx.OrderStatus) error {
	written, err := s.Cache.Put(ctx, next)
	if err != nil {
		return fmt.Errorf("cache order %d: %w", next.OrderID, err)
	}
	if !written {
		s.logger().Debug("stale event skipped",
			zap.Int64("order_id", next.OrderID),
			zap.String("event", next.Status),
		)
	}
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
