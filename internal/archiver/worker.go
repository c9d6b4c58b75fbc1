package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/Impact-10/apartmentcafe/internal/kafka"
	"github.com/Impact-10/apartmentcafe/internal/orders"
	"github.com/Impact-10/apartmentcafe/internal/redisx"
)

// OrderArchiver is the slice of the order service the worker needs.
type OrderArchiver interface {
	Archive(ctx context.Context, id string, traceID string) (*orders.Order, error)
}

// Worker turns order.delivered events into archivals. The delay gives the
// customer tracker time to display the final state before the order leaves
// the live set; it is policy of this caller, not a store invariant.
type Worker struct {
	Orders OrderArchiver
	Redis  *redis.Client
	Delay  time.Duration
	Logger *slog.Logger
}

// HandleOrderDelivered is mounted as the consumer handler for the
// order.delivered topic. Returning nil commits the offset; transport
// failures are returned so the event is retried. Undecodable events are
// logged and skipped: redelivery cannot fix them, and retrying would hold
// the partition.
func (w *Worker) HandleOrderDelivered(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		w.logger().Error("dropping undecodable event", "error", err)
		return nil
	}
	if env.EventType != orders.EventOrderDelivered {
		return nil
	}

	if w.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "archiver", env.EventID)
		if exists, _ := redisx.Exists(ctx, w.Redis, dkey); exists {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.StatusChangedPayload](env.Payload)
	if err != nil {
		w.logger().Error("dropping undecodable payload", "event_id", env.EventID, "error", err)
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.Delay):
	}

	if _, err := w.Orders.Archive(ctx, p.OrderID, env.TraceID); err != nil {
		// Gone or no longer terminal: someone else archived it first.
		if errors.Is(err, orders.ErrNotFound) || errors.Is(err, orders.ErrInvalidState) {
			return nil
		}
		return err
	}
	if w.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "archiver", env.EventID)
		_ = w.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	w.logger().Info("archived delivered order", "order_id", p.OrderID)
	return nil
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
