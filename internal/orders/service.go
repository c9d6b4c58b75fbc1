package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/Impact-10/apartmentcafe/internal/kafka"
	"github.com/Impact-10/apartmentcafe/internal/redisx"
)

// EventPublisher is the slice of the Kafka producer the service uses; each
// publisher is bound to one topic.
type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Producers holds one topic-bound publisher per lifecycle event.
type Producers struct {
	Created   EventPublisher
	Accepted  EventPublisher
	Delivered EventPublisher
	Archived  EventPublisher
}

// Service owns the order lifecycle: it validates input, drives the forward-only
// state machine through the Store, and publishes every committed mutation to
// Kafka and to the live change sink.
type Service struct {
	Store     Store
	Redis     *redis.Client
	Producers Producers
	Changes   ChangeSink
	Name      string
	Logger    *slog.Logger
}

type CreateInput struct {
	CustomerName string              `json:"customer_name"`
	Location     string              `json:"location"`
	Mobile       string              `json:"mobile"`
	Items        map[string]LineItem `json:"items"`
	Total        int                 `json:"total"`

	// ClientKey is an optional caller-generated idempotency key. Resubmitting
	// the same key returns the already-created order instead of a duplicate.
	ClientKey string `json:"client_key,omitempty"`
}

var mobileRe = regexp.MustCompile(`^[0-9]{10}$`)

func validateCreate(in CreateInput) error {
	switch {
	case strings.TrimSpace(in.CustomerName) == "":
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	case strings.TrimSpace(in.Location) == "":
		return fmt.Errorf("%w: location is required", ErrValidation)
	case !mobileRe.MatchString(in.Mobile):
		return fmt.Errorf("%w: mobile must be exactly 10 digits", ErrValidation)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}

	sum := 0
	for id, it := range in.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: invalid quantity for item %s", ErrValidation, id)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("%w: invalid price for item %s", ErrValidation, id)
		}
		if it.Name == "" {
			return fmt.Errorf("%w: missing name for item %s", ErrValidation, id)
		}
		sum += it.UnitPrice * it.Quantity
	}
	if sum != in.Total {
		return fmt.Errorf("%w: total %d does not match line items (%d)", ErrValidation, in.Total, sum)
	}
	return nil
}

// Create inserts a new pending order. The line-item snapshot is supplied by
// the caller and checked for internal consistency; it is not re-derived from
// the menu catalog.
func (s *Service) Create(ctx context.Context, in CreateInput, traceID string) (o *Order, existed bool, err error) {
	if err := validateCreate(in); err != nil {
		return nil, false, err
	}

	if in.ClientKey != "" {
		if o, ok := s.findExisting(ctx, in.ClientKey); ok {
			return o, true, nil
		}
	}

	o = &Order{
		CustomerName: strings.TrimSpace(in.CustomerName),
		Location:     strings.TrimSpace(in.Location),
		Mobile:       in.Mobile,
		Items:        in.Items,
		Total:        in.Total,
	}
	if err := s.Store.Insert(ctx, o, in.ClientKey); err != nil {
		// Lost a same-key race: the winner's order already exists, return it
		// instead of surfacing the constraint violation.
		if errors.Is(err, ErrDuplicateKey) && in.ClientKey != "" {
			if existing, ferr := s.Store.FindByClientKey(ctx, in.ClientKey); ferr == nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}

	if s.Redis != nil {
		if in.ClientKey != "" {
			idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, in.ClientKey)
			_ = s.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
		}
		s.cacheStatus(ctx, o)
	}

	s.publish(s.Producers.Created, EventOrderCreated, o.ID, traceID, OrderCreatedPayload{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		Location:     o.Location,
		Items:        o.Items,
		Total:        o.Total,
	})
	s.fanout(ctx, Change{Kind: ChangeCreated, Order: o})

	s.logger().Info("order created", "order_id", o.ID, "total", o.Total)
	return o, false, nil
}

// Transition moves an order one step forward. Only accepted and delivered are
// valid targets; the current status is read first and the store applies the
// step conditionally, so a regression or repeat fails instead of overwriting.
func (s *Service) Transition(ctx context.Context, id string, next Status, traceID string) (*Order, error) {
	if next != StatusAccepted && next != StatusDelivered {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, next)
	}

	cur, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := cur.Status
	if !CanTransition(from, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}

	o, err := s.Store.Transition(ctx, id, from, next)
	if err != nil {
		return nil, err
	}
	if s.Redis != nil {
		s.cacheStatus(ctx, o)
	}

	at := time.Now().UTC()
	pub, event := s.Producers.Accepted, EventOrderAccepted
	if next == StatusDelivered {
		pub, event = s.Producers.Delivered, EventOrderDelivered
		if o.DeliveredAt != nil {
			at = *o.DeliveredAt
		}
	} else if o.AcceptedAt != nil {
		at = *o.AcceptedAt
	}
	s.publish(pub, event, o.ID, traceID, StatusChangedPayload{OrderID: o.ID, From: from, To: next, At: at})
	s.fanout(ctx, Change{Kind: ChangeStatusChanged, Order: o, PrevStatus: from})

	s.logger().Info("order transitioned", "order_id", o.ID, "from", from, "to", next)
	return o, nil
}

// Archive moves a delivered order out of the live set into the history
// partition. Non-terminal orders fail with ErrInvalidState.
func (s *Service) Archive(ctx context.Context, id string, traceID string) (*Order, error) {
	o, err := s.Store.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Redis != nil {
		_ = s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID)).Err()
	}

	s.publish(s.Producers.Archived, EventOrderArchived, o.ID, traceID, OrderArchivedPayload{
		OrderID:        o.ID,
		SubmissionDate: o.SubmissionDate(),
	})
	s.fanout(ctx, Change{Kind: ChangeArchived, Order: o, PrevStatus: o.Status})

	s.logger().Info("order archived", "order_id", o.ID, "submission_date", o.SubmissionDate())
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Redis != nil {
		s.cacheStatus(ctx, o)
	}
	return o, nil
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	return s.Store.ListByStatus(ctx, status)
}

func (s *Service) History(ctx context.Context, day time.Time) ([]*Order, error) {
	return s.Store.History(ctx, day)
}

func (s *Service) findExisting(ctx context.Context, clientKey string) (*Order, bool) {
	// Redis fast path; the unique client_key column stays the truth.
	if s.Redis != nil {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, clientKey)
		if id, err := s.Redis.Get(ctx, idemKey).Result(); err == nil && id != "" {
			if o, err := s.Store.Get(ctx, id); err == nil {
				return o, true
			}
		}
	}
	o, err := s.Store.FindByClientKey(ctx, clientKey)
	if err == nil {
		return o, true
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger().Error("idempotency lookup failed", "error", err)
	}
	return nil, false
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	body := fmt.Sprintf(`{"status":%q,"updated_at":%q}`, o.Status, time.Now().UTC().Format(time.RFC3339))
	_ = s.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (s *Service) publish(pub EventPublisher, eventType, orderID, traceID string, payload any) {
	if pub == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	pub.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) fanout(ctx context.Context, c Change) {
	if s.Changes == nil {
		return
	}
	if err := s.Changes.Publish(ctx, c); err != nil {
		s.logger().Error("live fanout failed", "order_id", c.Order.ID, "error", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
