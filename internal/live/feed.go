package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Impact-10/apartmentcafe/internal/orders"
	"github.com/Impact-10/apartmentcafe/internal/redisx"
)

// Feed bridges the hub across API instances over Redis pub/sub: mutators
// publish one message per committed change, every instance's Run loop
// rebroadcasts it into the local hub. Delivery is at-least-once and
// eventually consistent; the transport's own reconnect policy covers stalls.
type Feed struct {
	rdb    *redis.Client
	hub    *Hub
	logger *slog.Logger
}

func NewFeed(rdb *redis.Client, hub *Hub, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{rdb: rdb, hub: hub, logger: logger}
}

var _ orders.ChangeSink = (*Feed)(nil)

func (f *Feed) Publish(ctx context.Context, c orders.Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, redisx.ChannelOrderEvents, b).Err()
}

// Run consumes the change channel until ctx is cancelled. go-redis
// re-subscribes on connection loss; if the channel closes for good the hub's
// subscribers get a terminal error event and must re-establish.
func (f *Feed) Run(ctx context.Context) error {
	sub := f.rdb.Subscribe(ctx, redisx.ChannelOrderEvents)
	defer sub.Close()
	return f.consume(ctx, sub.Channel())
}

func (f *Feed) consume(ctx context.Context, ch <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				err := errors.New("live feed closed")
				f.hub.Fail(err)
				return err
			}
			f.dispatch(m.Payload)
		}
	}
}

// dispatch rebroadcasts one wire message into the local hub. Undecodable or
// empty messages are dropped; one bad producer must not end the stream.
func (f *Feed) dispatch(payload string) {
	var c orders.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		f.logger.Error("bad live event", "error", err)
		return
	}
	if c.Order == nil {
		return
	}
	f.hub.Broadcast(c)
}
