package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler must return nil only when the message was processed and its offset
// may be committed. Failures that redelivery cannot cure (undecodable
// payloads) should be logged and swallowed by the handler itself; a returned
// error means "retry me".
type Handler func(ctx context.Context, m kafka.Message) error

const retryBackoff = 200 * time.Millisecond

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// Start reads the topic and fans messages out to the worker pool. A failing
// handler is retried in place, and offsets are released to the broker
// strictly in read order per partition, so a failed message is never
// subsumed by a later worker's commit.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	cm := newCommitter(c.r.CommitMessages)
	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if err := processWithRetry(ctx, h, m, retryBackoff); err != nil {
					// Cancelled mid-retry; the uncommitted message redelivers.
					return
				}
				if err := cm.markDone(ctx, m); err != nil {
					slog.Error("offset commit failed", "error", err)
				}
			}
		}()
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			close(jobs)
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		cm.observe(m)
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		}
	}
}

// processWithRetry runs the handler until it succeeds, backing off between
// attempts. Only a cancelled context stops the retries: a transiently
// failing message must hold its position rather than be skipped.
func processWithRetry(ctx context.Context, h Handler, m kafka.Message, backoff time.Duration) error {
	for {
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("handler failed, retrying",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// committer holds completed messages back until everything read before them
// in the same partition has completed, then commits the contiguous prefix.
// The group offset therefore never moves past an unprocessed message.
type committer struct {
	mu     sync.Mutex
	commit func(ctx context.Context, msgs ...kafka.Message) error
	parts  map[int]*partitionWindow
}

type partitionWindow struct {
	order []kafka.Message // read order, not yet committed
	done  map[int64]bool
}

func newCommitter(commit func(ctx context.Context, msgs ...kafka.Message) error) *committer {
	return &committer{commit: commit, parts: map[int]*partitionWindow{}}
}

// observe records a message in read order, before it is handed to a worker.
func (c *committer) observe(m kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.parts[m.Partition]
	if w == nil {
		w = &partitionWindow{done: map[int64]bool{}}
		c.parts[m.Partition] = w
	}
	w.order = append(w.order, m)
}

// markDone marks one message processed and commits the contiguous completed
// prefix of its partition, if any. The commit runs under the lock so batches
// reach the broker in order.
func (c *committer) markDone(ctx context.Context, m kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.parts[m.Partition]
	w.done[m.Offset] = true

	var ready []kafka.Message
	for len(w.order) > 0 && w.done[w.order[0].Offset] {
		delete(w.done, w.order[0].Offset)
		ready = append(ready, w.order[0])
		w.order = w.order[1:]
	}
	if len(ready) == 0 {
		return nil
	}
	return c.commit(ctx, ready...)
}
