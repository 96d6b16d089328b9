// Package queue implements the Work Queue Adapter: three logical queues
// (start, stop, fail) coordinating indexer create/retry/stop/fail work,
// backed by Redis.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/indexerhq/controlplane/internal/logging"
)

// QueueType identifies one of the three logical queues coordinating the
// indexer lifecycle.
type QueueType string

const (
	// QueueStart carries {id, attempt_no}; consumed into Coordinator.start.
	QueueStart QueueType = "start"
	// QueueStop carries {id, status}; consumed into Coordinator.reconcile-stopped.
	QueueStop QueueType = "stop"
	// QueueFail carries {id}; consumed into Coordinator.fail.
	QueueFail QueueType = "fail"
)

const (
	redisQueueZSetPrefix  = "indexer:queue:due:"
	redisQueuePayloadHash = "indexer:queue:payload"
	redisQueueWakePrefix  = "indexer:queue:wake:"
	redeliveryDelay       = 5 * time.Second
)

// Message is a single unit of work read off a logical queue.
type Message struct {
	ID      string
	Queue   QueueType
	Payload json.RawMessage
}

// Handler processes one Message. Returning an error logs and allows
// redelivery; it must never crash the consumer loop.
type Handler func(ctx context.Context, msg Message) error

// RedisQueue implements the Work Queue Adapter on top of a Redis sorted
// set keyed by delivery time, plus a per-queue Redis list that consumers
// block on so a zero-delay publish is noticed immediately instead of
// waiting for the next poll tick. Consume pops due members with ZRem,
// which only one concurrent consumer can win, so consumers don't
// double-claim a message — at-least-once, not exactly-once, since the
// claiming consumer can still crash before the handler completes.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a RedisQueue.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Publish schedules payload for delivery on queue after delay (which may
// be zero for immediate delivery).
func (q *RedisQueue) Publish(ctx context.Context, queue QueueType, payload any, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}

	id := uuid.New().String()
	deliverAt := time.Now().Add(delay)

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, redisQueuePayloadHash, id, body)
	pipe.ZAdd(ctx, redisQueueZSetPrefix+string(queue), redis.Z{
		Score:  float64(deliverAt.UnixMilli()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish to queue %s: %w", queue, err)
	}

	if delay <= 0 {
		if err := q.client.LPush(ctx, wakeKey(queue), "1").Err(); err != nil {
			logging.Op().Warn("queue wake push failed", "queue", queue, "error", err)
		}
	}
	return nil
}

// Consume runs a loop that polls queue for due messages and invokes
// handler. Each message spawns an independent goroutine so a slow handler
// never blocks delivery of the next message. Consume blocks until ctx is
// cancelled, so callers run it in its own goroutine. pollInterval is the ticker-driven safety net; the
// blocking wake subscription (see wake) delivers immediate (zero-delay)
// publishes without waiting for the next tick.
func (q *RedisQueue) Consume(ctx context.Context, queue QueueType, pollInterval time.Duration, handler Handler) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	wakeCh := q.wake(ctx, queue)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainDue(ctx, queue, handler)
		case <-wakeCh:
			q.drainDue(ctx, queue, handler)
		}
	}
}

// wake starts a background goroutine blocking on BRPOP against queue's
// wake list and returns a channel that receives a non-blocking signal per
// wake-up. The list persists pushes even if no consumer is currently
// blocked on it, so a Publish that races ahead of Consume's subscription
// isn't lost. The goroutine exits once ctx is cancelled.
func (q *RedisQueue) wake(ctx context.Context, queue QueueType) <-chan struct{} {
	ch := make(chan struct{}, 1)
	key := wakeKey(queue)

	go func() {
		defer close(ch)
		for {
			if ctx.Err() != nil {
				return
			}

			result, err := q.client.BRPop(ctx, time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				logging.Op().Warn("queue wake poll failed", "queue", queue, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}

			if len(result) >= 2 {
				select {
				case ch <- struct{}{}:
				default:
					// A wake-up is already pending; drainDue will catch
					// this message on the same pass.
				}
			}
		}
	}()

	return ch
}

func wakeKey(queue QueueType) string {
	return redisQueueWakePrefix + string(queue)
}

func (q *RedisQueue) drainDue(ctx context.Context, queue QueueType, handler Handler) {
	key := redisQueueZSetPrefix + string(queue)
	now := float64(time.Now().UnixMilli())

	for {
		ids, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:   "0",
			Max:   fmt.Sprintf("%f", now),
			Count: 16,
		}).Result()
		if err != nil {
			logging.Op().Error("queue poll failed", "queue", queue, "error", err)
			return
		}
		if len(ids) == 0 {
			return
		}

		for _, id := range ids {
			removed, err := q.client.ZRem(ctx, key, id).Result()
			if err != nil {
				logging.Op().Error("queue claim failed", "queue", queue, "id", id, "error", err)
				continue
			}
			if removed == 0 {
				// Another consumer already claimed this id.
				continue
			}
			q.dispatch(ctx, queue, id, handler)
		}
	}
}

func (q *RedisQueue) dispatch(ctx context.Context, queue QueueType, id string, handler Handler) {
	body, err := q.client.HGet(ctx, redisQueuePayloadHash, id).Bytes()
	if err != nil {
		logging.Op().Error("queue payload fetch failed", "queue", queue, "id", id, "error", err)
		return
	}
	q.client.HDel(context.Background(), redisQueuePayloadHash, id)

	msg := Message{ID: id, Queue: queue, Payload: body}

	go func() {
		handleCtx := context.Background()
		if err := handler(handleCtx, msg); err != nil {
			logging.Op().Warn("queue handler failed, scheduling redelivery",
				"queue", queue, "id", id, "error", err)
			if pubErr := q.Publish(handleCtx, queue, json.RawMessage(body), redeliveryDelay); pubErr != nil {
				logging.Op().Error("queue redelivery failed", "queue", queue, "id", id, "error", pubErr)
			}
		}
	}()
}
