package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/indexerhq/controlplane/internal/logging"
	"github.com/indexerhq/controlplane/internal/queue"
)

// Consumer is the subset of the Work Queue Adapter the queue-consumer
// wiring needs.
type Consumer interface {
	Consume(ctx context.Context, q queue.QueueType, pollInterval time.Duration, handler queue.Handler)
}

// RunConsumers starts the three queue consumers, each spawning an
// independent task per message so a slow handler never blocks delivery of
// the next one. It returns once all three consumer loops have been
// started; the loops themselves run until ctx is cancelled.
func (c *Coordinator) RunConsumers(ctx context.Context, consumer Consumer, pollInterval time.Duration) {
	go consumer.Consume(ctx, queue.QueueStart, pollInterval, c.handleStart)
	go consumer.Consume(ctx, queue.QueueStop, pollInterval, c.handleStop)
	go consumer.Consume(ctx, queue.QueueFail, pollInterval, c.handleFail)
}

func (c *Coordinator) handleStart(ctx context.Context, msg queue.Message) error {
	var payload queue.StartPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal start payload: %w", err)
	}
	if err := c.Start(ctx, payload.IndexerID, payload.Attempt); err != nil {
		logging.WithIndexer(payload.IndexerID).Warn("start consumer failed", "error", err)
		return err
	}
	return nil
}

func (c *Coordinator) handleStop(ctx context.Context, msg queue.Message) error {
	var payload queue.StopPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal stop payload: %w", err)
	}
	if err := c.ReconcileStopped(ctx, payload.IndexerID, payload.Status); err != nil {
		logging.WithIndexer(payload.IndexerID).Warn("stop consumer failed", "error", err)
		return err
	}
	return nil
}

func (c *Coordinator) handleFail(ctx context.Context, msg queue.Message) error {
	var payload queue.FailPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal fail payload: %w", err)
	}
	if err := c.Fail(ctx, payload.IndexerID); err != nil {
		logging.WithIndexer(payload.IndexerID).Warn("fail consumer failed", "error", err)
		return err
	}
	return nil
}
