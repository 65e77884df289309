package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity recomputes stock balances from the movement log.
	TaskStockIntegrity = "stock:integrity"
	// TaskShiftDigest summarizes a closed shift's reconciliation outcome.
	TaskShiftDigest = "shift:digest"
)

// StockIntegrityPayload carries scheduling metadata.
type StockIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockIntegrityTask constructs an Asynq task for the stock integrity scan.
func NewStockIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// ShiftDigestPayload identifies the closed shift to summarize.
type ShiftDigestPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	ShiftID  uuid.UUID `json:"shift_id"`
}

// NewShiftDigestTask constructs an Asynq task for a shift digest.
func NewShiftDigestTask(tenantID, shiftID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(ShiftDigestPayload{TenantID: tenantID, ShiftID: shiftID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskShiftDigest, body, asynq.Queue(QueueDefault)), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueShiftDigest enqueues a digest task for a freshly closed shift.
func (c *Client) EnqueueShiftDigest(ctx context.Context, tenantID, shiftID uuid.UUID) error {
	task, err := NewShiftDigestTask(tenantID, shiftID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// EnqueueStockIntegrity enqueues an on-demand integrity scan.
func (c *Client) EnqueueStockIntegrity(ctx context.Context, at time.Time) error {
	task, err := NewStockIntegrityTask(at)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
