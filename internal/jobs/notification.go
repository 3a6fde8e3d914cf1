package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/errandhub/backend/internal/metrics"
)

// Task notification events.
const (
	EventTaskAccepted  = "task_accepted"
	EventTaskStarted   = "task_started"
	EventTaskCompleted = "task_completed"
	EventTaskCancelled = "task_cancelled"
)

// TaskNotificationArgs tells one party that a task they take part in changed.
type TaskNotificationArgs struct {
	TaskID uuid.UUID `json:"task_id"`
	UserID uuid.UUID `json:"user_id"`
	Event  string    `json:"event"`
	Status string    `json:"status"`
}

func (TaskNotificationArgs) Kind() string { return "task_notification" }

// InsertTaskNotificationTxFunc enqueues a notification within the given
// transaction so it is only delivered if the transition commits. Provided by
// main using river.Client.InsertTx.
type InsertTaskNotificationTxFunc func(ctx context.Context, tx pgx.Tx, args TaskNotificationArgs) error

// TaskNotificationWorker delivers notifications to a webhook. With no webhook
// configured it only logs them.
type TaskNotificationWorker struct {
	river.WorkerDefaults[TaskNotificationArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewTaskNotificationWorker(webhookURL string, log *slog.Logger) *TaskNotificationWorker {
	if log == nil {
		log = slog.Default()
	}
	return &TaskNotificationWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

func (w *TaskNotificationWorker) Work(ctx context.Context, job *river.Job[TaskNotificationArgs]) error {
	args := job.Args
	if w.webhookURL == "" {
		w.log.Info("task notification", "task_id", args.TaskID, "user_id", args.UserID, "event", args.Event, "status", args.Status)
		metrics.RecordNotification(args.Event, "logged")
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		metrics.RecordNotification(args.Event, "failed")
		return fmt.Errorf("network error calling notification webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordNotification(args.Event, "failed")
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	metrics.RecordNotification(args.Event, "delivered")
	return nil
}
