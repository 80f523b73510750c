package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Job types accepted on the job subscription.
const (
	JobSnapshotRefresh = "snapshot_refresh"
	JobHealthCheck     = "health_check"
)

// Job errors. Malformed and unknown jobs are acknowledged without retry.
var (
	ErrMalformedJob = errors.New("malformed job message")
	ErrUnknownJob   = errors.New("unknown job type")
)

// JobMessage is the payload of a job message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// RequestedBy identifies the scheduler or operator, for logging.
	RequestedBy string `json:"requested_by,omitempty"`
}

// Dispatcher runs job messages against a RefreshJob.
type Dispatcher struct {
	refreshJob *RefreshJob
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher for refreshJob.
func NewDispatcher(refreshJob *RefreshJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		refreshJob: refreshJob,
		logger:     logger.With().Str("component", "jobs").Logger(),
	}
}

// Handle decodes and runs one job. A skipped refresh counts as success,
// since another refresh is producing the snapshot.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	logger := d.logger.With().
		Str("job_type", msg.JobType).
		Str("requested_by", msg.RequestedBy).
		Logger()

	start := time.Now()

	switch msg.JobType {
	case JobSnapshotRefresh:
		result := d.refreshJob.Run(ctx)
		if result.Err != nil {
			return fmt.Errorf("refreshing snapshot: %w", result.Err)
		}
	case JobHealthCheck:
		if err := d.refreshJob.Check(ctx); err != nil {
			return fmt.Errorf("health check: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("job completed successfully")
	return nil
}

// Retryable reports whether a failed job should be redelivered.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrMalformedJob) && !errors.Is(err, ErrUnknownJob)
}
