package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const pollTimeout = 30 * time.Second

// SamplePoller is the slice of the telemetry service the poll job needs.
type SamplePoller interface {
	Poll(ctx context.Context, now int64) (int, error)
}

// FeedStatus reports whether the streaming feed is delivering fresh samples.
type FeedStatus interface {
	IsConnected() bool
	IsStale() bool
}

// TelemetryPollJob pulls venue rate observations from the gateway on a
// fixed cadence. When the streaming feed is connected and fresh the poll
// is skipped, so this acts as the fallback path rather than a duplicate.
type TelemetryPollJob struct {
	telemetry SamplePoller
	feed      FeedStatus
	log       zerolog.Logger
}

// NewTelemetryPollJob creates a new telemetry poll job. The feed may be
// nil when streaming is not configured.
func NewTelemetryPollJob(telemetry SamplePoller, feed FeedStatus, log zerolog.Logger) *TelemetryPollJob {
	return &TelemetryPollJob{
		telemetry: telemetry,
		feed:      feed,
		log:       log.With().Str("job", "telemetry_poll").Logger(),
	}
}

// Name returns the job name
func (j *TelemetryPollJob) Name() string {
	return "telemetry_poll"
}

// Run polls the gateway unless the stream already covers it
func (j *TelemetryPollJob) Run() error {
	if j.feed != nil && j.feed.IsConnected() && !j.feed.IsStale() {
		j.log.Debug().Msg("Feed is live, skipping telemetry poll")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	stored, err := j.telemetry.Poll(ctx, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("telemetry poll failed: %w", err)
	}

	j.log.Debug().Int("stored", stored).Msg("Telemetry poll completed")
	return nil
}
