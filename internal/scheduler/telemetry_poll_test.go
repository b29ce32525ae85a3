package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPoller struct {
	stored int
	err    error
	polls  int
}

func (s *stubPoller) Poll(ctx context.Context, now int64) (int, error) {
	s.polls++
	return s.stored, s.err
}

type stubFeed struct {
	connected bool
	stale     bool
}

func (s *stubFeed) IsConnected() bool { return s.connected }
func (s *stubFeed) IsStale() bool     { return s.stale }

func TestTelemetryPoll_SkipsWhenFeedLive(t *testing.T) {
	poller := &stubPoller{}
	job := NewTelemetryPollJob(poller, &stubFeed{connected: true, stale: false}, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 0, poller.polls)
}

func TestTelemetryPoll_PollsWhenFeedStale(t *testing.T) {
	poller := &stubPoller{stored: 2}
	job := NewTelemetryPollJob(poller, &stubFeed{connected: true, stale: true}, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, poller.polls)
}

func TestTelemetryPoll_PollsWhenFeedDisconnected(t *testing.T) {
	poller := &stubPoller{stored: 2}
	job := NewTelemetryPollJob(poller, &stubFeed{connected: false}, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, poller.polls)
}

func TestTelemetryPoll_PollsWithoutFeed(t *testing.T) {
	poller := &stubPoller{stored: 2}
	job := NewTelemetryPollJob(poller, nil, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, poller.polls)
}

func TestTelemetryPoll_Error(t *testing.T) {
	poller := &stubPoller{err: errors.New("gateway unreachable")}
	job := NewTelemetryPollJob(poller, nil, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry poll failed")
}

func TestTelemetryPoll_Name(t *testing.T) {
	job := NewTelemetryPollJob(&stubPoller{}, nil, zerolog.Nop())
	assert.Equal(t, "telemetry_poll", job.Name())
}
