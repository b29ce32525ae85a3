package feed

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"

	"github.com/polkapulse/vault/internal/domain"
)

type stubSink struct {
	mu      sync.Mutex
	samples []domain.RateSample
	err     error
}

func (s *stubSink) Record(sample domain.RateSample, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	s.samples = append(s.samples, sample)
	return true, nil
}

func (s *stubSink) Samples() []domain.RateSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RateSample, len(s.samples))
	copy(out, s.samples)
	return out
}

func encodeFrame(t *testing.T, frame Frame) []byte {
	t.Helper()
	data, err := msgpack.Marshal(frame)
	require.NoError(t, err)
	return data
}

func TestHandleFrame_RecordsSamples(t *testing.T) {
	sink := &stubSink{}
	client := NewClient("ws://unused", "test-key", nil, sink, zerolog.Nop())

	payload := encodeFrame(t, Frame{
		Channel: "rates",
		Rates: []RateUpdate{
			{Venue: "venue-a", GrossRateBps: 2000, PeriodSeconds: 31536000},
			{Venue: "venue-b", GrossRateBps: 1000, PeriodSeconds: 31536000},
		},
	})

	require.NoError(t, client.handleFrame(payload))

	samples := sink.Samples()
	require.Len(t, samples, 2)
	assert.Equal(t, "venue-a", samples[0].Venue)
	assert.Equal(t, "venue-b", samples[1].Venue)

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.FramesHandled)
	assert.Equal(t, int64(2), stats.SamplesStored)
	assert.False(t, client.IsStale())
}

func TestHandleFrame_IgnoresOtherChannels(t *testing.T) {
	sink := &stubSink{}
	client := NewClient("ws://unused", "test-key", nil, sink, zerolog.Nop())

	payload := encodeFrame(t, Frame{Channel: "heartbeat"})

	require.NoError(t, client.handleFrame(payload))
	assert.Empty(t, sink.Samples())
	assert.Equal(t, int64(0), client.Stats().FramesHandled)
}

func TestHandleFrame_EmptyRates(t *testing.T) {
	sink := &stubSink{}
	client := NewClient("ws://unused", "test-key", nil, sink, zerolog.Nop())

	payload := encodeFrame(t, Frame{Channel: "rates"})

	require.NoError(t, client.handleFrame(payload))
	assert.Equal(t, int64(0), client.Stats().FramesHandled)
	assert.True(t, client.IsStale())
}

func TestHandleFrame_SinkFailure(t *testing.T) {
	sink := &stubSink{err: errors.New("db closed")}
	client := NewClient("ws://unused", "test-key", nil, sink, zerolog.Nop())

	payload := encodeFrame(t, Frame{
		Channel: "rates",
		Rates:   []RateUpdate{{Venue: "venue-a", GrossRateBps: 100, PeriodSeconds: 60}},
	})

	err := client.handleFrame(payload)
	assert.ErrorContains(t, err, "failed to record streamed sample")
}

func TestHandleFrame_Garbage(t *testing.T) {
	sink := &stubSink{}
	client := NewClient("ws://unused", "test-key", nil, sink, zerolog.Nop())

	assert.Error(t, client.handleFrame([]byte{0xc1}))
}

func TestCalculateBackoff(t *testing.T) {
	client := NewClient("ws://unused", "test-key", nil, &stubSink{}, zerolog.Nop())

	assert.Equal(t, 5*time.Second, client.calculateBackoff(1))
	assert.Equal(t, 10*time.Second, client.calculateBackoff(2))
	assert.Equal(t, 20*time.Second, client.calculateBackoff(3))
	assert.Equal(t, 5*time.Minute, client.calculateBackoff(20))
}

func TestStream_EndToEnd(t *testing.T) {
	authCh := make(chan string, 1)
	subCh := make(chan []string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCh <- r.Header.Get("Authorization")

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var sub subscribeMessage
		if err := msgpack.Unmarshal(data, &sub); err != nil {
			return
		}
		subCh <- sub.Subscribe

		payload, err := msgpack.Marshal(Frame{
			Channel: "rates",
			Rates: []RateUpdate{
				{Venue: "venue-a", GrossRateBps: 2000, PeriodSeconds: 31536000},
				{Venue: "venue-b", GrossRateBps: 1000, PeriodSeconds: 31536000},
			},
			SentAt: time.Now().Unix(),
		})
		if err != nil {
			return
		}
		if err := conn.Write(r.Context(), websocket.MessageBinary, payload); err != nil {
			return
		}

		// Hold the connection open until the client disconnects
		conn.Read(r.Context())
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	sink := &stubSink{}
	client := NewClient(wsURL, "stream-key", nil, sink, zerolog.Nop())
	require.NoError(t, client.Start())
	defer client.Stop()

	assert.True(t, client.IsConnected())
	assert.Equal(t, "Bearer stream-key", <-authCh)
	assert.Equal(t, []string{"rates"}, <-subCh)

	require.Eventually(t, func() bool {
		return len(sink.Samples()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	samples := sink.Samples()
	assert.Equal(t, "venue-a", samples[0].Venue)
	assert.Equal(t, uint32(2000), samples[0].GrossRateBps)

	require.NoError(t, client.Stop())
	assert.False(t, client.IsConnected())
}

func TestCurrentKey_PrefersCredentialStore(t *testing.T) {
	sink := &stubSink{}

	client := NewClient("ws://unused", "boot-key", nil, sink, zerolog.Nop())
	assert.Equal(t, "boot-key", client.currentKey())

	client = NewClient("ws://unused", "boot-key", stubCredentials{"gateway_api_key": "rotated-key"}, sink, zerolog.Nop())
	assert.Equal(t, "rotated-key", client.currentKey())

	// Empty stored value falls back to the boot key
	client = NewClient("ws://unused", "boot-key", stubCredentials{}, sink, zerolog.Nop())
	assert.Equal(t, "boot-key", client.currentKey())
}

type stubCredentials map[string]interface{}

func (c stubCredentials) Get(key string) (interface{}, error) {
	return c[key], nil
}
