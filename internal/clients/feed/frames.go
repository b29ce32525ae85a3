package feed

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/polkapulse/vault/internal/domain"
)

// ratesChannel is the stream channel carrying venue rate updates.
const ratesChannel = "rates"

// subscribeMessage is the first frame sent after dialing.
type subscribeMessage struct {
	Subscribe []string `msgpack:"subscribe"`
}

// RateUpdate is one venue quote inside a stream frame.
type RateUpdate struct {
	Venue         string `msgpack:"venue"`
	GrossRateBps  uint32 `msgpack:"gross_rate_bps"`
	PeriodSeconds uint64 `msgpack:"period_seconds"`
}

// Frame is one msgpack message from the gateway stream.
type Frame struct {
	Channel string       `msgpack:"channel"`
	Rates   []RateUpdate `msgpack:"rates"`
	SentAt  int64        `msgpack:"sent_at"`
}

// decodeFrame parses a binary stream message.
func decodeFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to decode stream frame: %w", err)
	}
	if frame.Channel == "" {
		return nil, fmt.Errorf("stream frame missing channel")
	}
	return &frame, nil
}

// Samples converts the frame's updates into domain samples. Validation
// happens in the sink, which applies the same rules to streamed and
// polled rates.
func (f *Frame) Samples() []domain.RateSample {
	samples := make([]domain.RateSample, len(f.Rates))
	for i, update := range f.Rates {
		samples[i] = domain.RateSample{
			Venue:         update.Venue,
			GrossRateBps:  update.GrossRateBps,
			PeriodSeconds: update.PeriodSeconds,
		}
	}
	return samples
}

// encodeSubscribe builds the channel subscription message.
func encodeSubscribe(channels ...string) ([]byte, error) {
	data, err := msgpack.Marshal(subscribeMessage{Subscribe: channels})
	if err != nil {
		return nil, fmt.Errorf("failed to encode subscription: %w", err)
	}
	return data, nil
}
