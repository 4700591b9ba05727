package feed

import (
	"context"
	"time"
)

// RawPost is one message delivered by a source before any scoring. Empty
// fields are tolerated downstream; an empty MessageID makes the detector
// derive a content-based id.
type RawPost struct {
	Platform   string    `json:"platform"`
	Channel    string    `json:"channel"`
	MessageID  string    `json:"message_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Source streams raw posts into the pipeline. Start returns a channel that
// closes once ctx is cancelled and the source has shut down.
type Source interface {
	Start(ctx context.Context) (<-chan RawPost, error)
	Name() string
}
