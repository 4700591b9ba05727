package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// WebSocket Feed — real-time message ingestion over a generic JSON frame
// transport. A relay bridge (Telegram bot, Discord gateway proxy, scraper)
// publishes frames; the feed stays connected, reconnecting with backoff.
// ---------------------------------------------------------------------------

// WSFeedConfig configures the websocket feed.
type WSFeedConfig struct {
	Endpoint         string   `yaml:"endpoint"`
	Channels         []string `yaml:"channels"` // optional channel filter sent on connect
	ReconnectDelayMs int      `yaml:"reconnect_delay_ms"`
	PingIntervalS    int      `yaml:"ping_interval_s"`
	MaxReconnects    int      `yaml:"max_reconnects"` // 0 = unlimited
	Buffer           int      `yaml:"buffer"`
}

// DefaultWSFeedConfig returns defaults for a local relay bridge.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		Endpoint:         "ws://127.0.0.1:8090/stream",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0,
		Buffer:           256,
	}
}

// wireFrame is the JSON frame the bridge publishes per message.
type wireFrame struct {
	Platform  string `json:"platform"`
	Channel   string `json:"channel"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// WSFeed ingests posts from a websocket bridge.
type WSFeed struct {
	config WSFeedConfig

	mu   sync.RWMutex
	conn *websocket.Conn

	posts  chan RawPost
	closed atomic.Bool // tracks if posts is closed

	messagesRecv atomic.Int64
	postsEmitted atomic.Int64
	dropped      atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

var _ Source = (*WSFeed)(nil)

// NewWSFeed creates a websocket feed.
func NewWSFeed(config WSFeedConfig) *WSFeed {
	if config.Buffer <= 0 {
		config.Buffer = 256
	}
	return &WSFeed{
		config: config,
		posts:  make(chan RawPost, config.Buffer),
	}
}

// Name returns the source name.
func (f *WSFeed) Name() string { return "ws" }

// Start begins ingesting and returns the post channel. Reconnection runs in
// the background until ctx is cancelled, at which point the channel closes.
func (f *WSFeed) Start(ctx context.Context) (<-chan RawPost, error) {
	go f.runLoop(ctx)
	return f.posts, nil
}

func (f *WSFeed) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("feed: runLoop panic recovered")
		}
		// Write lock synchronizes with handleFrame's channel send.
		f.mu.Lock()
		if f.closed.CompareAndSwap(false, true) {
			close(f.posts)
		}
		f.mu.Unlock()
	}()

	reconnectDelay := time.Duration(f.config.ReconnectDelayMs) * time.Millisecond
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			f.disconnect()
			return
		default:
		}

		if f.config.MaxReconnects > 0 && reconnectCount >= f.config.MaxReconnects {
			log.Error().Int("max", f.config.MaxReconnects).Msg("feed: max reconnects reached, cooling down")
			select {
			case <-time.After(60 * time.Second):
				reconnectCount = 0
				continue
			case <-ctx.Done():
				f.disconnect()
				return
			}
		}

		if err := f.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("feed: connection failed")
			reconnectCount++
			f.reconnects.Add(1)

			maxDelay := 30 * time.Second
			if reconnectDelay > maxDelay {
				reconnectDelay = maxDelay
			}
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay = reconnectDelay * 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = time.Duration(f.config.ReconnectDelayMs) * time.Millisecond

		if err := f.subscribe(); err != nil {
			log.Warn().Err(err).Msg("feed: subscribe failed")
		}

		f.readLoop(ctx)
	}
}

func (f *WSFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.config.Endpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.connected.Store(true)

	log.Info().Str("endpoint", f.config.Endpoint).Msg("feed: connected")
	return nil
}

func (f *WSFeed) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected.Store(false)
}

// subscribe announces the channel filter to the bridge. An empty filter
// means the bridge streams everything.
func (f *WSFeed) subscribe() error {
	if len(f.config.Channels) == 0 {
		return nil
	}

	req := map[string]any{
		"op":       "subscribe",
		"channels": f.config.Channels,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed: not connected")
	}
	if err := f.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("feed: write subscribe: %w", err)
	}

	log.Info().Strs("channels", f.config.Channels).Msg("feed: channel filter sent")
	return nil
}

func (f *WSFeed) readLoop(ctx context.Context) {
	pingInterval := time.Duration(f.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("feed: ping failed")
					return
				}
			}
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("feed: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("feed: read error, reconnecting")
			}
			f.connected.Store(false)
			return
		}

		f.messagesRecv.Add(1)
		f.handleFrame(message)
	}
}

func (f *WSFeed) handleFrame(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("feed: handleFrame panic recovered")
		}
	}()

	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Debug().Err(err).Msg("feed: unparseable frame skipped")
		return
	}
	if frame.Text == "" {
		return
	}

	post := RawPost{
		Platform:   frame.Platform,
		Channel:    frame.Channel,
		MessageID:  frame.MessageID,
		Text:       frame.Text,
		ReceivedAt: time.Now().UTC(),
	}

	// Mutex synchronizes the send with runLoop's close; the atomic check
	// alone is racy.
	f.mu.RLock()
	if !f.closed.Load() {
		select {
		case f.posts <- post:
			f.postsEmitted.Add(1)
		default:
			f.dropped.Add(1)
			log.Warn().Msg("feed: post channel full, dropping message")
		}
	}
	f.mu.RUnlock()
}

// WSFeedStats is a point-in-time counter snapshot.
type WSFeedStats struct {
	Connected    bool  `json:"connected"`
	MessagesRecv int64 `json:"messages_recv"`
	PostsEmitted int64 `json:"posts_emitted"`
	Dropped      int64 `json:"dropped"`
	Reconnects   int64 `json:"reconnects"`
}

// Stats returns ingestion counters.
func (f *WSFeed) Stats() WSFeedStats {
	return WSFeedStats{
		Connected:    f.connected.Load(),
		MessagesRecv: f.messagesRecv.Load(),
		PostsEmitted: f.postsEmitted.Load(),
		Dropped:      f.dropped.Load(),
		Reconnects:   f.reconnects.Load(),
	}
}
