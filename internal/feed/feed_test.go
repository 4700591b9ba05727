package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSFeed_HandleFrame_EmitsPost(t *testing.T) {
	f := NewWSFeed(DefaultWSFeedConfig())

	f.handleFrame([]byte(`{"platform":"telegram","channel":"alpha-calls","message_id":"m1","text":"stealth launch!"}`))

	select {
	case post := <-f.posts:
		assert.Equal(t, "telegram", post.Platform)
		assert.Equal(t, "alpha-calls", post.Channel)
		assert.Equal(t, "m1", post.MessageID)
		assert.Equal(t, "stealth launch!", post.Text)
		assert.False(t, post.ReceivedAt.IsZero())
	default:
		t.Fatal("expected a post on the channel")
	}

	assert.Equal(t, int64(1), f.Stats().PostsEmitted)
}

func TestWSFeed_HandleFrame_SkipsEmptyText(t *testing.T) {
	f := NewWSFeed(DefaultWSFeedConfig())

	f.handleFrame([]byte(`{"platform":"telegram","channel":"c","text":""}`))

	assert.Empty(t, f.posts)
	assert.Equal(t, int64(0), f.Stats().PostsEmitted)
}

func TestWSFeed_HandleFrame_SkipsGarbage(t *testing.T) {
	f := NewWSFeed(DefaultWSFeedConfig())

	f.handleFrame([]byte(`not json at all`))

	assert.Empty(t, f.posts)
}

func TestWSFeed_HandleFrame_DropsWhenFull(t *testing.T) {
	cfg := DefaultWSFeedConfig()
	cfg.Buffer = 1
	f := NewWSFeed(cfg)

	f.handleFrame([]byte(`{"platform":"p","channel":"c","text":"first"}`))
	f.handleFrame([]byte(`{"platform":"p","channel":"c","text":"second"}`))

	stats := f.Stats()
	assert.Equal(t, int64(1), stats.PostsEmitted)
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestWSFeedConfig_Defaults(t *testing.T) {
	cfg := DefaultWSFeedConfig()

	assert.NotEmpty(t, cfg.Endpoint)
	assert.Equal(t, 1000, cfg.ReconnectDelayMs)
	assert.Equal(t, 30, cfg.PingIntervalS)
	assert.Equal(t, 0, cfg.MaxReconnects) // 0 = unlimited reconnects
	assert.Equal(t, 256, cfg.Buffer)
}

func TestSimFeed_EmitsOnInterval(t *testing.T) {
	f := NewSimFeed(SimFeedConfig{IntervalMs: 5, Buffer: 8, Seed: 42})

	ctx, cancel := context.WithCancel(context.Background())
	posts, err := f.Start(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		select {
		case post := <-posts:
			assert.NotEmpty(t, post.Platform)
			assert.NotEmpty(t, post.Channel)
			assert.NotEmpty(t, post.MessageID)
			assert.NotEmpty(t, post.Text)
		case <-time.After(time.Second):
			t.Fatal("sim feed did not emit in time")
		}
	}
	assert.GreaterOrEqual(t, f.Stats().PostsEmitted, int64(3))

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-posts:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("post channel did not close on cancel")
		}
	}
}

func TestSimFeed_AddressShapes(t *testing.T) {
	f := NewSimFeed(SimFeedConfig{Seed: 7})

	sawEVM, sawSolana := false, false
	for i := 0; i < 50; i++ {
		addr := f.randomAddress()
		if strings.HasPrefix(addr, "0x") {
			sawEVM = true
			assert.Len(t, addr, 42)
			continue
		}
		sawSolana = true
		raw, err := base58.Decode(addr)
		require.NoError(t, err)
		assert.Len(t, raw, 32)
	}
	assert.True(t, sawEVM, "expected at least one EVM style address")
	assert.True(t, sawSolana, "expected at least one base58 address")
}

func TestSimFeed_HotPostsCarryAddress(t *testing.T) {
	f := NewSimFeed(SimFeedConfig{Seed: 1})

	withAddr := 0
	for i := 0; i < 50; i++ {
		post := f.nextPost()
		require.NotEmpty(t, post.Text)
		lower := strings.ToLower(post.Text)
		if strings.Contains(lower, "ca: ") || strings.Contains(lower, "contract: ") {
			withAddr++
		}
	}
	assert.Greater(t, withAddr, 0, "expected some posts to carry a contract address")
}
