package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Sim Feed — synthetic message source for dry runs. Emits plausible shill
// posts on a timer: a mix of high-hype launches carrying contract addresses
// and low-value chatter, so the whole pipeline exercises without any
// upstream connectivity.
// ---------------------------------------------------------------------------

// SimFeedConfig configures the synthetic feed.
type SimFeedConfig struct {
	IntervalMs int   `yaml:"interval_ms"`
	Buffer     int   `yaml:"buffer"`
	Seed       int64 `yaml:"seed"` // 0 = seed from the clock
}

// DefaultSimFeedConfig returns dry-run defaults.
func DefaultSimFeedConfig() SimFeedConfig {
	return SimFeedConfig{
		IntervalMs: 3000,
		Buffer:     64,
	}
}

// simTemplate is one post shape. Hot templates carry an address placeholder
// and enough hype vocabulary to clear the signal floor.
type simTemplate struct {
	text     string
	withAddr bool
}

var simTemplates = []simTemplate{
	{text: "🚀🚀 STEALTH LAUNCH $%s just went live!! 100x gem, dev is based. CA: %s", withAddr: true},
	{text: "alpha call: $%s presale filling fast, MOON mission loading 🚀 contract: %s", withAddr: true},
	{text: "$%s fair launch NOW! early entry = 1000x, buy now!! ca: %s", withAddr: true},
	{text: "degen play of the day: $%s. LP locked, pump incoming!! %s", withAddr: true},
	{text: "$%s looking bullish on the 5m, decent entry here"},
	{text: "anyone else watching $%s? volume picking up"},
	{text: "gm legends, is $%s the play today or nah"},
}

var simSymbols = []string{
	"PEPE2", "WOJAK", "MOONCAT", "TURBO", "GIGA", "SNIPE", "KEK", "FLOKI3",
}

var simChannels = []struct {
	platform string
	channel  string
}{
	{"telegram", "alpha-calls"},
	{"telegram", "degen-lounge"},
	{"discord", "gem-spotters"},
	{"twitter", "ct-feed"},
}

// SimFeed generates synthetic posts.
type SimFeed struct {
	config SimFeedConfig
	rng    *rand.Rand
	posts  chan RawPost

	emitted atomic.Int64
}

var _ Source = (*SimFeed)(nil)

// NewSimFeed creates a synthetic feed. A non-zero seed fixes the post
// sequence for reproducible runs.
func NewSimFeed(config SimFeedConfig) *SimFeed {
	if config.IntervalMs <= 0 {
		config.IntervalMs = 3000
	}
	if config.Buffer <= 0 {
		config.Buffer = 64
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimFeed{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		posts:  make(chan RawPost, config.Buffer),
	}
}

// Name returns the source name.
func (f *SimFeed) Name() string { return "sim" }

// Start begins emitting posts on the configured interval. The channel
// closes when ctx is cancelled.
func (f *SimFeed) Start(ctx context.Context) (<-chan RawPost, error) {
	go f.run(ctx)
	log.Info().Int("interval_ms", f.config.IntervalMs).Msg("feed: sim source started")
	return f.posts, nil
}

func (f *SimFeed) run(ctx context.Context) {
	defer close(f.posts)

	ticker := time.NewTicker(time.Duration(f.config.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			post := f.nextPost()
			select {
			case f.posts <- post:
				f.emitted.Add(1)
			case <-ctx.Done():
				return
			}
		}
	}
}

// nextPost rolls one synthetic post. Only the run goroutine touches rng
// after Start.
func (f *SimFeed) nextPost() RawPost {
	tpl := simTemplates[f.rng.Intn(len(simTemplates))]
	sym := simSymbols[f.rng.Intn(len(simSymbols))]
	src := simChannels[f.rng.Intn(len(simChannels))]

	var text string
	if tpl.withAddr {
		text = fmt.Sprintf(tpl.text, sym, f.randomAddress())
	} else {
		text = fmt.Sprintf(tpl.text, sym)
	}

	return RawPost{
		Platform:   src.platform,
		Channel:    src.channel,
		MessageID:  uuid.New().String()[:12],
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
}

// randomAddress rolls an EVM or Solana style address, half and half.
func (f *SimFeed) randomAddress() string {
	if f.rng.Intn(2) == 0 {
		const hexDigits = "0123456789abcdef"
		b := make([]byte, 40)
		for i := range b {
			b[i] = hexDigits[f.rng.Intn(len(hexDigits))]
		}
		return "0x" + string(b)
	}
	raw := make([]byte, 32)
	f.rng.Read(raw)
	return base58.Encode(raw)
}

// SimFeedStats is a point-in-time counter snapshot.
type SimFeedStats struct {
	PostsEmitted int64 `json:"posts_emitted"`
}

// Stats returns emission counters.
func (f *SimFeed) Stats() SimFeedStats {
	return SimFeedStats{PostsEmitted: f.emitted.Load()}
}
