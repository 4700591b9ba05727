package hype

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Hype Signal Detector — scores raw chatter, extracts contract addresses,
// deduplicates by message id, and keeps a rolling 24h window of signals
// with per-token aggregate metrics.
// ---------------------------------------------------------------------------

// Maximum runes of raw text retained on a Signal.
const maxSignalText = 500

// Signal is one scored message that cleared the emission gate.
// Immutable once created.
type Signal struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	Channel   string    `json:"channel"`
	Text      string    `json:"text"`
	Address   string    `json:"address,omitempty"`
	Chain     string    `json:"chain,omitempty"`
	HypeScore float64   `json:"hype_score"`
	CreatedAt time.Time `json:"created_at"`
}

// tokenMetrics is the internal mutable aggregate for one address.
type tokenMetrics struct {
	messageCount int
	totalHype    float64
	firstSeen    time.Time
	lastSeen     time.Time
	sources      map[string]struct{} // "platform:channel"
}

// TokenMetrics is the exported snapshot of per-token aggregates.
type TokenMetrics struct {
	Address        string    `json:"address"`
	MessageCount   int       `json:"message_count"`
	TotalHype      float64   `json:"total_hype"`
	AvgHype        float64   `json:"avg_hype"`
	VelocityPerMin float64   `json:"velocity_per_min"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	Sources        []string  `json:"sources"`
}

// DetectorConfig configures the signal detector.
type DetectorConfig struct {
	MinHypeScore float64       `yaml:"min_hype_score"` // emission floor for address-less chatter
	Window       time.Duration `yaml:"window"`         // rolling retention for signals/metrics/ids
	MaxWindow    int           `yaml:"max_window"`     // hard cap on buffered signals
}

// DefaultDetectorConfig returns production defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinHypeScore: 70,
		Window:       24 * time.Hour,
		MaxWindow:    5000,
	}
}

// Detector turns raw chatter into hype signals.
type Detector struct {
	config  DetectorConfig
	lexicon []KeywordWeight

	mu      sync.RWMutex
	signals []Signal                 // rolling window, oldest first
	metrics map[string]*tokenMetrics // address → aggregates
	seenIDs map[string]time.Time     // message id → first seen

	// Stats.
	messagesProcessed atomic.Int64
	signalsEmitted    atomic.Int64
	addressesFound    atomic.Int64
	duplicatesDropped atomic.Int64
}

// NewDetector creates a detector with the given config and lexicon.
// A nil lexicon falls back to DefaultLexicon.
func NewDetector(config DetectorConfig, lexicon []KeywordWeight) *Detector {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Detector{
		config:  config,
		lexicon: lexicon,
		signals: make([]Signal, 0, 1000),
		metrics: make(map[string]*tokenMetrics),
		seenIDs: make(map[string]time.Time),
	}
}

// Extract scores one raw message and returns the emitted Signal, or nil
// when the message is empty, a duplicate, or clears neither the address
// nor the hype gate. Malformed input degrades to nil, never panics.
func (d *Detector) Extract(text, platform, channel, messageID string) *Signal {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	d.messagesProcessed.Add(1)

	if messageID == "" {
		messageID = deriveMessageID(platform, channel, text)
	}

	now := time.Now()

	d.mu.Lock()
	if _, dup := d.seenIDs[messageID]; dup {
		d.mu.Unlock()
		d.duplicatesDropped.Add(1)
		return nil
	}
	d.seenIDs[messageID] = now
	d.mu.Unlock()

	score := d.Score(text)
	addr, chain := extractAddress(text)

	if addr == "" && score < d.config.MinHypeScore {
		return nil
	}

	runes := []rune(text)
	if len(runes) > maxSignalText {
		text = string(runes[:maxSignalText])
	}

	sig := Signal{
		ID:        messageID,
		Platform:  platform,
		Channel:   channel,
		Text:      text,
		Address:   addr,
		Chain:     chain,
		HypeScore: score,
		CreatedAt: now,
	}

	d.mu.Lock()
	if addr != "" {
		d.recordMetricsLocked(sig)
	}
	if len(d.signals) >= d.config.MaxWindow {
		d.signals = d.signals[1:]
	}
	d.signals = append(d.signals, sig)
	d.mu.Unlock()

	d.signalsEmitted.Add(1)
	if addr != "" {
		d.addressesFound.Add(1)
		log.Debug().
			Str("address", shortAddr(addr)).
			Str("chain", chain).
			Float64("hype", score).
			Str("source", platform+":"+channel).
			Msg("hype: signal with address")
	}

	return &sig
}

// Score computes the hype score for a text without any side effects.
func (d *Detector) Score(text string) float64 {
	lowered := strings.ToLower(text)
	score := keywordScore(lowered, d.lexicon)
	score += exclamationBonus(text)
	score += emojiBonus(text)
	score += capsBonus(text)
	return score
}

// recordMetricsLocked updates or creates the address's aggregates.
// Caller holds d.mu.
func (d *Detector) recordMetricsLocked(sig Signal) {
	m, ok := d.metrics[sig.Address]
	if !ok {
		m = &tokenMetrics{
			firstSeen: sig.CreatedAt,
			sources:   make(map[string]struct{}),
		}
		d.metrics[sig.Address] = m
	}
	m.messageCount++
	m.totalHype += sig.HypeScore
	m.lastSeen = sig.CreatedAt
	m.sources[sig.Platform+":"+sig.Channel] = struct{}{}
}

// TopSignals returns up to n signals ordered by hype score descending,
// ties broken by recency.
func (d *Detector) TopSignals(n int) []Signal {
	d.mu.RLock()
	out := make([]Signal, len(d.signals))
	copy(out, d.signals)
	d.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HypeScore != out[j].HypeScore {
			return out[i].HypeScore > out[j].HypeScore
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Metrics returns a snapshot of the aggregates for one address, or nil
// when the address has never been seen.
func (d *Detector) Metrics(address string) *TokenMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.metrics[address]
	if !ok {
		return nil
	}
	return m.snapshot(address, time.Now())
}

// snapshot builds the exported view. Caller holds at least a read lock.
func (m *tokenMetrics) snapshot(address string, now time.Time) *TokenMetrics {
	sources := make([]string, 0, len(m.sources))
	for s := range m.sources {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	avg := 0.0
	if m.messageCount > 0 {
		avg = m.totalHype / float64(m.messageCount)
	}
	velocity := 0.0
	if mins := now.Sub(m.firstSeen).Minutes(); mins > 0 {
		velocity = float64(m.messageCount) / mins
	}

	return &TokenMetrics{
		Address:        address,
		MessageCount:   m.messageCount,
		TotalHype:      m.totalHype,
		AvgHype:        avg,
		VelocityPerMin: velocity,
		FirstSeen:      m.firstSeen,
		LastSeen:       m.lastSeen,
		Sources:        sources,
	}
}

// Prune drops signals, metrics and seen ids older than the rolling window.
// Call on a fixed cadence.
func (d *Detector) Prune(now time.Time) {
	cutoff := now.Add(-d.config.Window)

	d.mu.Lock()
	defer d.mu.Unlock()

	// Signals are appended in time order; find the first survivor.
	idx := 0
	for idx < len(d.signals) && d.signals[idx].CreatedAt.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		d.signals = append(d.signals[:0], d.signals[idx:]...)
	}

	for addr, m := range d.metrics {
		if m.lastSeen.Before(cutoff) {
			delete(d.metrics, addr)
		}
	}
	for id, seen := range d.seenIDs {
		if seen.Before(cutoff) {
			delete(d.seenIDs, id)
		}
	}

	log.Debug().
		Int("signals", len(d.signals)).
		Int("tokens", len(d.metrics)).
		Msg("hype: window pruned")
}

// DetectorStats is a point-in-time view of detector counters.
type DetectorStats struct {
	MessagesProcessed int64 `json:"messages_processed"`
	SignalsEmitted    int64 `json:"signals_emitted"`
	AddressesFound    int64 `json:"addresses_found"`
	DuplicatesDropped int64 `json:"duplicates_dropped"`
	WindowSize        int   `json:"window_size"`
	TrackedTokens     int   `json:"tracked_tokens"`
}

// Stats returns detector statistics.
func (d *Detector) Stats() DetectorStats {
	d.mu.RLock()
	window := len(d.signals)
	tokens := len(d.metrics)
	d.mu.RUnlock()

	return DetectorStats{
		MessagesProcessed: d.messagesProcessed.Load(),
		SignalsEmitted:    d.signalsEmitted.Load(),
		AddressesFound:    d.addressesFound.Load(),
		DuplicatesDropped: d.duplicatesDropped.Load(),
		WindowSize:        window,
		TrackedTokens:     tokens,
	}
}

// deriveMessageID builds a stable id for ingest collaborators that do not
// supply one, so replays of the same post still dedup.
func deriveMessageID(platform, channel, text string) string {
	h := fnv.New64a()
	h.Write([]byte(platform))
	h.Write([]byte{0})
	h.Write([]byte(channel))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return fmt.Sprintf("drv-%016x", h.Sum64())
}

func shortAddr(addr string) string {
	if len(addr) > 12 {
		return addr[:12]
	}
	return addr
}
