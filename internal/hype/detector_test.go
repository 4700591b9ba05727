package hype

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEVMAddr = "0x1234567890abcdef1234567890abcdef12345678"
	// Wrapped SOL mint: a known-good 32-byte base58 key.
	testSolAddr = "So11111111111111111111111111111111111111112"
)

func newTestDetector() *Detector {
	return NewDetector(DefaultDetectorConfig(), nil)
}

func TestExtract_NoAddressLowHype_ReturnsNil(t *testing.T) {
	d := newTestDetector()

	sig := d.Extract("nothing interesting here", "telegram", "chat", "m1")

	assert.Nil(t, sig)
}

func TestExtract_EmptyText_ReturnsNil(t *testing.T) {
	d := newTestDetector()

	assert.Nil(t, d.Extract("", "telegram", "chat", "m1"))
	assert.Nil(t, d.Extract("   \n\t ", "telegram", "chat", "m2"))
}

func TestExtract_AddressAlone_Emits(t *testing.T) {
	d := newTestDetector()

	sig := d.Extract("quiet drop "+testEVMAddr, "telegram", "alpha-calls", "m1")

	require.NotNil(t, sig)
	assert.Equal(t, testEVMAddr, sig.Address)
	assert.Equal(t, ChainEthereum, sig.Chain)
	assert.Equal(t, "telegram", sig.Platform)
	assert.Equal(t, "alpha-calls", sig.Channel)
}

func TestExtract_HighHypeNoAddress_Emits(t *testing.T) {
	d := newTestDetector()

	// Stacked keywords clear the default floor of 70 without an address:
	// stealth launch 15 + launch 10 + presale 10 + fair launch 12 +
	// moon 8 + gem 7 + alpha 9 + call 8 = 79.
	text := "stealth launch presale fair launch moon gem alpha call"
	require.GreaterOrEqual(t, d.Score(text), 70.0)

	sig := d.Extract(text, "discord", "general", "m1")

	require.NotNil(t, sig)
	assert.Empty(t, sig.Address)
	assert.Empty(t, sig.Chain)
}

func TestKeywordScore(t *testing.T) {
	lex := DefaultLexicon()

	tests := []struct {
		name     string
		text     string
		expected float64
	}{
		{"single keyword", "launch", 10},
		{"phrase plus contained keyword", "stealth launch soon", 25},
		{"no keywords", "good morning frens", 0},
		{"contract tag", "ca: here", 15},
		{"bullish only", "looking bullish", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, keywordScore(tt.text, lex))
		})
	}
}

func TestScore_MonotoneInKeywords(t *testing.T) {
	d := newTestDetector()

	base := d.Score("launch")
	more := d.Score("launch moon")
	most := d.Score("launch moon gem")

	assert.Less(t, base, more)
	assert.Less(t, more, most)
}

func TestBonus_ExclamationsCapped(t *testing.T) {
	assert.Equal(t, 2.0, exclamationBonus("hot!"))
	assert.Equal(t, 10.0, exclamationBonus("hot!!!!!"))
	// Repetition cannot push past the cap.
	assert.Equal(t, 10.0, exclamationBonus(strings.Repeat("!", 100)))
}

func TestBonus_EmojiCapped(t *testing.T) {
	assert.Equal(t, 2.0, emojiBonus("🚀🚀"))
	assert.Equal(t, 5.0, emojiBonus(strings.Repeat("🚀", 40)))
	assert.Equal(t, 0.0, emojiBonus("plain ascii"))
}

func TestBonus_CapsCapped(t *testing.T) {
	assert.Equal(t, 3.0, capsBonus("BUY this dip"))
	// Two-rune words and digit-only words never count.
	assert.Equal(t, 0.0, capsBonus("GO UP 123"))
	assert.Equal(t, 15.0, capsBonus("HUGE MASSIVE PUMP INCOMING TODAY FRENS"))
}

func TestExtract_EVMTakesPriorityOverBase58(t *testing.T) {
	d := newTestDetector()

	sig := d.Extract("two chains "+testSolAddr+" and "+testEVMAddr, "x", "feed", "m1")

	require.NotNil(t, sig)
	assert.Equal(t, testEVMAddr, sig.Address)
	assert.Equal(t, ChainEthereum, sig.Chain)
}

func TestExtract_ValidBase58(t *testing.T) {
	d := newTestDetector()

	sig := d.Extract("sol gem "+testSolAddr, "x", "feed", "m1")

	require.NotNil(t, sig)
	assert.Equal(t, testSolAddr, sig.Address)
	assert.Equal(t, ChainSolana, sig.Chain)
}

func TestExtract_RejectsNonKeyBase58(t *testing.T) {
	// 33 ones decode to 33 zero bytes, not a 32-byte key.
	junk := strings.Repeat("1", 33)
	addr, chain := extractAddress("look at " + junk)

	assert.Empty(t, addr)
	assert.Empty(t, chain)
}

func TestExtract_DuplicateID_Dropped(t *testing.T) {
	d := newTestDetector()

	first := d.Extract("gem "+testEVMAddr, "telegram", "chat", "same-id")
	second := d.Extract("gem "+testEVMAddr, "telegram", "chat", "same-id")

	require.NotNil(t, first)
	assert.Nil(t, second)
	assert.Equal(t, int64(1), d.Stats().DuplicatesDropped)
}

func TestExtract_DerivedID_DedupsReplays(t *testing.T) {
	d := newTestDetector()

	first := d.Extract("gem "+testEVMAddr, "telegram", "chat", "")
	second := d.Extract("gem "+testEVMAddr, "telegram", "chat", "")

	require.NotNil(t, first)
	assert.Nil(t, second)
}

func TestExtract_TruncatesLongText(t *testing.T) {
	d := newTestDetector()

	long := testEVMAddr + " " + strings.Repeat("x", 600)
	sig := d.Extract(long, "telegram", "chat", "m1")

	require.NotNil(t, sig)
	assert.Equal(t, maxSignalText, len([]rune(sig.Text)))
}

func TestTopSignals_OrderAndLimit(t *testing.T) {
	d := newTestDetector()

	d.Extract("entry "+testEVMAddr, "t", "c", "low")                          // 6 + 0x(10) = low score
	d.Extract("stealth launch presale 1000x gem alpha "+testEVMAddr, "t", "c", "high")
	d.Extract("moon pump "+testEVMAddr, "t", "c", "mid")

	top := d.TopSignals(2)

	require.Len(t, top, 2)
	assert.Equal(t, "high", top[0].ID)
	assert.Equal(t, "mid", top[1].ID)
	assert.GreaterOrEqual(t, top[0].HypeScore, top[1].HypeScore)
}

func TestTopSignals_TieBrokenByRecency(t *testing.T) {
	d := newTestDetector()

	d.Extract("gem "+testEVMAddr, "t", "c", "older")
	time.Sleep(5 * time.Millisecond)
	d.Extract("gem "+testEVMAddr+" ok", "t", "c", "newer")

	top := d.TopSignals(2)

	require.Len(t, top, 2)
	assert.Equal(t, top[0].HypeScore, top[1].HypeScore)
	assert.Equal(t, "newer", top[0].ID)
}

func TestMetrics_Aggregates(t *testing.T) {
	d := newTestDetector()

	first := d.Extract("gem "+testEVMAddr, "telegram", "alpha", "m1")
	second := d.Extract("moon pump launch "+testEVMAddr, "discord", "calls", "m2")
	require.NotNil(t, first)
	require.NotNil(t, second)

	m := d.Metrics(testEVMAddr)
	require.NotNil(t, m)

	assert.Equal(t, 2, m.MessageCount)
	assert.Equal(t, first.HypeScore+second.HypeScore, m.TotalHype)
	assert.Equal(t, (first.HypeScore+second.HypeScore)/2, m.AvgHype)
	assert.Equal(t, []string{"discord:calls", "telegram:alpha"}, m.Sources)
	assert.False(t, m.LastSeen.Before(m.FirstSeen))
}

func TestMetrics_UnknownAddress(t *testing.T) {
	d := newTestDetector()
	assert.Nil(t, d.Metrics("0xdeadbeef"))
}

func TestPrune_DropsAgedEntries(t *testing.T) {
	d := newTestDetector()

	sig := d.Extract("gem "+testEVMAddr, "t", "c", "fresh")
	require.NotNil(t, sig)

	// Plant an aged signal, metric and id directly.
	old := time.Now().Add(-25 * time.Hour)
	d.mu.Lock()
	d.signals = append([]Signal{{ID: "aged", Address: "0xaged", CreatedAt: old}}, d.signals...)
	d.metrics["0xaged"] = &tokenMetrics{messageCount: 1, firstSeen: old, lastSeen: old, sources: map[string]struct{}{}}
	d.seenIDs["aged"] = old
	d.mu.Unlock()

	d.Prune(time.Now())

	d.mu.RLock()
	defer d.mu.RUnlock()
	require.Len(t, d.signals, 1)
	assert.Equal(t, "fresh", d.signals[0].ID)
	assert.Nil(t, d.metrics["0xaged"])
	assert.NotNil(t, d.metrics[testEVMAddr])
	_, agedSeen := d.seenIDs["aged"]
	assert.False(t, agedSeen)
}

func TestExtract_WindowCap(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.MaxWindow = 3
	d := NewDetector(cfg, nil)

	for i := 0; i < 5; i++ {
		sig := d.Extract("gem "+testEVMAddr+" msg", "t", "c", string(rune('a'+i)))
		require.NotNil(t, sig)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	assert.LessOrEqual(t, len(d.signals), 3)
}

func TestStats(t *testing.T) {
	d := newTestDetector()

	d.Extract("gem "+testEVMAddr, "t", "c", "m1")
	d.Extract("nothing to see", "t", "c", "m2")

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.MessagesProcessed)
	assert.Equal(t, int64(1), stats.SignalsEmitted)
	assert.Equal(t, int64(1), stats.AddressesFound)
	assert.Equal(t, 1, stats.WindowSize)
	assert.Equal(t, 1, stats.TrackedTokens)
}
