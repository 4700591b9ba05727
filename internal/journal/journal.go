package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Journal — append-only JSONL record of every pipeline decision: detected
// signals, audit verdicts, opened and closed trades, refused trades, plus
// periodic status snapshots. Keeps a bounded in-memory buffer for queries
// alongside the file sink.
// ---------------------------------------------------------------------------

const (
	EventSignal     = "signal"
	EventAudit      = "audit"
	EventTradeOpen  = "trade_open"
	EventTradeClose = "trade_close"
	EventRefusal    = "refusal"
	EventStatus     = "status"
)

// Entry is a single journal record.
type Entry struct {
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"ts"`
	Address    string    `json:"address,omitempty"`
	Chain      string    `json:"chain,omitempty"`
	PositionID string    `json:"position_id,omitempty"`
	Decision   string    `json:"decision,omitempty"` // audit: safe|unsafe, refusal: deny
	Reason     string    `json:"reason,omitempty"`
	Score      float64   `json:"score,omitempty"`
	PnLPct     float64   `json:"pnl_pct,omitempty"`
	Payload    string    `json:"payload,omitempty"` // JSON of the source event
}

// Journal records pipeline events to a JSONL file and an in-memory buffer.
// A write failure is logged and dropped; journaling never stalls the
// pipeline. Thread-safe.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	entries []Entry
	maxBuf  int

	writes    atomic.Int64
	writeErrs atomic.Int64
}

// New opens (or creates) the journal file in append mode. An empty path
// disables the file sink and keeps entries in memory only. maxBuf caps the
// in-memory buffer with FIFO eviction; 0 disables buffering.
func New(path string, maxBuf int) (*Journal, error) {
	if maxBuf < 0 {
		maxBuf = 0
	}
	j := &Journal{
		entries: make([]Entry, 0, maxBuf),
		maxBuf:  maxBuf,
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open journal %s: %w", path, err)
		}
		j.file = f
		log.Info().Str("path", path).Int("buffer", maxBuf).Msg("journal: opened")
	}
	return j, nil
}

// RecordSignal logs a detected hype signal.
func (j *Journal) RecordSignal(address, chain string, hypeScore float64, payload any) {
	j.record(Entry{
		EventType: EventSignal,
		Timestamp: time.Now().UTC(),
		Address:   address,
		Chain:     chain,
		Score:     hypeScore,
		Payload:   mustMarshal(payload),
	})
}

// RecordAudit logs an audit verdict.
func (j *Journal) RecordAudit(address, chain string, safe bool, score float64, payload any) {
	decision := "unsafe"
	if safe {
		decision = "safe"
	}
	j.record(Entry{
		EventType: EventAudit,
		Timestamp: time.Now().UTC(),
		Address:   address,
		Chain:     chain,
		Decision:  decision,
		Score:     score,
		Payload:   mustMarshal(payload),
	})
}

// RecordTradeOpen logs an opened position.
func (j *Journal) RecordTradeOpen(positionID, address, chain string, payload any) {
	j.record(Entry{
		EventType:  EventTradeOpen,
		Timestamp:  time.Now().UTC(),
		Address:    address,
		Chain:      chain,
		PositionID: positionID,
		Payload:    mustMarshal(payload),
	})
}

// RecordTradeClose logs a closed position with its exit reason and P&L.
func (j *Journal) RecordTradeClose(positionID, address, reason string, pnlPct float64, payload any) {
	j.record(Entry{
		EventType:  EventTradeClose,
		Timestamp:  time.Now().UTC(),
		Address:    address,
		PositionID: positionID,
		Reason:     reason,
		PnLPct:     pnlPct,
		Payload:    mustMarshal(payload),
	})
}

// RecordStatus logs a periodic pipeline status snapshot.
func (j *Journal) RecordStatus(payload any) {
	j.record(Entry{
		EventType: EventStatus,
		Timestamp: time.Now().UTC(),
		Payload:   mustMarshal(payload),
	})
}

// RecordRefusal logs a trade the risk gates refused.
func (j *Journal) RecordRefusal(address, chain, reason string, payload any) {
	j.record(Entry{
		EventType: EventRefusal,
		Timestamp: time.Now().UTC(),
		Address:   address,
		Chain:     chain,
		Decision:  "deny",
		Reason:    reason,
		Payload:   mustMarshal(payload),
	})
}

// Query returns buffered entries of the given event type.
func (j *Journal) Query(eventType string) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	var result []Entry
	for _, e := range j.entries {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// Entries returns a copy of the in-memory buffer.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	result := make([]Entry, len(j.entries))
	copy(result, j.entries)
	return result
}

// Len returns the number of buffered entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Close flushes and closes the file sink.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *Journal) record(entry Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxBuf > 0 {
		if len(j.entries) >= j.maxBuf {
			copy(j.entries, j.entries[1:])
			j.entries[len(j.entries)-1] = entry
		} else {
			j.entries = append(j.entries, entry)
		}
	}

	if j.file == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		j.writeErrs.Add(1)
		log.Error().Err(err).Str("event_type", entry.EventType).Msg("journal: marshal failed")
		return
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		j.writeErrs.Add(1)
		log.Error().Err(err).Str("event_type", entry.EventType).Msg("journal: write failed")
		return
	}
	j.writes.Add(1)
}

// JournalStats is a point-in-time counter snapshot.
type JournalStats struct {
	Buffered  int   `json:"buffered"`
	Writes    int64 `json:"writes"`
	WriteErrs int64 `json:"write_errs"`
}

// Stats returns journal counters.
func (j *Journal) Stats() JournalStats {
	j.mu.Lock()
	buffered := len(j.entries)
	j.mu.Unlock()
	return JournalStats{
		Buffered:  buffered,
		Writes:    j.writes.Load(),
		WriteErrs: j.writeErrs.Load(),
	}
}

func mustMarshal(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("journal: payload marshal failed")
		return "{}"
	}
	return string(data)
}
