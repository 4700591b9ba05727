package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/kestrel-trading/kestrel/internal/audit"
	"github.com/kestrel-trading/kestrel/internal/hype"
	"github.com/kestrel-trading/kestrel/internal/journal"
	"github.com/kestrel-trading/kestrel/internal/notify"
	"github.com/kestrel-trading/kestrel/internal/observability"
	"github.com/kestrel-trading/kestrel/internal/sniper"
)

// ---------------------------------------------------------------------------
// Pipeline — the orchestrator. Drains the detector's top-ranked signals on
// a fixed tick, pushes each new address through audit, risk gates and the
// buy on a bounded worker pool, and reports a status summary on a slower
// tick. A processed-set keyed by (address, first-seen time) guarantees each
// signal is audited at most once. Position monitoring runs inside the
// engine, not here.
// ---------------------------------------------------------------------------

// Config holds orchestrator loop settings.
type Config struct {
	// How often the detector's top signals are drained.
	SignalInterval time.Duration

	// Signals pulled per drain.
	TopN int

	// How often the status summary is logged, journaled and notified.
	StatusInterval time.Duration

	// Processed-set ceiling; the oldest keys are evicted beyond it.
	ProcessedCap int

	// Concurrent audit-and-buy tasks.
	AuditWorkers int

	// Pause after a drain error before the next tick is honored.
	ErrorBackoff time.Duration
}

// DefaultConfig returns production loop settings.
func DefaultConfig() Config {
	return Config{
		SignalInterval: 5 * time.Second,
		TopN:           10,
		StatusInterval: 5 * time.Minute,
		ProcessedCap:   1000,
		AuditWorkers:   4,
		ErrorBackoff:   10 * time.Second,
	}
}

// Pipeline sequences detector, auditor and engine.
type Pipeline struct {
	config   Config
	detector *hype.Detector
	auditor  *audit.Auditor
	engine   *sniper.Engine
	notifier notify.Notifier
	journal  *journal.Journal
	reg      *observability.Registry

	pool *ants.Pool

	mu        sync.Mutex
	processed map[string]struct{}
	order     []string

	running atomic.Bool
	paused  atomic.Bool

	signals      atomic.Int64
	duplicates   atomic.Int64
	auditsPassed atomic.Int64
	auditsFailed atomic.Int64
	opened       atomic.Int64
	refused      atomic.Int64
}

// New builds the orchestrator over its collaborators. The notifier may be
// nil; journal and metrics are attached with setters before Run.
func New(config Config, detector *hype.Detector, auditor *audit.Auditor, engine *sniper.Engine, notifier notify.Notifier) (*Pipeline, error) {
	if config.SignalInterval <= 0 {
		config.SignalInterval = 5 * time.Second
	}
	if config.TopN <= 0 {
		config.TopN = 10
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = 5 * time.Minute
	}
	if config.ProcessedCap <= 0 {
		config.ProcessedCap = 1000
	}
	if config.AuditWorkers <= 0 {
		config.AuditWorkers = 4
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 10 * time.Second
	}

	pool, err := ants.NewPool(config.AuditWorkers)
	if err != nil {
		return nil, fmt.Errorf("audit worker pool: %w", err)
	}

	return &Pipeline{
		config:    config,
		detector:  detector,
		auditor:   auditor,
		engine:    engine,
		notifier:  notifier,
		pool:      pool,
		processed: make(map[string]struct{}),
	}, nil
}

// SetJournal attaches the trade journal. Set before Run.
func (p *Pipeline) SetJournal(j *journal.Journal) {
	p.journal = j
}

// SetMetrics attaches the metric registry. Set before Run; without one the
// pipeline records no metrics.
func (p *Pipeline) SetMetrics(reg *observability.Registry) {
	p.reg = reg
}

// Run starts the signal and status loops and blocks until ctx is cancelled.
// The worker pool is drained on exit, so in-flight audit and buy tasks
// complete before Run returns. Run is one-shot; the engine's monitor loop
// is started separately by the caller.
func (p *Pipeline) Run(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		log.Warn().Msg("pipeline: already running")
		return
	}
	defer p.running.Store(false)
	defer func() {
		_ = p.pool.ReleaseTimeout(5 * time.Second)
	}()

	log.Info().
		Dur("signal_interval", p.config.SignalInterval).
		Int("top_n", p.config.TopN).
		Int("audit_workers", p.config.AuditWorkers).
		Dur("status_interval", p.config.StatusInterval).
		Msg("pipeline: started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.signalLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.statusLoop(ctx)
	}()
	wg.Wait()

	log.Info().Msg("pipeline: stopped")
}

// signalLoop drains the detector window on every tick. Drain errors log
// and back off rather than terminate the loop.
func (p *Pipeline) signalLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.SignalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.paused.Load() {
				continue
			}
			if err := p.drain(ctx); err != nil {
				log.Error().Err(err).Msg("pipeline: signal drain failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.config.ErrorBackoff):
				}
			}
		}
	}
}

// drain pulls the current top signals and submits each unseen one to the
// worker pool. The processed-set is marked before submission so a replay
// of the same signal can never reach the auditor twice.
func (p *Pipeline) drain(ctx context.Context) error {
	start := time.Now()

	for _, sig := range p.detector.TopSignals(p.config.TopN) {
		if sig.Address == "" {
			continue
		}
		if !p.markProcessed(processedKey(sig)) {
			p.duplicates.Add(1)
			continue
		}
		p.signals.Add(1)

		if err := p.pool.Submit(func() { p.processSignal(ctx, sig) }); err != nil {
			return fmt.Errorf("submit audit task: %w", err)
		}
	}

	if p.reg != nil {
		es := p.engine.Stats()
		p.metricSet(observability.MetricBalanceUSD, es.BalanceUSD)
		p.metricSet(observability.MetricOpenPositions, float64(es.OpenPositions))
		p.metricSet(observability.MetricWindowSignals, float64(p.detector.Stats().WindowSize))
		p.metricObserve(observability.MetricPipelineCycleMs, float64(time.Since(start).Milliseconds()))
	}
	return nil
}

// processSignal is the per-signal worker task: audit, gate, buy, notify.
func (p *Pipeline) processSignal(ctx context.Context, sig hype.Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("address", sig.Address).
				Msg("pipeline: signal task panic")
		}
	}()

	if p.journal != nil {
		p.journal.RecordSignal(sig.Address, sig.Chain, sig.HypeScore, sig)
	}

	auditStart := time.Now()
	report := p.auditor.Audit(ctx, sig.Address, sig.Chain)
	p.metricInc(observability.MetricAudits)
	p.metricObserve(observability.MetricAuditLatencyMs, float64(time.Since(auditStart).Milliseconds()))
	if p.journal != nil {
		p.journal.RecordAudit(sig.Address, sig.Chain, report.Safe, report.SafetyScore, report)
	}

	if !report.Safe {
		p.auditsFailed.Add(1)
		p.metricInc(observability.MetricAuditsUnsafe)
		for _, check := range report.FailedChecks() {
			log.Warn().
				Str("address", sig.Address).
				Str("chain", sig.Chain).
				Str("check", check.Name).
				Str("severity", string(check.Severity)).
				Str("detail", check.Detail).
				Msg("pipeline: audit check failed")
		}
		log.Info().
			Str("address", sig.Address).
			Str("chain", sig.Chain).
			Float64("score", report.SafetyScore).
			Msg("pipeline: signal dropped, token unsafe")
		return
	}
	p.auditsPassed.Add(1)

	pos, err := p.engine.Buy(ctx, sniper.BuyRequest{
		Address:     sig.Address,
		Chain:       sig.Chain,
		Symbol:      report.TokenSymbol,
		HypeScore:   sig.HypeScore,
		SafetyScore: report.SafetyScore,
	})
	if err != nil {
		var refusal *sniper.RefusedError
		if errors.As(err, &refusal) {
			p.refused.Add(1)
			p.metricInc(observability.MetricTradesRefused)
			if p.journal != nil {
				p.journal.RecordRefusal(sig.Address, sig.Chain, strings.Join(refusal.Reasons, "; "), sig)
			}
			log.Info().
				Str("address", sig.Address).
				Strs("reasons", refusal.Reasons).
				Msg("pipeline: buy refused")
			return
		}
		log.Error().Err(err).Str("address", sig.Address).Msg("pipeline: buy failed")
		return
	}

	p.opened.Add(1)
	p.metricInc(observability.MetricTradesOpened)
	if p.journal != nil {
		p.journal.RecordTradeOpen(pos.ID, pos.Address, pos.Chain, pos)
	}
	p.notify(ctx, fmt.Sprintf("BUY %s %s | hype %.0f | safety %.0f | entry %s | cost $%s",
		pos.Chain, pos.Address, sig.HypeScore, report.SafetyScore,
		pos.EntryPrice.String(), pos.CostUSD.StringFixed(2)))
}

// statusLoop reports the pipeline summary on a slow tick.
func (p *Pipeline) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(p.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.logStatus(ctx)
		}
	}
}

// statusSnapshot is the journal payload for one status tick.
type statusSnapshot struct {
	Pipeline PipelineStats      `json:"pipeline"`
	Engine   sniper.EngineStats `json:"engine"`
	Detector hype.DetectorStats `json:"detector"`
	Auditor  audit.AuditorStats `json:"auditor"`
}

func (p *Pipeline) logStatus(ctx context.Context) {
	ps := p.Stats()
	es := p.engine.Stats()
	ds := p.detector.Stats()

	log.Info().
		Int64("signals_detected", ds.SignalsEmitted).
		Int64("audits_passed", ps.AuditsPassed).
		Int64("trades", es.TotalTrades).
		Int("open_positions", es.OpenPositions).
		Float64("win_rate", es.WinRate).
		Float64("total_pnl_usd", es.TotalPnLUSD).
		Float64("balance_usd", es.BalanceUSD).
		Msg("pipeline: status")

	if p.journal != nil {
		p.journal.RecordStatus(statusSnapshot{
			Pipeline: ps,
			Engine:   es,
			Detector: ds,
			Auditor:  p.auditor.Stats(),
		})
	}
	p.notify(ctx, fmt.Sprintf(
		"status | signals %d | audits passed %d | trades %d | open %d | win rate %.1f%% | pnl $%.2f",
		ds.SignalsEmitted, ps.AuditsPassed, es.TotalTrades, es.OpenPositions, es.WinRate, es.TotalPnLUSD))
}

// Pause stops new signals from being processed. Open positions stay
// monitored by the engine.
func (p *Pipeline) Pause() {
	if p.paused.CompareAndSwap(false, true) {
		log.Warn().Msg("pipeline: paused")
	}
}

// Resume re-enables signal processing.
func (p *Pipeline) Resume() {
	if p.paused.CompareAndSwap(true, false) {
		log.Info().Msg("pipeline: resumed")
	}
}

// Paused reports whether signal intake is paused.
func (p *Pipeline) Paused() bool {
	return p.paused.Load()
}

// Kill pauses intake and closes every open position immediately. Returns
// the number of positions closed.
func (p *Pipeline) Kill(ctx context.Context) int {
	p.Pause()
	closed := p.engine.CloseAll(ctx, sniper.ReasonEmergency)
	log.Warn().Int("closed", closed).Msg("pipeline: kill switch fired")
	p.notify(ctx, fmt.Sprintf("KILL | intake paused | closed %d positions", closed))
	return closed
}

// markProcessed records a signal key. Returns false when the key was
// already present. The set keeps at most ProcessedCap keys, evicting the
// oldest first.
func (p *Pipeline) markProcessed(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.processed[key]; ok {
		return false
	}
	p.processed[key] = struct{}{}
	p.order = append(p.order, key)

	if excess := len(p.order) - p.config.ProcessedCap; excess > 0 {
		for _, old := range p.order[:excess] {
			delete(p.processed, old)
		}
		p.order = append(p.order[:0], p.order[excess:]...)
	}
	return true
}

// processedKey identifies one signal occurrence. The same address signaling
// again after the detector window turns over forms a new key; whether it is
// re-bought is then the audit cache's and the risk gates' decision.
func processedKey(sig hype.Signal) string {
	return sig.Address + "_" + sig.CreatedAt.UTC().Format(time.RFC3339Nano)
}

// notify sends fire-and-forget so a slow sink never blocks a worker.
func (p *Pipeline) notify(ctx context.Context, text string) {
	if p.notifier == nil {
		return
	}
	p.metricInc(observability.MetricNotifications)
	go p.notifier.Notify(ctx, text)
}

func (p *Pipeline) metricInc(name string) {
	if p.reg == nil {
		return
	}
	if c := p.reg.GetCounter(name); c != nil {
		c.Inc()
	}
}

func (p *Pipeline) metricSet(name string, v float64) {
	if p.reg == nil {
		return
	}
	if g := p.reg.GetGauge(name); g != nil {
		g.Set(v)
	}
}

func (p *Pipeline) metricObserve(name string, v float64) {
	if p.reg == nil {
		return
	}
	if h := p.reg.GetHistogram(name); h != nil {
		h.Observe(v)
	}
}

// PipelineStats is a point-in-time snapshot of orchestrator counters.
type PipelineStats struct {
	Running       bool  `json:"running"`
	Paused        bool  `json:"paused"`
	Signals       int64 `json:"signals"`
	Duplicates    int64 `json:"duplicates_skipped"`
	AuditsPassed  int64 `json:"audits_passed"`
	AuditsFailed  int64 `json:"audits_failed"`
	TradesOpened  int64 `json:"trades_opened"`
	TradesRefused int64 `json:"trades_refused"`
	ProcessedKeys int   `json:"processed_keys"`
}

// Stats returns orchestrator counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	keys := len(p.order)
	p.mu.Unlock()

	return PipelineStats{
		Running:       p.running.Load(),
		Paused:        p.paused.Load(),
		Signals:       p.signals.Load(),
		Duplicates:    p.duplicates.Load(),
		AuditsPassed:  p.auditsPassed.Load(),
		AuditsFailed:  p.auditsFailed.Load(),
		TradesOpened:  p.opened.Load(),
		TradesRefused: p.refused.Load(),
		ProcessedKeys: keys,
	}
}
