package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Stub providers for dry runs and tests. Fixed payloads per address with an
// optional error injection, plus call counters for cache verification.
// ---------------------------------------------------------------------------

// StubTokenProvider serves canned EVM token data.
type StubTokenProvider struct {
	mu      sync.Mutex
	data    map[string]*TokenData
	err     error
	Default *TokenData

	calls atomic.Int64
}

// NewStubTokenProvider builds an empty stub. Unknown addresses resolve to
// Default when set, otherwise to a clean low-risk token.
func NewStubTokenProvider() *StubTokenProvider {
	return &StubTokenProvider{data: make(map[string]*TokenData)}
}

// Set installs the payload returned for address.
func (s *StubTokenProvider) Set(address string, data *TokenData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[address] = data
}

// Fail makes every call return err until reset with Fail(nil).
func (s *StubTokenProvider) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StubTokenProvider) TokenData(_ context.Context, address string) (*TokenData, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if d, ok := s.data[address]; ok {
		cp := *d
		return &cp, nil
	}
	if s.Default != nil {
		cp := *s.Default
		return &cp, nil
	}
	return &TokenData{Exists: true, LiquidityUSD: 50000}, nil
}

// Calls reports how many times TokenData was invoked.
func (s *StubTokenProvider) Calls() int64 { return s.calls.Load() }

// StubRugcheck serves canned solana rugcheck results.
type StubRugcheck struct {
	mu      sync.Mutex
	reports map[string]*RugcheckResult
	err     error
	Default *RugcheckResult

	calls atomic.Int64
}

// NewStubRugcheck builds an empty stub. Unknown addresses resolve to
// Default when set, otherwise to a clean report.
func NewStubRugcheck() *StubRugcheck {
	return &StubRugcheck{reports: make(map[string]*RugcheckResult)}
}

// Set installs the report returned for address.
func (s *StubRugcheck) Set(address string, r *RugcheckResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[address] = r
}

// Fail makes every call return err until reset with Fail(nil).
func (s *StubRugcheck) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StubRugcheck) Report(_ context.Context, address string) (*RugcheckResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.reports[address]; ok {
		cp := *r
		cp.Risks = append([]RugcheckRisk(nil), r.Risks...)
		return &cp, nil
	}
	if s.Default != nil {
		cp := *s.Default
		cp.Risks = append([]RugcheckRisk(nil), s.Default.Risks...)
		return &cp, nil
	}
	return &RugcheckResult{Score: 90}, nil
}

// Calls reports how many times Report was invoked.
func (s *StubRugcheck) Calls() int64 { return s.calls.Load() }
