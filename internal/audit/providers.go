package audit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// ---------------------------------------------------------------------------
// Audit data providers. One provider per chain family: honeypot simulation
// for EVM contracts, rugcheck reports for solana mints. Both degrade to an
// error return so the auditor can issue a partial-credit check instead of
// failing the whole audit.
// ---------------------------------------------------------------------------

const (
	defaultHoneypotBaseURL = "https://api.honeypot.is/v2"
	defaultRugcheckBaseURL = "https://api.rugcheck.xyz/v1"

	defaultProviderTimeout = 10 * time.Second
)

// TokenData is the EVM-side audit payload. Missing upstream fields resolve
// to the worst case (honeypot true, taxes 100) so a thin response can never
// make a token look safer than it is.
type TokenData struct {
	Exists       bool
	IsHoneypot   bool
	BuyTaxPct    float64
	SellTaxPct   float64
	LiquidityUSD float64
	TopHolderPct float64
	Name         string
	Symbol       string
}

// RugcheckRisk is one named risk from a solana rugcheck report.
type RugcheckRisk struct {
	Name        string
	Level       string // low | medium | high | critical
	Description string
}

// RugcheckResult is the solana-side audit payload.
type RugcheckResult struct {
	Score float64
	Risks []RugcheckRisk
	Name  string
	Sym   string
}

// TokenDataProvider fetches EVM contract data for auditing.
type TokenDataProvider interface {
	TokenData(ctx context.Context, address string) (*TokenData, error)
}

// RugcheckProvider fetches solana mint reports for auditing.
type RugcheckProvider interface {
	Report(ctx context.Context, address string) (*RugcheckResult, error)
}

// ---------------------------------------------------------------------------
// Honeypot simulation client (EVM)
// ---------------------------------------------------------------------------

// HoneypotClient queries the honeypot simulation API for EVM contracts.
type HoneypotClient struct {
	baseURL string
	chainID int
	client  *http.Client

	requests atomic.Int64
	failures atomic.Int64
}

// NewHoneypotClient builds an EVM token data provider. An empty baseURL or
// zero timeout falls back to the defaults.
func NewHoneypotClient(baseURL string, chainID int, timeout time.Duration) *HoneypotClient {
	if baseURL == "" {
		baseURL = defaultHoneypotBaseURL
	}
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	if chainID <= 0 {
		chainID = 1
	}
	return &HoneypotClient{
		baseURL: baseURL,
		chainID: chainID,
		client:  &http.Client{Timeout: timeout},
	}
}

// TokenData runs the honeypot simulation for address. A 404 means the
// address is not a contract and is reported as Exists=false, not an error.
func (c *HoneypotClient) TokenData(ctx context.Context, address string) (*TokenData, error) {
	c.requests.Add(1)

	endpoint := fmt.Sprintf("%s/IsHoneypot?address=%s&chainID=%d",
		c.baseURL, url.QueryEscape(address), c.chainID)

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	if status == http.StatusNotFound {
		return &TokenData{Exists: false, IsHoneypot: true, BuyTaxPct: 100, SellTaxPct: 100}, nil
	}
	if status != http.StatusOK {
		c.failures.Add(1)
		return nil, fmt.Errorf("honeypot api status %d", status)
	}

	data := &TokenData{
		Exists:     true,
		IsHoneypot: true, // absent simulation counts as a honeypot
		BuyTaxPct:  100,
		SellTaxPct: 100,
	}
	if hp := gjson.GetBytes(body, "honeypotResult.isHoneypot"); hp.Exists() {
		data.IsHoneypot = hp.Bool()
	}
	if v := gjson.GetBytes(body, "simulationResult.buyTax"); v.Exists() {
		data.BuyTaxPct = v.Float()
	}
	if v := gjson.GetBytes(body, "simulationResult.sellTax"); v.Exists() {
		data.SellTaxPct = v.Float()
	}
	data.LiquidityUSD = gjson.GetBytes(body, "pair.liquidity").Float()
	data.TopHolderPct = gjson.GetBytes(body, "holderAnalysis.topHolderPercent").Float()
	data.Name = gjson.GetBytes(body, "token.name").String()
	data.Symbol = gjson.GetBytes(body, "token.symbol").String()

	log.Debug().
		Str("address", address).
		Bool("honeypot", data.IsHoneypot).
		Float64("buy_tax", data.BuyTaxPct).
		Float64("liquidity", data.LiquidityUSD).
		Msg("audit: honeypot simulation fetched")

	return data, nil
}

func (c *HoneypotClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("honeypot api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// Stats reports request and failure counts.
func (c *HoneypotClient) Stats() (requests, failures int64) {
	return c.requests.Load(), c.failures.Load()
}

// ---------------------------------------------------------------------------
// Rugcheck client (solana)
// ---------------------------------------------------------------------------

// RugcheckClient queries the rugcheck report API for solana mints.
type RugcheckClient struct {
	baseURL string
	client  *http.Client

	requests atomic.Int64
	failures atomic.Int64
}

// NewRugcheckClient builds a solana rugcheck provider. An empty baseURL or
// zero timeout falls back to the defaults.
func NewRugcheckClient(baseURL string, timeout time.Duration) *RugcheckClient {
	if baseURL == "" {
		baseURL = defaultRugcheckBaseURL
	}
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &RugcheckClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Report fetches the rugcheck report for a mint address.
func (c *RugcheckClient) Report(ctx context.Context, address string) (*RugcheckResult, error) {
	c.requests.Add(1)

	endpoint := fmt.Sprintf("%s/tokens/%s/report", c.baseURL, url.PathEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("rugcheck api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.failures.Add(1)
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.failures.Add(1)
		return nil, fmt.Errorf("rugcheck api status %d", resp.StatusCode)
	}

	result := &RugcheckResult{
		Score: gjson.GetBytes(body, "score").Float(),
		Name:  gjson.GetBytes(body, "tokenMeta.name").String(),
		Sym:   gjson.GetBytes(body, "tokenMeta.symbol").String(),
	}
	for _, r := range gjson.GetBytes(body, "risks").Array() {
		result.Risks = append(result.Risks, RugcheckRisk{
			Name:        r.Get("name").String(),
			Level:       r.Get("level").String(),
			Description: r.Get("description").String(),
		})
	}

	log.Debug().
		Str("address", address).
		Float64("score", result.Score).
		Int("risks", len(result.Risks)).
		Msg("audit: rugcheck report fetched")

	return result, nil
}

// Stats reports request and failure counts.
func (c *RugcheckClient) Stats() (requests, failures int64) {
	return c.requests.Load(), c.failures.Load()
}
