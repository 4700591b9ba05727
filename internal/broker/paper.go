package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// PaperBroker — simulated execution for dry runs. New tokens list at a fixed
// micro-cap entry price and each subsequent quote advances a bounded random
// walk, so positions drift into profit targets, stop losses and trailing
// stops without any venue connectivity.
// ---------------------------------------------------------------------------

const (
	// defaultEntryPriceUSD is the listing price for a token the broker has
	// never quoted before.
	defaultEntryPriceUSD = 0.00001

	// Walk step bounds per quote, as fractions of the current price.
	walkMinStep = -0.05
	walkMaxStep = 0.15
)

// PaperBroker simulates venue execution. Buys fill instantly at the current
// simulated price, sells liquidate at the current price, and duplicate order
// IDs are rejected. Thread-safe; shared state is guarded by mu.
type PaperBroker struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal // chain:address -> current price
	seenOrders map[string]struct{}
	rng        *rand.Rand
	nextTxRef  atomic.Int64

	buys    atomic.Int64
	sells   atomic.Int64
	rejects atomic.Int64
}

var (
	_ Broker      = (*PaperBroker)(nil)
	_ PriceSource = (*PaperBroker)(nil)
)

// NewPaperBroker creates a paper broker. The seed fixes the price walk for
// reproducible runs; pass time.Now().UnixNano() for live variation.
func NewPaperBroker(seed int64) *PaperBroker {
	pb := &PaperBroker{
		prices:     make(map[string]decimal.Decimal),
		seenOrders: make(map[string]struct{}),
		rng:        rand.New(rand.NewSource(seed)),
	}
	pb.nextTxRef.Store(1)
	log.Info().Int64("seed", seed).Msg("paper broker initialized")
	return pb
}

// Buy fills a buy order at the token's current simulated price. A token the
// broker has never seen lists at the default entry price. Duplicate order
// IDs are rejected.
func (pb *PaperBroker) Buy(_ context.Context, order BuyOrder) (*Fill, error) {
	if order.USD.LessThanOrEqual(decimal.Zero) {
		pb.rejects.Add(1)
		return nil, fmt.Errorf("buy %s: non-positive amount %s", order.Address, order.USD)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()

	if _, seen := pb.seenOrders[order.OrderID]; seen {
		pb.rejects.Add(1)
		log.Warn().Str("order_id", order.OrderID).Msg("paper broker: duplicate order rejected")
		return nil, fmt.Errorf("duplicate order id: %s", order.OrderID)
	}
	pb.seenOrders[order.OrderID] = struct{}{}

	price := pb.priceLocked(order.Chain, order.Address)
	tokens := order.USD.Div(price)
	fill := &Fill{
		TxRef:  fmt.Sprintf("PAPER-BUY-%d", pb.nextTxRef.Add(1)-1),
		Price:  price,
		Tokens: tokens,
		USD:    order.USD,
		Filled: time.Now().UTC(),
	}
	pb.buys.Add(1)

	log.Info().
		Str("order_id", order.OrderID).
		Str("address", order.Address).
		Str("tx_ref", fill.TxRef).
		Str("price", price.String()).
		Str("tokens", tokens.String()).
		Str("usd", order.USD.String()).
		Msg("paper broker: buy filled")

	return fill, nil
}

// Sell liquidates a token amount at the current simulated price. Duplicate
// order IDs are rejected.
func (pb *PaperBroker) Sell(_ context.Context, order SellOrder) (*Fill, error) {
	if order.Tokens.LessThanOrEqual(decimal.Zero) {
		pb.rejects.Add(1)
		return nil, fmt.Errorf("sell %s: non-positive amount %s", order.Address, order.Tokens)
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()

	if _, seen := pb.seenOrders[order.OrderID]; seen {
		pb.rejects.Add(1)
		log.Warn().Str("order_id", order.OrderID).Msg("paper broker: duplicate order rejected")
		return nil, fmt.Errorf("duplicate order id: %s", order.OrderID)
	}
	pb.seenOrders[order.OrderID] = struct{}{}

	price := pb.priceLocked(order.Chain, order.Address)
	usd := order.Tokens.Mul(price)
	fill := &Fill{
		TxRef:  fmt.Sprintf("PAPER-SELL-%d", pb.nextTxRef.Add(1)-1),
		Price:  price,
		Tokens: order.Tokens,
		USD:    usd,
		Filled: time.Now().UTC(),
	}
	pb.sells.Add(1)

	log.Info().
		Str("order_id", order.OrderID).
		Str("address", order.Address).
		Str("tx_ref", fill.TxRef).
		Str("price", price.String()).
		Str("usd", usd.String()).
		Msg("paper broker: sell filled")

	return fill, nil
}

// Price quotes a token and advances its random walk by one bounded step.
// The walk moves between -5% and +15% per quote, so a position polled on a
// fixed tick sees a gently upward-biased drift. The first quote for an
// unseen token is the listing price with no step applied.
func (pb *PaperBroker) Price(_ context.Context, chain, address string) (decimal.Decimal, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	key := chain + ":" + address
	current, ok := pb.prices[key]
	if !ok {
		current = decimal.NewFromFloat(defaultEntryPriceUSD)
		pb.prices[key] = current
		return current, nil
	}

	step := walkMinStep + pb.rng.Float64()*(walkMaxStep-walkMinStep)
	next := current.Mul(decimal.NewFromFloat(1 + step))
	pb.prices[key] = next
	return next, nil
}

// SetPrice pins a token's simulated price. Test hook.
func (pb *PaperBroker) SetPrice(chain, address string, price decimal.Decimal) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.prices[chain+":"+address] = price
}

// CurrentPrice reads a token's simulated price without advancing the walk.
func (pb *PaperBroker) CurrentPrice(chain, address string) (decimal.Decimal, bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	p, ok := pb.prices[chain+":"+address]
	return p, ok
}

func (pb *PaperBroker) priceLocked(chain, address string) decimal.Decimal {
	key := chain + ":" + address
	if p, ok := pb.prices[key]; ok {
		return p
	}
	p := decimal.NewFromFloat(defaultEntryPriceUSD)
	pb.prices[key] = p
	return p
}

// Name returns the venue name.
func (pb *PaperBroker) Name() string { return "paper" }

// PaperStats is a point-in-time counter snapshot.
type PaperStats struct {
	Buys    int64 `json:"buys"`
	Sells   int64 `json:"sells"`
	Rejects int64 `json:"rejects"`
	Tokens  int   `json:"tokens"`
}

// Stats returns execution counters and the number of tracked tokens.
func (pb *PaperBroker) Stats() PaperStats {
	pb.mu.Lock()
	tracked := len(pb.prices)
	pb.mu.Unlock()
	return PaperStats{
		Buys:    pb.buys.Load(),
		Sells:   pb.sells.Load(),
		Rejects: pb.rejects.Load(),
		Tokens:  tracked,
	}
}
