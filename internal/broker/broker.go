package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Broker abstraction — order execution and price discovery for the trade
// engine. The engine spends USD to acquire tokens and later sells the whole
// token balance back to USD; the broker owns fill prices and tx references.
// ---------------------------------------------------------------------------

// BuyOrder spends a USD amount on a token. OrderID is the caller's
// idempotency key; a duplicate is rejected without a second fill.
type BuyOrder struct {
	OrderID string
	Chain   string
	Address string
	USD     decimal.Decimal
}

// SellOrder liquidates a token amount back to USD.
type SellOrder struct {
	OrderID string
	Chain   string
	Address string
	Tokens  decimal.Decimal
}

// Fill is the result of an executed order.
type Fill struct {
	TxRef  string          `json:"tx_ref"`
	Price  decimal.Decimal `json:"price"`
	Tokens decimal.Decimal `json:"tokens"`
	USD    decimal.Decimal `json:"usd"`
	Filled time.Time       `json:"filled"`
}

// Broker executes orders against a venue.
type Broker interface {
	Buy(ctx context.Context, order BuyOrder) (*Fill, error)
	Sell(ctx context.Context, order SellOrder) (*Fill, error)
	Name() string
}

// PriceSource quotes the current price for a token.
type PriceSource interface {
	Price(ctx context.Context, chain, address string) (decimal.Decimal, error)
}
