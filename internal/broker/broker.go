// Package broker executes risk-approved instructions against a venue.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vwaprelay/internal/risk"
)

type OrderRef struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Side          string `json:"side"`
	Qty           int    `json:"qty"`
	Status        string `json:"status"`
}

// Executor places orders for one instruction at a time and reports the
// venue's view of the position.
type Executor interface {
	Execute(ctx context.Context, symbol string, in risk.Instruction, position int) (OrderRef, error)
	Position(ctx context.Context, symbol string) (int, error)
}

var ErrNothingToDo = errors.New("instruction resolves to zero quantity")

// OrderSide resolves the side and size of the single order that carries out
// in from position.
func OrderSide(in risk.Instruction, position int) (alpaca.Side, int, error) {
	delta := in.Delta(position)
	switch {
	case delta > 0:
		return alpaca.Buy, delta, nil
	case delta < 0:
		return alpaca.Sell, -delta, nil
	default:
		return "", 0, ErrNothingToDo
	}
}

type AlpacaOptions struct {
	APIKey        string
	APISecret     string
	BaseURL       string
	TimeInForce   string
	ExtendedHours bool
}

type AlpacaExecutor struct {
	client        *alpaca.Client
	tif           alpaca.TimeInForce
	extendedHours bool
	log           zerolog.Logger
}

func NewAlpaca(opts AlpacaOptions, log zerolog.Logger) *AlpacaExecutor {
	tif := alpaca.TimeInForce(opts.TimeInForce)
	if tif == "" {
		tif = alpaca.Day
	}
	return &AlpacaExecutor{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		tif:           tif,
		extendedHours: opts.ExtendedHours,
		log:           log.With().Str("component", "broker").Logger(),
	}
}

func (c *AlpacaExecutor) Execute(ctx context.Context, symbol string, in risk.Instruction, position int) (OrderRef, error) {
	side, qty, err := OrderSide(in, position)
	if err != nil {
		return OrderRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return OrderRef{}, err
	}

	q := decimal.NewFromInt(int64(qty))
	req := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &q,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   c.tif,
		ClientOrderID: clientOrderID(symbol, time.Now()),
		ExtendedHours: c.extendedHours,
	}
	if in.Type == risk.Limit {
		limit := decimal.NewFromFloat(in.LimitPrice)
		req.Type = alpaca.Limit
		req.LimitPrice = &limit
	}

	order, err := c.client.PlaceOrder(req)
	if err != nil {
		c.log.Error().Err(err).Str("side", string(side)).Str("symbol", symbol).Int("qty", qty).Str("type", string(req.Type)).Msg("place order failed")
		return OrderRef{}, err
	}

	c.log.Info().Str("order_id", order.ID).Str("side", string(side)).Str("symbol", symbol).Int("qty", qty).Str("type", string(req.Type)).Str("status", string(order.Status)).Msg("place order success")
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Side:          string(side),
		Qty:           qty,
		Status:        string(order.Status),
	}, nil
}

// Position returns the signed share count. A missing position is zero.
func (c *AlpacaExecutor) Position(ctx context.Context, symbol string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pos, err := c.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		c.log.Error().Err(err).Str("symbol", symbol).Msg("fetch position failed")
		return 0, err
	}
	qty := int(pos.Qty.IntPart())
	c.log.Debug().Str("symbol", symbol).Int("qty", qty).Msg("position fetched")
	return qty, nil
}

func clientOrderID(symbol string, now time.Time) string {
	return fmt.Sprintf("vwaprelay-%s-%d", symbol, now.UnixNano())
}
