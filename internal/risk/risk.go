// Package risk turns decoded decisions into position-bounded order
// instructions.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"vwaprelay/internal/decision"
)

type Kind string

// Enter kinds add Quantity in their direction; the executor nets the order
// against any existing position. Exit kinds close the whole position.
const (
	EnterLong  Kind = "enter_long"
	EnterShort Kind = "enter_short"
	ExitLong   Kind = "exit_long"
	ExitShort  Kind = "exit_short"
)

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

type Instruction struct {
	Kind       Kind      `json:"kind"`
	Quantity   int       `json:"quantity"`
	Type       OrderType `json:"type"`
	LimitPrice float64   `json:"limit_price,omitempty"`
}

func (i Instruction) String() string {
	switch i.Kind {
	case ExitLong:
		return "exit long"
	case ExitShort:
		return "exit short"
	}
	dir := "long"
	if i.Kind == EnterShort {
		dir = "short"
	}
	if i.Type == Limit {
		return fmt.Sprintf("enter %s %d, limit @ %g", dir, i.Quantity, i.LimitPrice)
	}
	return fmt.Sprintf("enter %s %d, market", dir, i.Quantity)
}

// Delta is the signed change the instruction makes to position.
func (i Instruction) Delta(position int) int {
	switch i.Kind {
	case EnterLong:
		return i.Quantity
	case EnterShort:
		return -i.Quantity
	default:
		return -position
	}
}

const (
	ReasonAccepted       = "accepted"
	ReasonFlat           = "flat_nothing_to_exit"
	ReasonInvalidSide    = "invalid_side"
	ReasonInvalidQty     = "invalid_quantity"
	ReasonCapExceeded    = "position_cap_exceeded"
	ReasonNoPrice        = "no_price"
	ReasonUnknownAction  = "unknown_action"
	ReasonKillSwitch     = "kill_switch_enabled"
	ReasonDecisionFailed = "decision_failed"
)

// Outcome is either an accepted Instruction or a no-op with a Reason.
type Outcome struct {
	Accepted    bool        `json:"accepted"`
	Instruction Instruction `json:"instruction"`
	Reason      string      `json:"reason"`
	Projected   int         `json:"projected"`
}

// Rounder prices a passive limit at the tick-rounded midpoint.
type Rounder interface {
	Mid(bid, ask float64) float64
}

func reject(reason string, position int) Outcome {
	return Outcome{Reason: reason, Projected: position}
}

// Apply is the sizing policy. It depends only on its arguments.
func Apply(d decision.Response, position, limit int, bid, ask float64, rounder Rounder) Outcome {
	switch d.Action {
	case decision.ActionFlatten:
		switch {
		case position > 0:
			return Outcome{Accepted: true, Reason: ReasonAccepted, Instruction: Instruction{Kind: ExitLong, Quantity: position, Type: Market}}
		case position < 0:
			return Outcome{Accepted: true, Reason: ReasonAccepted, Instruction: Instruction{Kind: ExitShort, Quantity: -position, Type: Market}}
		default:
			return reject(ReasonFlat, position)
		}

	case decision.ActionPlace:
		kind, dir := EnterLong, 1
		switch d.Side {
		case decision.SideBuy:
		case decision.SideSell:
			kind, dir = EnterShort, -1
		default:
			return reject(ReasonInvalidSide, position)
		}
		if d.Quantity <= 0 {
			return reject(ReasonInvalidQty, position)
		}
		// Any quantity past this bound lands outside the cap; checking it
		// first keeps position+quantity from wrapping.
		if d.Quantity > limit+abs(position) {
			projected := dir * math.MaxInt
			if d.Quantity <= math.MaxInt-abs(position) {
				projected = position + dir*d.Quantity
			}
			return Outcome{Reason: ReasonCapExceeded, Projected: projected}
		}
		projected := position + dir*d.Quantity
		if abs(projected) > limit {
			return Outcome{Reason: ReasonCapExceeded, Projected: projected}
		}

		inst := Instruction{Kind: kind, Quantity: d.Quantity, Type: Market}
		if d.OrderType != decision.OrderMarket {
			inst.Type = Limit
			switch {
			case d.LimitPrice > 0:
				inst.LimitPrice = d.LimitPrice
			case bid > 0 && ask > 0:
				inst.LimitPrice = rounder.Mid(bid, ask)
			default:
				return Outcome{Reason: ReasonNoPrice, Projected: projected}
			}
		}
		return Outcome{Accepted: true, Reason: ReasonAccepted, Instruction: inst, Projected: projected}

	default:
		return reject(ReasonUnknownAction, position)
	}
}

// Policy wraps Apply with the configured cap and an operator kill switch
// that blocks new entries while still allowing exits.
type Policy struct {
	MaxPosition int
	KillSwitch  bool
	Rounder     Rounder
	Log         zerolog.Logger
}

func (p Policy) Evaluate(d decision.Response, position int, bid, ask float64) Outcome {
	if p.KillSwitch && d.Action == decision.ActionPlace {
		p.Log.Info().Str("reason", ReasonKillSwitch).Msg("risk rejected")
		return reject(ReasonKillSwitch, position)
	}

	out := Apply(d, position, p.MaxPosition, bid, ask, p.Rounder)
	if !out.Accepted {
		p.Log.Info().
			Str("reason", out.Reason).
			Str("action", d.RawAction).
			Str("side", d.Side).
			Int("qty", d.Quantity).
			Int("position", position).
			Int("projected", out.Projected).
			Int("max", p.MaxPosition).
			Msg("risk rejected")
		return out
	}
	p.Log.Info().
		Str("instruction", out.Instruction.String()).
		Int("position", position).
		Int("projected", out.Projected).
		Msg("risk approved")
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
