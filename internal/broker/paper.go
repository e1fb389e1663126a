package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"vwaprelay/internal/risk"
)

// PaperExecutor fills every order immediately and keeps positions in memory.
type PaperExecutor struct {
	mu        sync.Mutex
	positions map[string]int
	seq       int
	log       zerolog.Logger
}

func NewPaper(log zerolog.Logger) *PaperExecutor {
	return &PaperExecutor{
		positions: make(map[string]int),
		log:       log.With().Str("component", "paper").Logger(),
	}
}

func (p *PaperExecutor) Execute(ctx context.Context, symbol string, in risk.Instruction, position int) (OrderRef, error) {
	if err := ctx.Err(); err != nil {
		return OrderRef{}, err
	}
	side, qty, err := OrderSide(in, position)
	if err != nil {
		return OrderRef{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.positions[symbol] = position + in.Delta(position)

	ref := OrderRef{
		ID:     fmt.Sprintf("paper-%d", p.seq),
		Side:   string(side),
		Qty:    qty,
		Status: "filled",
	}
	p.log.Info().Str("order_id", ref.ID).Str("symbol", symbol).Str("side", ref.Side).Int("qty", qty).Int("position", p.positions[symbol]).Msg("paper fill")
	return ref, nil
}

func (p *PaperExecutor) Position(ctx context.Context, symbol string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[symbol], nil
}

// SetPosition seeds a position, used when resuming from a checkpoint.
func (p *PaperExecutor) SetPosition(symbol string, qty int) {
	p.mu.Lock()
	p.positions[symbol] = qty
	p.mu.Unlock()
}
