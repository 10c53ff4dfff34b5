package arbitrage

import (
	"context"
	"fmt"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/types"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// operation is the state of one in-flight arbitrage. The token travels to
// the lender as the loan params and must come back unchanged exactly once.
type operation struct {
	token        uuid.UUID
	buy          types.SwapInstruction
	sell         types.SwapInstruction
	req          types.LoanRequest
	startingBase *uint256.Int
	consumed     bool
	outcome      *types.ArbitrageOutcome
}

func (e *Engine) arm(op *operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[op.token] = op
}

func (e *Engine) disarm(token uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, token)
}

// claim matches a delivery with its armed operation and consumes the token
func (e *Engine) claim(d flashloan.Delivery) (*operation, error) {
	token, err := uuid.FromBytes(d.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed params", types.ErrUnexpectedCallback)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	op, ok := e.pending[token]
	switch {
	case !ok:
		return nil, fmt.Errorf("%w: no armed operation", types.ErrUnexpectedCallback)
	case op.consumed:
		return nil, fmt.Errorf("%w: callback replayed", types.ErrUnexpectedCallback)
	case d.Lender != e.cfg.LendingFacility:
		return nil, fmt.Errorf("%w: lender %s", types.ErrUnexpectedCallback, d.Lender.Hex())
	case d.Initiator != e.cfg.Address:
		return nil, fmt.Errorf("%w: initiator %s", types.ErrUnexpectedCallback, d.Initiator.Hex())
	case d.Asset != e.cfg.BaseAsset:
		return nil, fmt.Errorf("%w: asset %s", types.ErrUnexpectedCallback, d.Asset.Hex())
	case d.Amount == nil || !d.Amount.Eq(op.req.Amount):
		return nil, fmt.Errorf("%w: amount %s", types.ErrUnexpectedCallback, decString(d.Amount))
	case d.Fee == nil:
		return nil, fmt.Errorf("%w: missing fee", types.ErrUnexpectedCallback)
	}

	op.consumed = true
	return op, nil
}

// OnFundsReceived runs both legs with the borrowed funds and approves the
// lender for amount plus fee. Any error aborts the loan.
func (e *Engine) OnFundsReceived(ctx context.Context, d flashloan.Delivery) error {
	op, err := e.claim(d)
	if err != nil {
		e.logger.Warn("Rejected callback",
			zap.Stringer("lender", d.Lender),
			zap.Stringer("initiator", d.Initiator),
			zap.Error(err))
		return err
	}

	ctx, span := e.tracer.Start(ctx, "arbitrage.callback")
	defer span.End()

	outcome, err := e.run(ctx, op, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, types.KindOf(err))
		return err
	}
	span.SetAttributes(attribute.Int64("deviation_bps", int64(outcome.DeviationBps)))

	op.outcome = outcome
	return nil
}

func (e *Engine) run(ctx context.Context, op *operation, d flashloan.Delivery) (*types.ArbitrageOutcome, error) {
	base, quote := e.cfg.BaseAsset, e.cfg.QuoteAsset

	quoteObtained, err := e.swaps.Swap(ctx, op.buy, base, d.Amount, quote)
	if err != nil {
		return nil, fmt.Errorf("buy leg: %w", err)
	}

	verdict, err := e.guard.Check(ctx, d.Amount, quoteObtained, op.req.MaxDeviationBps)
	if err != nil {
		return nil, err
	}

	baseReturned, err := e.swaps.Swap(ctx, op.sell, quote, quoteObtained, base)
	if err != nil {
		return nil, fmt.Errorf("sell leg: %w", err)
	}

	ending, err := e.ledger.BalanceOf(ctx, base, e.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read ending balance: %w", err)
	}
	profit, err := e.profit.NetProfit(op.startingBase, ending, d.Amount, d.Fee)
	if err != nil {
		return nil, err
	}
	if err := e.profit.CheckFloor(profit, op.req.MinProfitOrZero()); err != nil {
		return nil, err
	}

	owed, err := e.profit.Repayment(d.Amount, d.Fee)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Approve(ctx, base, e.cfg.Address, d.Lender, owed); err != nil {
		return nil, fmt.Errorf("failed to approve repayment: %w", err)
	}

	e.logger.Debug("Arbitrage legs settled",
		zap.String("quote_obtained", quoteObtained.Dec()),
		zap.String("base_returned", baseReturned.Dec()),
		zap.String("owed", owed.Dec()),
		zap.String("profit", profit.Dec()))

	return &types.ArbitrageOutcome{
		Profit:        profit,
		BuyVenue:      op.buy.Venue,
		SellVenue:     op.sell.Venue,
		LoanAmount:    d.Amount.Clone(),
		Fee:           d.Fee.Clone(),
		QuoteObtained: quoteObtained,
		BaseReturned:  baseReturned,
		RealizedRate:  verdict.Realized,
		ReferenceRate: verdict.Reference,
		DeviationBps:  verdict.DeviationBps,
	}, nil
}
