package arbitrage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/oracle"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/michaelpento.lv/flasharb/strategies/arbitrage"

// Config holds the immutable engine settings
type Config struct {
	Address         common.Address // The engine's own account on the ledger
	Owner           common.Address
	LendingFacility common.Address
	BaseAsset       common.Address
	QuoteAsset      common.Address
	PriceOracle     common.Address
	BaseDecimals    uint8
	QuoteDecimals   uint8
	RateConvention  oracle.RateConvention
}

// Validate rejects zero addresses and a base equal to the quote
func (c *Config) Validate() error {
	for _, f := range []struct {
		name string
		addr common.Address
	}{
		{"engine", c.Address},
		{"owner", c.Owner},
		{"lending facility", c.LendingFacility},
		{"base asset", c.BaseAsset},
		{"quote asset", c.QuoteAsset},
		{"price oracle", c.PriceOracle},
	} {
		if f.addr == (common.Address{}) {
			return fmt.Errorf("zero address: %s", f.name)
		}
	}
	if c.BaseAsset == c.QuoteAsset {
		return fmt.Errorf("base and quote asset must differ")
	}
	return nil
}

// OutcomeHandler is notified of every committed arbitrage
type OutcomeHandler func(*types.ArbitrageOutcome)

// Option customizes an Engine
type Option func(*Engine)

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer overrides the global OpenTelemetry tracer
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithOutcomeHandler registers a handler for committed outcomes
func WithOutcomeHandler(h OutcomeHandler) Option {
	return func(e *Engine) {
		e.handlers = append(e.handlers, h)
	}
}

// Engine executes flash loan arbitrages. It borrows the base asset, buys
// the quote asset on one venue, checks the fill against the oracle, sells
// back on another venue and repays, all inside one ledger unit of work.
type Engine struct {
	cfg      Config
	ledger   ledger.Ledger
	lender   flashloan.Lender
	guard    *oracle.PriceGuard
	swaps    *dex.SwapAdapter
	profit   *utils.ProfitCalculator
	logger   *zap.Logger
	metrics  *metrics.EngineMetrics
	tracer   trace.Tracer
	handlers []OutcomeHandler

	ownerMu sync.RWMutex
	owner   common.Address

	mu      sync.Mutex
	pending map[uuid.UUID]*operation
}

// New creates an arbitrage engine
func New(cfg Config, l ledger.Ledger, lender flashloan.Lender, priceOracle oracle.PriceOracle, venues *dex.Registry, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if lender == nil {
		return nil, fmt.Errorf("lender cannot be nil")
	}
	if lender.Address() != cfg.LendingFacility {
		return nil, fmt.Errorf("lender %s does not match configured facility %s", lender.Address().Hex(), cfg.LendingFacility.Hex())
	}
	if src, ok := priceOracle.(oracle.FeedSource); ok && src.Feed() != cfg.PriceOracle {
		return nil, fmt.Errorf("oracle feed %s does not match configured price oracle %s", src.Feed().Hex(), cfg.PriceOracle.Hex())
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	guard, err := oracle.NewPriceGuard(priceOracle, cfg.BaseDecimals, cfg.QuoteDecimals, cfg.RateConvention)
	if err != nil {
		return nil, fmt.Errorf("failed to create price guard: %w", err)
	}
	swaps, err := dex.NewSwapAdapter(l, venues, cfg.Address, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create swap adapter: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		ledger:  l,
		lender:  lender,
		guard:   guard,
		swaps:   swaps,
		profit:  utils.NewProfitCalculator(),
		logger:  logger.With(zap.Stringer("engine", cfg.Address)),
		owner:   cfg.Owner,
		pending: make(map[uuid.UUID]*operation),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewEngineMetrics("flasharb", nil)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}

	return e, nil
}

// Address returns the engine account, the receiver of every loan
func (e *Engine) Address() common.Address {
	return e.cfg.Address
}

// Config returns the engine configuration with the current owner
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Owner = e.Owner()
	return cfg
}

// Owner returns the current owner
func (e *Engine) Owner() common.Address {
	e.ownerMu.RLock()
	defer e.ownerMu.RUnlock()
	return e.owner
}

// TransferOwnership hands the engine to newOwner
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: zero address: new owner", types.ErrInvalidParameter)
	}

	e.ownerMu.Lock()
	defer e.ownerMu.Unlock()

	if caller != e.owner {
		return types.ErrUnauthorized
	}
	e.logger.Info("Ownership transferred",
		zap.Stringer("previous_owner", e.owner),
		zap.Stringer("new_owner", newOwner))
	e.owner = newOwner
	return nil
}

// Sweep moves the engine's whole balance of asset to to and returns the
// amount moved
func (e *Engine) Sweep(ctx context.Context, caller, asset, to common.Address) (*uint256.Int, error) {
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address: recipient", types.ErrInvalidParameter)
	}

	var swept *uint256.Int
	err := e.ledger.Atomic(ctx, func(ctx context.Context) error {
		bal, err := e.ledger.BalanceOf(ctx, asset, e.cfg.Address)
		if err != nil {
			return err
		}
		if !bal.IsZero() {
			if err := e.ledger.Transfer(ctx, asset, e.cfg.Address, to, bal); err != nil {
				return err
			}
		}
		swept = bal
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sweep %s: %w", asset.Hex(), err)
	}

	e.logger.Info("Swept balance",
		zap.Stringer("asset", asset),
		zap.Stringer("to", to),
		zap.String("amount", swept.Dec()))
	return swept, nil
}

// ExecuteArbitrage borrows req.Amount of the base asset and routes it
// through buy then sell. It either commits a profit of at least
// req.MinProfit or changes nothing.
func (e *Engine) ExecuteArbitrage(ctx context.Context, caller common.Address, buy, sell types.SwapInstruction, req types.LoanRequest) (*types.ArbitrageOutcome, error) {
	start := time.Now()
	e.metrics.Attempts.Inc()

	ctx, span := e.tracer.Start(ctx, "arbitrage.execute", trace.WithAttributes(
		attribute.String("buy_venue", buy.Venue.Hex()),
		attribute.String("sell_venue", sell.Venue.Hex()),
		attribute.String("loan_amount", decString(req.Amount)),
		attribute.Int64("max_deviation_bps", int64(req.MaxDeviationBps)),
	))
	defer span.End()

	outcome, err := e.execute(ctx, caller, buy, sell, req)
	e.metrics.Latency.Observe(time.Since(start).Seconds())

	if err != nil {
		kind := types.KindOf(err)
		e.metrics.Failures.WithLabelValues(kind).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		e.logger.Warn("Arbitrage aborted",
			zap.String("kind", kind),
			zap.Stringer("buy_venue", buy.Venue),
			zap.Stringer("sell_venue", sell.Venue),
			zap.String("loan_amount", decString(req.Amount)),
			zap.Error(err))
		return nil, err
	}

	e.metrics.Successes.Inc()
	e.metrics.Profit.Add(math.ToFloat64(outcome.Profit))
	e.metrics.DeviationBps.Observe(float64(outcome.DeviationBps))
	e.metrics.LegOutput.WithLabelValues("buy").Add(math.ToFloat64(outcome.QuoteObtained))
	e.metrics.LegOutput.WithLabelValues("sell").Add(math.ToFloat64(outcome.BaseReturned))
	span.SetAttributes(attribute.String("profit", outcome.Profit.Dec()))

	e.publish(outcome)
	return outcome, nil
}

func (e *Engine) execute(ctx context.Context, caller common.Address, buy, sell types.SwapInstruction, req types.LoanRequest) (*types.ArbitrageOutcome, error) {
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	op := &operation{
		token: uuid.New(),
		buy:   buy,
		sell:  sell,
		req:   req,
	}
	e.arm(op)
	defer e.disarm(op.token)

	err := e.ledger.Atomic(ctx, func(ctx context.Context) error {
		starting, err := e.ledger.BalanceOf(ctx, e.cfg.BaseAsset, e.cfg.Address)
		if err != nil {
			return fmt.Errorf("failed to read starting balance: %w", err)
		}
		op.startingBase = starting

		if err := e.lender.FlashLoanSimple(ctx, e.cfg.Address, e, e.cfg.BaseAsset, req.Amount, op.token[:]); err != nil {
			return err
		}
		if op.outcome == nil {
			return fmt.Errorf("%w: lender returned without invoking the callback", types.ErrLoanUnavailable)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	op.outcome.Fingerprint = fingerprint(buy, sell, req)
	return op.outcome, nil
}

func (e *Engine) authorize(caller common.Address) error {
	if caller != e.Owner() {
		return fmt.Errorf("%w: %s", types.ErrUnauthorized, caller.Hex())
	}
	return nil
}

func validateRequest(req types.LoanRequest) error {
	if req.Amount == nil || req.Amount.IsZero() {
		return fmt.Errorf("%w: loan=0", types.ErrInvalidParameter)
	}
	if req.MaxDeviationBps > types.MaxDeviationBps {
		return fmt.Errorf("%w: dev>100%%", types.ErrInvalidParameter)
	}
	return nil
}

// classify maps lender errors onto the engine's failure kinds. Errors that
// already carry a kind from the callback pass through unchanged.
func classify(err error) error {
	switch {
	case types.KindOf(err) != "internal":
		return err
	case errors.Is(err, flashloan.ErrRepaymentFailed):
		return fmt.Errorf("%w: %w", types.ErrRepaymentFailure, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", types.ErrLoanUnavailable, err)
	}
}

func (e *Engine) publish(outcome *types.ArbitrageOutcome) {
	e.logger.Info("ArbitrageExecuted",
		zap.String("profit", outcome.Profit.Dec()),
		zap.Stringer("buy_venue", outcome.BuyVenue),
		zap.Stringer("sell_venue", outcome.SellVenue),
		zap.String("loan_amount", outcome.LoanAmount.Dec()),
		zap.String("fee", outcome.Fee.Dec()),
		zap.Uint64("deviation_bps", outcome.DeviationBps),
		zap.Uint64("fingerprint", outcome.Fingerprint))

	for _, h := range e.handlers {
		h(outcome)
	}
}

// fingerprint identifies a request so identical calls can be correlated
func fingerprint(buy, sell types.SwapInstruction, req types.LoanRequest) uint64 {
	d := xxhash.New()
	var size [8]byte
	for _, leg := range []types.SwapInstruction{buy, sell} {
		_, _ = d.Write(leg.Venue.Bytes())
		binary.BigEndian.PutUint64(size[:], uint64(len(leg.Payload)))
		_, _ = d.Write(size[:])
		_, _ = d.Write(leg.Payload)
	}

	amount := req.Amount.Bytes32()
	_, _ = d.Write(amount[:])
	minProfit := req.MinProfitOrZero().Bytes32()
	_, _ = d.Write(minProfit[:])

	var dev [8]byte
	binary.BigEndian.PutUint64(dev[:], req.MaxDeviationBps)
	_, _ = d.Write(dev[:])
	return d.Sum64()
}

func decString(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}
