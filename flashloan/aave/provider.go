package aave

import (
	"context"
	"fmt"
	"time"

	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Pool is an Aave v3 style lending pool serving flashLoanSimple against a
// ledger. Funds are sent to the receiver, the receiver callback runs, then
// amount plus premium is pulled back through the receiver's allowance.
type Pool struct {
	ledger  ledger.Ledger
	config  *flashloan.ProviderConfig
	logger  *zap.Logger
	metrics struct {
		loanCount     prometheus.Counter
		loanVolume    prometheus.Counter
		fees          prometheus.Counter
		latency       prometheus.Histogram
		errors        *prometheus.CounterVec
		poolLiquidity *prometheus.GaugeVec
	}
}

// NewPool creates a new Aave style flash loan pool. Metrics are registered
// with reg when it is not nil.
func NewPool(l ledger.Ledger, config *flashloan.ProviderConfig, logger *zap.Logger, reg prometheus.Registerer) (*Pool, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	pool := &Pool{
		ledger: l,
		config: config,
		logger: logger.With(zap.Stringer("pool", config.ContractAddress)),
	}

	// Initialize metrics
	pool.metrics.loanCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_loans_total",
		Help: "Total number of Aave flash loans executed",
	})
	pool.metrics.loanVolume = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_volume_units",
		Help: "Total volume of Aave flash loans in asset base units",
	})
	pool.metrics.fees = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashloan_aave_fees_units",
		Help: "Total premiums collected in asset base units",
	})
	pool.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flashloan_aave_latency_seconds",
		Help:    "Latency of Aave flash loan operations",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
	pool.metrics.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashloan_aave_errors_total",
		Help: "Total number of Aave flash loan errors",
	}, []string{"stage"})
	pool.metrics.poolLiquidity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flashloan_aave_pool_liquidity_units",
		Help: "Current liquidity in Aave pools",
	}, []string{"token"})

	if reg != nil {
		for _, c := range []prometheus.Collector{
			pool.metrics.loanCount,
			pool.metrics.loanVolume,
			pool.metrics.fees,
			pool.metrics.latency,
			pool.metrics.errors,
			pool.metrics.poolLiquidity,
		} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("failed to register pool metrics: %w", err)
			}
		}
	}

	return pool, nil
}

// Address returns the pool account on the ledger
func (p *Pool) Address() common.Address {
	return p.config.ContractAddress
}

// String returns the provider name
func (p *Pool) String() string {
	return "aave"
}

// GetLoanFee calculates the premium for a flash loan
func (p *Pool) GetLoanFee(_ common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("invalid loan amount")
	}
	return math.PercentMul(amount, p.config.PremiumBps)
}

// GetPoolLiquidity returns the pool's current holdings of token
func (p *Pool) GetPoolLiquidity(ctx context.Context, token common.Address) (*uint256.Int, error) {
	liquidity, err := p.ledger.BalanceOf(ctx, token, p.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get reserve data: %w", err)
	}
	p.metrics.poolLiquidity.WithLabelValues(token.Hex()).Set(math.ToFloat64(liquidity))
	return liquidity, nil
}

// GetMaxLoanAmount returns the maximum amount that can be borrowed
func (p *Pool) GetMaxLoanAmount(ctx context.Context, token common.Address) (*uint256.Int, error) {
	liquidity, err := p.GetPoolLiquidity(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool liquidity: %w", err)
	}

	// Calculate max loan based on config percentage
	maxLoan, err := math.MulDiv(liquidity, uint256.NewInt(uint64(p.config.MaxLoanPercentage)), uint256.NewInt(100))
	if err != nil {
		return nil, err
	}

	// Ensure it doesn't exceed absolute maximum
	if p.config.MaxLoanAmount != nil && maxLoan.Gt(p.config.MaxLoanAmount) {
		maxLoan = p.config.MaxLoanAmount.Clone()
	}

	return maxLoan, nil
}

// ValidateLoan checks the amount against the pool limits
func (p *Pool) ValidateLoan(ctx context.Context, asset common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: invalid loan amount", flashloan.ErrLoanRejected)
	}
	if p.config.MinLoanAmount != nil && amount.Lt(p.config.MinLoanAmount) {
		return fmt.Errorf("%w: loan amount below minimum", flashloan.ErrLoanRejected)
	}

	maxAmount, err := p.GetMaxLoanAmount(ctx, asset)
	if err != nil {
		return fmt.Errorf("failed to get max loan amount: %w", err)
	}
	if amount.Gt(maxAmount) {
		return fmt.Errorf("%w: loan amount %s exceeds maximum %s", flashloan.ErrLoanRejected, amount.Dec(), maxAmount.Dec())
	}

	return nil
}

// FlashLoanSimple lends amount of asset to receiver for the duration of its
// callback. The whole loan runs as one ledger unit.
func (p *Pool) FlashLoanSimple(ctx context.Context, initiator common.Address, receiver flashloan.Receiver, asset common.Address, amount *uint256.Int, params []byte) error {
	start := time.Now()
	defer func() {
		p.metrics.latency.Observe(time.Since(start).Seconds())
	}()

	if receiver == nil {
		p.metrics.errors.WithLabelValues("validate").Inc()
		return fmt.Errorf("%w: receiver cannot be nil", flashloan.ErrLoanRejected)
	}
	if err := p.ValidateLoan(ctx, asset, amount); err != nil {
		p.metrics.errors.WithLabelValues("validate").Inc()
		return err
	}

	fee, err := p.GetLoanFee(asset, amount)
	if err != nil {
		p.metrics.errors.WithLabelValues("validate").Inc()
		return fmt.Errorf("%w: %w", flashloan.ErrLoanRejected, err)
	}
	owed, err := math.Add(amount, fee)
	if err != nil {
		p.metrics.errors.WithLabelValues("validate").Inc()
		return fmt.Errorf("%w: %w", flashloan.ErrLoanRejected, err)
	}

	err = p.ledger.Atomic(ctx, func(ctx context.Context) error {
		if err := p.ledger.Transfer(ctx, asset, p.Address(), receiver.Address(), amount); err != nil {
			p.metrics.errors.WithLabelValues("deliver").Inc()
			return fmt.Errorf("%w: failed to deliver funds: %w", flashloan.ErrLoanRejected, err)
		}

		if err := receiver.OnFundsReceived(ctx, flashloan.Delivery{
			Lender:    p.Address(),
			Asset:     asset,
			Amount:    amount.Clone(),
			Fee:       fee.Clone(),
			Initiator: initiator,
			Params:    params,
		}); err != nil {
			p.metrics.errors.WithLabelValues("callback").Inc()
			return fmt.Errorf("%w: %w", flashloan.ErrReceiverFailed, err)
		}

		if err := p.ledger.TransferFrom(ctx, asset, p.Address(), receiver.Address(), p.Address(), owed); err != nil {
			p.metrics.errors.WithLabelValues("repay").Inc()
			return fmt.Errorf("%w: %w", flashloan.ErrRepaymentFailed, err)
		}
		return nil
	})
	if err != nil {
		p.logger.Debug("Flash loan reverted",
			zap.Stringer("asset", asset),
			zap.String("amount", amount.Dec()),
			zap.Error(err))
		return err
	}

	// Update metrics
	p.metrics.loanCount.Inc()
	p.metrics.loanVolume.Add(math.ToFloat64(amount))
	p.metrics.fees.Add(math.ToFloat64(fee))

	p.logger.Debug("Flash loan repaid",
		zap.Stringer("asset", asset),
		zap.Stringer("receiver", receiver.Address()),
		zap.String("amount", amount.Dec()),
		zap.String("premium", fee.Dec()))

	return nil
}
