package simulator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/fixedrate"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/ledger"
	"github.com/michaelpento.lv/flasharb/oracle"
	"github.com/michaelpento.lv/flasharb/strategies/arbitrage"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/math"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Result is the outcome of one attempt with the ledger around it
type Result struct {
	Name    string
	Outcome *types.ArbitrageOutcome
	Err     error
	Before  map[ledger.Holding]*uint256.Int
	After   map[ledger.Holding]*uint256.Int
}

// Kind returns "ok" for a committed attempt or the failure kind
func (r *Result) Kind() string {
	if r.Err == nil {
		return "ok"
	}
	return types.KindOf(r.Err)
}

// BalanceChange is a holding whose balance moved during an attempt
type BalanceChange struct {
	Holding ledger.Holding
	Before  *uint256.Int
	After   *uint256.Int
}

// Changes lists the holdings that differ between Before and After, sorted by
// holder then asset
func (r *Result) Changes() []BalanceChange {
	keys := make(map[ledger.Holding]struct{})
	for k := range r.Before {
		keys[k] = struct{}{}
	}
	for k := range r.After {
		keys[k] = struct{}{}
	}

	var changes []BalanceChange
	for k := range keys {
		before, after := orZero(r.Before[k]), orZero(r.After[k])
		if !before.Eq(after) {
			changes = append(changes, BalanceChange{Holding: k, Before: before, After: after})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		a, b := changes[i].Holding, changes[j].Holding
		if a.Holder != b.Holder {
			return a.Holder.Cmp(b.Holder) < 0
		}
		return a.Asset.Cmp(b.Asset) < 0
	})
	return changes
}

// Report collects the results of a scenario run
type Report struct {
	Scenario string
	Engine   arbitrage.Config
	Results  []Result
}

// Simulator runs scenarios against a fresh in-memory ledger each time
type Simulator struct {
	logger    *zap.Logger
	namespace string
}

// NewSimulator creates a scenario runner
func NewSimulator(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger, namespace: "flasharb_sim"}
}

// world is the wired state of one run
type world struct {
	ledger *ledger.MemLedger
	oracle *oracle.StaticOracle
	engine *arbitrage.Engine
}

// Run builds the scenario and executes its attempts in order
func (s *Simulator) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	w, err := s.build(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to build scenario %q: %w", sc.Name, err)
	}

	report := &Report{Scenario: sc.Name, Engine: w.engine.Config()}
	for i, attempt := range sc.Attempts {
		name := attempt.Name
		if name == "" {
			name = fmt.Sprintf("attempt-%d", i+1)
		}

		res, err := s.attempt(ctx, w, attempt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		res.Name = name
		report.Results = append(report.Results, *res)

		s.logger.Info("Attempt finished",
			zap.String("scenario", sc.Name),
			zap.String("attempt", name),
			zap.String("result", res.Kind()))
	}
	return report, nil
}

func (s *Simulator) attempt(ctx context.Context, w *world, a AttemptSpec) (*Result, error) {
	if err := applyOracle(w.oracle, a.OracleRate, a.OracleError); err != nil {
		return nil, err
	}

	cfg := w.engine.Config()
	caller := cfg.Owner
	if a.Caller != "" {
		var err error
		if caller, err = config.ParseAddress("caller", a.Caller); err != nil {
			return nil, err
		}
	}
	buy, err := a.Buy.Instruction(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	sell, err := a.Sell.Instruction(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}
	req, err := a.Request()
	if err != nil {
		return nil, err
	}

	res := &Result{Before: w.ledger.Balances()}
	res.Outcome, res.Err = w.engine.ExecuteArbitrage(ctx, caller, buy, sell, req)
	res.After = w.ledger.Balances()
	return res, nil
}

func (s *Simulator) build(ctx context.Context, sc *Scenario) (*world, error) {
	l := ledger.NewMemLedger(s.logger)
	reg := prometheus.NewRegistry()

	for _, b := range sc.Balances {
		asset, err := config.ParseAddress("balance asset", b.Asset)
		if err != nil {
			return nil, err
		}
		holder, err := config.ParseAddress("balance holder", b.Holder)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("balance amount", b.Amount)
		if err != nil {
			return nil, err
		}
		if err := l.Mint(ctx, asset, holder, amount); err != nil {
			return nil, err
		}
	}

	providerCfg, err := sc.Lender.ProviderConfig()
	if err != nil {
		return nil, err
	}
	pool, err := aave.NewPool(l, providerCfg, s.logger, reg)
	if err != nil {
		return nil, err
	}

	registry := dex.NewRegistry()
	for i, v := range sc.Venues {
		venue, err := s.buildVenue(ctx, l, v)
		if err != nil {
			return nil, fmt.Errorf("venues[%d]: %w", i, err)
		}
		if err := registry.Register(venue); err != nil {
			return nil, fmt.Errorf("venues[%d]: %w", i, err)
		}
	}

	orc := oracle.NewStaticOracle(nil)
	if err := applyOracle(orc, sc.Oracle.Rate, sc.Oracle.Error); err != nil {
		return nil, err
	}

	engineCfg, err := sc.Engine.Arbitrage(pool.Address())
	if err != nil {
		return nil, err
	}
	engine, err := arbitrage.New(engineCfg, l, pool, orc, registry, s.logger,
		arbitrage.WithMetrics(metrics.NewEngineMetrics(s.namespace, reg)))
	if err != nil {
		return nil, err
	}

	return &world{ledger: l, oracle: orc, engine: engine}, nil
}

func (s *Simulator) buildVenue(ctx context.Context, l *ledger.MemLedger, v VenueSpec) (dex.Venue, error) {
	addr, err := config.ParseAddress("address", v.Address)
	if err != nil {
		return nil, err
	}

	switch v.Kind {
	case KindUniswap:
		cfg := uniswap.RouterConfig{Name: v.Name, Address: addr}
		if v.Factory != "" {
			if cfg.Factory, err = config.ParseAddress("factory", v.Factory); err != nil {
				return nil, err
			}
		}
		router, err := uniswap.NewRouter(cfg, l, s.logger)
		if err != nil {
			return nil, err
		}
		for _, p := range v.Pairs {
			if err := seedPair(ctx, l, router, p); err != nil {
				return nil, err
			}
		}
		return router, nil

	case KindFixedRate:
		tokenIn, err := config.ParseAddress("token_in", v.TokenIn)
		if err != nil {
			return nil, err
		}
		tokenOut, err := config.ParseAddress("token_out", v.TokenOut)
		if err != nil {
			return nil, err
		}
		num, err := parseAmount("numerator", v.Numerator)
		if err != nil {
			return nil, err
		}
		den, err := parseAmount("denominator", v.Denominator)
		if err != nil {
			return nil, err
		}
		return fixedrate.NewRouter(fixedrate.Config{
			Name:        v.Name,
			Address:     addr,
			TokenIn:     tokenIn,
			TokenOut:    tokenOut,
			Numerator:   num,
			Denominator: den,
		}, l, s.logger)

	default:
		return nil, fmt.Errorf("unknown venue kind %q", v.Kind)
	}
}

// seedPair mints reserves to the router and deposits them into the pair
func seedPair(ctx context.Context, l *ledger.MemLedger, router *uniswap.Router, p PairSpec) error {
	tokenA, err := config.ParseAddress("token_a", p.TokenA)
	if err != nil {
		return err
	}
	tokenB, err := config.ParseAddress("token_b", p.TokenB)
	if err != nil {
		return err
	}
	reserveA, err := parseAmount("reserve_a", p.ReserveA)
	if err != nil {
		return err
	}
	reserveB, err := parseAmount("reserve_b", p.ReserveB)
	if err != nil {
		return err
	}

	if err := l.Mint(ctx, tokenA, router.Address(), reserveA); err != nil {
		return err
	}
	if err := l.Mint(ctx, tokenB, router.Address(), reserveB); err != nil {
		return err
	}
	return router.AddLiquidity(ctx, router.Address(), tokenA, tokenB, reserveA, reserveB)
}

func applyOracle(o *oracle.StaticOracle, rate, failure string) error {
	if rate != "" {
		value, err := math.ParseUnits(rate, oracle.RateDecimals)
		if err != nil {
			return fmt.Errorf("oracle rate: %w", err)
		}
		o.SetRate(value)
	}
	if failure != "" {
		o.SetError(errors.New(failure))
	}
	return nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// HolderName labels well known accounts of a report for display
func (r *Report) HolderName(addr common.Address) string {
	switch addr {
	case r.Engine.Address:
		return "engine"
	case r.Engine.Owner:
		return "owner"
	case r.Engine.LendingFacility:
		return "lender"
	default:
		return addr.Hex()
	}
}
