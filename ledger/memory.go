package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/michaelpento.lv/flasharb/utils/math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

type allowanceKey struct {
	Asset   common.Address
	Owner   common.Address
	Spender common.Address
}

// journalEntry records the value a slot held before a mutation. A nil prev
// means the slot did not exist.
type journalEntry struct {
	balance   *Holding
	allowance *allowanceKey
	prev      *uint256.Int
}

type unitKey struct {
	ledger *MemLedger
}

// MemLedger is an in-memory Ledger with journaled units of work. Only one
// unit runs at a time; mutations made outside a unit wait for it to finish
// or for their context to end.
type MemLedger struct {
	logger *zap.Logger

	unit    chan struct{}
	mu      sync.RWMutex
	balance map[Holding]*uint256.Int
	allow   map[allowanceKey]*uint256.Int
	journal []journalEntry
}

// NewMemLedger creates an empty ledger
func NewMemLedger(logger *zap.Logger) *MemLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemLedger{
		logger:  logger,
		unit:    make(chan struct{}, 1),
		balance: make(map[Holding]*uint256.Int),
		allow:   make(map[allowanceKey]*uint256.Int),
	}
}

// BalanceOf returns the balance of holder in asset
func (l *MemLedger) BalanceOf(_ context.Context, asset, holder common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balance[Holding{asset, holder}]; ok {
		return b.Clone(), nil
	}
	return new(uint256.Int), nil
}

// Allowance returns how much spender may pull from owner
func (l *MemLedger) Allowance(_ context.Context, asset, owner, spender common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if a, ok := l.allow[allowanceKey{asset, owner, spender}]; ok {
		return a.Clone(), nil
	}
	return new(uint256.Int), nil
}

// Mint credits amount of asset to holder. Used to seed scenarios and tests.
func (l *MemLedger) Mint(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	return l.mutate(ctx, func() error {
		return l.credit(Holding{asset, to}, amount)
	})
}

// Transfer moves amount of asset from one holder to another
func (l *MemLedger) Transfer(ctx context.Context, asset, from, to common.Address, amount *uint256.Int) error {
	return l.mutate(ctx, func() error {
		return l.move(asset, from, to, amount)
	})
}

// Approve sets the allowance of spender over owner's asset
func (l *MemLedger) Approve(ctx context.Context, asset, owner, spender common.Address, amount *uint256.Int) error {
	return l.mutate(ctx, func() error {
		l.setAllowance(allowanceKey{asset, owner, spender}, amount.Clone())
		return nil
	})
}

// TransferFrom moves amount on behalf of from, consuming spender's allowance
func (l *MemLedger) TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount *uint256.Int) error {
	return l.mutate(ctx, func() error {
		key := allowanceKey{asset, from, spender}
		current := l.allow[key]
		if current == nil || current.Lt(amount) {
			have := "0"
			if current != nil {
				have = current.Dec()
			}
			return fmt.Errorf("%w: %s allows %s to pull %s, need %s",
				ErrInsufficientAllowance, from.Hex(), spender.Hex(), have, amount.Dec())
		}
		if err := l.move(asset, from, to, amount); err != nil {
			return err
		}
		l.setAllowance(key, new(uint256.Int).Sub(current, amount))
		return nil
	})
}

// Atomic runs fn as one unit of work
func (l *MemLedger) Atomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if l.inUnit(ctx) {
		return l.nested(ctx, fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()

	l.mu.Lock()
	l.journal = l.journal[:0]
	l.mu.Unlock()

	unitCtx := context.WithValue(ctx, unitKey{l}, struct{}{})

	defer func() {
		if r := recover(); r != nil {
			l.revertTo(0)
			l.logger.Warn("Unit of work panicked, state reverted", zap.Any("panic", r))
			panic(r)
		}
	}()

	if err = fn(unitCtx); err == nil {
		err = ctx.Err()
	}
	if err != nil {
		reverted := l.revertTo(0)
		l.logger.Debug("Unit of work reverted",
			zap.Int("entries", reverted),
			zap.Error(err))
		return err
	}

	l.mu.Lock()
	l.journal = l.journal[:0]
	l.mu.Unlock()
	return nil
}

// Balances returns a copy of every non-zero balance
func (l *MemLedger) Balances() map[Holding]*uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[Holding]*uint256.Int, len(l.balance))
	for k, v := range l.balance {
		if !v.IsZero() {
			out[k] = v.Clone()
		}
	}
	return out
}

func (l *MemLedger) nested(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	l.mu.RLock()
	snapshot := len(l.journal)
	l.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			l.revertTo(snapshot)
			panic(r)
		}
	}()

	if err = fn(ctx); err != nil {
		l.revertTo(snapshot)
		return err
	}
	return nil
}

func (l *MemLedger) inUnit(ctx context.Context) bool {
	return ctx.Value(unitKey{l}) != nil
}

// acquire waits for the running unit, if any, to finish. A context that
// does not carry the running unit (for example context.Background() used
// from inside it) can only give up through cancellation.
func (l *MemLedger) acquire(ctx context.Context) error {
	select {
	case l.unit <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.unit <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for unit of work: %w", ctx.Err())
	}
}

func (l *MemLedger) release() {
	<-l.unit
}

// mutate applies op either inside the caller's unit or as a standalone
// change that waits for any running unit.
func (l *MemLedger) mutate(ctx context.Context, op func() error) error {
	if !l.inUnit(ctx) {
		if err := l.acquire(ctx); err != nil {
			return err
		}
		defer l.release()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// failed ops must not leave partial writes behind
	mark := len(l.journal)
	if err := op(); err != nil {
		l.undoLocked(mark)
		return err
	}
	if !l.inUnit(ctx) {
		l.journal = l.journal[:mark]
	}
	return nil
}

func (l *MemLedger) move(asset, from, to common.Address, amount *uint256.Int) error {
	src := Holding{asset, from}
	have := l.balance[src]
	if have == nil {
		have = new(uint256.Int)
	}
	remaining, err := math.Sub(have, amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %s of %s, need %s",
			ErrInsufficientBalance, from.Hex(), have.Dec(), asset.Hex(), amount.Dec())
	}
	l.setBalance(src, remaining)
	return l.credit(Holding{asset, to}, amount)
}

func (l *MemLedger) credit(h Holding, amount *uint256.Int) error {
	have := l.balance[h]
	if have == nil {
		have = new(uint256.Int)
	}
	sum, err := math.Add(have, amount)
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", h.Holder.Hex(), err)
	}
	l.setBalance(h, sum)
	return nil
}

func (l *MemLedger) setBalance(h Holding, v *uint256.Int) {
	key := h
	l.journal = append(l.journal, journalEntry{balance: &key, prev: l.balance[h]})
	l.balance[h] = v
}

func (l *MemLedger) setAllowance(k allowanceKey, v *uint256.Int) {
	key := k
	l.journal = append(l.journal, journalEntry{allowance: &key, prev: l.allow[k]})
	l.allow[k] = v
}

func (l *MemLedger) revertTo(snapshot int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.undoLocked(snapshot)
}

// undoLocked rolls the journal back to snapshot, newest entry first
func (l *MemLedger) undoLocked(snapshot int) int {
	n := len(l.journal) - snapshot
	for i := len(l.journal) - 1; i >= snapshot; i-- {
		e := l.journal[i]
		switch {
		case e.balance != nil:
			if e.prev == nil {
				delete(l.balance, *e.balance)
			} else {
				l.balance[*e.balance] = e.prev
			}
		case e.allowance != nil:
			if e.prev == nil {
				delete(l.allow, *e.allowance)
			} else {
				l.allow[*e.allowance] = e.prev
			}
		}
	}
	l.journal = l.journal[:snapshot]
	return n
}
