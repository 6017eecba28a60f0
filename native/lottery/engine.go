package lottery

import (
	"fmt"
	"sync"
	"time"

	"rafflechain/core/events"
	"rafflechain/core/types"
)

// State is the view of persisted records and token balances the engine
// operates on.
type State interface {
	FeeConfigGet(owner [20]byte) (*FeeConfig, bool, error)
	FeeConfigPut(cfg *FeeConfig) error
	LotteryGet(id [20]byte) (*Lottery, bool, error)
	LotteryPut(l *Lottery) error
	MintExists(mint [20]byte) (bool, error)
	Balance(owner, mint [20]byte) (uint64, error)
	SetBalance(owner, mint [20]byte, amount uint64) error
}

// Txn is a State whose writes become visible only after Commit.
type Txn interface {
	State
	Commit() error
	Discard()
}

// Store opens transactions against the backing state.
type Store interface {
	Begin() Txn
}

// Engine wires the lottery lifecycle with the state backend, the entropy
// source and event emitters. Every mutating operation runs inside a single
// transaction: either all record and balance changes commit or none do.
type Engine struct {
	mu      sync.RWMutex
	emitMu  sync.Mutex // orders events by commit once mu is released
	store   Store
	emitter events.Emitter
	entropy EntropySource
	nowFn   func() int64

	defaultRoundSeconds int64
	maxTicketsPerBuyer  uint64
	maxWinners          int
}

// NewEngine creates an engine with a no-op emitter and clock entropy.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		entropy: ClockEntropy{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetStore configures the state backend used by the engine.
func (e *Engine) SetStore(store Store) { e.store = store }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetEntropy overrides the seed source used for winner selection.
func (e *Engine) SetEntropy(src EntropySource) {
	if src == nil {
		e.entropy = ClockEntropy{}
		return
	}
	e.entropy = src
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetDefaultRoundDuration sets the deadline applied to lotteries created
// without an explicit end. Zero leaves such lotteries without a deadline.
func (e *Engine) SetDefaultRoundDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.defaultRoundSeconds = int64(d / time.Second)
}

// SetMaxTicketsPerBuyer sets the cap applied when a lottery does not specify
// its own. Zero means unlimited.
func (e *Engine) SetMaxTicketsPerBuyer(limit uint64) { e.maxTicketsPerBuyer = limit }

// SetMaxWinners bounds the winner count accepted by RevealWinners. Zero means
// bounded only by tickets sold.
func (e *Engine) SetMaxWinners(limit int) {
	if limit < 0 {
		limit = 0
	}
	e.maxWinners = limit
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(lotteryEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// apply runs fn inside a transaction and emits the returned events only once
// the transaction has committed.
func (e *Engine) apply(fn func(tx State) ([]*types.Event, error)) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	e.mu.Lock()
	tx := e.store.Begin()
	evts, err := fn(tx)
	if err != nil {
		tx.Discard()
		e.mu.Unlock()
		return err
	}
	if err := tx.Commit(); err != nil {
		e.mu.Unlock()
		return err
	}
	// Taking emitMu before releasing mu hands the events over in commit
	// order while readers and later writers proceed without waiting on
	// the emitter.
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()
	for _, evt := range evts {
		e.emit(evt)
	}
	return nil
}

func (e *Engine) view(fn func(st State) error) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	tx := e.store.Begin()
	defer tx.Discard()
	return fn(tx)
}

func loadLottery(st State, id [20]byte) (*Lottery, error) {
	l, ok, err := st.LotteryGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lottery %x", ErrNotFound, id)
	}
	return l, nil
}

func loadFeeConfig(st State, owner [20]byte) (*FeeConfig, error) {
	cfg, ok, err := st.FeeConfigGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: fee config for %x", ErrNotFound, owner)
	}
	return cfg, nil
}

// transfer moves amount of mint between two accounts after checking the
// source balance and the destination for overflow.
func transfer(st State, mint, from, to [20]byte, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	fromBal, err := st.Balance(from, mint)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, fromBal, amount)
	}
	toBal, err := st.Balance(to, mint)
	if err != nil {
		return err
	}
	credited, err := checkedAdd(toBal, amount)
	if err != nil {
		return err
	}
	if err := st.SetBalance(from, mint, fromBal-amount); err != nil {
		return err
	}
	return st.SetBalance(to, mint, credited)
}

// CreateParams describes a new lottery.
type CreateParams struct {
	// ID is the lottery identity. When zero it is derived from the creator,
	// fee owner and the fee config's round counter.
	ID       [20]byte
	Mint     [20]byte
	FeeOwner [20]byte
	// TicketPrice is expressed in the mint's smallest unit.
	TicketPrice  uint64
	TicketAmount uint64
	// End is a unix timestamp. Zero applies the engine default round duration.
	End                int64
	MaxTicketsPerBuyer uint64
}

// CreateLottery initialises a lottery bound to a mint, a fee config and a
// fresh pair of vaults.
func (e *Engine) CreateLottery(creator [20]byte, params CreateParams) (*Lottery, error) {
	if params.TicketPrice == 0 {
		return nil, fmt.Errorf("%w: ticket price must be positive", ErrInvalidArgument)
	}
	if params.TicketAmount == 0 {
		return nil, fmt.Errorf("%w: ticket amount must be positive", ErrInvalidArgument)
	}
	if _, err := checkedMul(params.TicketPrice, params.TicketAmount); err != nil {
		return nil, err
	}
	feeOwner := params.FeeOwner
	if feeOwner == ([20]byte{}) {
		feeOwner = creator
	}
	var created *Lottery
	err := e.apply(func(st State) ([]*types.Event, error) {
		now := e.now()
		end := params.End
		if end == 0 && e.defaultRoundSeconds > 0 {
			end = now + e.defaultRoundSeconds
		}
		if end != 0 && end <= now {
			return nil, fmt.Errorf("%w: end %d is not after now %d", ErrInvalidArgument, end, now)
		}
		cfg, err := loadFeeConfig(st, feeOwner)
		if err != nil {
			return nil, err
		}
		if cfg.TokenMint != ([20]byte{}) && cfg.TokenMint != params.Mint {
			return nil, fmt.Errorf("%w: fee config pins mint %x", ErrMintMismatch, cfg.TokenMint)
		}
		exists, err := st.MintExists(params.Mint)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: mint %x not registered", ErrMintMismatch, params.Mint)
		}
		round := cfg.CurrentRound + 1
		id := params.ID
		if id == ([20]byte{}) {
			id = DeriveLotteryID(creator, feeOwner, round)
		}
		if _, ok, err := st.LotteryGet(id); err != nil {
			return nil, err
		} else if ok {
			return nil, fmt.Errorf("%w: lottery %x", ErrAlreadyExists, id)
		}
		maxPerBuyer := params.MaxTicketsPerBuyer
		if maxPerBuyer == 0 {
			maxPerBuyer = e.maxTicketsPerBuyer
		}
		l := &Lottery{
			ID:                 id,
			Creator:            creator,
			TokenMint:          params.Mint,
			FeeOwner:           feeOwner,
			PrizeVault:         PrizeVaultAddress(id),
			ProceedsVault:      ProceedsVaultAddress(id),
			TicketPrice:        params.TicketPrice,
			TicketAmount:       params.TicketAmount,
			Start:              now,
			End:                end,
			MaxTicketsPerBuyer: maxPerBuyer,
			Status:             StatusCreated,
		}
		if err := st.LotteryPut(l); err != nil {
			return nil, err
		}
		cfg.CurrentRound = round
		cfg.CurrentRoundKey = id
		if err := st.FeeConfigPut(cfg); err != nil {
			return nil, err
		}
		created = l
		return []*types.Event{NewCreatedEvent(l)}, nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// FundPrize moves amount from the creator into the prize vault. Funding is
// accepted until winners are revealed.
func (e *Engine) FundPrize(caller, id, mint [20]byte, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: prize amount must be positive", ErrInvalidArgument)
	}
	return e.apply(func(st State) ([]*types.Event, error) {
		l, err := loadLottery(st, id)
		if err != nil {
			return nil, err
		}
		if caller != l.Creator {
			return nil, fmt.Errorf("%w: only the creator may fund the prize", ErrUnauthorized)
		}
		if l.Status != StatusCreated && l.Status != StatusSelling {
			return nil, fmt.Errorf("%w: cannot fund in status %s", ErrInvalidState, l.Status)
		}
		if mint != l.TokenMint {
			return nil, ErrMintMismatch
		}
		if err := transfer(st, l.TokenMint, caller, l.PrizeVault, amount); err != nil {
			return nil, err
		}
		return []*types.Event{NewPrizeFundedEvent(l, amount)}, nil
	})
}

// Open moves a freshly created lottery into Selling. Calling it on a lottery
// that is already selling is a no-op.
func (e *Engine) Open(caller, id [20]byte) error {
	return e.apply(func(st State) ([]*types.Event, error) {
		l, err := loadLottery(st, id)
		if err != nil {
			return nil, err
		}
		if caller != l.Creator {
			return nil, fmt.Errorf("%w: only the creator may open the lottery", ErrUnauthorized)
		}
		switch l.Status {
		case StatusSelling:
			return nil, nil
		case StatusCreated:
		default:
			return nil, fmt.Errorf("%w: cannot open in status %s", ErrInvalidState, l.Status)
		}
		l.Status = StatusSelling
		if err := st.LotteryPut(l); err != nil {
			return nil, err
		}
		return []*types.Event{newLotteryEvent(EventTypeLotteryOpened, l)}, nil
	})
}

// Lottery returns a copy of the stored lottery.
func (e *Engine) Lottery(id [20]byte) (*Lottery, error) {
	var out *Lottery
	err := e.view(func(st State) error {
		l, err := loadLottery(st, id)
		if err != nil {
			return err
		}
		out = l.Clone()
		return nil
	})
	return out, err
}

// FeeConfig returns a copy of the organizer's fee configuration.
func (e *Engine) FeeConfig(owner [20]byte) (*FeeConfig, error) {
	var out *FeeConfig
	err := e.view(func(st State) error {
		cfg, err := loadFeeConfig(st, owner)
		if err != nil {
			return err
		}
		out = cfg.Clone()
		return nil
	})
	return out, err
}

// Balance returns the token balance of owner for mint.
func (e *Engine) Balance(owner, mint [20]byte) (uint64, error) {
	var out uint64
	err := e.view(func(st State) error {
		bal, err := st.Balance(owner, mint)
		out = bal
		return err
	})
	return out, err
}

// VaultBalances returns the prize and proceeds vault balances of a lottery.
func (e *Engine) VaultBalances(id [20]byte) (prize, proceeds uint64, err error) {
	err = e.view(func(st State) error {
		l, err := loadLottery(st, id)
		if err != nil {
			return err
		}
		if prize, err = st.Balance(l.PrizeVault, l.TokenMint); err != nil {
			return err
		}
		proceeds, err = st.Balance(l.ProceedsVault, l.TokenMint)
		return err
	})
	return prize, proceeds, err
}
