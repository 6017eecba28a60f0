package lottery

import (
	"bytes"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"rafflechain/core/events"
)

type balanceKey struct {
	owner [20]byte
	mint  [20]byte
}

type mockStore struct {
	feeConfigs map[[20]byte]*FeeConfig
	lotteries  map[[20]byte]*Lottery
	mints      map[[20]byte]bool
	balances   map[balanceKey]uint64
	commits    int
}

func newMockStore() *mockStore {
	return &mockStore{
		feeConfigs: make(map[[20]byte]*FeeConfig),
		lotteries:  make(map[[20]byte]*Lottery),
		mints:      make(map[[20]byte]bool),
		balances:   make(map[balanceKey]uint64),
	}
}

func (m *mockStore) Begin() Txn {
	tx := &mockTxn{
		store:      m,
		feeConfigs: make(map[[20]byte]*FeeConfig, len(m.feeConfigs)),
		lotteries:  make(map[[20]byte]*Lottery, len(m.lotteries)),
		mints:      make(map[[20]byte]bool, len(m.mints)),
		balances:   make(map[balanceKey]uint64, len(m.balances)),
	}
	for k, v := range m.feeConfigs {
		tx.feeConfigs[k] = v.Clone()
	}
	for k, v := range m.lotteries {
		tx.lotteries[k] = v.Clone()
	}
	for k, v := range m.mints {
		tx.mints[k] = v
	}
	for k, v := range m.balances {
		tx.balances[k] = v
	}
	return tx
}

func (m *mockStore) balance(owner, mint [20]byte) uint64 {
	return m.balances[balanceKey{owner: owner, mint: mint}]
}

func (m *mockStore) credit(owner, mint [20]byte, amount uint64) {
	m.balances[balanceKey{owner: owner, mint: mint}] += amount
}

type mockTxn struct {
	store      *mockStore
	feeConfigs map[[20]byte]*FeeConfig
	lotteries  map[[20]byte]*Lottery
	mints      map[[20]byte]bool
	balances   map[balanceKey]uint64
	done       bool
}

func (t *mockTxn) FeeConfigGet(owner [20]byte) (*FeeConfig, bool, error) {
	cfg, ok := t.feeConfigs[owner]
	if !ok {
		return nil, false, nil
	}
	return cfg.Clone(), true, nil
}

func (t *mockTxn) FeeConfigPut(cfg *FeeConfig) error {
	if cfg.FeePercent > MaxFeePercent {
		return ErrInvalidFeePercent
	}
	t.feeConfigs[cfg.Owner] = cfg.Clone()
	return nil
}

func (t *mockTxn) LotteryGet(id [20]byte) (*Lottery, bool, error) {
	l, ok := t.lotteries[id]
	if !ok {
		return nil, false, nil
	}
	return l.Clone(), true, nil
}

func (t *mockTxn) LotteryPut(l *Lottery) error {
	if err := l.Validate(); err != nil {
		return err
	}
	t.lotteries[l.ID] = l.Clone()
	return nil
}

func (t *mockTxn) MintExists(mint [20]byte) (bool, error) { return t.mints[mint], nil }

func (t *mockTxn) Balance(owner, mint [20]byte) (uint64, error) {
	return t.balances[balanceKey{owner: owner, mint: mint}], nil
}

func (t *mockTxn) SetBalance(owner, mint [20]byte, amount uint64) error {
	t.balances[balanceKey{owner: owner, mint: mint}] = amount
	return nil
}

func (t *mockTxn) Commit() error {
	if t.done {
		return errors.New("txn already finished")
	}
	t.done = true
	t.store.feeConfigs = t.feeConfigs
	t.store.lotteries = t.lotteries
	t.store.mints = t.mints
	t.store.balances = t.balances
	t.store.commits++
	return nil
}

func (t *mockTxn) Discard() { t.done = true }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	organizer    = newTestAddress(0x01)
	feeRecipient = newTestAddress(0x02)
	admin        = newTestAddress(0x03)
	buyerA       = newTestAddress(0x0A)
	buyerB       = newTestAddress(0x0B)
	buyerC       = newTestAddress(0x0C)
	stranger     = newTestAddress(0xEE)
	testMint     = newTestAddress(0x4D)
	otherMint    = newTestAddress(0x4E)
)

const testStart int64 = 1_700_000_000

type harness struct {
	engine   *Engine
	store    *mockStore
	recorder *events.Recorder
	now      int64
}

func newHarness(t *testing.T, feePercent uint8) *harness {
	t.Helper()
	h := &harness{store: newMockStore(), recorder: &events.Recorder{}, now: testStart}
	h.store.mints[testMint] = true
	h.store.mints[otherMint] = true
	h.engine = NewEngine()
	h.engine.SetStore(h.store)
	h.engine.SetEmitter(h.recorder)
	h.engine.SetNowFunc(func() int64 { return h.now })
	h.engine.SetEntropy(FixedEntropy{0x42})
	if _, err := h.engine.CreateFeeConfig(organizer, feePercent, feeRecipient, admin, [20]byte{}); err != nil {
		t.Fatalf("create fee config: %v", err)
	}
	return h
}

func (h *harness) createLottery(t *testing.T, price, amount uint64, end int64) *Lottery {
	t.Helper()
	l, err := h.engine.CreateLottery(organizer, CreateParams{
		Mint:         testMint,
		TicketPrice:  price,
		TicketAmount: amount,
		End:          end,
	})
	if err != nil {
		t.Fatalf("create lottery: %v", err)
	}
	return l
}

func (h *harness) buy(t *testing.T, buyer, id [20]byte, count uint64) *Purchase {
	t.Helper()
	p, err := h.engine.BuyTickets(buyer, id, testMint, count)
	if err != nil {
		t.Fatalf("buy %d tickets: %v", count, err)
	}
	return p
}

func (h *harness) lottery(t *testing.T, id [20]byte) *Lottery {
	t.Helper()
	l, err := h.engine.Lottery(id)
	if err != nil {
		t.Fatalf("load lottery: %v", err)
	}
	return l
}

func assertPartition(t *testing.T, l *Lottery) {
	t.Helper()
	seen := make(map[uint64][20]byte)
	var held uint64
	for owner, ids := range l.Buyers() {
		for _, id := range ids {
			if prev, dup := seen[id]; dup {
				t.Fatalf("ticket %d held by %x and %x", id, prev, owner)
			}
			seen[id] = owner
		}
		held += uint64(len(ids))
	}
	for _, id := range l.TicketsRemaining() {
		if _, sold := seen[id]; sold {
			t.Fatalf("ticket %d both sold and remaining", id)
		}
	}
	if got := uint64(len(l.TicketsRemaining())) + held; got != l.TicketAmount {
		t.Fatalf("remaining+sold = %d, want %d", got, l.TicketAmount)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCreateFeeConfigRejectsInvalidPercent(t *testing.T) {
	h := newHarness(t, 5)
	_, err := h.engine.CreateFeeConfig(buyerA, 101, feeRecipient, [20]byte{}, [20]byte{})
	if !errors.Is(err, ErrInvalidFeePercent) || !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid fee percent, got %v", err)
	}
	if _, err := h.engine.CreateFeeConfig(organizer, 10, feeRecipient, admin, [20]byte{}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if _, err := h.engine.CreateFeeConfig(buyerA, 1, feeRecipient, [20]byte{}, newTestAddress(0x99)); !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("expected unknown mint rejection, got %v", err)
	}
}

func TestUpdateFeeConfigAuthorization(t *testing.T) {
	h := newHarness(t, 5)
	if _, err := h.engine.UpdateFeeConfig(stranger, organizer, 10, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := h.engine.UpdateFeeConfig(organizer, organizer, 101, nil); !errors.Is(err, ErrInvalidFeePercent) {
		t.Fatalf("expected invalid fee percent, got %v", err)
	}
	recipient := newTestAddress(0x22)
	cfg, err := h.engine.UpdateFeeConfig(admin, organizer, 12, &recipient)
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if cfg.FeePercent != 12 || cfg.FeeRecipient != recipient {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	stored, err := h.engine.FeeConfig(organizer)
	if err != nil {
		t.Fatalf("load fee config: %v", err)
	}
	if !reflect.DeepEqual(stored, cfg) {
		t.Fatalf("stored config %+v differs from returned %+v", stored, cfg)
	}
	types := h.recorder.Types()
	if types[len(types)-1] != EventTypeFeeConfigUpdated {
		t.Fatalf("expected update event, got %v", types)
	}
}

func TestUpdateFeeConfigIsNotRetroactive(t *testing.T) {
	h := newHarness(t, 50)
	l := h.createLottery(t, 10, 10, 0)
	h.store.credit(buyerA, testMint, 100)
	h.buy(t, buyerA, l.ID, 1)
	if _, err := h.engine.UpdateFeeConfig(organizer, organizer, 10, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	h.buy(t, buyerA, l.ID, 1)
	if got := h.store.balance(feeRecipient, testMint); got != 5+1 {
		t.Fatalf("fee recipient balance = %d, want 6", got)
	}
	if got := h.store.balance(l.ProceedsVault, testMint); got != 5+9 {
		t.Fatalf("proceeds vault balance = %d, want 14", got)
	}
}

func TestCreateLotteryValidation(t *testing.T) {
	h := newHarness(t, 5)
	cases := []struct {
		name   string
		params CreateParams
		want   error
	}{
		{"zero price", CreateParams{Mint: testMint, TicketAmount: 1}, ErrInvalidArgument},
		{"zero amount", CreateParams{Mint: testMint, TicketPrice: 1}, ErrInvalidArgument},
		{"end in past", CreateParams{Mint: testMint, TicketPrice: 1, TicketAmount: 1, End: testStart}, ErrInvalidArgument},
		{"overflow", CreateParams{Mint: testMint, TicketPrice: ^uint64(0), TicketAmount: 2}, ErrArithmeticOverflow},
		{"unknown mint", CreateParams{Mint: newTestAddress(0x77), TicketPrice: 1, TicketAmount: 1}, ErrMintMismatch},
		{"missing fee config", CreateParams{Mint: testMint, FeeOwner: stranger, TicketPrice: 1, TicketAmount: 1}, ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := h.engine.CreateLottery(organizer, tc.params); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if h.store.commits != 1 {
		t.Fatalf("failed creates must not commit, got %d commits", h.store.commits)
	}
}

func TestCreateLotteryPinnedMint(t *testing.T) {
	h := newHarness(t, 5)
	if _, err := h.engine.CreateFeeConfig(buyerA, 5, buyerA, [20]byte{}, testMint); err != nil {
		t.Fatalf("create pinned config: %v", err)
	}
	_, err := h.engine.CreateLottery(buyerA, CreateParams{Mint: otherMint, TicketPrice: 1, TicketAmount: 1})
	if !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("expected mint mismatch, got %v", err)
	}
	if _, err := h.engine.CreateLottery(buyerA, CreateParams{Mint: testMint, TicketPrice: 1, TicketAmount: 1}); err != nil {
		t.Fatalf("create with pinned mint: %v", err)
	}
}

func TestCreateLotteryDefaults(t *testing.T) {
	h := newHarness(t, 5)
	h.engine.SetDefaultRoundDuration(24 * time.Hour)
	h.engine.SetMaxTicketsPerBuyer(5)
	l := h.createLottery(t, 10, 4, 0)
	if l.Status != StatusCreated || l.NextTicket != 0 || len(l.Sales) != 0 || l.Collected != 0 {
		t.Fatalf("unexpected initial lottery: %+v", l)
	}
	if l.Start != testStart || l.End != testStart+24*60*60 {
		t.Fatalf("unexpected window [%d, %d]", l.Start, l.End)
	}
	if l.MaxTicketsPerBuyer != 5 {
		t.Fatalf("expected engine default cap, got %d", l.MaxTicketsPerBuyer)
	}
	if l.ID != DeriveLotteryID(organizer, organizer, 1) {
		t.Fatalf("unexpected derived id %x", l.ID)
	}
	if l.PrizeVault != PrizeVaultAddress(l.ID) || l.ProceedsVault != ProceedsVaultAddress(l.ID) {
		t.Fatalf("vaults not derived from lottery id")
	}
	if l.FeeOwner != organizer {
		t.Fatalf("fee owner should default to creator")
	}
	if got := len(l.TicketsRemaining()); got != 4 {
		t.Fatalf("expected 4 remaining tickets, got %d", got)
	}
	cfg, err := h.engine.FeeConfig(organizer)
	if err != nil {
		t.Fatalf("fee config: %v", err)
	}
	if cfg.CurrentRound != 1 || cfg.CurrentRoundKey != l.ID {
		t.Fatalf("round counter not advanced: %+v", cfg)
	}
	second := h.createLottery(t, 10, 4, 0)
	if second.ID == l.ID {
		t.Fatalf("second lottery reused id")
	}
}

func TestCreateLotteryDuplicateID(t *testing.T) {
	h := newHarness(t, 5)
	id := newTestAddress(0x55)
	params := CreateParams{ID: id, Mint: testMint, TicketPrice: 1, TicketAmount: 1}
	if _, err := h.engine.CreateLottery(organizer, params); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.engine.CreateLottery(organizer, params); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestFundPrize(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLottery(t, 10, 1, 0)
	h.store.credit(organizer, testMint, 100)
	if err := h.engine.FundPrize(stranger, l.ID, testMint, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.engine.FundPrize(organizer, l.ID, otherMint, 10); !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("expected mint mismatch, got %v", err)
	}
	if err := h.engine.FundPrize(organizer, l.ID, testMint, 1000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := h.engine.FundPrize(organizer, l.ID, testMint, 60); err != nil {
		t.Fatalf("fund: %v", err)
	}
	prize, proceeds, err := h.engine.VaultBalances(l.ID)
	if err != nil {
		t.Fatalf("vault balances: %v", err)
	}
	if prize != 60 || proceeds != 0 {
		t.Fatalf("unexpected vaults prize=%d proceeds=%d", prize, proceeds)
	}
	h.store.credit(buyerA, testMint, 10)
	h.buy(t, buyerA, l.ID, 1)
	if _, err := h.engine.RevealWinners(stranger, l.ID, 1); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if err := h.engine.FundPrize(organizer, l.ID, testMint, 10); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state after reveal, got %v", err)
	}
}

func TestOpenLottery(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLottery(t, 10, 2, 0)
	if err := h.engine.Open(stranger, l.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := h.engine.Open(organizer, l.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := h.engine.Open(organizer, l.ID); err != nil {
		t.Fatalf("second open should be a no-op: %v", err)
	}
	if got := h.lottery(t, l.ID).Status; got != StatusSelling {
		t.Fatalf("expected selling, got %s", got)
	}
	opened := 0
	for _, typ := range h.recorder.Types() {
		if typ == EventTypeLotteryOpened {
			opened++
		}
	}
	if opened != 1 {
		t.Fatalf("expected one opened event, got %d", opened)
	}
}

func TestBuyTicketsAllocatesFIFO(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLottery(t, 1, 10, 0)
	for _, buyer := range [][20]byte{buyerA, buyerB, buyerC} {
		h.store.credit(buyer, testMint, 10)
	}
	p := h.buy(t, buyerA, l.ID, 2)
	if p.Tickets.Start != 0 || p.Tickets.Count != 2 {
		t.Fatalf("unexpected first range %+v", p.Tickets)
	}
	h.buy(t, buyerA, l.ID, 1)
	h.buy(t, buyerB, l.ID, 3)
	h.buy(t, buyerA, l.ID, 1)
	h.buy(t, buyerC, l.ID, 1)

	got := h.lottery(t, l.ID)
	assertPartition(t, got)
	if got.Status != StatusSelling {
		t.Fatalf("first purchase should open the lottery, got %s", got.Status)
	}
	if want := []uint64{0, 1, 2, 6}; !reflect.DeepEqual(got.TicketsOf(buyerA), want) {
		t.Fatalf("buyer A tickets = %v, want %v", got.TicketsOf(buyerA), want)
	}
	if len(got.Sales) != 4 {
		t.Fatalf("adjacent purchases should merge, got %d ranges", len(got.Sales))
	}
	if want := []uint64{8, 9}; !reflect.DeepEqual(got.TicketsRemaining(), want) {
		t.Fatalf("remaining = %v, want %v", got.TicketsRemaining(), want)
	}
	if got.Collected != 8 {
		t.Fatalf("collected = %d, want 8", got.Collected)
	}
}

func TestBuyTicketsInsufficientTicketsLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, 5)
	l := h.createLottery(t, 10, 3, 0)
	h.store.credit(buyerA, testMint, 1000)
	h.buy(t, buyerA, l.ID, 1)
	before := h.lottery(t, l.ID)
	commits := h.store.commits

	if _, err := h.engine.BuyTickets(buyerB, l.ID, testMint, 3); !errors.Is(err, ErrInsufficientTickets) {
		t.Fatalf("expected insufficient tickets, got %v", err)
	}
	after := h.lottery(t, l.ID)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed after failed purchase:\n%+v\n%+v", before, after)
	}
	if h.store.commits != commits {
		t.Fatalf("failed purchase committed")
	}
}

func TestBuyTicketsInsufficientFundsIsAtomic(t *testing.T) {
	h := newHarness(t, 50)
	l := h.createLottery(t, 10, 3, 0)
	h.store.credit(buyerA, testMint, 15)
	if _, err := h.engine.BuyTickets(buyerA, l.ID, testMint, 2); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := h.store.balance(feeRecipient, testMint); got != 0 {
		t.Fatalf("fee transferred despite failure: %d", got)
	}
	if got := h.store.balance(buyerA, testMint); got != 15 {
		t.Fatalf("buyer debited despite failure: %d", got)
	}
	if got := h.lottery(t, l.ID); got.NextTicket != 0 || got.Status != StatusCreated {
		t.Fatalf("tickets allocated despite failure: %+v", got)
	}
}

func TestBuyTicketsPreconditions(t *testing.T) {
	h := newHarness(t, 0)
	l, err := h.engine.CreateLottery(organizer, CreateParams{
		Mint:               testMint,
		TicketPrice:        2,
		TicketAmount:       10,
		End:                testStart + 100,
		MaxTicketsPerBuyer: 3,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.store.credit(buyerA, testMint, 100)
	if _, err := h.engine.BuyTickets(buyerA, l.ID, testMint, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := h.engine.BuyTickets(buyerA, l.ID, otherMint, 1); !errors.Is(err, ErrMintMismatch) {
		t.Fatalf("expected mint mismatch, got %v", err)
	}
	h.buy(t, buyerA, l.ID, 2)
	if _, err := h.engine.BuyTickets(buyerA, l.ID, testMint, 2); !errors.Is(err, ErrMaxTicketsPerBuyer) {
		t.Fatalf("expected per-buyer cap, got %v", err)
	}
	if _, err := h.engine.BuyTickets(buyerA, newTestAddress(0x66), testMint, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	h.now = testStart + 100
	if _, err := h.engine.BuyTickets(buyerA, l.ID, testMint, 1); !errors.Is(err, ErrLotteryClosed) {
		t.Fatalf("expected lottery closed, got %v", err)
	}
}

func TestFeeSplitExactness(t *testing.T) {
	const price, count = 7, 13
	for f := 0; f <= MaxFeePercent; f++ {
		h := newHarness(t, uint8(f))
		l := h.createLottery(t, price, count, 0)
		h.store.credit(buyerA, testMint, price*count)
		p := h.buy(t, buyerA, l.ID, count)

		total := uint64(price * count)
		wantFee := total * uint64(f) / 100
		if p.Fee != wantFee || p.Net != total-wantFee {
			t.Fatalf("f=%d: purchase fee=%d net=%d, want %d/%d", f, p.Fee, p.Net, wantFee, total-wantFee)
		}
		if got := h.store.balance(feeRecipient, testMint); got != wantFee {
			t.Fatalf("f=%d: fee recipient got %d, want %d", f, got, wantFee)
		}
		if got := h.store.balance(l.ProceedsVault, testMint); got != total-wantFee {
			t.Fatalf("f=%d: proceeds got %d, want %d", f, got, total-wantFee)
		}
		if got := h.store.balance(buyerA, testMint); got != 0 {
			t.Fatalf("f=%d: buyer left with %d", f, got)
		}
	}
}

func TestRevealPreconditions(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLottery(t, 1, 5, testStart+50)
	if _, err := h.engine.RevealWinners(stranger, l.ID, 1); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected no participants, got %v", err)
	}
	h.store.credit(buyerA, testMint, 10)
	h.buy(t, buyerA, l.ID, 2)
	if _, err := h.engine.RevealWinners(stranger, l.ID, 1); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	h.now = testStart + 50
	if _, err := h.engine.RevealWinners(stranger, l.ID, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid winner count, got %v", err)
	}
	if _, err := h.engine.RevealWinners(stranger, l.ID, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected negative winner count to be rejected, got %v", err)
	}
	winners, err := h.engine.RevealWinners(stranger, l.ID, 0)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if len(winners) != 1 || winners[0].Participant != buyerA {
		t.Fatalf("unexpected winners %+v", winners)
	}
	if _, err := h.engine.RevealWinners(stranger, l.ID, 1); !errors.Is(err, ErrAlreadyRevealed) {
		t.Fatalf("expected already revealed, got %v", err)
	}
	h.engine.SetMaxWinners(16)
	for _, count := range []int{-1, 17} {
		if _, err := h.engine.RevealWinners(stranger, l.ID, count); !errors.Is(err, ErrAlreadyRevealed) {
			t.Fatalf("winner count %d: expected already revealed, got %v", count, err)
		}
	}
	if got := h.lottery(t, l.ID).Winners; !reflect.DeepEqual(got, winners) {
		t.Fatalf("winner set changed: %+v vs %+v", got, winners)
	}
	if _, err := h.engine.BuyTickets(buyerA, l.ID, testMint, 1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state after reveal, got %v", err)
	}
}

func TestRevealMaxWinners(t *testing.T) {
	h := newHarness(t, 0)
	h.engine.SetMaxWinners(2)
	l := h.createLottery(t, 1, 3, 0)
	h.store.credit(buyerA, testMint, 3)
	h.buy(t, buyerA, l.ID, 3)
	if _, err := h.engine.RevealWinners(stranger, l.ID, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestRevealIsDeterministicForSeed(t *testing.T) {
	draw := func() []Winner {
		h := newHarness(t, 0)
		l := h.createLottery(t, 1, 6, 0)
		for _, buyer := range [][20]byte{buyerA, buyerB, buyerC} {
			h.store.credit(buyer, testMint, 2)
			h.buy(t, buyer, l.ID, 2)
		}
		winners, err := h.engine.RevealWinners(stranger, l.ID, 3)
		if err != nil {
			t.Fatalf("reveal: %v", err)
		}
		got := h.lottery(t, l.ID)
		for _, w := range winners {
			owner, ok := got.OwnerOf(w.TicketID)
			if !ok || owner != w.Participant {
				t.Fatalf("winner %+v not owner of ticket", w)
			}
		}
		return winners
	}
	if first, second := draw(), draw(); !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different winners: %+v vs %+v", first, second)
	}
}

func TestClaimPrizeTwice(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLottery(t, 1, 1, 0)
	h.store.credit(organizer, testMint, 40)
	if err := h.engine.FundPrize(organizer, l.ID, testMint, 40); err != nil {
		t.Fatalf("fund: %v", err)
	}
	h.store.credit(buyerA, testMint, 1)
	h.buy(t, buyerA, l.ID, 1)
	if _, err := h.engine.ClaimPrize(buyerA, l.ID, testMint); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state before reveal, got %v", err)
	}
	if _, err := h.engine.RevealWinners(stranger, l.ID, 1); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	paid, err := h.engine.ClaimPrize(buyerA, l.ID, testMint)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid != 40 || h.store.balance(l.PrizeVault, testMint) != 0 {
		t.Fatalf("claim paid %d, vault left %d", paid, h.store.balance(l.PrizeVault, testMint))
	}
	if _, err := h.engine.ClaimPrize(buyerA, l.ID, testMint); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}
	if got := h.store.balance(buyerA, testMint); got != 40 {
		t.Fatalf("winner balance = %d, want 40", got)
	}
}

func TestClaimPrizeSplitsPoolAcrossWinners(t *testing.T) {
	h := newHarness(t, 0)
	l := h.createLottery(t, 1, 3, 0)
	h.store.credit(organizer, testMint, 100)
	if err := h.engine.FundPrize(organizer, l.ID, testMint, 100); err != nil {
		t.Fatalf("fund: %v", err)
	}
	for _, buyer := range [][20]byte{buyerA, buyerB, buyerC} {
		h.store.credit(buyer, testMint, 1)
		h.buy(t, buyer, l.ID, 1)
	}
	if _, err := h.engine.RevealWinners(stranger, l.ID, 3); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	want := map[[20]byte]uint64{buyerA: 33, buyerB: 33, buyerC: 34}
	for _, buyer := range [][20]byte{buyerA, buyerB, buyerC} {
		paid, err := h.engine.ClaimPrize(buyer, l.ID, testMint)
		if err != nil {
			t.Fatalf("claim %x: %v", buyer[:1], err)
		}
		if paid != want[buyer] {
			t.Fatalf("buyer %x paid %d, want %d", buyer[:1], paid, want[buyer])
		}
	}
	if got := h.store.balance(l.PrizeVault, testMint); got != 0 {
		t.Fatalf("prize vault not drained: %d", got)
	}
	if got := h.lottery(t, l.ID).Status; got != StatusRevealed {
		t.Fatalf("lottery settled before proceeds collected: %s", got)
	}
	if _, err := h.engine.CollectProceeds(organizer, l.ID, testMint); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := h.lottery(t, l.ID).Status; got != StatusSettled {
		t.Fatalf("expected settled, got %s", got)
	}
}

func TestCollectProceeds(t *testing.T) {
	h := newHarness(t, 10)
	l := h.createLottery(t, 10, 2, 0)
	h.store.credit(buyerA, testMint, 20)
	h.buy(t, buyerA, l.ID, 2)
	if _, err := h.engine.CollectProceeds(organizer, l.ID, testMint); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state before reveal, got %v", err)
	}
	if _, err := h.engine.RevealWinners(stranger, l.ID, 1); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, err := h.engine.CollectProceeds(stranger, l.ID, testMint); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	paid, err := h.engine.CollectProceeds(organizer, l.ID, testMint)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if paid != 18 || h.store.balance(organizer, testMint) != 18 {
		t.Fatalf("collected %d, organizer balance %d", paid, h.store.balance(organizer, testMint))
	}
	if _, err := h.engine.CollectProceeds(organizer, l.ID, testMint); !errors.Is(err, ErrAlreadyCollected) {
		t.Fatalf("expected already collected, got %v", err)
	}
}

func TestEndToEndTwoBuyers(t *testing.T) {
	h := newHarness(t, 5)
	l := h.createLottery(t, 10, 2, 0)
	h.store.credit(organizer, testMint, 50)
	if err := h.engine.FundPrize(organizer, l.ID, testMint, 50); err != nil {
		t.Fatalf("fund: %v", err)
	}
	h.store.credit(buyerA, testMint, 10)
	h.store.credit(buyerB, testMint, 10)
	h.buy(t, buyerA, l.ID, 1)
	h.buy(t, buyerB, l.ID, 1)

	if got := h.store.balance(feeRecipient, testMint); got != 0 {
		t.Fatalf("fee recipient received %d, want 0", got)
	}
	if got := h.store.balance(l.ProceedsVault, testMint); got != 20 {
		t.Fatalf("proceeds vault holds %d, want 20", got)
	}
	state := h.lottery(t, l.ID)
	assertPartition(t, state)
	if len(state.TicketsRemaining()) != 0 {
		t.Fatalf("tickets remaining after sell-out")
	}

	winners, err := h.engine.RevealWinners(stranger, l.ID, 1)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if len(winners) != 1 {
		t.Fatalf("expected one winner, got %d", len(winners))
	}
	winner := winners[0].Participant
	loser := buyerA
	if winner == buyerA {
		loser = buyerB
	} else if winner != buyerB {
		t.Fatalf("winner %x is not a buyer", winner)
	}
	if _, err := h.engine.ClaimPrize(loser, l.ID, testMint); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for non-winner, got %v", err)
	}
	paid, err := h.engine.ClaimPrize(winner, l.ID, testMint)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid != 50 || h.store.balance(l.PrizeVault, testMint) != 0 {
		t.Fatalf("prize vault not drained: paid=%d", paid)
	}
	collected, err := h.engine.CollectProceeds(organizer, l.ID, testMint)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if collected != 20 || h.store.balance(l.ProceedsVault, testMint) != 0 {
		t.Fatalf("proceeds vault not drained: collected=%d", collected)
	}
	if _, err := h.engine.CollectProceeds(organizer, l.ID, testMint); !errors.Is(err, ErrAlreadyCollected) {
		t.Fatalf("expected already collected, got %v", err)
	}
	final := h.lottery(t, l.ID)
	if final.Status != StatusSettled {
		t.Fatalf("expected settled, got %s", final.Status)
	}
	if !final.Winners[0].Claimed || final.Winners[0].ClaimedAmount != 50 {
		t.Fatalf("winner entry not updated: %+v", final.Winners[0])
	}

	wantTypes := []string{
		EventTypeFeeConfigCreated,
		EventTypeLotteryCreated,
		EventTypePrizeFunded,
		EventTypeLotteryOpened,
		EventTypeTicketsPurchased,
		EventTypeTicketsPurchased,
		EventTypeWinnersRevealed,
		EventTypePrizeClaimed,
		EventTypeProceedsCollected,
		EventTypeLotterySettled,
	}
	if got := h.recorder.Types(); !reflect.DeepEqual(got, wantTypes) {
		t.Fatalf("event sequence = %v, want %v", got, wantTypes)
	}
}

func TestEngineWithoutStore(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Lottery([20]byte{}); !errors.Is(err, errNilState) {
		t.Fatalf("expected nil state error, got %v", err)
	}
}

// gatedEmitter parks the first Emit call until release is closed.
type gatedEmitter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	events.Recorder
}

func newGatedEmitter() *gatedEmitter {
	return &gatedEmitter{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedEmitter) Emit(evt events.Event) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.Recorder.Emit(evt)
}

func TestSlowEmitterDoesNotBlockEngine(t *testing.T) {
	h := newHarness(t, 10)
	l := h.createLottery(t, 10, 10, 0)
	h.store.credit(buyerA, testMint, 100)
	h.store.credit(buyerB, testMint, 100)
	gate := newGatedEmitter()
	h.engine.SetEmitter(gate)

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.engine.BuyTickets(buyerA, l.ID, testMint, 2)
		firstDone <- err
	}()
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("emitter never called")
	}

	viewDone := make(chan uint64, 1)
	go func() {
		got, err := h.engine.Lottery(l.ID)
		if err != nil {
			viewDone <- 0
			return
		}
		viewDone <- got.SoldCount()
	}()
	select {
	case sold := <-viewDone:
		if sold != 2 {
			t.Fatalf("sold during emit = %d, want 2", sold)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read blocked behind emitter")
	}

	secondDone := make(chan error, 1)
	go func() {
		_, err := h.engine.BuyTickets(buyerB, l.ID, testMint, 1)
		secondDone <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for h.lottery(t, l.ID).SoldCount() != 3 {
		if time.Now().After(deadline) {
			t.Fatal("second purchase blocked behind emitter")
		}
		time.Sleep(time.Millisecond)
	}
	if got := len(gate.Types()); got != 0 {
		t.Fatalf("recorded %d events before release, want 0", got)
	}

	close(gate.release)
	for _, done := range []chan error{firstDone, secondDone} {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("buy: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("purchase did not return")
		}
	}
	evts := gate.Events()
	if len(evts) != 2 {
		t.Fatalf("recorded %d events, want 2", len(evts))
	}
	for i, want := range [][20]byte{buyerA, buyerB} {
		payload, ok := evts[i].(events.Payload)
		if !ok {
			t.Fatalf("event %d has no payload", i)
		}
		if got := payload.Event().Attributes["buyer"]; got != hexAddr(want) {
			t.Fatalf("event %d buyer = %s, want %x", i, got, want)
		}
	}
}
