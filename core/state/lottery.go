package state

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/rlp"

	"rafflechain/native/lottery"
)

// storedLottery mirrors lottery.Lottery with RLP-friendly field types.
type storedLottery struct {
	ID                 [20]byte
	Creator            [20]byte
	TokenMint          [20]byte
	FeeOwner           [20]byte
	PrizeVault         [20]byte
	ProceedsVault      [20]byte
	TicketPrice        uint64
	TicketAmount       uint64
	NextTicket         uint64
	Sales              []lottery.TicketRange
	Start              uint64
	End                uint64
	MaxTicketsPerBuyer uint64
	Status             uint8
	Winners            []lottery.Winner
	PrizePool          uint64
	Collected          uint64
	ProceedsCollected  bool
}

func newStoredLottery(l *lottery.Lottery) (*storedLottery, error) {
	if l.Start < 0 || l.End < 0 {
		return nil, fmt.Errorf("state: negative lottery timestamps")
	}
	return &storedLottery{
		ID:                 l.ID,
		Creator:            l.Creator,
		TokenMint:          l.TokenMint,
		FeeOwner:           l.FeeOwner,
		PrizeVault:         l.PrizeVault,
		ProceedsVault:      l.ProceedsVault,
		TicketPrice:        l.TicketPrice,
		TicketAmount:       l.TicketAmount,
		NextTicket:         l.NextTicket,
		Sales:              l.Sales,
		Start:              uint64(l.Start),
		End:                uint64(l.End),
		MaxTicketsPerBuyer: l.MaxTicketsPerBuyer,
		Status:             uint8(l.Status),
		Winners:            l.Winners,
		PrizePool:          l.PrizePool,
		Collected:          l.Collected,
		ProceedsCollected:  l.ProceedsCollected,
	}, nil
}

func (s *storedLottery) toLottery() (*lottery.Lottery, error) {
	if s.Start > math.MaxInt64 || s.End > math.MaxInt64 {
		return nil, fmt.Errorf("state: lottery timestamp out of range")
	}
	l := &lottery.Lottery{
		ID:                 s.ID,
		Creator:            s.Creator,
		TokenMint:          s.TokenMint,
		FeeOwner:           s.FeeOwner,
		PrizeVault:         s.PrizeVault,
		ProceedsVault:      s.ProceedsVault,
		TicketPrice:        s.TicketPrice,
		TicketAmount:       s.TicketAmount,
		NextTicket:         s.NextTicket,
		Sales:              s.Sales,
		Start:              int64(s.Start),
		End:                int64(s.End),
		MaxTicketsPerBuyer: s.MaxTicketsPerBuyer,
		Status:             lottery.Status(s.Status),
		Winners:            s.Winners,
		PrizePool:          s.PrizePool,
		Collected:          s.Collected,
		ProceedsCollected:  s.ProceedsCollected,
	}
	return l.Clone(), nil
}

func decodeLottery(data []byte) (*lottery.Lottery, error) {
	stored := new(storedLottery)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode lottery: %w", err)
	}
	return stored.toLottery()
}

// FeeConfigGet loads the fee configuration owned by owner.
func (t *Txn) FeeConfigGet(owner [20]byte) (*lottery.FeeConfig, bool, error) {
	data, ok, err := t.get(feeConfigKey(owner))
	if err != nil || !ok {
		return nil, false, err
	}
	cfg := new(lottery.FeeConfig)
	if err := rlp.DecodeBytes(data, cfg); err != nil {
		return nil, false, fmt.Errorf("state: decode fee config: %w", err)
	}
	return cfg, true, nil
}

// FeeConfigPut stores cfg under the organizer's derived address.
func (t *Txn) FeeConfigPut(cfg *lottery.FeeConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil fee config")
	}
	if cfg.FeePercent > lottery.MaxFeePercent {
		return lottery.ErrInvalidFeePercent
	}
	encoded, err := rlp.EncodeToBytes(cfg)
	if err != nil {
		return err
	}
	return t.put(feeConfigKey(cfg.Owner), encoded)
}

// LotteryGet loads a lottery by id.
func (t *Txn) LotteryGet(id [20]byte) (*lottery.Lottery, bool, error) {
	data, ok, err := t.get(lotteryKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	l, err := decodeLottery(data)
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

// LotteryPut validates and stores the lottery record.
func (t *Txn) LotteryPut(l *lottery.Lottery) error {
	if err := l.Validate(); err != nil {
		return err
	}
	stored, err := newStoredLottery(l)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	if err := t.put(lotteryKey(l.ID), encoded); err != nil {
		return err
	}
	for _, vault := range [][20]byte{l.PrizeVault, l.ProceedsVault} {
		if err := t.put(vaultKey(vault), l.ID[:]); err != nil {
			return err
		}
	}
	return nil
}

// VaultLottery reports which lottery owns the escrow vault at addr.
func (t *Txn) VaultLottery(addr [20]byte) ([20]byte, bool, error) {
	var id [20]byte
	data, ok, err := t.get(vaultKey(addr))
	if err != nil || !ok {
		return id, false, err
	}
	if len(data) != len(id) {
		return id, false, fmt.Errorf("state: corrupt vault index entry")
	}
	copy(id[:], data)
	return id, true, nil
}

// Balance returns the balance of owner in mint. Unknown accounts hold zero.
func (t *Txn) Balance(owner, mint [20]byte) (uint64, error) {
	data, ok, err := t.get(balanceKey(owner, mint))
	if err != nil || !ok {
		return 0, err
	}
	var amount uint64
	if err := rlp.DecodeBytes(data, &amount); err != nil {
		return 0, fmt.Errorf("state: decode balance: %w", err)
	}
	return amount, nil
}

// SetBalance overwrites the balance of owner in mint.
func (t *Txn) SetBalance(owner, mint [20]byte, amount uint64) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return t.put(balanceKey(owner, mint), encoded)
}

// Lotteries returns every stored lottery ordered by id.
func (m *Manager) Lotteries() ([]*lottery.Lottery, error) {
	var (
		out     []*lottery.Lottery
		iterErr error
	)
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.db.Iterate(lotteryPrefix, func(_, value []byte) bool {
		l, err := decodeLottery(value)
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, l)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}
