package lottery

import (
	"fmt"

	"rafflechain/core/types"
)

// Purchase describes the outcome of a successful BuyTickets call.
type Purchase struct {
	Tickets TicketRange
	Total   uint64
	Fee     uint64
	Net     uint64
}

// BuyTickets allocates the next count tickets to buyer and splits the payment
// between the fee recipient and the proceeds vault. Either the allocation and
// both transfers commit together or nothing changes.
func (e *Engine) BuyTickets(buyer, id, mint [20]byte, count uint64) (*Purchase, error) {
	var out *Purchase
	err := e.apply(func(st State) ([]*types.Event, error) {
		l, err := loadLottery(st, id)
		if err != nil {
			return nil, err
		}
		if l.Status != StatusCreated && l.Status != StatusSelling {
			return nil, fmt.Errorf("%w: cannot buy in status %s", ErrInvalidState, l.Status)
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: ticket count must be positive", ErrInvalidArgument)
		}
		if l.DeadlinePassed(e.now()) {
			return nil, ErrLotteryClosed
		}
		if count > l.RemainingCount() {
			return nil, fmt.Errorf("%w: requested %d, remaining %d", ErrInsufficientTickets, count, l.RemainingCount())
		}
		if l.MaxTicketsPerBuyer > 0 {
			held := l.TicketCountOf(buyer)
			if held+count > l.MaxTicketsPerBuyer {
				return nil, fmt.Errorf("%w: holding %d, limit %d", ErrMaxTicketsPerBuyer, held, l.MaxTicketsPerBuyer)
			}
		}
		if mint != l.TokenMint {
			return nil, ErrMintMismatch
		}
		total, err := checkedMul(l.TicketPrice, count)
		if err != nil {
			return nil, err
		}
		cfg, err := loadFeeConfig(st, l.FeeOwner)
		if err != nil {
			return nil, err
		}
		fee, net := splitFee(total, cfg.FeePercent)
		collected, err := checkedAdd(l.Collected, net)
		if err != nil {
			return nil, err
		}
		balance, err := st.Balance(buyer, l.TokenMint)
		if err != nil {
			return nil, err
		}
		if balance < total {
			return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, total)
		}
		if err := transfer(st, l.TokenMint, buyer, cfg.FeeRecipient, fee); err != nil {
			return nil, err
		}
		if err := transfer(st, l.TokenMint, buyer, l.ProceedsVault, net); err != nil {
			return nil, err
		}
		allocated, err := l.allocate(buyer, count)
		if err != nil {
			return nil, err
		}
		l.Collected = collected
		evts := make([]*types.Event, 0, 2)
		if l.Status == StatusCreated {
			l.Status = StatusSelling
			evts = append(evts, newLotteryEvent(EventTypeLotteryOpened, l))
		}
		if err := st.LotteryPut(l); err != nil {
			return nil, err
		}
		out = &Purchase{Tickets: allocated, Total: total, Fee: fee, Net: net}
		evts = append(evts, NewTicketsPurchasedEvent(l, allocated, fee, net))
		return evts, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
