package lottery

import (
	"fmt"

	"rafflechain/core/types"
)

// RevealWinners fixes the winner set exactly once. Anyone may trigger it once
// the lottery is sold out or its deadline has passed. A winnerCount of zero
// draws a single winner.
func (e *Engine) RevealWinners(caller, id [20]byte, winnerCount int) ([]Winner, error) {
	if winnerCount == 0 {
		winnerCount = 1
	}
	var winners []Winner
	err := e.apply(func(st State) ([]*types.Event, error) {
		l, err := loadLottery(st, id)
		if err != nil {
			return nil, err
		}
		if l.Status == StatusRevealed || l.Status == StatusSettled {
			return nil, ErrAlreadyRevealed
		}
		sold := l.SoldCount()
		if sold == 0 {
			return nil, ErrNoParticipants
		}
		if l.Status != StatusSelling {
			return nil, fmt.Errorf("%w: cannot reveal in status %s", ErrInvalidState, l.Status)
		}
		now := e.now()
		if l.RemainingCount() > 0 && !l.DeadlinePassed(now) {
			return nil, fmt.Errorf("%w: %d tickets unsold before deadline", ErrNotReady, l.RemainingCount())
		}
		if winnerCount < 0 {
			return nil, fmt.Errorf("%w: winner count must be positive", ErrInvalidArgument)
		}
		if e.maxWinners > 0 && winnerCount > e.maxWinners {
			return nil, fmt.Errorf("%w: at most %d winners", ErrInvalidArgument, e.maxWinners)
		}
		if uint64(winnerCount) > sold {
			return nil, fmt.Errorf("%w: %d winners requested from %d sold tickets", ErrInvalidArgument, winnerCount, sold)
		}
		src := e.entropy
		if src == nil {
			src = ClockEntropy{}
		}
		seed, err := src.Seed(l.ID, now)
		if err != nil {
			return nil, err
		}
		tickets, err := SelectWinners(seed, sold, winnerCount)
		if err != nil {
			return nil, err
		}
		l.Winners = make([]Winner, 0, len(tickets))
		for _, ticket := range tickets {
			owner, ok := l.OwnerOf(ticket)
			if !ok {
				return nil, fmt.Errorf("lottery: ticket %d has no owner", ticket)
			}
			l.Winners = append(l.Winners, Winner{Participant: owner, TicketID: ticket})
		}
		pool, err := st.Balance(l.PrizeVault, l.TokenMint)
		if err != nil {
			return nil, err
		}
		l.PrizePool = pool
		l.Status = StatusRevealed
		if err := st.LotteryPut(l); err != nil {
			return nil, err
		}
		winners = append([]Winner(nil), l.Winners...)
		evt := NewWinnersRevealedEvent(l)
		evt.Attributes["trigger"] = hexAddr(caller)
		return []*types.Event{evt}, nil
	})
	if err != nil {
		return nil, err
	}
	return winners, nil
}

// ClaimPrize pays caller the share of every winning entry they hold that has
// not been claimed yet. The entry that completes the payout also receives the
// division remainder so the prize vault drains exactly.
func (e *Engine) ClaimPrize(caller, id, mint [20]byte) (uint64, error) {
	var paid uint64
	err := e.apply(func(st State) ([]*types.Event, error) {
		l, err := loadLottery(st, id)
		if err != nil {
			return nil, err
		}
		if l.Status < StatusRevealed {
			return nil, fmt.Errorf("%w: winners not revealed", ErrInvalidState)
		}
		entries := l.WinnerEntries(caller)
		if len(entries) == 0 {
			return nil, fmt.Errorf("%w: caller holds no winning ticket", ErrUnauthorized)
		}
		if mint != l.TokenMint {
			return nil, ErrMintMismatch
		}
		pending := make([]int, 0, len(entries))
		for _, idx := range entries {
			if !l.Winners[idx].Claimed {
				pending = append(pending, idx)
			}
		}
		if len(pending) == 0 {
			return nil, ErrAlreadyClaimed
		}
		unclaimed := 0
		for _, w := range l.Winners {
			if !w.Claimed {
				unclaimed++
			}
		}
		share, remainder := prizeShare(l.PrizePool, len(l.Winners))
		var amount uint64
		for i, idx := range pending {
			entry := share
			if len(pending) == unclaimed && i == len(pending)-1 {
				entry += remainder
			}
			l.Winners[idx].Claimed = true
			l.Winners[idx].ClaimedAmount = entry
			amount += entry
		}
		if err := transfer(st, l.TokenMint, l.PrizeVault, caller, amount); err != nil {
			return nil, err
		}
		evts := []*types.Event{NewPrizeClaimedEvent(l, caller, amount)}
		if settled := settleIfComplete(l); settled != nil {
			evts = append(evts, settled)
		}
		if err := st.LotteryPut(l); err != nil {
			return nil, err
		}
		paid = amount
		return evts, nil
	})
	if err != nil {
		return 0, err
	}
	return paid, nil
}

// CollectProceeds transfers the proceeds vault balance to the creator. It may
// succeed once per lottery.
func (e *Engine) CollectProceeds(caller, id, mint [20]byte) (uint64, error) {
	var paid uint64
	err := e.apply(func(st State) ([]*types.Event, error) {
		l, err := loadLottery(st, id)
		if err != nil {
			return nil, err
		}
		if caller != l.Creator {
			return nil, fmt.Errorf("%w: only the creator may collect proceeds", ErrUnauthorized)
		}
		if l.Status < StatusRevealed {
			return nil, fmt.Errorf("%w: winners not revealed", ErrInvalidState)
		}
		if l.ProceedsCollected {
			return nil, ErrAlreadyCollected
		}
		if mint != l.TokenMint {
			return nil, ErrMintMismatch
		}
		amount, err := st.Balance(l.ProceedsVault, l.TokenMint)
		if err != nil {
			return nil, err
		}
		if err := transfer(st, l.TokenMint, l.ProceedsVault, caller, amount); err != nil {
			return nil, err
		}
		l.ProceedsCollected = true
		evts := []*types.Event{NewProceedsCollectedEvent(l, amount)}
		if settled := settleIfComplete(l); settled != nil {
			evts = append(evts, settled)
		}
		if err := st.LotteryPut(l); err != nil {
			return nil, err
		}
		paid = amount
		return evts, nil
	})
	if err != nil {
		return 0, err
	}
	return paid, nil
}

func settleIfComplete(l *Lottery) *types.Event {
	if l.Status != StatusRevealed || !l.ProceedsCollected || !l.allClaimed() {
		return nil
	}
	l.Status = StatusSettled
	return newLotteryEvent(EventTypeLotterySettled, l)
}
