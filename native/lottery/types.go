package lottery

import (
	"fmt"
)

// Status represents the lifecycle stage of a lottery. Transitions only move
// forward: Created -> Selling -> Revealed -> Settled.
type Status uint8

const (
	StatusCreated Status = iota
	StatusSelling
	StatusRevealed
	StatusSettled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusSelling, StatusRevealed, StatusSettled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusSelling:
		return "selling"
	case StatusRevealed:
		return "revealed"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// MaxFeePercent is the inclusive upper bound for FeeConfig.FeePercent.
const MaxFeePercent = 100

// FeeConfig is the per-organizer fee and routing record. It is stored at
// FeeConfigAddress(Owner).
type FeeConfig struct {
	Owner        [20]byte
	FeePercent   uint8
	FeeRecipient [20]byte
	Admin        [20]byte
	// TokenMint pins the mint lotteries under this config must use. The zero
	// value accepts any registered mint.
	TokenMint       [20]byte
	CurrentRound    uint64
	CurrentRoundKey [20]byte
}

// Clone returns a copy of the fee configuration.
func (c *FeeConfig) Clone() *FeeConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// CanUpdate reports whether caller may modify the configuration.
func (c *FeeConfig) CanUpdate(caller [20]byte) bool {
	if c == nil {
		return false
	}
	if caller == c.Owner {
		return true
	}
	return c.Admin != ([20]byte{}) && caller == c.Admin
}

// TicketRange is a contiguous block of ticket ids sold to one participant in
// a single purchase (or several adjacent purchases by the same participant).
type TicketRange struct {
	Start uint64
	Count uint64
	Owner [20]byte
}

// End returns the first ticket id after the range.
func (r TicketRange) End() uint64 { return r.Start + r.Count }

// Contains reports whether id falls inside the range.
func (r TicketRange) Contains(id uint64) bool { return id >= r.Start && id < r.End() }

// Winner records one winning ticket and its settlement progress.
type Winner struct {
	Participant   [20]byte
	TicketID      uint64
	Claimed       bool
	ClaimedAmount uint64
}

// Lottery captures the full state of a single raffle round.
type Lottery struct {
	ID            [20]byte
	Creator       [20]byte
	TokenMint     [20]byte
	FeeOwner      [20]byte
	PrizeVault    [20]byte
	ProceedsVault [20]byte
	TicketPrice   uint64
	TicketAmount  uint64
	// NextTicket is the first unsold ticket id. Tickets are handed out in
	// ascending order so the unsold set is always [NextTicket, TicketAmount).
	NextTicket uint64
	// Sales is ordered by Start and tiles [0, NextTicket) without gaps.
	Sales              []TicketRange
	Start              int64
	End                int64
	MaxTicketsPerBuyer uint64
	Status             Status
	Winners            []Winner
	// PrizePool is the prize vault balance captured at reveal time; every
	// winner share is computed from it.
	PrizePool         uint64
	Collected         uint64
	ProceedsCollected bool
}

// Clone returns a deep copy of the lottery so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Lottery) Clone() *Lottery {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Sales = append([]TicketRange(nil), l.Sales...)
	clone.Winners = append([]Winner(nil), l.Winners...)
	return &clone
}

// SoldCount returns the number of tickets assigned to participants.
func (l *Lottery) SoldCount() uint64 { return l.NextTicket }

// RemainingCount returns the number of unsold tickets.
func (l *Lottery) RemainingCount() uint64 {
	if l.NextTicket >= l.TicketAmount {
		return 0
	}
	return l.TicketAmount - l.NextTicket
}

// TicketsRemaining lists the unsold ticket ids in allocation order.
func (l *Lottery) TicketsRemaining() []uint64 {
	out := make([]uint64, 0, l.RemainingCount())
	for id := l.NextTicket; id < l.TicketAmount; id++ {
		out = append(out, id)
	}
	return out
}

// Buyers expands the sales index into participant -> ticket ids.
func (l *Lottery) Buyers() map[[20]byte][]uint64 {
	out := make(map[[20]byte][]uint64)
	for _, r := range l.Sales {
		for id := r.Start; id < r.End(); id++ {
			out[r.Owner] = append(out[r.Owner], id)
		}
	}
	return out
}

// HasDeadline reports whether an end timestamp is configured.
func (l *Lottery) HasDeadline() bool { return l.End > 0 }

// DeadlinePassed reports whether now is at or beyond the configured end.
func (l *Lottery) DeadlinePassed(now int64) bool { return l.HasDeadline() && now >= l.End }

// WinnerEntries returns the indexes of Winners owned by participant.
func (l *Lottery) WinnerEntries(participant [20]byte) []int {
	var idx []int
	for i, w := range l.Winners {
		if w.Participant == participant {
			idx = append(idx, i)
		}
	}
	return idx
}

func (l *Lottery) allClaimed() bool {
	for _, w := range l.Winners {
		if !w.Claimed {
			return false
		}
	}
	return len(l.Winners) > 0
}

// Validate checks the structural invariants that must hold in every state.
func (l *Lottery) Validate() error {
	if l == nil {
		return fmt.Errorf("lottery: nil record")
	}
	if !l.Status.Valid() {
		return fmt.Errorf("lottery: invalid status %d", l.Status)
	}
	if l.TicketPrice == 0 || l.TicketAmount == 0 {
		return fmt.Errorf("lottery: price and ticket amount must be positive")
	}
	if l.NextTicket > l.TicketAmount {
		return fmt.Errorf("lottery: next ticket %d beyond amount %d", l.NextTicket, l.TicketAmount)
	}
	var cursor uint64
	for i, r := range l.Sales {
		if r.Count == 0 {
			return fmt.Errorf("lottery: empty sale range at %d", i)
		}
		if r.Start != cursor {
			return fmt.Errorf("lottery: sale range %d starts at %d, expected %d", i, r.Start, cursor)
		}
		cursor = r.End()
	}
	if cursor != l.NextTicket {
		return fmt.Errorf("lottery: sales cover %d tickets, next ticket is %d", cursor, l.NextTicket)
	}
	sold, err := checkedMul(l.TicketPrice, l.SoldCount())
	if err != nil {
		return err
	}
	if l.Collected > sold {
		return fmt.Errorf("lottery: collected %d exceeds gross sales %d", l.Collected, sold)
	}
	seen := make(map[uint64]struct{}, len(l.Winners))
	for _, w := range l.Winners {
		if w.TicketID >= l.NextTicket {
			return fmt.Errorf("lottery: winning ticket %d was never sold", w.TicketID)
		}
		if _, dup := seen[w.TicketID]; dup {
			return fmt.Errorf("lottery: ticket %d drawn twice", w.TicketID)
		}
		seen[w.TicketID] = struct{}{}
	}
	if l.Status >= StatusRevealed && len(l.Winners) == 0 {
		return fmt.Errorf("lottery: revealed without winners")
	}
	return nil
}
