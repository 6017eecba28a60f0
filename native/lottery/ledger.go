package lottery

import (
	"fmt"
	"sort"
)

// allocate hands out the next count ticket ids to owner. Adjacent purchases
// by the same owner are folded into the previous range.
func (l *Lottery) allocate(owner [20]byte, count uint64) (TicketRange, error) {
	if count == 0 {
		return TicketRange{}, fmt.Errorf("%w: ticket count must be positive", ErrInvalidArgument)
	}
	if count > l.RemainingCount() {
		return TicketRange{}, fmt.Errorf("%w: requested %d, remaining %d", ErrInsufficientTickets, count, l.RemainingCount())
	}
	allocated := TicketRange{Start: l.NextTicket, Count: count, Owner: owner}
	if n := len(l.Sales); n > 0 && l.Sales[n-1].Owner == owner && l.Sales[n-1].End() == allocated.Start {
		l.Sales[n-1].Count += count
	} else {
		l.Sales = append(l.Sales, allocated)
	}
	l.NextTicket += count
	return allocated, nil
}

// OwnerOf resolves the participant holding ticket id.
func (l *Lottery) OwnerOf(id uint64) ([20]byte, bool) {
	if id >= l.NextTicket {
		return [20]byte{}, false
	}
	idx := sort.Search(len(l.Sales), func(i int) bool { return l.Sales[i].End() > id })
	if idx == len(l.Sales) || !l.Sales[idx].Contains(id) {
		return [20]byte{}, false
	}
	return l.Sales[idx].Owner, true
}

// TicketCountOf returns how many tickets owner holds.
func (l *Lottery) TicketCountOf(owner [20]byte) uint64 {
	var total uint64
	for _, r := range l.Sales {
		if r.Owner == owner {
			total += r.Count
		}
	}
	return total
}

// TicketsOf lists the ticket ids held by owner in ascending order.
func (l *Lottery) TicketsOf(owner [20]byte) []uint64 {
	var out []uint64
	for _, r := range l.Sales {
		if r.Owner != owner {
			continue
		}
		for id := r.Start; id < r.End(); id++ {
			out = append(out, id)
		}
	}
	return out
}
