package lottery

import (
	"encoding/hex"
	"strconv"

	"rafflechain/core/types"
)

const (
	EventTypeFeeConfigCreated  = "lottery.fee_config.created"
	EventTypeFeeConfigUpdated  = "lottery.fee_config.updated"
	EventTypeLotteryCreated    = "lottery.created"
	EventTypePrizeFunded       = "lottery.prize_funded"
	EventTypeLotteryOpened     = "lottery.opened"
	EventTypeTicketsPurchased  = "lottery.tickets_purchased"
	EventTypeWinnersRevealed   = "lottery.winners_revealed"
	EventTypePrizeClaimed      = "lottery.prize_claimed"
	EventTypeProceedsCollected = "lottery.proceeds_collected"
	EventTypeLotterySettled    = "lottery.settled"
)

type lotteryEvent struct {
	evt *types.Event
}

func (e lotteryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e lotteryEvent) Event() *types.Event { return e.evt }

func hexAddr(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func newFeeConfigEvent(eventType string, cfg *FeeConfig) *types.Event {
	evt := types.NewEvent(eventType)
	if cfg == nil {
		return evt
	}
	evt.Attributes["owner"] = hexAddr(cfg.Owner)
	evt.Attributes["feePercent"] = strconv.FormatUint(uint64(cfg.FeePercent), 10)
	evt.Attributes["feeRecipient"] = hexAddr(cfg.FeeRecipient)
	if cfg.Admin != ([20]byte{}) {
		evt.Attributes["admin"] = hexAddr(cfg.Admin)
	}
	return evt
}

func newLotteryEvent(eventType string, l *Lottery) *types.Event {
	evt := types.NewEvent(eventType)
	if l == nil {
		return evt
	}
	evt.Attributes["id"] = hexAddr(l.ID)
	evt.Attributes["creator"] = hexAddr(l.Creator)
	evt.Attributes["mint"] = hexAddr(l.TokenMint)
	evt.Attributes["status"] = l.Status.String()
	evt.Attributes["sold"] = strconv.FormatUint(l.SoldCount(), 10)
	evt.Attributes["remaining"] = strconv.FormatUint(l.RemainingCount(), 10)
	return evt
}

// NewCreatedEvent returns the canonical payload for a newly created lottery.
func NewCreatedEvent(l *Lottery) *types.Event {
	evt := newLotteryEvent(EventTypeLotteryCreated, l)
	if l != nil {
		evt.Attributes["ticketPrice"] = strconv.FormatUint(l.TicketPrice, 10)
		evt.Attributes["ticketAmount"] = strconv.FormatUint(l.TicketAmount, 10)
		evt.Attributes["end"] = strconv.FormatInt(l.End, 10)
	}
	return evt
}

// NewPrizeFundedEvent is emitted when the organizer deposits prize tokens.
func NewPrizeFundedEvent(l *Lottery, amount uint64) *types.Event {
	evt := newLotteryEvent(EventTypePrizeFunded, l)
	evt.Attributes["amount"] = strconv.FormatUint(amount, 10)
	return evt
}

// NewTicketsPurchasedEvent carries the allocated range and the payment split.
func NewTicketsPurchasedEvent(l *Lottery, r TicketRange, fee, net uint64) *types.Event {
	evt := newLotteryEvent(EventTypeTicketsPurchased, l)
	evt.Attributes["buyer"] = hexAddr(r.Owner)
	evt.Attributes["firstTicket"] = strconv.FormatUint(r.Start, 10)
	evt.Attributes["count"] = strconv.FormatUint(r.Count, 10)
	evt.Attributes["fee"] = strconv.FormatUint(fee, 10)
	evt.Attributes["proceeds"] = strconv.FormatUint(net, 10)
	return evt
}

// NewWinnersRevealedEvent lists the winning tickets in draw order.
func NewWinnersRevealedEvent(l *Lottery) *types.Event {
	evt := newLotteryEvent(EventTypeWinnersRevealed, l)
	if l == nil {
		return evt
	}
	evt.Attributes["winners"] = strconv.Itoa(len(l.Winners))
	evt.Attributes["prizePool"] = strconv.FormatUint(l.PrizePool, 10)
	for i, w := range l.Winners {
		key := "winner." + strconv.Itoa(i)
		evt.Attributes[key] = hexAddr(w.Participant)
		evt.Attributes[key+".ticket"] = strconv.FormatUint(w.TicketID, 10)
	}
	return evt
}

// NewPrizeClaimedEvent is emitted when a winner withdraws their share.
func NewPrizeClaimedEvent(l *Lottery, winner [20]byte, amount uint64) *types.Event {
	evt := newLotteryEvent(EventTypePrizeClaimed, l)
	evt.Attributes["winner"] = hexAddr(winner)
	evt.Attributes["amount"] = strconv.FormatUint(amount, 10)
	return evt
}

// NewProceedsCollectedEvent is emitted when the organizer drains proceeds.
func NewProceedsCollectedEvent(l *Lottery, amount uint64) *types.Event {
	evt := newLotteryEvent(EventTypeProceedsCollected, l)
	evt.Attributes["amount"] = strconv.FormatUint(amount, 10)
	return evt
}
