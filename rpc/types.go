package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"rafflechain/crypto"
	"rafflechain/indexer"
	"rafflechain/native/lottery"
)

type ticketRangeJSON struct {
	Start string `json:"start"`
	Count string `json:"count"`
	Owner string `json:"owner"`
}

type winnerJSON struct {
	Participant   string `json:"participant"`
	TicketID      string `json:"ticketId"`
	Claimed       bool   `json:"claimed"`
	ClaimedAmount string `json:"claimedAmount"`
}

type lotteryJSON struct {
	ID                 string            `json:"id"`
	Creator            string            `json:"creator"`
	Mint               string            `json:"mint"`
	FeeOwner           string            `json:"feeOwner"`
	PrizeVault         string            `json:"prizeVault"`
	ProceedsVault      string            `json:"proceedsVault"`
	TicketPrice        string            `json:"ticketPrice"`
	TicketAmount       string            `json:"ticketAmount"`
	Sold               string            `json:"sold"`
	Remaining          string            `json:"remaining"`
	Start              int64             `json:"start"`
	End                int64             `json:"end"`
	MaxTicketsPerBuyer string            `json:"maxTicketsPerBuyer"`
	Status             string            `json:"status"`
	Sales              []ticketRangeJSON `json:"sales"`
	Winners            []winnerJSON      `json:"winners,omitempty"`
	PrizePool          string            `json:"prizePool"`
	Collected          string            `json:"collected"`
	ProceedsCollected  bool              `json:"proceedsCollected"`
	PrizeBalance       string            `json:"prizeBalance,omitempty"`
	ProceedsBalance    string            `json:"proceedsBalance,omitempty"`
}

type feeConfigJSON struct {
	Owner        string  `json:"owner"`
	Address      string  `json:"address"`
	FeePercent   uint8   `json:"feePercent"`
	FeeRecipient string  `json:"feeRecipient"`
	Admin        *string `json:"admin,omitempty"`
	Mint         *string `json:"mint,omitempty"`
	CurrentRound uint64  `json:"currentRound"`
}

type purchaseJSON struct {
	FirstTicket string `json:"firstTicket"`
	Count       string `json:"count"`
	Total       string `json:"total"`
	Fee         string `json:"fee"`
	Proceeds    string `json:"proceeds"`
}

type eventJSON struct {
	Sequence   uint64            `json:"sequence"`
	Lottery    string            `json:"lottery,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt int64             `json:"recordedAt"`
}

func formatAccount(addr [20]byte) string { return crypto.FormatAccount(addr) }

func formatMint(addr [20]byte) string { return crypto.FormatMint(addr) }

func formatLotteryID(id [20]byte) string { return hex.EncodeToString(id[:]) }

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func lotteryToJSON(l *lottery.Lottery) lotteryJSON {
	out := lotteryJSON{
		ID:                 formatLotteryID(l.ID),
		Creator:            formatAccount(l.Creator),
		Mint:               formatMint(l.TokenMint),
		FeeOwner:           formatAccount(l.FeeOwner),
		PrizeVault:         formatAccount(l.PrizeVault),
		ProceedsVault:      formatAccount(l.ProceedsVault),
		TicketPrice:        formatUint(l.TicketPrice),
		TicketAmount:       formatUint(l.TicketAmount),
		Sold:               formatUint(l.SoldCount()),
		Remaining:          formatUint(l.RemainingCount()),
		Start:              l.Start,
		End:                l.End,
		MaxTicketsPerBuyer: formatUint(l.MaxTicketsPerBuyer),
		Status:             l.Status.String(),
		Sales:              make([]ticketRangeJSON, 0, len(l.Sales)),
		PrizePool:          formatUint(l.PrizePool),
		Collected:          formatUint(l.Collected),
		ProceedsCollected:  l.ProceedsCollected,
	}
	for _, r := range l.Sales {
		out.Sales = append(out.Sales, ticketRangeJSON{
			Start: formatUint(r.Start),
			Count: formatUint(r.Count),
			Owner: formatAccount(r.Owner),
		})
	}
	for _, w := range l.Winners {
		out.Winners = append(out.Winners, winnerToJSON(w))
	}
	return out
}

func winnerToJSON(w lottery.Winner) winnerJSON {
	return winnerJSON{
		Participant:   formatAccount(w.Participant),
		TicketID:      formatUint(w.TicketID),
		Claimed:       w.Claimed,
		ClaimedAmount: formatUint(w.ClaimedAmount),
	}
}

func feeConfigToJSON(cfg *lottery.FeeConfig) feeConfigJSON {
	out := feeConfigJSON{
		Owner:        formatAccount(cfg.Owner),
		Address:      formatAccount(lottery.FeeConfigAddress(cfg.Owner)),
		FeePercent:   cfg.FeePercent,
		FeeRecipient: formatAccount(cfg.FeeRecipient),
		CurrentRound: cfg.CurrentRound,
	}
	if cfg.Admin != ([20]byte{}) {
		admin := formatAccount(cfg.Admin)
		out.Admin = &admin
	}
	if cfg.TokenMint != ([20]byte{}) {
		mint := formatMint(cfg.TokenMint)
		out.Mint = &mint
	}
	return out
}

func eventToJSON(rec indexer.EventRecord) eventJSON {
	return eventJSON{
		Sequence:   uint64(rec.ID),
		Lottery:    rec.LotteryID,
		Type:       rec.Type,
		Attributes: rec.Attrs(),
		RecordedAt: rec.RecordedAt.Unix(),
	}
}

func parseMint(value string) ([20]byte, error) {
	return crypto.DecodeAs(crypto.MintPrefix, value)
}

// parseOptionalAccount returns fallback when value is blank.
func parseOptionalAccount(value string, fallback [20]byte) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return parseAccount(value)
}

func parseLotteryID(value string) ([20]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return [20]byte{}, errors.New("lottery id required")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid lottery id: %w", err)
	}
	if len(decoded) != 20 {
		return [20]byte{}, fmt.Errorf("lottery id must be 20 bytes, got %d", len(decoded))
	}
	var id [20]byte
	copy(id[:], decoded)
	return id, nil
}

// parseAmount reads a base-10 token amount or count that must fit in 64
// bits.
func parseAmount(field, value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%s required", field)
	}
	parsed, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if !parsed.IsUint64() {
		return 0, fmt.Errorf("%s exceeds 64 bits", field)
	}
	return parsed.Uint64(), nil
}

func parseOptionalAmount(field, value string) (uint64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	return parseAmount(field, value)
}
