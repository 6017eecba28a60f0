package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"rafflechain/core/state"
	"rafflechain/native/lottery"
)

const (
	codeLotteryInvalidParams       = -32030
	codeLotteryNotFound            = -32031
	codeLotteryForbidden           = -32032
	codeLotteryInvalidState        = -32033
	codeLotteryClosed              = -32034
	codeLotteryInsufficientTickets = -32035
	codeLotteryNotReady            = -32036
	codeLotteryNoParticipants      = -32037
	codeLotteryAlreadyRevealed     = -32038
	codeLotteryAlreadyClaimed      = -32039
	codeLotteryAlreadyCollected    = -32040
	codeLotteryOverflow            = -32041
	codeLotteryMintMismatch        = -32042
	codeLotteryAlreadyExists       = -32043
	codeLotteryInsufficientFunds   = -32044
	codeLotteryMaxTickets          = -32045
	codeLotteryUnavailable         = -32048
	codeLotteryInternal            = -32049
)

const maxEventsPerQuery = 1000

type feeConfigCreateParams struct {
	FeePercent   uint8  `json:"feePercent"`
	FeeRecipient string `json:"feeRecipient,omitempty"`
	Admin        string `json:"admin,omitempty"`
	Mint         string `json:"mint,omitempty"`
}

type feeConfigUpdateParams struct {
	Owner        string `json:"owner,omitempty"`
	FeePercent   uint8  `json:"feePercent"`
	FeeRecipient string `json:"feeRecipient,omitempty"`
}

type feeConfigQueryParams struct {
	Owner string `json:"owner"`
}

type lotteryCreateParams struct {
	ID                 string `json:"id,omitempty"`
	Mint               string `json:"mint"`
	FeeOwner           string `json:"feeOwner,omitempty"`
	TicketPrice        string `json:"ticketPrice"`
	TicketAmount       string `json:"ticketAmount"`
	End                int64  `json:"end,omitempty"`
	MaxTicketsPerBuyer string `json:"maxTicketsPerBuyer,omitempty"`
}

type lotteryIDParams struct {
	ID string `json:"id"`
}

type lotteryMintParams struct {
	ID   string `json:"id"`
	Mint string `json:"mint"`
}

type lotteryFundParams struct {
	ID     string `json:"id"`
	Mint   string `json:"mint"`
	Amount string `json:"amount"`
}

type lotteryBuyParams struct {
	ID    string `json:"id"`
	Mint  string `json:"mint"`
	Count string `json:"count"`
}

type lotteryRevealParams struct {
	ID      string `json:"id"`
	Winners int    `json:"winners,omitempty"`
}

type balanceParams struct {
	Owner string `json:"owner"`
	Mint  string `json:"mint"`
}

type eventsParams struct {
	ID    string `json:"id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type registerMintParams struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Decimals  uint8  `json:"decimals"`
	Authority string `json:"authority,omitempty"`
}

type mintToParams struct {
	Mint      string `json:"mint"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type amountResult struct {
	Amount string `json:"amount"`
}

func decodeSingleParam(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], dst)
}

func writeInvalidParams(w http.ResponseWriter, id interface{}, err error) {
	writeError(w, http.StatusBadRequest, id, codeLotteryInvalidParams, "invalid_params", err.Error())
}

var lotteryErrorTable = []struct {
	err     error
	status  int
	code    int
	message string
}{
	{lottery.ErrInvalidFeePercent, http.StatusBadRequest, codeLotteryInvalidParams, "invalid_fee_percent"},
	{lottery.ErrInvalidArgument, http.StatusBadRequest, codeLotteryInvalidParams, "invalid_params"},
	{lottery.ErrNotFound, http.StatusNotFound, codeLotteryNotFound, "not_found"},
	{state.ErrMintNotFound, http.StatusNotFound, codeLotteryNotFound, "not_found"},
	{lottery.ErrUnauthorized, http.StatusForbidden, codeLotteryForbidden, "forbidden"},
	{state.ErrMintUnauthorized, http.StatusForbidden, codeLotteryForbidden, "forbidden"},
	{state.ErrVaultRecipient, http.StatusForbidden, codeLotteryForbidden, "forbidden"},
	{lottery.ErrInvalidState, http.StatusConflict, codeLotteryInvalidState, "invalid_state"},
	{lottery.ErrLotteryClosed, http.StatusConflict, codeLotteryClosed, "lottery_closed"},
	{lottery.ErrInsufficientTickets, http.StatusConflict, codeLotteryInsufficientTickets, "insufficient_tickets"},
	{lottery.ErrNotReady, http.StatusConflict, codeLotteryNotReady, "not_ready"},
	{lottery.ErrNoParticipants, http.StatusConflict, codeLotteryNoParticipants, "no_participants"},
	{lottery.ErrAlreadyRevealed, http.StatusConflict, codeLotteryAlreadyRevealed, "already_revealed"},
	{lottery.ErrAlreadyClaimed, http.StatusConflict, codeLotteryAlreadyClaimed, "already_claimed"},
	{lottery.ErrAlreadyCollected, http.StatusConflict, codeLotteryAlreadyCollected, "already_collected"},
	{lottery.ErrArithmeticOverflow, http.StatusConflict, codeLotteryOverflow, "arithmetic_overflow"},
	{state.ErrBalanceOverflow, http.StatusConflict, codeLotteryOverflow, "arithmetic_overflow"},
	{lottery.ErrMintMismatch, http.StatusConflict, codeLotteryMintMismatch, "mint_mismatch"},
	{lottery.ErrAlreadyExists, http.StatusConflict, codeLotteryAlreadyExists, "already_exists"},
	{state.ErrMintExists, http.StatusConflict, codeLotteryAlreadyExists, "already_exists"},
	{lottery.ErrInsufficientFunds, http.StatusConflict, codeLotteryInsufficientFunds, "insufficient_funds"},
	{lottery.ErrMaxTicketsPerBuyer, http.StatusConflict, codeLotteryMaxTickets, "max_tickets_per_buyer"},
}

func writeLotteryError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	for _, entry := range lotteryErrorTable {
		if errors.Is(err, entry.err) {
			writeError(w, entry.status, id, entry.code, entry.message, err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, id, codeLotteryInternal, "internal_error", err.Error())
}

func (s *Server) handleCreateFeeConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params feeConfigCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	recipient, err := parseOptionalAccount(params.FeeRecipient, [20]byte{})
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	admin, err := parseOptionalAccount(params.Admin, [20]byte{})
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	var mint [20]byte
	if strings.TrimSpace(params.Mint) != "" {
		if mint, err = parseMint(params.Mint); err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	s.logCaller(r, req.Method, caller, "")
	cfg, err := s.engine.CreateFeeConfig(caller, params.FeePercent, recipient, admin, mint)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feeConfigToJSON(cfg))
}

func (s *Server) handleUpdateFeeConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params feeConfigUpdateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner, err := parseOptionalAccount(params.Owner, caller)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	var recipient *[20]byte
	if strings.TrimSpace(params.FeeRecipient) != "" {
		parsed, err := parseAccount(params.FeeRecipient)
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
		recipient = &parsed
	}
	s.logCaller(r, req.Method, caller, "")
	cfg, err := s.engine.UpdateFeeConfig(caller, owner, params.FeePercent, recipient)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feeConfigToJSON(cfg))
}

func (s *Server) handleCreateLottery(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params lotteryCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	var create lottery.CreateParams
	var err error
	if strings.TrimSpace(params.ID) != "" {
		if create.ID, err = parseLotteryID(params.ID); err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	if create.Mint, err = parseMint(params.Mint); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if create.FeeOwner, err = parseOptionalAccount(params.FeeOwner, [20]byte{}); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if create.TicketPrice, err = parseAmount("ticketPrice", params.TicketPrice); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if create.TicketAmount, err = parseAmount("ticketAmount", params.TicketAmount); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if create.MaxTicketsPerBuyer, err = parseOptionalAmount("maxTicketsPerBuyer", params.MaxTicketsPerBuyer); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	create.End = params.End
	s.logCaller(r, req.Method, caller, params.ID)
	created, err := s.engine.CreateLottery(caller, create)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, lotteryToJSON(created))
}

func (s *Server) handleFundPrize(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params lotteryFundParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	id, err := parseLotteryID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	mint, err := parseMint(params.Mint)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	s.logCaller(r, req.Method, caller, formatLotteryID(id))
	if err := s.engine.FundPrize(caller, id, mint, amount); err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: formatUint(amount)})
}

func (s *Server) handleOpenLottery(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params lotteryIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	id, err := parseLotteryID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	s.logCaller(r, req.Method, caller, formatLotteryID(id))
	if err := s.engine.Open(caller, id); err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	s.writeLottery(w, req.ID, id)
}

func (s *Server) handleBuyTickets(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params lotteryBuyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	id, err := parseLotteryID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	mint, err := parseMint(params.Mint)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	count, err := parseAmount("count", params.Count)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	s.logCaller(r, req.Method, caller, formatLotteryID(id))
	purchase, err := s.engine.BuyTickets(caller, id, mint, count)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, purchaseJSON{
		FirstTicket: formatUint(purchase.Tickets.Start),
		Count:       formatUint(purchase.Tickets.Count),
		Total:       formatUint(purchase.Total),
		Fee:         formatUint(purchase.Fee),
		Proceeds:    formatUint(purchase.Net),
	})
}

func (s *Server) handleRevealWinners(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params lotteryRevealParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	id, err := parseLotteryID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	if params.Winners < 0 {
		writeInvalidParams(w, req.ID, errors.New("winners must not be negative"))
		return
	}
	s.logCaller(r, req.Method, caller, formatLotteryID(id))
	winners, err := s.engine.RevealWinners(caller, id, params.Winners)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	out := make([]winnerJSON, 0, len(winners))
	for _, winner := range winners {
		out = append(out, winnerToJSON(winner))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleClaimPrize(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	id, mint, ok := s.decodeLotteryMint(w, req)
	if !ok {
		return
	}
	s.logCaller(r, req.Method, caller, formatLotteryID(id))
	paid, err := s.engine.ClaimPrize(caller, id, mint)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: formatUint(paid)})
}

func (s *Server) handleCollectProceeds(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	id, mint, ok := s.decodeLotteryMint(w, req)
	if !ok {
		return
	}
	s.logCaller(r, req.Method, caller, formatLotteryID(id))
	collected, err := s.engine.CollectProceeds(caller, id, mint)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: formatUint(collected)})
}

func (s *Server) decodeLotteryMint(w http.ResponseWriter, req *RPCRequest) ([20]byte, [20]byte, bool) {
	var params lotteryMintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return [20]byte{}, [20]byte{}, false
	}
	id, err := parseLotteryID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return [20]byte{}, [20]byte{}, false
	}
	mint, err := parseMint(params.Mint)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return [20]byte{}, [20]byte{}, false
	}
	return id, mint, true
}

func (s *Server) handleGetLottery(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params lotteryIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	id, err := parseLotteryID(params.ID)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	s.writeLottery(w, req.ID, id)
}

// writeLottery renders the lottery together with its live vault balances.
func (s *Server) writeLottery(w http.ResponseWriter, reqID interface{}, id [20]byte) {
	l, err := s.engine.Lottery(id)
	if err != nil {
		writeLotteryError(w, reqID, err)
		return
	}
	prize, proceeds, err := s.engine.VaultBalances(id)
	if err != nil {
		writeLotteryError(w, reqID, err)
		return
	}
	out := lotteryToJSON(l)
	out.PrizeBalance = formatUint(prize)
	out.ProceedsBalance = formatUint(proceeds)
	writeResult(w, reqID, out)
}

func (s *Server) handleGetFeeConfig(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params feeConfigQueryParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner, err := parseAccount(params.Owner)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	cfg, err := s.engine.FeeConfig(owner)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, feeConfigToJSON(cfg))
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	owner, err := parseAccount(params.Owner)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	mint, err := parseMint(params.Mint)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	balance, err := s.engine.Balance(owner, mint)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: formatUint(balance)})
}

func (s *Server) handleListLotteries(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.state == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeLotteryUnavailable, "state_unavailable", nil)
		return
	}
	list, err := s.state.Lotteries()
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	out := make([]lotteryJSON, 0, len(list))
	for _, l := range list {
		out = append(out, lotteryToJSON(l))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeLotteryUnavailable, "indexer_disabled", nil)
		return
	}
	var params eventsParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
	}
	lotteryID := ""
	if strings.TrimSpace(params.ID) != "" {
		id, err := parseLotteryID(params.ID)
		if err != nil {
			writeInvalidParams(w, req.ID, err)
			return
		}
		lotteryID = formatLotteryID(id)
	}
	limit := params.Limit
	if limit <= 0 || limit > maxEventsPerQuery {
		limit = maxEventsPerQuery
	}
	records, err := s.journal.Events(lotteryID, limit)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	out := make([]eventJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, eventToJSON(rec))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleRegisterMint(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params registerMintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	authority, err := parseOptionalAccount(params.Authority, caller)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	s.logCaller(r, req.Method, caller, "")
	mint, err := s.state.RegisterMint(params.Symbol, params.Name, params.Decimals, authority)
	if err != nil {
		if errors.Is(err, state.ErrMintExists) {
			writeLotteryError(w, req.ID, err)
			return
		}
		writeInvalidParams(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"mint": formatMint(mint)})
}

func (s *Server) handleMintTo(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte) {
	var params mintToParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	mint, err := parseMint(params.Mint)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	recipient, err := parseAccount(params.Recipient)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeInvalidParams(w, req.ID, err)
		return
	}
	s.logCaller(r, req.Method, caller, "")
	balance, err := s.state.MintTo(caller, mint, recipient, amount)
	if err != nil {
		writeLotteryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, amountResult{Amount: formatUint(balance)})
}
