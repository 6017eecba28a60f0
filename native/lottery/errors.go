package lottery

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument     = errors.New("lottery: invalid argument")
	ErrInvalidFeePercent   = fmt.Errorf("%w: fee percent must be within [0,100]", ErrInvalidArgument)
	ErrInvalidState        = errors.New("lottery: operation not valid in current state")
	ErrLotteryClosed       = errors.New("lottery: round closed")
	ErrInsufficientTickets = errors.New("lottery: not enough tickets remaining")
	ErrNotReady            = errors.New("lottery: not ready for reveal")
	ErrNoParticipants      = errors.New("lottery: no tickets sold")
	ErrAlreadyRevealed     = errors.New("lottery: winners already revealed")
	ErrUnauthorized        = errors.New("lottery: unauthorized")
	ErrAlreadyClaimed      = errors.New("lottery: prize already claimed")
	ErrAlreadyCollected    = errors.New("lottery: proceeds already collected")
	ErrArithmeticOverflow  = errors.New("lottery: arithmetic overflow")
	ErrMintMismatch        = errors.New("lottery: token mint mismatch")
	ErrAlreadyExists       = errors.New("lottery: already exists")
	ErrNotFound            = errors.New("lottery: not found")
	ErrInsufficientFunds   = errors.New("lottery: insufficient balance")
	ErrMaxTicketsPerBuyer  = errors.New("lottery: maximum tickets per buyer reached")

	errNilState = errors.New("lottery engine: state not configured")
)
