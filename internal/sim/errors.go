package sim

import "errors"

// Order rejections. A rejected order returns the prior state unchanged.
var (
	ErrUnknownInvestor    = errors.New("sim: unknown investor")
	ErrUnknownStock       = errors.New("sim: unknown stock")
	ErrStockDelisted      = errors.New("sim: stock is delisted")
	ErrInvalidShares      = errors.New("sim: share count must be positive")
	ErrInsufficientCash   = errors.New("sim: insufficient cash")
	ErrInsufficientShares = errors.New("sim: insufficient shares")
)

// ErrNoNetwork is returned when explaining an owner without a decision network.
var ErrNoNetwork = errors.New("sim: no decision network")
