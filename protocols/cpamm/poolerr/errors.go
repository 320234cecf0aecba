// Package poolerr holds the coded error set shared by every cpamm package.
package poolerr

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace is the registry namespace for all pool errors.
const Codespace = "cpamm"

// CodeOffset is the first code of the pool error range.
const CodeOffset uint32 = 6000

// Codes start at 6000 to line up with the program's custom error range.
var (
	ErrMathOverflow                        = errorsmod.Register(Codespace, 6000, "math operation overflow")
	ErrTypeCastFailed                      = errorsmod.Register(Codespace, 6001, "type cast error")
	ErrInvalidBaseFeeMode                  = errorsmod.Register(Codespace, 6002, "invalid base fee mode")
	ErrUndetermined                        = errorsmod.Register(Codespace, 6003, "undetermined error")
	ErrInvalidFeeTimeScheduler             = errorsmod.Register(Codespace, 6004, "invalid fee time scheduler")
	ErrInvalidFeeMarketCapScheduler        = errorsmod.Register(Codespace, 6005, "invalid fee market cap scheduler")
	ErrInvalidFeeRateLimiter               = errorsmod.Register(Codespace, 6006, "invalid fee rate limiter")
	ErrExceedMaxFeeBps                     = errorsmod.Register(Codespace, 6007, "exceeded max fee bps")
	ErrInvalidFee                          = errorsmod.Register(Codespace, 6008, "invalid fee")
	ErrInvalidPoolVersion                  = errorsmod.Register(Codespace, 6009, "invalid pool version")
	ErrAmountIsZero                        = errorsmod.Register(Codespace, 6010, "amount is zero")
	ErrExceededSlippage                    = errorsmod.Register(Codespace, 6011, "exceeded slippage tolerance")
	ErrFailToValidateSingleSwapInstruction = errorsmod.Register(Codespace, 6012, "fail to validate single swap instruction in rate limiter")
	ErrInvalidInput                        = errorsmod.Register(Codespace, 6013, "invalid input")
	ErrPriceRangeViolation                 = errorsmod.Register(Codespace, 6014, "trade is over price range")
	ErrPoolDisabled                        = errorsmod.Register(Codespace, 6015, "pool disabled")
	ErrCannotUpdateBaseFee                 = errorsmod.Register(Codespace, 6016, "cannot update base fee")
	ErrInvalidUpdatePoolFeesParameters     = errorsmod.Register(Codespace, 6017, "invalid update pool fees parameters")
	ErrPoolNotFound                        = errorsmod.Register(Codespace, 6018, "pool not found")
	ErrMintNotFound                        = errorsmod.Register(Codespace, 6019, "mint not found")
	ErrInvalidPoolStatus                   = errorsmod.Register(Codespace, 6020, "invalid pool status")
)

// Code returns the registered code of err, or 0 when err carries none.
func Code(err error) uint32 {
	if err == nil {
		return 0
	}
	_, code, _ := errorsmod.ABCIInfo(err, false)
	return code
}
