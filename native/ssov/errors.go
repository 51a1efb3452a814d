package ssov

import (
	"errors"

	nativecommon "ssov/native/common"
)

var (
	ErrInvalidStrike                 = errors.New("ssov: invalid strike")
	ErrInvalidStrikeIndex            = errors.New("ssov: strike index out of range")
	ErrInvalidAmount                 = errors.New("ssov: amount must be positive")
	ErrInvalidInput                  = errors.New("ssov: invalid input")
	ErrInvalidState                  = errors.New("ssov: invalid state")
	ErrNoStrikesSet                  = errors.New("ssov: no strikes set for next epoch")
	ErrEpochNotBootstrapped          = errors.New("ssov: epoch not bootstrapped")
	ErrEpochAlreadyExpired           = errors.New("ssov: epoch already expired")
	ErrEpochNotYetExpired            = errors.New("ssov: epoch not yet expired")
	ErrEpochAlreadyOpen              = errors.New("ssov: current epoch has not expired")
	ErrEpochExpiredOrNotBootstrapped = errors.New("ssov: epoch expired or not bootstrapped")
	ErrDepositsClosed                = errors.New("ssov: deposits closed while epoch is running")
	ErrInsufficientLiquidity         = errors.New("ssov: insufficient liquidity at strike")
	ErrInsufficientOptions           = errors.New("ssov: insufficient option balance")
	ErrNotInTheMoney                 = errors.New("ssov: option not in the money")
	ErrZeroBalance                   = errors.New("ssov: nothing to withdraw")
	ErrArithmeticUnderflow           = errors.New("ssov: arithmetic underflow")
	ErrArithmeticOverflow            = errors.New("ssov: arithmetic overflow")
	ErrUnauthorized                  = errors.New("ssov: caller not authorized")
	ErrNotPaused                     = errors.New("ssov: vault not paused")
	ErrAlreadyPaused                 = errors.New("ssov: vault already paused")
	// ErrPaused is returned by guarded operations while the vault is paused.
	ErrPaused = nativecommon.ErrModulePaused
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidStrike, "invalid_strike"},
	{ErrInvalidStrikeIndex, "invalid_strike_index"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidInput, "invalid_input"},
	{ErrInvalidState, "invalid_state"},
	{ErrNoStrikesSet, "no_strikes_set"},
	{ErrEpochNotBootstrapped, "epoch_not_bootstrapped"},
	{ErrEpochAlreadyExpired, "epoch_already_expired"},
	{ErrEpochNotYetExpired, "epoch_not_yet_expired"},
	{ErrEpochAlreadyOpen, "epoch_already_open"},
	{ErrEpochExpiredOrNotBootstrapped, "epoch_expired_or_not_bootstrapped"},
	{ErrDepositsClosed, "deposits_closed"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrInsufficientOptions, "insufficient_options"},
	{ErrNotInTheMoney, "not_in_the_money"},
	{ErrZeroBalance, "zero_balance"},
	{ErrArithmeticUnderflow, "arithmetic_underflow"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNotPaused, "not_paused"},
	{ErrAlreadyPaused, "already_paused"},
	{ErrPaused, "paused"},
}

// ErrorCode maps an error returned by the engine to a stable machine-readable
// code. Errors from collaborators map to "internal".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "internal"
}

// IsUserError reports whether err stems from caller input or vault state
// rather than a collaborator or storage fault.
func IsUserError(err error) bool {
	code := ErrorCode(err)
	return code != "" && code != "internal" && code != "arithmetic_overflow"
}
