package ssov

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Epoch is the persisted record of one epoch. Before bootstrap it collects the
// pending strike list and deposits.
type Epoch struct {
	Number       uint64
	Start        uint64
	End          uint64
	Strikes      []*uint256.Int
	Bootstrapped bool
	Expired      bool
	// SettlementPrice is the spot recorded at expiry.
	SettlementPrice *uint256.Int
	TotalDeposits   *uint256.Int
	// StakedPrincipal is what currently sits in the yield source for the epoch.
	StakedPrincipal   *uint256.Int
	CompoundedPrimary *uint256.Int
	SecondaryRewards  *uint256.Int
	// CollateralAtExpiry and SecondaryAtExpiry freeze the totals withdrawals
	// are computed against.
	CollateralAtExpiry *uint256.Int
	SecondaryAtExpiry  *uint256.Int
	// PrimaryReceivable and SecondaryReceivable are rewards the epoch earned
	// but the yield source could not pay at expiry. They shrink as later
	// harvests collect them for this epoch.
	PrimaryReceivable   *uint256.Int `rlp:"optional"`
	SecondaryReceivable *uint256.Int `rlp:"optional"`
	// ValueAtExpiryUSD is CollateralAtExpiry valued at the settlement price.
	ValueAtExpiryUSD *uint256.Int `rlp:"optional"`
}

// HasReceivable reports whether rewards are still owed to the epoch.
func (e *Epoch) HasReceivable() bool {
	return !isZero(e.PrimaryReceivable) || !isZero(e.SecondaryReceivable)
}

func (e *Epoch) normalize() {
	for _, p := range []**uint256.Int{
		&e.SettlementPrice, &e.TotalDeposits, &e.StakedPrincipal, &e.CompoundedPrimary,
		&e.SecondaryRewards, &e.CollateralAtExpiry, &e.SecondaryAtExpiry,
		&e.PrimaryReceivable, &e.SecondaryReceivable, &e.ValueAtExpiryUSD,
	} {
		if *p == nil {
			*p = zero()
		}
	}
	if e.Strikes == nil {
		e.Strikes = []*uint256.Int{}
	}
}

// Open reports whether the epoch accepts purchases and compounding.
func (e *Epoch) Open() bool {
	return e != nil && e.Bootstrapped && !e.Expired
}

// Clone returns a deep copy.
func (e *Epoch) Clone() *Epoch {
	if e == nil {
		return nil
	}
	out := *e
	out.Strikes = make([]*uint256.Int, len(e.Strikes))
	for i, s := range e.Strikes {
		out.Strikes[i] = clone(s)
	}
	out.SettlementPrice = clone(e.SettlementPrice)
	out.TotalDeposits = clone(e.TotalDeposits)
	out.StakedPrincipal = clone(e.StakedPrincipal)
	out.CompoundedPrimary = clone(e.CompoundedPrimary)
	out.SecondaryRewards = clone(e.SecondaryRewards)
	out.CollateralAtExpiry = clone(e.CollateralAtExpiry)
	out.SecondaryAtExpiry = clone(e.SecondaryAtExpiry)
	out.PrimaryReceivable = clone(e.PrimaryReceivable)
	out.SecondaryReceivable = clone(e.SecondaryReceivable)
	out.ValueAtExpiryUSD = clone(e.ValueAtExpiryUSD)
	return &out
}

// StrikeState is the per-(epoch, strike) aggregate.
type StrikeState struct {
	Deposits       *uint256.Int
	CallsPurchased *uint256.Int
	Premium        *uint256.Int
	PurchaseFees   *uint256.Int
	// Populated at expiry.
	CollateralShare   *uint256.Int
	SecondaryShare    *uint256.Int
	SettlementReserve *uint256.Int
	SettlementPaid    *uint256.Int
	SettlementFees    *uint256.Int
	WithdrawPool      *uint256.Int
	// Running totals paid out to depositors.
	CollateralWithdrawn *uint256.Int
	SecondaryWithdrawn  *uint256.Int
	// Receivable rewards collected after expiry, allocated to this strike.
	LateCollateral *uint256.Int `rlp:"optional"`
	LateSecondary  *uint256.Int `rlp:"optional"`
}

func (s *StrikeState) normalize() {
	for _, p := range []**uint256.Int{
		&s.Deposits, &s.CallsPurchased, &s.Premium, &s.PurchaseFees, &s.CollateralShare,
		&s.SecondaryShare, &s.SettlementReserve, &s.SettlementPaid, &s.SettlementFees,
		&s.WithdrawPool, &s.CollateralWithdrawn, &s.SecondaryWithdrawn,
		&s.LateCollateral, &s.LateSecondary,
	} {
		if *p == nil {
			*p = zero()
		}
	}
}

// Available returns deposits not yet sold as calls.
func (s *StrikeState) Available() (*uint256.Int, error) {
	return sub(s.Deposits, s.CallsPurchased)
}

// Position is a user's stake at one (epoch, strike). Records are never
// deleted; a withdrawal moves Deposits into Redeemed and sets Withdrawn.
type Position struct {
	Deposits       *uint256.Int
	CallsPurchased *uint256.Int
	Premium        *uint256.Int
	Withdrawn      bool
	// Redeemed keeps the withdrawn deposit so rewards collected for the
	// epoch after withdrawal can still be paid pro-rata.
	Redeemed           *uint256.Int `rlp:"optional"`
	LateCollateralPaid *uint256.Int `rlp:"optional"`
	LateSecondaryPaid  *uint256.Int `rlp:"optional"`
}

func (p *Position) normalize() {
	for _, v := range []**uint256.Int{
		&p.Deposits, &p.CallsPurchased, &p.Premium,
		&p.Redeemed, &p.LateCollateralPaid, &p.LateSecondaryPaid,
	} {
		if *v == nil {
			*v = zero()
		}
	}
}

// Accumulators are protocol-wide running totals. They only grow.
type Accumulators struct {
	TotalCompoundedPrimary *uint256.Int
	TotalSecondaryRewards  *uint256.Int
	TotalPurchaseFees      *uint256.Int
	TotalSettlementFees    *uint256.Int
	RoundingDust           *uint256.Int
	CompoundCount          uint64
}

func (a *Accumulators) normalize() {
	for _, p := range []**uint256.Int{
		&a.TotalCompoundedPrimary, &a.TotalSecondaryRewards, &a.TotalPurchaseFees,
		&a.TotalSettlementFees, &a.RoundingDust,
	} {
		if *p == nil {
			*p = zero()
		}
	}
}

// PurchaseReceipt summarises a purchase.
type PurchaseReceipt struct {
	Epoch   uint64
	Strike  *uint256.Int
	Amount  *uint256.Int
	Spot    *uint256.Int
	Premium *uint256.Int
	Fee     *uint256.Int
}

// CompoundResult reports rewards harvested by one compound call. Primary and
// Secondary belong to the running epoch; the Prior fields were collected for
// expired epochs with receivables.
type CompoundResult struct {
	Epoch          uint64
	Primary        *uint256.Int
	Secondary      *uint256.Int
	Staked         *uint256.Int
	PriorPrimary   *uint256.Int
	PriorSecondary *uint256.Int
}

// PendingRewards reports what the yield source owes the vault right now and
// how much of it is already owed to expired epochs.
type PendingRewards struct {
	Primary             *uint256.Int
	Secondary           *uint256.Int
	PrimaryReceivable   *uint256.Int
	SecondaryReceivable *uint256.Int
}

// SettleResult reports an exercise.
type SettleResult struct {
	Epoch  uint64
	Strike *uint256.Int
	Amount *uint256.Int
	PnL    *uint256.Int
	Fee    *uint256.Int
	Payout *uint256.Int
}

// WithdrawResult reports what a depositor received. Deposit is zero when the
// call only collected rewards that arrived after an earlier withdrawal.
type WithdrawResult struct {
	Epoch      uint64
	Strike     *uint256.Int
	Deposit    *uint256.Int
	Collateral *uint256.Int
	Secondary  *uint256.Int
}

// EpochTimes is the [start, end] window of an epoch in unix seconds.
type EpochTimes struct {
	Start uint64
	End   uint64
}

// UserStrikeHash derives the position key for user at strike:
// keccak256(address ‖ uint256(strike)).
func UserStrikeHash(user common.Address, strike *uint256.Int) common.Hash {
	word := clone(strike).Bytes32()
	return ethcrypto.Keccak256Hash(user.Bytes(), word[:])
}
