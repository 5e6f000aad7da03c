package ledger

import "errors"

// Every rejected call leaves the account unchanged and emits no event.
var (
	// ErrInvalidGoalUpdate is returned by SetGoal when the new amount is not
	// strictly greater than the current goal. Equal amounts do not count as
	// an increase.
	ErrInvalidGoalUpdate = errors.New("goal amount must be greater than the current goal")

	// ErrDepositNotAdmissible is returned by AddMoney when the account does
	// not exist or its balance already meets or exceeds the goal.
	ErrDepositNotAdmissible = errors.New("deposit not admissible")

	// ErrWithdrawalNotEligible is returned by Withdraw when the account does
	// not exist or its balance is below the goal.
	ErrWithdrawalNotEligible = errors.New("withdrawal not eligible")

	// ErrInvalidQueryPayment is returned by the read operations when the call
	// carries a nonzero attached value. Reads never move funds.
	ErrInvalidQueryPayment = errors.New("read operations must not carry a payment")
)
