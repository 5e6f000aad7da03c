package ledger

import "time"

// Account is the per-identity savings record. The zero value (goal 0,
// balance 0) is the nonexistent state: SetGoal with a positive amount
// creates the account, and a successful withdrawal returns it to this
// state. A goal of zero is never reachable through SetGoal, so goal > 0
// doubles as the existence check.
type Account struct {
	Identity  string    `json:"identity"   db:"identity"`
	Goal      int64     `json:"goal"       db:"goal"`
	Balance   int64     `json:"balance"    db:"balance"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Exists reports whether the account has been opened with a goal.
func (a Account) Exists() bool { return a.Goal > 0 }

// GoalReached reports whether the balance meets or exceeds the goal.
func (a Account) GoalReached() bool { return a.Exists() && a.Balance >= a.Goal }
