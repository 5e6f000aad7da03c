package ledger

import (
	"context"

	"go.uber.org/zap"
)

// Store is the persistence interface for account records. Both MemoryStore
// and PostgresStore implement this interface.
type Store interface {
	// Get returns the account record for identity, or the zero record
	// (goal 0, balance 0) when no account exists. Reads never fail on a
	// missing account.
	Get(ctx context.Context, identity string) (Account, error)

	// Update applies fn to the account record for identity while holding
	// exclusive ownership of that record. The mutation is persisted iff fn
	// returns nil; any error from fn aborts the update with no state change
	// and is returned verbatim. A record left at (goal 0, balance 0) is
	// erased rather than stored.
	//
	// Updates on the same identity are serialised; updates on different
	// identities never block each other.
	Update(ctx context.Context, identity string, fn func(*Account) error) (Account, error)
}

// Service enforces the ledger's state-transition rules over a Store and
// reports each successful mutation to a Sink.
type Service struct {
	store  Store
	sink   Sink
	logger *zap.Logger
}

// NewService creates a ledger Service. A nil sink discards events and a
// nil logger discards log output.
func NewService(store Store, sink Sink, logger *zap.Logger) *Service {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, sink: sink, logger: logger}
}

// SetGoal declares or raises the caller's goal. The new amount must be
// strictly greater than the current goal (0 when no account exists); equal
// or smaller amounts fail with ErrInvalidGoalUpdate and leave the goal
// unchanged. A first successful call opens the account.
func (s *Service) SetGoal(ctx context.Context, caller string, amount int64) error {
	_, err := s.store.Update(ctx, caller, func(a *Account) error {
		if amount <= a.Goal {
			return ErrInvalidGoalUpdate
		}
		a.Goal = amount
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("goal set",
		zap.String("account", caller),
		zap.Int64("amount", amount),
	)
	s.sink.Emit(ctx, Event{Kind: EventGoalSet, Account: caller, Amount: amount})
	return nil
}

// AddMoney deposits the payment attached to the call. The deposit is
// admissible only while the account exists and its balance is still below
// the goal; the whole payment is then admitted in one step, even when it
// pushes the balance past the goal. Returns the balance after the deposit.
func (s *Service) AddMoney(ctx context.Context, caller string, payment int64) (int64, error) {
	if payment <= 0 {
		return 0, ErrDepositNotAdmissible
	}

	var after int64
	_, err := s.store.Update(ctx, caller, func(a *Account) error {
		if !a.Exists() || a.Balance >= a.Goal {
			return ErrDepositNotAdmissible
		}
		a.Balance += payment
		after = a.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("money added",
		zap.String("account", caller),
		zap.Int64("amount", payment),
		zap.Int64("balance", after),
	)
	s.sink.Emit(ctx, Event{Kind: EventMoneyAdded, Account: caller, Amount: payment, Deposit: after})
	return after, nil
}

// Withdraw pays out the caller's entire balance once it meets or exceeds
// the goal, then atomically resets both balance and goal to zero, closing
// the account. Returns the payout amount.
func (s *Service) Withdraw(ctx context.Context, caller string) (int64, error) {
	var payout int64
	_, err := s.store.Update(ctx, caller, func(a *Account) error {
		if !a.GoalReached() {
			return ErrWithdrawalNotEligible
		}
		payout = a.Balance
		a.Balance = 0
		a.Goal = 0
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("money taken",
		zap.String("account", caller),
		zap.Int64("amount", payout),
	)
	s.sink.Emit(ctx, Event{Kind: EventMoneyTaken, Account: caller, Amount: payout})
	return payout, nil
}

// Balance returns the caller's current balance, 0 for a nonexistent
// account. attached is the value carried by the call; a nonzero value
// fails with ErrInvalidQueryPayment since a read must never move funds.
func (s *Service) Balance(ctx context.Context, caller string, attached int64) (int64, error) {
	if attached != 0 {
		return 0, ErrInvalidQueryPayment
	}
	a, err := s.store.Get(ctx, caller)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// Goal returns the caller's current goal, 0 for a nonexistent account.
// attached follows the same rule as Balance.
func (s *Service) Goal(ctx context.Context, caller string, attached int64) (int64, error) {
	if attached != 0 {
		return 0, ErrInvalidQueryPayment
	}
	a, err := s.store.Get(ctx, caller)
	if err != nil {
		return 0, err
	}
	return a.Goal, nil
}
