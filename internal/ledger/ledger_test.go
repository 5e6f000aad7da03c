package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goalstash/goalstash/internal/ledger"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Stub sink ─────────────────────────────────────────────────────────────

type collectSink struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (s *collectSink) Emit(_ context.Context, ev ledger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *collectSink) all() []ledger.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Event, len(s.events))
	copy(out, s.events)
	return out
}

func newService() (*ledger.Service, *collectSink) {
	sink := &collectSink{}
	return ledger.NewService(ledger.NewMemoryStore(), sink, zap.NewNop()), sink
}

// ── Construction ──────────────────────────────────────────────────────────

func TestNewService_nilSinkAndLoggerAreSafe(t *testing.T) {
	svc := ledger.NewService(ledger.NewMemoryStore(), nil, nil)

	// A successful mutation both logs and emits; neither may panic.
	if err := svc.SetGoal(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMoney(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	if payout, err := svc.Withdraw(ctx, "alice"); err != nil || payout != 100 {
		t.Fatalf("Withdraw: got (%d, %v), want (100, nil)", payout, err)
	}
}

// ── Reads on a fresh ledger ───────────────────────────────────────────────

func TestReads_zeroBeforeAnyGoal(t *testing.T) {
	svc, _ := newService()

	balance, err := svc.Balance(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 0 {
		t.Errorf("Balance on fresh ledger: got %d, want 0", balance)
	}

	goal, err := svc.Goal(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if goal != 0 {
		t.Errorf("Goal on fresh ledger: got %d, want 0", goal)
	}
}

func TestReads_rejectAttachedPayment(t *testing.T) {
	svc, sink := newService()

	if _, err := svc.Balance(ctx, "alice", 1); !errors.Is(err, ledger.ErrInvalidQueryPayment) {
		t.Errorf("Balance with payment: got %v, want ErrInvalidQueryPayment", err)
	}
	if _, err := svc.Goal(ctx, "alice", 5); !errors.Is(err, ledger.ErrInvalidQueryPayment) {
		t.Errorf("Goal with payment: got %v, want ErrInvalidQueryPayment", err)
	}
	if n := len(sink.all()); n != 0 {
		t.Errorf("rejected reads emitted %d events, want 0", n)
	}
}

// ── SetGoal ───────────────────────────────────────────────────────────────

func TestSetGoal_mustStrictlyIncrease(t *testing.T) {
	svc, _ := newService()

	if err := svc.SetGoal(ctx, "alice", 100); err != nil {
		t.Fatalf("initial SetGoal(100): %v", err)
	}

	// Equal value does not count as an increase.
	if err := svc.SetGoal(ctx, "alice", 100); !errors.Is(err, ledger.ErrInvalidGoalUpdate) {
		t.Errorf("SetGoal(100) again: got %v, want ErrInvalidGoalUpdate", err)
	}
	if err := svc.SetGoal(ctx, "alice", 99); !errors.Is(err, ledger.ErrInvalidGoalUpdate) {
		t.Errorf("SetGoal(99): got %v, want ErrInvalidGoalUpdate", err)
	}

	// Goal unchanged after the failed updates.
	goal, _ := svc.Goal(ctx, "alice", 0)
	if goal != 100 {
		t.Fatalf("goal after failed updates: got %d, want 100", goal)
	}

	if err := svc.SetGoal(ctx, "alice", 101); err != nil {
		t.Fatalf("SetGoal(101): %v", err)
	}
	goal, _ = svc.Goal(ctx, "alice", 0)
	if goal != 101 {
		t.Errorf("goal after raise: got %d, want 101", goal)
	}
}

func TestSetGoal_rejectsNonPositive(t *testing.T) {
	svc, _ := newService()

	if err := svc.SetGoal(ctx, "alice", 0); !errors.Is(err, ledger.ErrInvalidGoalUpdate) {
		t.Errorf("SetGoal(0): got %v, want ErrInvalidGoalUpdate", err)
	}
	if err := svc.SetGoal(ctx, "alice", -5); !errors.Is(err, ledger.ErrInvalidGoalUpdate) {
		t.Errorf("SetGoal(-5): got %v, want ErrInvalidGoalUpdate", err)
	}
}

// ── AddMoney ──────────────────────────────────────────────────────────────

func TestAddMoney_requiresAccount(t *testing.T) {
	svc, _ := newService()

	if _, err := svc.AddMoney(ctx, "alice", 10); !errors.Is(err, ledger.ErrDepositNotAdmissible) {
		t.Errorf("AddMoney without goal: got %v, want ErrDepositNotAdmissible", err)
	}
	balance, _ := svc.Balance(ctx, "alice", 0)
	if balance != 0 {
		t.Errorf("balance after rejected deposit: got %d, want 0", balance)
	}
}

func TestAddMoney_accumulates(t *testing.T) {
	svc, _ := newService()

	if err := svc.SetGoal(ctx, "alice", 1000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.AddMoney(ctx, "alice", 10); err != nil {
			t.Fatalf("deposit %d: %v", i+1, err)
		}
	}

	balance, _ := svc.Balance(ctx, "alice", 0)
	if balance != 30 {
		t.Errorf("balance: got %d, want 30", balance)
	}
	goal, _ := svc.Goal(ctx, "alice", 0)
	if goal != 1000 {
		t.Errorf("goal: got %d, want 1000", goal)
	}
}

func TestAddMoney_rejectedOnceGoalMet(t *testing.T) {
	svc, _ := newService()

	if err := svc.SetGoal(ctx, "alice", 1000); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMoney(ctx, "alice", 1000); err != nil {
		t.Fatal(err)
	}

	// Balance equals goal: even a single minimal-unit payment is rejected.
	if _, err := svc.AddMoney(ctx, "alice", 1); !errors.Is(err, ledger.ErrDepositNotAdmissible) {
		t.Errorf("deposit at goal: got %v, want ErrDepositNotAdmissible", err)
	}
	balance, _ := svc.Balance(ctx, "alice", 0)
	if balance != 1000 {
		t.Errorf("balance after rejected deposit: got %d, want 1000", balance)
	}
}

func TestAddMoney_admitsOvershootWhole(t *testing.T) {
	svc, _ := newService()

	if err := svc.SetGoal(ctx, "alice", 1000); err != nil {
		t.Fatal(err)
	}

	// Precondition checks balance(0) < goal(1000) before the call, so the
	// whole payment is admitted even though it overshoots. No capping.
	after, err := svc.AddMoney(ctx, "alice", 1001)
	if err != nil {
		t.Fatal(err)
	}
	if after != 1001 {
		t.Errorf("balance after overshoot deposit: got %d, want 1001", after)
	}
}

func TestAddMoney_rejectsNonPositivePayment(t *testing.T) {
	svc, _ := newService()
	_ = svc.SetGoal(ctx, "alice", 100)

	if _, err := svc.AddMoney(ctx, "alice", 0); !errors.Is(err, ledger.ErrDepositNotAdmissible) {
		t.Errorf("AddMoney(0): got %v, want ErrDepositNotAdmissible", err)
	}
	if _, err := svc.AddMoney(ctx, "alice", -10); !errors.Is(err, ledger.ErrDepositNotAdmissible) {
		t.Errorf("AddMoney(-10): got %v, want ErrDepositNotAdmissible", err)
	}
}

// ── Withdraw ──────────────────────────────────────────────────────────────

func TestWithdraw_requiresGoalReached(t *testing.T) {
	svc, _ := newService()

	// No account.
	if _, err := svc.Withdraw(ctx, "alice"); !errors.Is(err, ledger.ErrWithdrawalNotEligible) {
		t.Errorf("Withdraw without account: got %v, want ErrWithdrawalNotEligible", err)
	}

	// Balance below goal (includes the zero-balance case).
	_ = svc.SetGoal(ctx, "alice", 100)
	if _, err := svc.Withdraw(ctx, "alice"); !errors.Is(err, ledger.ErrWithdrawalNotEligible) {
		t.Errorf("Withdraw at zero balance: got %v, want ErrWithdrawalNotEligible", err)
	}
	_, _ = svc.AddMoney(ctx, "alice", 99)
	if _, err := svc.Withdraw(ctx, "alice"); !errors.Is(err, ledger.ErrWithdrawalNotEligible) {
		t.Errorf("Withdraw below goal: got %v, want ErrWithdrawalNotEligible", err)
	}

	balance, _ := svc.Balance(ctx, "alice", 0)
	if balance != 99 {
		t.Errorf("balance after rejected withdrawals: got %d, want 99", balance)
	}
}

func TestWithdraw_paysOutAndCloses(t *testing.T) {
	svc, _ := newService()

	_ = svc.SetGoal(ctx, "alice", 1000)
	_, _ = svc.AddMoney(ctx, "alice", 1001)

	payout, err := svc.Withdraw(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if payout != 1001 {
		t.Errorf("payout: got %d, want 1001", payout)
	}

	balance, _ := svc.Balance(ctx, "alice", 0)
	goal, _ := svc.Goal(ctx, "alice", 0)
	if balance != 0 || goal != 0 {
		t.Errorf("after withdrawal: balance=%d goal=%d, want 0/0", balance, goal)
	}
}

func TestWithdraw_identitySlotReusable(t *testing.T) {
	svc, _ := newService()

	_ = svc.SetGoal(ctx, "alice", 50)
	_, _ = svc.AddMoney(ctx, "alice", 50)
	if _, err := svc.Withdraw(ctx, "alice"); err != nil {
		t.Fatal(err)
	}

	// The closed account reopens from scratch: a goal lower than the old
	// one is valid again because the goal reset to 0.
	if err := svc.SetGoal(ctx, "alice", 10); err != nil {
		t.Fatalf("reopen after withdrawal: %v", err)
	}
	goal, _ := svc.Goal(ctx, "alice", 0)
	if goal != 10 {
		t.Errorf("goal after reopen: got %d, want 10", goal)
	}
	balance, _ := svc.Balance(ctx, "alice", 0)
	if balance != 0 {
		t.Errorf("balance after reopen: got %d, want 0", balance)
	}
}

// ── Events ────────────────────────────────────────────────────────────────

func TestEvents_oneMatchingEventPerSuccess(t *testing.T) {
	svc, sink := newService()

	_ = svc.SetGoal(ctx, "alice", 100)
	_ = svc.SetGoal(ctx, "alice", 100) // rejected: no event
	_, _ = svc.AddMoney(ctx, "alice", 60)
	_, _ = svc.AddMoney(ctx, "alice", 60) // overshoots to 120
	_, _ = svc.AddMoney(ctx, "alice", 1)  // rejected: no event
	_, _ = svc.Withdraw(ctx, "alice")
	_, _ = svc.Withdraw(ctx, "alice") // rejected: no event

	events := sink.all()
	want := []ledger.Event{
		{Kind: ledger.EventGoalSet, Account: "alice", Amount: 100},
		{Kind: ledger.EventMoneyAdded, Account: "alice", Amount: 60, Deposit: 60},
		{Kind: ledger.EventMoneyAdded, Account: "alice", Amount: 60, Deposit: 120},
		{Kind: ledger.EventMoneyTaken, Account: "alice", Amount: 120},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		if ev != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, ev, want[i])
		}
	}
}

// ── Concurrency ───────────────────────────────────────────────────────────

func TestAddMoney_concurrentDepositsSerialisePerAccount(t *testing.T) {
	svc, _ := newService()

	if err := svc.SetGoal(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}

	// Ten concurrent deposits of 60 against a goal of 100. Serialised
	// execution admits exactly two (0 → 60 → 120); every later deposit
	// observes balance >= goal and is rejected. Any other final balance
	// means two deposits raced past the same stale check.
	const workers = 10
	var wg sync.WaitGroup
	var admitted int64
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddMoney(ctx, "alice", 60); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 2 {
		t.Errorf("admitted deposits: got %d, want 2", admitted)
	}
	balance, _ := svc.Balance(ctx, "alice", 0)
	if balance != 120 {
		t.Errorf("final balance: got %d, want 120", balance)
	}
}

func TestAccounts_independent(t *testing.T) {
	svc, _ := newService()

	_ = svc.SetGoal(ctx, "alice", 100)
	_ = svc.SetGoal(ctx, "bob", 200)
	_, _ = svc.AddMoney(ctx, "alice", 100)

	if _, err := svc.Withdraw(ctx, "alice"); err != nil {
		t.Fatalf("alice withdraw: %v", err)
	}
	// Bob's account is untouched by alice's lifecycle.
	goal, _ := svc.Goal(ctx, "bob", 0)
	if goal != 200 {
		t.Errorf("bob goal: got %d, want 200", goal)
	}
}
