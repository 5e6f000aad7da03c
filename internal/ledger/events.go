package ledger

import "context"

// EventKind identifies the state change a notification reports.
type EventKind string

const (
	EventGoalSet    EventKind = "goal.set"
	EventMoneyAdded EventKind = "money.added"
	EventMoneyTaken EventKind = "money.taken"
)

// Event is emitted once per successful mutating call, never on a rejected
// call. Fields mirror the applied state change.
type Event struct {
	Kind    EventKind `json:"kind"`
	Account string    `json:"account"`

	// Amount is the goal for goal.set, the single payment for money.added,
	// and the payout for money.taken.
	Amount int64 `json:"amount"`

	// Deposit is the cumulative balance after the admitting deposit.
	// Set only on money.added.
	Deposit int64 `json:"deposit,omitempty"`
}

// Sink receives ledger events. Implementations must not block the caller
// for longer than a local handoff; slow delivery belongs in the sink.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(context.Context, Event) {}
