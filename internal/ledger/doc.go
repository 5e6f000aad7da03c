// Package ledger implements a goal-gated savings ledger.
//
// Each account declares a target amount (its goal), deposits funds
// incrementally, and may withdraw its full balance only once the balance
// meets or exceeds the goal. An account with no goal does not exist; a
// successful withdrawal closes the account and frees its identity slot
// for reuse.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - PostgresStore: durable, for production use.
package ledger
