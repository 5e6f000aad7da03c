//go:build ignore

// smoke-test.go walks a running stashd through a full account lifecycle:
// mint a token, set a goal, deposit past it, withdraw, and confirm the
// account slot is reusable.
//
// Run with: go run scripts/smoke-test.go
//
// Environment:
//
//	STASH_URL             server base URL (default http://localhost:8080)
//	STASH_OPERATOR_SECRET operator secret for token minting (required)
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goalstash/goalstash/pkg/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "smoke-test: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("smoke test passed")
}

func run() error {
	baseURL := os.Getenv("STASH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	secret := os.Getenv("STASH_OPERATOR_SECRET")
	if secret == "" {
		return fmt.Errorf("STASH_OPERATOR_SECRET must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	account := fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	c := client.MustNew(baseURL)

	if _, err := c.MintToken(ctx, account, secret); err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	fmt.Println("token minted for", account)

	if err := c.SetGoal(ctx, 100); err != nil {
		return fmt.Errorf("set goal: %w", err)
	}

	// A second identical goal must be rejected.
	if err := c.SetGoal(ctx, 100); err == nil {
		return fmt.Errorf("expected equal goal to be rejected")
	}

	res, err := c.AddMoney(ctx, 120)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	fmt.Println("deposited, balance:", res.Balance)

	// Goal met: further deposits must be rejected.
	if _, err := c.AddMoney(ctx, 1); err == nil {
		return fmt.Errorf("expected deposit past goal to be rejected")
	}

	w, err := c.Withdraw(ctx)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	if w.Amount != 120 {
		return fmt.Errorf("payout: got %d, want 120", w.Amount)
	}
	fmt.Println("withdrew", w.Amount)

	// Account closed: the slot is reusable with any positive goal.
	bal, err := c.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance after close: %w", err)
	}
	if bal != 0 {
		return fmt.Errorf("balance after close: got %d, want 0", bal)
	}
	if err := c.SetGoal(ctx, 10); err != nil {
		return fmt.Errorf("reopen with lower goal: %w", err)
	}
	fmt.Println("slot reused with goal 10")

	return nil
}
