// Package client provides the GoalStash Go SDK for talking to a stashd
// server: setting goals, moving money, and reading account state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors mapped back from the server's conflict and bad-request
// responses so callers can branch without string matching.
var (
	// ErrInvalidGoalUpdate means the requested goal did not strictly
	// increase the current one.
	ErrInvalidGoalUpdate = errors.New("goal must strictly increase the current goal")

	// ErrDepositNotAdmissible means the account does not exist or its
	// balance already meets the goal.
	ErrDepositNotAdmissible = errors.New("deposit not admissible")

	// ErrWithdrawalNotEligible means the balance has not reached the goal.
	ErrWithdrawalNotEligible = errors.New("withdrawal not eligible")

	// ErrUnauthorized means the bearer token is missing, expired, or was
	// signed by a different server.
	ErrUnauthorized = errors.New("unauthorized")
)

// DepositResult holds the outcome of an AddMoney call.
type DepositResult struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
	Balance int64  `json:"balance"`
}

// WithdrawalResult holds the outcome of a Withdraw call.
type WithdrawalResult struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// Client is the GoalStash SDK entry point.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an account token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// New creates a Client connected to baseURL.
//
//	c, err := client.New("https://stash.example.com",
//	    client.WithBearerToken(token),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetGoal declares or raises the goal of the token's account.
func (c *Client) SetGoal(ctx context.Context, amount int64) error {
	_, err := c.doJSON(ctx, http.MethodPut, "/api/v1/goal",
		map[string]int64{"amount": amount})
	return err
}

// AddMoney deposits amount into the token's account.
func (c *Client) AddMoney(ctx context.Context, amount int64) (*DepositResult, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/api/v1/deposits",
		map[string]int64{"amount": amount})
	if err != nil {
		return nil, err
	}

	var result DepositResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode deposit response: %w", err)
	}
	return &result, nil
}

// Withdraw pays out the full balance once the goal is reached and closes
// the account.
func (c *Client) Withdraw(ctx context.Context) (*WithdrawalResult, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/api/v1/withdrawals", nil)
	if err != nil {
		return nil, err
	}

	var result WithdrawalResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode withdrawal response: %w", err)
	}
	return &result, nil
}

// Balance returns the current balance, 0 when the account does not exist.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	return c.readInt64(ctx, "/api/v1/balance", "balance")
}

// Goal returns the current goal, 0 when the account does not exist.
func (c *Client) Goal(ctx context.Context) (int64, error) {
	return c.readInt64(ctx, "/api/v1/goal", "goal")
}

// MintToken exchanges the operator secret for an account token and installs
// it on the client for subsequent calls.
func (c *Client) MintToken(ctx context.Context, account, operatorSecret string) (string, error) {
	body, err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens",
		map[string]string{"account": account, "operator_secret": operatorSecret})
	if err != nil {
		return "", err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.bearerToken = resp.Token
	return resp.Token, nil
}

// readInt64 performs a GET and extracts a single int64 field.
func (c *Client) readInt64(ctx context.Context, path, field string) (int64, error) {
	body, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	raw, ok := resp[field]
	if !ok {
		return 0, fmt.Errorf("response missing %q field", field)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q field: %w", field, err)
	}
	return n, nil
}

// doJSON executes a JSON request against the server and maps error statuses
// to the package's sentinel errors.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 300 {
		return body, nil
	}
	return nil, c.mapError(method, path, resp.StatusCode, body)
}

// mapError translates an error response into a sentinel where one applies.
func (c *Client) mapError(method, path string, status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, string(body))
	case http.StatusConflict:
		switch {
		case method == http.MethodPut && path == "/api/v1/goal":
			return ErrInvalidGoalUpdate
		case path == "/api/v1/deposits":
			return ErrDepositNotAdmissible
		case path == "/api/v1/withdrawals":
			return ErrWithdrawalNotEligible
		}
	}
	return fmt.Errorf("server error %d: %s", status, string(body))
}
