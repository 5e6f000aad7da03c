package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goalstash/goalstash/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	token     string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stash",
	Short: "GoalStash CLI",
	Long: `stash is the command-line interface for a GoalStash server.

It lets you declare savings goals, deposit money, withdraw once a goal
is reached, and inspect account state.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.stash")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.stash/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "GoalStash server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "account bearer token (or set token in the config file)")

	rootCmd.AddCommand(setGoalCmd)
	rootCmd.AddCommand(depositCmd)
	rootCmd.AddCommand(withdrawCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client from the persistent flags.
func newClient() (*client.Client, error) {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

// parseAmount parses a positive integer amount argument.
func parseAmount(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount must be an integer: %q", arg)
	}
	if n <= 0 {
		return 0, fmt.Errorf("amount must be positive: %d", n)
	}
	return n, nil
}

// ── set-goal ─────────────────────────────────────────────────────────────────

var setGoalCmd = &cobra.Command{
	Use:   "set-goal <amount>",
	Short: "Declare or raise your savings goal",
	Long: `Declare a savings goal, or raise an existing one. The new goal must be
strictly greater than the current goal. A first successful call opens
the account.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		if err := c.SetGoal(ctx, amount); err != nil {
			if errors.Is(err, client.ErrInvalidGoalUpdate) {
				return fmt.Errorf("goal rejected: the new goal must be greater than the current one")
			}
			return err
		}
		fmt.Printf("goal set to %d\n", amount)
		return nil
	},
}

// ── deposit ──────────────────────────────────────────────────────────────────

var depositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Deposit money toward your goal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := c.AddMoney(ctx, amount)
		if err != nil {
			if errors.Is(err, client.ErrDepositNotAdmissible) {
				return fmt.Errorf("deposit rejected: set a goal first, and deposits stop once the goal is met")
			}
			return err
		}
		fmt.Printf("deposited %d — balance is now %d\n", res.Amount, res.Balance)
		return nil
	},
}

// ── withdraw ─────────────────────────────────────────────────────────────────

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw your full balance once the goal is reached",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := c.Withdraw(ctx)
		if err != nil {
			if errors.Is(err, client.ErrWithdrawalNotEligible) {
				return fmt.Errorf("withdrawal rejected: balance has not reached the goal yet")
			}
			return err
		}
		fmt.Printf("withdrew %d — account closed\n", res.Amount)
		return nil
	},
}

// ── balance / goal ───────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show your current balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		n, err := c.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Show your current goal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		n, err := c.Goal(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var tokenOperatorSecret string

var tokenCmd = &cobra.Command{
	Use:   "token <account>",
	Short: "Mint an account token (requires the operator secret)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenOperatorSecret
		if secret == "" {
			secret = viper.GetString("operator_secret")
		}
		if secret == "" {
			return fmt.Errorf("operator secret required: pass --operator-secret or set operator_secret in the config file")
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext()
		defer cancel()

		tok, err := c.MintToken(ctx, args[0], secret)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOperatorSecret, "operator-secret", "", "operator secret guarding token minting")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the stash CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("stash", version)
	},
}
