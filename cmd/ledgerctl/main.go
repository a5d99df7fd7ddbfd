// Command ledgerctl administers a finledger database: it issues credentials,
// sets budgets and repairs balances.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"finledger/internal/cli"
	"finledger/internal/config"
	"finledger/internal/core"
	"finledger/internal/identity"
	applog "finledger/internal/log"
	"finledger/internal/services"
	"finledger/internal/storage"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  add-user                          create a user and print its credential
  set-budget -user ID -amount N     set the user's monthly budget
  recompute  -user ID -account ID   rebuild one balance from its transactions
  scan                              rebuild every balance
`

var errUsage = errors.New("invalid usage")

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentCLI)

	ctx, stop := cli.SignalContext(logger)
	err := run(ctx, cfg, os.Args[1:], os.Stdout)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		return 2
	default:
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		return 1
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	store, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add-user":
		userID, token, err := identity.Provision(ctx, store)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "user:  %s\ntoken: %s\n", userID, token)
		return nil

	case "set-budget":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		userID := fs.String("user", "", "user id")
		amount := fs.String("amount", "", "monthly budget, e.g. 500.00")
		if err := fs.Parse(rest); err != nil || *userID == "" || *amount == "" {
			return errUsage
		}
		m, err := core.ParseMoney(*amount)
		if err != nil {
			return err
		}
		if _, err := store.Queries().GetUser(ctx, *userID); err != nil {
			return fmt.Errorf("user %s: %w", *userID, err)
		}
		if err := store.SetBudget(ctx, *userID, m); err != nil {
			return err
		}
		fmt.Fprintf(out, "budget for %s set to %s\n", *userID, m)
		return nil

	case "recompute":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		userID := fs.String("user", "", "owner id")
		accountID := fs.String("account", "", "account id")
		if err := fs.Parse(rest); err != nil || *userID == "" || *accountID == "" {
			return errUsage
		}
		drift, err := services.NewBalanceReconciler(store, nil).Recompute(ctx, *userID, *accountID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "account %s: stored %s, computed %s, repaired %t\n",
			drift.AccountID, drift.Stored, drift.Computed, drift.Repaired)
		return nil

	case "scan":
		reconciler := services.NewBalanceReconciler(store, nil)
		report, err := services.NewDriftScanner(store, reconciler, nil, services.DefaultDriftScannerConfig()).ScanOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "checked %d, repaired %d, failed %d\n", report.Checked, report.Repaired, report.Failed)
		return nil
	}
	return errUsage
}
