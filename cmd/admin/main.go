package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finledger/internal/domain/account"
	"finledger/internal/domain/ledger"
	"finledger/internal/domain/tenant"
	"finledger/internal/infrastructure/amqp"
	"finledger/internal/infrastructure/postgres"
	"finledger/internal/shared/config"
	"finledger/internal/shared/logger"
)

const usage = `finledger admin CLI - maintenance commands for the ledger database

Usage:
  admin <command> [options]

Commands:
  migrate          Apply pending database migrations
  reconcile        Compare stored account balances with the ledger, optionally healing drift
  close-invoices   Close OPEN invoices whose closing date has passed
  mark-overdue     Flag unpaid invoices past their due date as OVERDUE

Examples:
  admin migrate
  admin reconcile --company=1
  admin reconcile --company=1 --account=42 --heal
  admin close-invoices --all
  admin mark-overdue --company=1,2 --as-of=2024-04-30
`

func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "migrate":
		err = runMigrate(args)
	case "reconcile":
		err = runReconcile(args)
	case "close-invoices":
		err = runSweep("close-invoices", args)
	case "mark-overdue":
		err = runSweep("mark-overdue", args)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage(os.Stdout)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println("Usage: admin migrate")
		fmt.Println("\nApplies every pending migration and prints the schema version.")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	connStr := cfg.Database.ConnectionString()
	if err := postgres.Migrate(connStr); err != nil {
		return err
	}
	version, dirty, err := postgres.MigrationVersion(connStr)
	if err != nil {
		return err
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
	return nil
}

// openEngine opens the database and, when configured, the event publisher.
// The returned func releases both.
func openEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*ledger.Engine, func(), error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{db.Close}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Error().Err(err).Msg("close failed")
			}
		}
	}

	var publisher ledger.EventPublisher
	if cfg.AMQP.Enabled {
		p, err := amqp.NewPublisher(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.ConnectAttempts, log)
		if err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		closers = append(closers, p.Close)
		publisher = p
	}

	engine := ledger.New(ledger.Deps{
		UnitOfWork:       postgres.NewUnitOfWork(db, cfg.Database.MaxRetries, log),
		Publisher:        publisher,
		Logger:           log,
		SweepConcurrency: cfg.Ledger.MaintenanceConcurrency,
	})
	return engine, release, nil
}

func runReconcile(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	companyID := fs.Int64("company", 0, "Company whose accounts are reconciled (required)")
	accountID := fs.Int64("account", 0, "Reconcile a single account instead of all of them")
	heal := fs.Bool("heal", false, "Overwrite drifted stored balances with the derived ones")
	timeout := fs.Duration("timeout", 10*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin reconcile --company=ID [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *companyID <= 0 {
		fs.Usage()
		return errors.New("--company is required")
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	engine, release, err := openEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	drifted, err := reconcileAccounts(ctx, engine.Accounts, os.Stdout, *companyID, *accountID, *heal)
	if err != nil {
		return err
	}
	if drifted > 0 && !*heal {
		return fmt.Errorf("%d account(s) drifted; rerun with --heal to fix", drifted)
	}
	return nil
}

// reconcileAccounts reconciles one account, or all of the company's accounts
// when accountID is zero, and returns how many drifted.
func reconcileAccounts(ctx context.Context, accounts *ledger.AccountService, out io.Writer, companyID, accountID int64, heal bool) (int, error) {
	rc := tenant.System(companyID)

	ids := []int64{accountID}
	if accountID == 0 {
		list, err := accounts.List(ctx, rc, account.Filter{})
		if err != nil {
			return 0, err
		}
		ids = ids[:0]
		for _, a := range list {
			ids = append(ids, a.ID)
		}
	}

	drifted := 0
	for _, id := range ids {
		res, err := accounts.Reconcile(ctx, rc, id, heal)
		if err != nil {
			return drifted, fmt.Errorf("reconcile account %d: %w", id, err)
		}
		state := "ok"
		if !res.Drift.IsZero() {
			drifted++
			state = "DRIFT"
			if res.Healed {
				state = "HEALED"
			}
		}
		fmt.Fprintf(out, "account %-6d stored=%-14s computed=%-14s drift=%-12s %s\n",
			res.AccountID, res.StoredBalance, res.ComputedBalance, res.Drift, state)
	}
	fmt.Fprintf(out, "\n%d account(s) checked, %d drifted\n", len(ids), drifted)
	return drifted, nil
}

func runSweep(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	companyIDs := fs.String("company", "", "Company ID(s) to process (comma-separated for multiple)")
	all := fs.Bool("all", false, "Process every company with invoices due")
	asOfStr := fs.String("as-of", "", "Reference date as YYYY-MM-DD (defaults to today, UTC)")
	timeout := fs.Duration("timeout", 30*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Printf("Usage: admin %s [options]\n", name)
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *companyIDs == "" && !*all {
		fs.Usage()
		return errors.New("must specify --company or --all")
	}

	asOf, err := parseAsOf(*asOfStr, time.Now().UTC())
	if err != nil {
		return err
	}
	var ids []int64
	if !*all {
		if ids, err = parseIDs(*companyIDs); err != nil {
			return err
		}
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	engine, release, err := openEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	sweep := engine.Invoices.CloseDueInvoices
	if name == "mark-overdue" {
		sweep = engine.Invoices.MarkOverdueInvoices
	}
	if *all {
		if ids, err = engine.Invoices.CompaniesDueForMaintenance(ctx, asOf); err != nil {
			return err
		}
	}

	start := time.Now()
	err = sweepCompanies(ctx, ids, asOf, sweep, os.Stdout)
	log.Info().Str("command", name).Dur("elapsed", time.Since(start)).Msg("sweep finished")
	return err
}

type sweepFunc func(ctx context.Context, companyID int64, asOf time.Time) (*ledger.MaintenanceResult, error)

// sweepCompanies runs sweep for each company, printing per-company counts.
// Per-invoice failures are reported and make the command fail after every
// company has been processed.
func sweepCompanies(ctx context.Context, companyIDs []int64, asOf time.Time, sweep sweepFunc, out io.Writer) error {
	if len(companyIDs) == 0 {
		fmt.Fprintln(out, "No companies to process")
		return nil
	}

	var failed []error
	for _, id := range companyIDs {
		res, err := sweep(ctx, id, asOf)
		if err != nil {
			failed = append(failed, fmt.Errorf("company %d: %w", id, err))
			continue
		}
		fmt.Fprintf(out, "\n=== Company %d ===\n", id)
		fmt.Fprintf(out, "  Invoices closed:  %d\n", res.Closed)
		fmt.Fprintf(out, "  Marked overdue:   %d\n", res.Overdue)
		if len(res.Errors) > 0 {
			fmt.Fprintf(out, "  Errors:           %d\n", len(res.Errors))
			for i, e := range res.Errors {
				if i >= 5 {
					fmt.Fprintf(out, "    ... and %d more errors\n", len(res.Errors)-5)
					break
				}
				fmt.Fprintf(out, "    - %s\n", e)
			}
			failed = append(failed, fmt.Errorf("company %d: %d invoice(s) failed", id, len(res.Errors)))
		}
	}
	return errors.Join(failed...)
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid company ID %q", p)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no company IDs given")
	}
	return ids, nil
}

func parseAsOf(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
