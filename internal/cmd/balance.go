package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/levelcode/teamfabric/internal/config"
	"github.com/levelcode/teamfabric/internal/ledger"
	"github.com/levelcode/teamfabric/internal/ledger/postgres"
	"github.com/levelcode/teamfabric/internal/ledger/sqlite"
)

var (
	balanceUser string
	balanceOrg  string
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show an account's credit balance",
	Long: `Show the settled credit balance for a user or organization account:
net balance, per-type breakdown, and usage in the current cycle. The
ledger backend (sqlite or postgres) comes from the ledger config.`,
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVar(&balanceUser, "user", "", "user account id")
	balanceCmd.Flags().StringVar(&balanceOrg, "org", "", "organization account id")
}

func runBalance(cmd *cobra.Command, args []string) error {
	if balanceUser == "" && balanceOrg == "" {
		return fmt.Errorf("one of --user or --org is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Close()

	ctx := cmd.Context()
	lstore, closeStore, err := openLedgerStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := ledger.NewService(lstore,
		ledger.WithLogger(logger),
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
	)

	acct := ledger.Account{UserID: balanceUser, OrgID: balanceOrg}
	cycleStart := time.Now().UTC().AddDate(0, -1, 0)
	ub, err := svc.CalculateUsageAndBalance(ctx, acct, cycleStart)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account:     %s\n", acct.LockKey())
	fmt.Fprintf(out, "Net balance: %d\n", ub.NetBalance)
	if ub.TotalDebt > 0 {
		fmt.Fprintf(out, "Debt:        %d\n", ub.TotalDebt)
	}
	fmt.Fprintf(out, "Usage (30d): %d\n", ub.UsageThisCycle)

	if len(ub.ByType) > 0 {
		types := make([]ledger.GrantType, 0, len(ub.ByType))
		for t := range ub.ByType {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		fmt.Fprintln(out, "By type:")
		for _, t := range types {
			fmt.Fprintf(out, "  %-14s %d\n", t, ub.ByType[t])
		}
	}
	return nil
}

// openLedgerStore opens the configured ledger backend and returns it with
// a close func. The sqlite store initializes its schema on open so a fresh
// fabric works without a migration step.
func openLedgerStore(ctx context.Context, cfg *config.Config) (ledger.Store, func(), error) {
	switch cfg.Ledger.Driver {
	case "sqlite":
		st := sqlite.New(cfg.LedgerDSN())
		if err := st.Init(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.LedgerDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		st := postgres.New(pool)
		if err := st.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}
