package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/MarkoPoloResearchLab/points/internal/app"
	"github.com/MarkoPoloResearchLab/points/internal/config"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL  = "database-url"
	flagStoreDriver  = "store-driver"
	flagLedger       = "ledger"
	flagActor        = "actor"
	flagByUsername   = "by-username"
	flagHistoryLimit = "limit"
	flagVerbose      = "verbose"
	envPrefix        = "POINTSD"
	defaultActor     = "pointsctl"
	defaultLedger    = "vp"
)

type options struct {
	cfg        config.Config
	ledger     string
	actor      string
	byUsername bool
	verbose    bool
}

// session is an opened store plus the selected ledger.
type session struct {
	stores *app.Stores
	ledger *points.Ledger
	opts   *options
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pointsctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "pointsctl",
		Short:         "Inspect and adjust chat points balances",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadOptions(cmd, opts)
		},
	}
	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, "", "postgres:// url, sqlite:// url, or sqlite file path (default points.db)")
	flags.String(flagStoreDriver, config.StoreDriverGORM, "balance store driver: gorm or pgx")
	flags.String(flagLedger, defaultLedger, "ledger to operate on")
	flags.String(flagActor, defaultActor, "actor recorded in the audit log")
	flags.Bool(flagByUsername, false, "treat the user argument as a chat username instead of an id")
	flags.Bool(flagVerbose, false, "log store activity to stderr")

	cmd.AddCommand(
		newBalanceCommand(opts),
		newSetCommand(opts),
		newAddCommand(opts),
		newResetCommand(opts),
		newListCommand(opts),
		newHistoryCommand(opts),
	)
	return cmd
}

func loadOptions(cmd *cobra.Command, opts *options) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, flagName := range []string{flagDatabaseURL, flagStoreDriver, flagLedger, flagActor, flagByUsername, flagVerbose} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	opts.cfg = config.Config{
		DatabaseURL: strings.TrimSpace(v.GetString(flagDatabaseURL)),
		StoreDriver: strings.TrimSpace(v.GetString(flagStoreDriver)),
	}
	opts.ledger = strings.TrimSpace(v.GetString(flagLedger))
	opts.actor = strings.TrimSpace(v.GetString(flagActor))
	opts.byUsername = v.GetBool(flagByUsername)
	opts.verbose = v.GetBool(flagVerbose)
	opts.cfg.Ledgers = []config.LedgerConfig{{Name: opts.ledger, Unit: "points"}}
	return opts.cfg.Validate()
}

func openSession(ctx context.Context, opts *options) (*session, error) {
	logger := zap.NewNop()
	if opts.verbose {
		developmentLogger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("logger init: %w", err)
		}
		logger = developmentLogger
	}
	stores, err := app.OpenStores(ctx, opts.cfg, logger)
	if err != nil {
		return nil, err
	}
	resolvers, err := app.IdentityResolvers(ctx, opts.cfg, stores.Variables, nil)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	registry, err := app.BuildLedgers(opts.cfg, stores.Variables, resolvers, stores.Audit)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	ledger, err := registry.Ledger(opts.ledger)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	return &session{stores: stores, ledger: ledger, opts: opts}, nil
}

func withSession(cmd *cobra.Command, opts *options, run func(ctx context.Context, current *session, out io.Writer) error) error {
	current, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() { _ = current.stores.Close() }()
	return run(cmd.Context(), current, cmd.OutOrStdout())
}

// users turns the user argument into refs, resolving usernames when --by-username is set.
func (current *session) users(ctx context.Context, platform points.Platform, user string) ([]points.UserRef, error) {
	if !current.opts.byUsername {
		ref, err := points.NewUserRef(platform, user)
		if err != nil {
			return nil, err
		}
		return []points.UserRef{ref}, nil
	}
	userIDs, err := current.ledger.ResolveUsername(ctx, platform, user)
	if err != nil {
		return nil, err
	}
	refs := make([]points.UserRef, 0, len(userIDs))
	for _, userID := range userIDs {
		refs = append(refs, points.UserRef{Platform: platform, UserID: userID})
	}
	return refs, nil
}

func parsePlatform(raw string) (points.Platform, error) {
	return points.DefaultPlatforms().Parse(raw)
}

func parseAmount(raw string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a whole number", raw)
	}
	return amount, nil
}

func newBalanceCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <platform> <user>",
		Short: "Print a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, current *session, out io.Writer) error {
				platform, err := parsePlatform(args[0])
				if err != nil {
					return err
				}
				refs, err := current.users(ctx, platform, args[1])
				if err != nil {
					return err
				}
				for _, ref := range refs {
					balance, err := current.ledger.GetBalance(ctx, ref)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\t%s\n", ref, balance)
				}
				return nil
			})
		},
	}
}

func newSetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <platform> <user> <amount>",
		Short: "Overwrite a user's balance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, current *session, out io.Writer) error {
				platform, err := parsePlatform(args[0])
				if err != nil {
					return err
				}
				amount, err := parseAmount(args[2])
				if err != nil {
					return err
				}
				if amount < 0 {
					return fmt.Errorf("amount must not be negative, got %d", amount)
				}
				refs, err := current.users(ctx, platform, args[1])
				if err != nil {
					return err
				}
				for _, ref := range refs {
					if err := current.ledger.SetBalance(ctx, ref, amount, current.opts.actor); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\t%d\n", ref, amount)
				}
				return nil
			})
		},
	}
}

func newAddCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <platform> <user> <delta>",
		Short: "Add to (or subtract from) a user's balance, flooring at zero",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, current *session, out io.Writer) error {
				platform, err := parsePlatform(args[0])
				if err != nil {
					return err
				}
				delta, err := parseAmount(args[2])
				if err != nil {
					return err
				}
				refs, err := current.users(ctx, platform, args[1])
				if err != nil {
					return err
				}
				for _, ref := range refs {
					result, err := current.ledger.AddBalance(ctx, ref, delta, current.opts.actor)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s\t%s -> %d\n", ref, result.Old, result.New)
				}
				return nil
			})
		},
	}
}

func newResetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [platform...]",
		Short: "Clear every balance in the ledger, optionally for the named platforms only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, current *session, out io.Writer) error {
				platforms := points.DefaultPlatforms().All()
				if len(args) > 0 {
					platforms = platforms[:0]
					for _, raw := range args {
						platform, err := parsePlatform(raw)
						if err != nil {
							return err
						}
						platforms = append(platforms, platform)
					}
				}
				removed, err := current.ledger.ClearAll(ctx, current.opts.actor, platforms...)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "cleared %d balances from %s\n", removed, current.ledger.Name())
				return nil
			})
		},
	}
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list <platform>",
		Short: "List every stored balance on a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, current *session, out io.Writer) error {
				platform, err := parsePlatform(args[0])
				if err != nil {
					return err
				}
				variables, err := current.ledger.ListBalances(ctx, platform)
				if err != nil {
					return err
				}
				writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(writer, "USER ID\tLOGIN\tBALANCE")
				for _, variable := range variables {
					fmt.Fprintf(writer, "%s\t%s\t%d\n", variable.Key.UserID, variable.UserLogin, variable.Value)
				}
				return writer.Flush()
			})
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <platform> <user>",
		Short: "Show recent audited operations for a user",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().Int(flagHistoryLimit, 20, "number of rows to show")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt(flagHistoryLimit)
		if err != nil {
			return err
		}
		return withSession(cmd, opts, func(ctx context.Context, current *session, out io.Writer) error {
			platform, err := parsePlatform(args[0])
			if err != nil {
				return err
			}
			refs, err := current.users(ctx, platform, args[1])
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "TIME\tUSER\tOPERATION\tAMOUNT\tOLD\tNEW\tSTATUS\tACTOR")
			for _, ref := range refs {
				rows, err := current.stores.Audit.History(ctx, current.ledger.Name(), ref, limit)
				if err != nil {
					return err
				}
				for _, row := range rows {
					fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
						row.CreatedAt.Format("2006-01-02 15:04:05"), ref, row.Operation, row.Amount,
						optionalBalance(row.OldBalance), optionalBalance(row.NewBalance), row.Status, row.Actor)
				}
			}
			return writer.Flush()
		})
	}
	return cmd
}

func optionalBalance(value *int64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatInt(*value, 10)
}
