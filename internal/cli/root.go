// Package cli is the banksync command tree.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/accounts"
	"github.com/grez-lucas/vn-bank-sync/internal/config"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/fbbill"
	"github.com/grez-lucas/vn-bank-sync/internal/sink"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// App carries what every command needs. The factory fields default to
// the rod-backed implementations and are replaced in tests.
type App struct {
	Out io.Writer
	Err io.Writer

	Config *config.Config
	Logger zerolog.Logger
	Now    func() time.Time

	Accounts *accounts.FileStore
	Secrets  accounts.SecretStore

	// Fetcher returns the transaction fetcher for a bank plus whatever
	// must be closed after it ran.
	Fetcher func(ctx context.Context, code bank.BankCode) (bank.TransactionFetcher, io.Closer, error)
	// BillDriver opens the Facebook billing page.
	BillDriver func(ctx context.Context) (fbbill.Driver, io.Closer, error)
	// Poster returns the sink records are forwarded to.
	Poster func() sink.Poster

	cfgFile  string
	envFiles []string
	verbose  bool
}

func NewApp() *App {
	return &App{Out: os.Stdout, Err: os.Stderr, Now: time.Now}
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCmd(NewApp()).ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "banksync",
		Short:         "Pull Vietnamese bank transactions and reconcile Facebook ad bills",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	root.PersistentFlags().StringVarP(&app.cfgFile, "config", "c", "", "config file (default is ./.bank-sync.yaml or $HOME/.bank-sync.yaml)")
	root.PersistentFlags().StringSliceVar(&app.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAccountsCmd(app),
		newVPBankCmd(app),
		newACBCmd(app),
		newFBBillCmd(app),
	)
	return root
}

func (app *App) init(cmd *cobra.Command) error {
	level := zerolog.InfoLevel
	if app.verbose {
		level = zerolog.DebugLevel
	}
	app.Logger = zerolog.New(zerolog.ConsoleWriter{Out: app.Err, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
	cmd.SetContext(app.Logger.WithContext(cmd.Context()))

	if app.Config == nil {
		cfg, err := config.Load(config.Options{File: app.cfgFile, EnvFiles: app.envFiles})
		if err != nil {
			return err
		}
		app.Config = cfg
	}

	if app.Accounts == nil {
		app.Accounts = accounts.NewFileStore(app.Config.Store.Accounts)
	}
	if app.Secrets == nil {
		app.Secrets = accounts.NewFileSecrets(app.Config.Store.Secrets)
	}
	if app.Now == nil {
		app.Now = time.Now
	}
	if app.Fetcher == nil {
		app.Fetcher = app.rodFetcher
	}
	if app.BillDriver == nil {
		app.BillDriver = app.rodBillDriver
	}
	if app.Poster == nil {
		app.Poster = app.defaultPoster
	}

	// Amounts print as JSON numbers, as the aggregator expects.
	decimal.MarshalJSONWithoutQuotes = true
	return nil
}
