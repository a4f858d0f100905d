package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/grez-lucas/vn-bank-sync/internal/accounts"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/acb"
	"github.com/grez-lucas/vn-bank-sync/internal/sink"
	"github.com/spf13/cobra"
)

// acbSheetHeaders are the columns of an exported ACB statement.
var acbSheetHeaders = []string{
	"effectiveDate", "transactionDate", "transactionNumber",
	"debit", "credit", "balance", "description",
	"cardLastDigits", "fbTransactionCode", "fbTransactionLast3",
	"isFbTransaction", "exactTransactionTime",
}

type fetchFlags struct {
	account string
	from    string
	to      string
	date    string
	sheet   string
	post    bool
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.account, "account", "a", "", "stored account id, account number or username")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "export the transactions to this webhook sheet")
	cmd.Flags().BoolVar(&f.post, "post", false, "post the whole result to the webhook")
	_ = cmd.MarkFlagRequired("account")
}

func newVPBankCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vpbank",
		Short: "VPBank NEO internet banking",
	}

	var flags fetchFlags
	txns := &cobra.Command{
		Use:   "transactions",
		Short: "Fetch the transactions of an account between two days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := app.Config.Location()
			if err != nil {
				return err
			}
			from, to, err := dayRange(flags.from, flags.to, app.Now(), loc)
			if err != nil {
				return err
			}
			return app.fetch(cmd, bank.BankVPBank, flags, bank.FetchRequest{From: from, To: to})
		},
	}
	flags.register(txns)
	txns.Flags().StringVar(&flags.from, "from", "", "first day, dd/mm/yyyy, yyyy-mm-dd, today or yesterday (default yesterday)")
	txns.Flags().StringVar(&flags.to, "to", "", "last day (default today)")

	cmd.AddCommand(txns)
	return cmd
}

func newACBCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acb",
		Short: "ACB online banking",
	}

	var flags fetchFlags
	txns := &cobra.Command{
		Use:   "transactions",
		Short: "Fetch the statement of an account for one day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := app.acbRequest(flags.date)
			if err != nil {
				return err
			}
			return app.fetch(cmd, bank.BankACB, flags, req)
		},
	}
	flags.register(txns)
	txns.Flags().StringVar(&flags.date, "date", "", "statement day (default yesterday to today)")

	cmd.AddCommand(txns)
	return cmd
}

func (app *App) acbRequest(date string) (bank.FetchRequest, error) {
	if date == "" {
		return bank.FetchRequest{}, nil
	}
	loc, err := app.Config.Location()
	if err != nil {
		return bank.FetchRequest{}, err
	}
	day, err := parseDay(date, app.Now(), loc)
	if err != nil {
		return bank.FetchRequest{}, err
	}
	return bank.FetchRequest{From: day, To: day, Date: day.Format(acb.FilterDateLayout)}, nil
}

// fetch resolves the account, runs the bank's flow and prints the result.
func (app *App) fetch(cmd *cobra.Command, code bank.BankCode, flags fetchFlags, req bank.FetchRequest) error {
	ctx := cmd.Context()

	acc, err := app.resolveAccount(ctx, code, flags.account)
	if err != nil {
		return err
	}
	req.Account = acc

	fetcher, closer, err := app.Fetcher(ctx, code)
	if err != nil {
		return err
	}
	res := fetcher.FetchTransactions(ctx, req)
	app.closeQuietly(closer, "browser")

	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s: %s", code, res.Message)
	}

	if flags.post {
		if out := app.Poster().Post(ctx, res); !out.OK {
			return fmt.Errorf("post result: %s", out.Error)
		}
	}
	if flags.sheet != "" {
		return app.exportSheet(ctx, flags.sheet, res)
	}
	return nil
}

func (app *App) resolveAccount(ctx context.Context, code bank.BankCode, key string) (bank.Account, error) {
	acc, err := app.Accounts.Find(ctx, code, key)
	if err != nil {
		return bank.Account{}, err
	}
	acc.BankID = code
	return accounts.WithPassword(ctx, app.Secrets, acc)
}

// exportSheet sends the transactions of res to the webhook in batches.
func (app *App) exportSheet(ctx context.Context, sheet string, res bank.Result) error {
	w := app.webhook()
	if w == nil {
		return errors.New("--sheet needs webhook.url")
	}

	var out sink.BatchResult
	switch rows := res.Transactions.(type) {
	case []acb.Transaction:
		out = sink.PostBatched(ctx, w, sheet, acbSheetHeaders, rows)
	case []json.RawMessage:
		out = sink.PostBatched(ctx, w, sheet, nil, rows)
	default:
		return fmt.Errorf("cannot export %T", res.Transactions)
	}

	if !out.OK {
		return fmt.Errorf("export to %s: %s", sheet, out.Error)
	}
	app.Logger.Info().Str("sheet", sheet).Int("rows", out.Sent).Int("batches", out.Batches).Msg("exported")
	return nil
}
