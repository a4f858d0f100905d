package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/acb"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/fbbill"
	"github.com/spf13/cobra"
)

func newFBBillCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fbbill",
		Short: "Facebook Ads billing lookups",
	}

	var (
		input   string
		account string
		date    string
	)
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Look up Facebook charges by reference code and post each bill",
		Long: `Look up Facebook charges on the billing activity page.

Items come either from a JSON file of {"accountNumber", "ma_gd_fb"} objects
(--input) or from the Facebook card payments of an ACB statement
(--account, optionally --date).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				items []fbbill.Item
				err   error
			)
			switch {
			case input != "" && account != "":
				return errors.New("use either --input or --account")
			case input != "":
				items, err = readItems(input)
			case account != "":
				items, err = app.itemsFromStatement(ctx, account, date)
			default:
				return errors.New("one of --input or --account is required")
			}
			if err != nil {
				return err
			}
			if len(items) == 0 {
				app.Logger.Info().Msg("no facebook charges to look up")
				return printJSON(cmd.OutOrStdout(), fbbill.Summary{Records: []fbbill.Record{}})
			}

			driver, closer, err := app.BillDriver(ctx)
			if err != nil {
				return err
			}
			defer app.closeQuietly(closer, "billing page")

			sum := fbbill.NewReconciler(driver, app.Poster(), app.billConfig()).Run(ctx, items)
			if err := printJSON(cmd.OutOrStdout(), sum); err != nil {
				return err
			}
			if sum.Failed > 0 {
				return fmt.Errorf("%d of %d lookups failed", sum.Failed, sum.Total)
			}
			return nil
		},
	}
	reconcile.Flags().StringVarP(&input, "input", "i", "", "JSON file of items to look up")
	reconcile.Flags().StringVarP(&account, "account", "a", "", "stored ACB account to take Facebook charges from")
	reconcile.Flags().StringVar(&date, "date", "", "ACB statement day (with --account)")

	cmd.AddCommand(reconcile)
	return cmd
}

func readItems(path string) ([]fbbill.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	var items []fbbill.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode items %s: %w", path, err)
	}
	return items, nil
}

// itemsFromStatement pulls the ACB statement and keeps its Facebook card
// payments.
func (app *App) itemsFromStatement(ctx context.Context, key, date string) ([]fbbill.Item, error) {
	req, err := app.acbRequest(date)
	if err != nil {
		return nil, err
	}
	acc, err := app.resolveAccount(ctx, bank.BankACB, key)
	if err != nil {
		return nil, err
	}
	req.Account = acc

	fetcher, closer, err := app.Fetcher(ctx, bank.BankACB)
	if err != nil {
		return nil, err
	}
	res := fetcher.FetchTransactions(ctx, req)
	app.closeQuietly(closer, "browser")

	if !res.Success {
		return nil, fmt.Errorf("%s: %s", bank.BankACB, res.Message)
	}
	txns, ok := res.Transactions.([]acb.Transaction)
	if !ok {
		return nil, fmt.Errorf("unexpected ACB transactions %T", res.Transactions)
	}
	return fbbill.ItemsFromTransactions(acc.AccountNumber, txns), nil
}
