package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/spf13/cobra"
)

func newAccountsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage stored bank logins",
	}
	cmd.AddCommand(
		newAccountsAddCmd(app),
		newAccountsListCmd(app),
		newAccountsRemoveCmd(app),
	)
	return cmd
}

func newAccountsAddCmd(app *App) *cobra.Command {
	var (
		bankID, username, accountNumber, password string
		passwordStdin                             bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a bank login and its password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			code, err := bank.ParseBankCode(bankID)
			if err != nil {
				return err
			}
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("a password is required (--password or --password-stdin)")
			}

			acc, err := app.Accounts.Add(ctx, bank.Account{
				BankID:        code,
				Username:      username,
				AccountNumber: accountNumber,
			})
			if err != nil {
				return err
			}
			if err := app.Secrets.SetPassword(ctx, acc.ID, password); err != nil {
				_ = app.Accounts.Remove(ctx, acc.ID)
				return fmt.Errorf("store password: %w", err)
			}

			app.Logger.Info().Str("bank", string(code)).Str("id", acc.ID).Msg("account added")
			return printJSON(cmd.OutOrStdout(), acc)
		},
	}
	cmd.Flags().StringVar(&bankID, "bank", "", "bank id (acb, vpbank)")
	cmd.Flags().StringVar(&username, "username", "", "portal login")
	cmd.Flags().StringVar(&accountNumber, "account-number", "", "account number to read")
	cmd.Flags().StringVar(&password, "password", "", "portal password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("bank")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("account-number")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	return cmd
}

func newAccountsListCmd(app *App) *cobra.Command {
	var (
		bankID string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored bank logins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := []bank.BankCode{bank.BankACB, bank.BankVPBank}
			if bankID != "" {
				code, err := bank.ParseBankCode(bankID)
				if err != nil {
					return err
				}
				codes = []bank.BankCode{code}
			}

			byBank := make(map[bank.BankCode][]bank.Account, len(codes))
			for _, code := range codes {
				list, err := app.Accounts.List(cmd.Context(), code)
				if err != nil {
					return err
				}
				if len(list) > 0 {
					byBank[code] = list
				}
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), byBank)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BANK\tID\tUSERNAME\tACCOUNT\tSTATUS\tLAST CHECKED")
			for _, code := range codes {
				for _, acc := range byBank[code] {
					checked := "-"
					if !acc.LastChecked.IsZero() {
						checked = acc.LastChecked.Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						code, acc.ID, acc.Username, acc.AccountNumber, acc.Status, checked)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&bankID, "bank", "", "only list this bank")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON grouped by bank")
	return cmd
}

func newAccountsRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a stored login and its password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.Accounts.Remove(ctx, args[0]); err != nil {
				return err
			}
			if err := app.Secrets.DeletePassword(ctx, args[0]); err != nil {
				app.Logger.Warn().Err(err).Str("id", args[0]).Msg("deleting password")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
