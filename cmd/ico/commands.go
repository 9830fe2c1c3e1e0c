package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"solana-ico/internal/domain"
	"solana-ico/internal/ico"
	"solana-ico/internal/reporting"
	"solana-ico/internal/wallet"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ico",
		Short:         "Token sale client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML config file")
	f.StringVar(&a.rpcEndpoint, "rpc-url", "", "Solana RPC endpoint")
	f.StringVar(&a.commitment, "commitment", "", "commitment level (processed, confirmed, finalized)")
	f.StringVar(&a.programID, "program-id", "", "sale program id")
	f.StringVar(&a.mint, "mint", "", "sale token mint")
	f.StringVar(&a.keypairPath, "keypair", "", "solana-keygen keypair file")
	f.StringVar(&a.storage, "storage", "", "action history backend (memory, sqlite, postgres)")
	f.StringVar(&a.sqlitePath, "history-db", "", "SQLite action history file")
	f.StringVar(&a.logLevel, "log-level", "", "log level")

	root.AddCommand(
		newStatusCmd(a),
		newCheckAdminCmd(a),
		newActionCmd(a, domain.ActionInitialize),
		newActionCmd(a, domain.ActionDeposit),
		newActionCmd(a, domain.ActionBuy),
		newBalanceCmd(a),
		newHistoryCmd(a),
		newReportCmd(a),
		newKeygenCmd(),
		newAddressCmd(a),
	)
	return root
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sale record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cleanup, err := a.client(cmd.Context(), nil, false)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			program := client.Program()
			fmt.Fprintf(out, "Program:   %s\n", program.ID)
			fmt.Fprintf(out, "Mint:      %s\n", program.Mint)

			sale, err := client.CurrentSale(cmd.Context())
			if errors.Is(err, ico.ErrSaleNotInitialized) {
				fmt.Fprintln(out, "Sale:      not initialized")
				return nil
			}
			if err != nil {
				return err
			}
			printSale(out, sale)
			return nil
		},
	}
}

func printSale(out io.Writer, sale *domain.Sale) {
	fmt.Fprintf(out, "Sale:      %s\n", sale.Address)
	fmt.Fprintf(out, "Admin:     %s\n", sale.Admin)
	fmt.Fprintf(out, "Total:     %d tokens\n", sale.TotalTokens)
	fmt.Fprintf(out, "Sold:      %d tokens\n", sale.TokensSold)
	fmt.Fprintf(out, "Remaining: %d tokens\n", sale.Remaining())
	fmt.Fprintf(out, "Price:     %s SOL per token\n", ico.FormatSOL(ico.LamportsPerToken))
}

func newCheckAdminCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-admin",
		Short: "Report whether the wallet administers the sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := a.wallet()
			if err != nil {
				return err
			}
			client, cleanup, err := a.client(cmd.Context(), kp, false)
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := client.CheckAdmin(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wallet:         %s\n", kp.PublicKey())
			fmt.Fprintf(out, "Admin:          %t\n", status.IsAdmin)
			fmt.Fprintf(out, "Can initialize: %t\n", status.CanInitialize)
			if status.Sale != nil {
				printSale(out, status.Sale)
			}
			return nil
		},
	}
}

var actionUsage = map[domain.ActionKind]struct{ use, short string }{
	domain.ActionInitialize: {"init", "Create the sale and fund it with tokens from the wallet"},
	domain.ActionDeposit:    {"deposit", "Add tokens from the admin wallet to the sale"},
	domain.ActionBuy:        {"buy", "Buy tokens from the sale"},
}

// newActionCmd runs one transaction through a session so that it is
// checked, recorded and followed by a refresh like in the relay.
func newActionCmd(a *app, kind domain.ActionKind) *cobra.Command {
	var amount string
	usage := actionUsage[kind]

	cmd := &cobra.Command{
		Use:   usage.use + " --amount N",
		Short: usage.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kp, err := a.wallet()
			if err != nil {
				return err
			}
			client, cleanup, err := a.client(ctx, kp, true)
			if err != nil {
				return err
			}
			defer cleanup()

			stores, err := a.stores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			session := ico.NewSession(client,
				ico.WithActionStore(stores.Actions),
				ico.WithSessionLogger(a.logger.Named("session")),
			)
			if err := session.Refresh(ctx); err != nil {
				return err
			}
			session.SetAmount(amount)

			out := cmd.OutOrStdout()
			switch kind {
			case domain.ActionInitialize:
				r, err := session.InitializeSale(ctx)
				if err != nil {
					return actionError(err)
				}
				printReceipt(out, "Initialized", r)
			case domain.ActionDeposit:
				r, err := session.Deposit(ctx)
				if err != nil {
					return actionError(err)
				}
				printReceipt(out, "Deposited", r)
			case domain.ActionBuy:
				p, err := session.Buy(ctx)
				if err != nil {
					return actionError(err)
				}
				if p.TokenAccountCreation != nil {
					printReceipt(out, "Token account created", p.TokenAccountCreation)
				}
				printReceipt(out, "Bought", &p.Receipt)
				fmt.Fprintf(out, "Paid:      %s SOL for %d tokens\n", ico.FormatSOL(p.Lamports), p.Amount)
			}

			if sale := session.State().Sale; sale != nil {
				printSale(out, sale)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "whole tokens")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func printReceipt(out io.Writer, label string, r *ico.Receipt) {
	fmt.Fprintf(out, "%s: %s (slot %d)\n", label, r.Signature, r.Slot)
}

// actionError keeps the cause for errors.Is while printing the short message.
func actionError(err error) error {
	return fmt.Errorf("%s: %w", ico.UserMessage(err), err)
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet's SOL and sale token balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := a.wallet()
			if err != nil {
				return err
			}
			client, cleanup, err := a.client(cmd.Context(), kp, false)
			if err != nil {
				return err
			}
			defer cleanup()

			owner := kp.PublicKey()
			lamports, err := client.SOLBalance(cmd.Context(), owner)
			if err != nil {
				return err
			}
			tokens, err := client.TokenBalance(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wallet:  %s\n", owner)
			fmt.Fprintf(out, "SOL:     %s\n", ico.FormatSOL(lamports))
			if tokens.Exists {
				fmt.Fprintf(out, "Tokens:  %s\n", tokens)
			} else {
				fmt.Fprintln(out, "Tokens:  0 (no token account)")
			}
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit   int
		address string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded actions of a wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if address == "" {
				kp, err := a.wallet()
				if err != nil {
					return err
				}
				address = kp.PublicKey().String()
			}

			stores, err := a.stores(cmd.Context())
			if err != nil {
				return err
			}
			defer stores.Close()

			actions, err := stores.Actions.ListByWallet(cmd.Context(), address, limit)
			if err != nil {
				return err
			}
			return printActions(cmd.OutOrStdout(), actions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of actions")
	cmd.Flags().StringVar(&address, "wallet", "", "wallet address (default: configured wallet)")
	return cmd
}

func printActions(out io.Writer, actions []*domain.Action) error {
	if len(actions) == 0 {
		fmt.Fprintln(out, "No actions recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tAMOUNT\tSTATUS\tSIGNATURE\tERROR")
	for _, act := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			time.UnixMilli(act.CreatedAt).UTC().Format(time.RFC3339),
			act.Kind, act.Amount, act.Status, act.Signature, act.Error)
	}
	return tw.Flush()
}

func newReportCmd(a *app) *cobra.Command {
	var (
		since  time.Duration
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recorded actions and sale snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if format != "markdown" && format != "csv" {
				return fmt.Errorf("unknown format %q (want markdown or csv)", format)
			}

			client, cleanup, err := a.client(ctx, nil, false)
			if err != nil {
				return err
			}
			defer cleanup()

			sale, err := client.CurrentSale(ctx)
			if err != nil && !errors.Is(err, ico.ErrSaleNotInitialized) {
				return err
			}

			stores, err := a.stores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			end := time.Now()
			report, err := reporting.NewGenerator(stores.Actions, stores.Snapshots).
				Generate(ctx, sale, end.Add(-since).UnixMilli(), end.UnixMilli())
			if err != nil {
				return err
			}

			var body string
			if format == "csv" {
				if body, err = reporting.RenderCSV(report); err != nil {
					return err
				}
			} else {
				body = reporting.RenderMarkdown(report)
			}

			if output == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			if err := os.WriteFile(output, []byte(body), 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "report window ending now")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format (markdown, csv)")
	cmd.Flags().StringVar(&output, "output", "", "output file (default: stdout)")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var (
		outfile     string
		useMnemonic bool
		passphrase  string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new wallet keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				kp       *wallet.Keypair
				mnemonic string
				err      error
			)
			if useMnemonic {
				if mnemonic, err = wallet.NewMnemonic(); err != nil {
					return err
				}
				kp, err = wallet.FromMnemonic(mnemonic, passphrase)
			} else {
				kp, err = wallet.NewKeypair()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outfile != "" {
				if err := kp.WriteKeygenFile(outfile); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote keypair to %s\n", outfile)
			}
			fmt.Fprintf(out, "Public key: %s\n", kp.PublicKey())
			if mnemonic != "" {
				fmt.Fprintf(out, "Mnemonic:   %s\n", mnemonic)
			}
			if outfile == "" && mnemonic == "" {
				fmt.Fprintf(out, "Secret key: %s\n", kp.SecretBase58())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outfile, "outfile", "", "write the keypair as a solana-keygen JSON file")
	cmd.Flags().BoolVar(&useMnemonic, "mnemonic", false, "derive the keypair from a new BIP-39 mnemonic")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "mnemonic passphrase")
	return cmd
}

func newAddressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Show the wallet address and its derived sale accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := a.wallet()
			if err != nil {
				return err
			}
			program, err := a.program()
			if err != nil {
				return err
			}

			owner := kp.PublicKey()
			data, err := program.DataAddress(owner)
			if err != nil {
				return err
			}
			vault, bump, err := program.VaultAddress()
			if err != nil {
				return err
			}
			ata, err := program.TokenAccount(owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wallet:        %s\n", owner)
			fmt.Fprintf(out, "Sale record:   %s\n", data)
			fmt.Fprintf(out, "Vault:         %s (bump %d)\n", vault, bump)
			fmt.Fprintf(out, "Token account: %s\n", ata)
			return nil
		},
	}
}
