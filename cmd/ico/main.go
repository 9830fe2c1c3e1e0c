// Command ico is a command-line client for the token sale program.
//
// Usage:
//
//	ico status
//	ico check-admin
//	ico init --amount 1000000
//	ico deposit --amount 500000
//	ico buy --amount 25
//	ico balance
//	ico history --limit 20
//	ico report --since 168h --format csv --output sale.csv
//	ico keygen --outfile ./id.json
//	ico address
//
// Settings come from an optional YAML file (--config), .env, the
// environment (SOLANA_RPC_ENDPOINT, ICO_PROGRAM_ID, ICO_MINT, ICO_KEYPAIR,
// ...) and finally the flags below.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
