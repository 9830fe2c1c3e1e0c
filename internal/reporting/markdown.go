package reporting

import (
	"fmt"
	"strings"
	"time"
)

const lamportsPerSOL = 1_000_000_000

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Token Sale Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Range: %s to %s\n\n", formatMs(r.RangeStart), formatMs(r.RangeEnd)))

	// Sale
	sb.WriteString("## Sale\n\n")
	if r.Sale != nil {
		sb.WriteString("| Field | Value |\n")
		sb.WriteString("|-------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Address | %s |\n", r.Sale.Address))
		sb.WriteString(fmt.Sprintf("| Admin | %s |\n", r.Sale.Admin))
		sb.WriteString(fmt.Sprintf("| Total Tokens | %d |\n", r.Sale.TotalTokens))
		sb.WriteString(fmt.Sprintf("| Tokens Sold | %d |\n", r.Sale.TokensSold))
		sb.WriteString(fmt.Sprintf("| Remaining | %d |\n", r.Sale.Remaining))
		sb.WriteString(fmt.Sprintf("| Sold | %.2f%% |\n", r.Sale.SoldPct))
	} else {
		sb.WriteString("Sale not initialized.\n")
	}
	sb.WriteString("\n")

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Purchases | %d |\n", r.Summary.Purchases))
	sb.WriteString(fmt.Sprintf("| Tokens Bought | %d |\n", r.Summary.TokensBought))
	sb.WriteString(fmt.Sprintf("| SOL Spent | %s |\n", formatSOL(r.Summary.LamportsSpent)))
	sb.WriteString(fmt.Sprintf("| Unique Buyers | %d |\n", r.Summary.UniqueBuyers))
	sb.WriteString(fmt.Sprintf("| Initializations | %d |\n", r.Summary.Initializations))
	sb.WriteString(fmt.Sprintf("| Deposits | %d |\n", r.Summary.Deposits))
	sb.WriteString(fmt.Sprintf("| Tokens Deposited | %d |\n", r.Summary.TokensDeposited))
	sb.WriteString(fmt.Sprintf("| Token Accounts Created | %d |\n", r.Summary.TokenAccountsCreated))
	sb.WriteString(fmt.Sprintf("| Failed Actions | %d |\n", r.Summary.Failures))
	sb.WriteString("\n")

	// Buyers
	sb.WriteString("## Buyers\n\n")
	if len(r.Buyers) > 0 {
		sb.WriteString("| Wallet | Purchases | Tokens | SOL |\n")
		sb.WriteString("|--------|-----------|--------|-----|\n")
		for _, b := range r.Buyers {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
				b.Wallet, b.Purchases, b.Tokens, formatSOL(b.Lamports)))
		}
	} else {
		sb.WriteString("No purchases in range.\n")
	}
	sb.WriteString("\n")

	// Snapshots
	if r.Snapshots != nil {
		sb.WriteString("## Snapshots\n\n")
		if r.Snapshots.Count > 0 {
			sb.WriteString(fmt.Sprintf("%d snapshots; tokens sold %d → %d (+%d).\n",
				r.Snapshots.Count, r.Snapshots.FirstTokensSold, r.Snapshots.LastTokensSold, r.Snapshots.SoldInRange))
		} else {
			sb.WriteString("No snapshots in range.\n")
		}
		sb.WriteString("\n")
	}

	// Failures
	if len(r.Failures) > 0 {
		sb.WriteString("## Failures\n\n")
		sb.WriteString("| Time | Action | Wallet | Amount | Error |\n")
		sb.WriteString("|------|--------|--------|--------|-------|\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s |\n",
				formatMs(f.CreatedAt), f.Kind, f.Wallet, f.Amount, escapeCell(f.Error)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatSOL(lamports uint64) string {
	return fmt.Sprintf("%.6f", float64(lamports)/lamportsPerSOL)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
