package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"action_id", "created_at", "kind", "wallet", "amount", "lamports", "status", "signature", "error",
}

// RenderCSV renders the report's actions as CSV string.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, a := range r.Actions {
		record := []string{
			a.ActionID,
			strconv.FormatInt(a.CreatedAt, 10),
			a.Kind,
			a.Wallet,
			strconv.FormatUint(a.Amount, 10),
			strconv.FormatUint(a.Lamports, 10),
			a.Status,
			a.Signature,
			a.Error,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
