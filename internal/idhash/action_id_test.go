package idhash

import (
	"testing"

	"solana-ico/internal/domain"
)

func TestComputeActionID(t *testing.T) {
	tests := []struct {
		name      string
		kind      domain.ActionKind
		wallet    string
		amount    uint64
		signature string
		createdAt int64
	}{
		{
			name:      "confirmed buy",
			kind:      domain.ActionBuy,
			wallet:    "Wallet111",
			amount:    10,
			signature: "5sig",
			createdAt: 1704067234567,
		},
		{
			name:      "failed deposit without signature",
			kind:      domain.ActionDeposit,
			wallet:    "Admin222",
			amount:    500,
			signature: "",
			createdAt: 1704067300000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeActionID(tt.kind, tt.wallet, tt.amount, tt.signature, tt.createdAt)

			if len(got) != 64 {
				t.Errorf("ComputeActionID() length = %d, want 64", len(got))
			}

			got2 := ComputeActionID(tt.kind, tt.wallet, tt.amount, tt.signature, tt.createdAt)
			if got != got2 {
				t.Errorf("ComputeActionID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeActionID_DifferentInputs(t *testing.T) {
	base := ComputeActionID(domain.ActionBuy, "w", 1, "sig", 1000)

	variants := map[string]string{
		"kind":      ComputeActionID(domain.ActionDeposit, "w", 1, "sig", 1000),
		"wallet":    ComputeActionID(domain.ActionBuy, "x", 1, "sig", 1000),
		"amount":    ComputeActionID(domain.ActionBuy, "w", 2, "sig", 1000),
		"signature": ComputeActionID(domain.ActionBuy, "w", 1, "gis", 1000),
		"createdAt": ComputeActionID(domain.ActionBuy, "w", 1, "sig", 1001),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("changing %s did not change the id", field)
		}
	}
}
