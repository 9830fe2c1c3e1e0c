package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-ico/internal/domain"
)

// ComputeActionID computes a deterministic action_id using SHA256.
// Formula: SHA256(kind|wallet|amount|signature|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeActionID(
	kind domain.ActionKind,
	wallet string,
	amount uint64,
	signature string,
	createdAt int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%d",
		string(kind),
		wallet,
		amount,
		signature,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
