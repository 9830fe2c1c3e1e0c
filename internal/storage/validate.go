package storage

import "solana-ico/internal/domain"

// ValidateAction returns ErrInvalidInput when a cannot be stored.
func ValidateAction(a *domain.Action) error {
	if a == nil || a.ActionID == "" || a.Wallet == "" || !a.Kind.IsValid() || !a.Status.IsValid() {
		return ErrInvalidInput
	}
	return nil
}

// ValidateSnapshot returns ErrInvalidInput when s cannot be stored.
func ValidateSnapshot(s *domain.SaleSnapshot) error {
	if s == nil || s.SaleAddress == "" || s.TimestampMs <= 0 {
		return ErrInvalidInput
	}
	return nil
}
