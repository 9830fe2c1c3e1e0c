// Package pda derives program derived addresses.
package pda

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
)

const (
	// MaxSeeds is the maximum number of seeds, bump included.
	MaxSeeds = 16
	// MaxSeedLength is the maximum length of a single seed.
	MaxSeedLength = 32

	marker = "ProgramDerivedAddress"
)

var (
	// ErrMaxSeedLength is returned when a seed is longer than MaxSeedLength.
	ErrMaxSeedLength = errors.New("seed exceeds max length")
	// ErrTooManySeeds is returned when more than MaxSeeds seeds are given.
	ErrTooManySeeds = errors.New("too many seeds")
	// ErrOnCurve is returned when the derived hash is a valid ed25519 point.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when every bump lands on the curve.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// CreateProgramAddress hashes seeds with programID and rejects results that
// lie on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID solanago.PublicKey) (solanago.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return solanago.PublicKey{}, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return solanago.PublicKey{}, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(marker))

	var addr solanago.PublicKey
	copy(addr[:], h.Sum(nil))

	if isOnCurve(addr[:]) {
		return solanago.PublicKey{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down to 1, like the runtime,
// and returns the first off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return solanago.PublicKey{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := byte(255); bump > 0; bump-- {
		withBump[len(seeds)] = []byte{bump}
		addr, err := CreateProgramAddress(withBump, programID)
		switch {
		case err == nil:
			return addr, bump, nil
		case errors.Is(err, ErrOnCurve):
			continue
		default:
			return solanago.PublicKey{}, 0, err
		}
	}
	return solanago.PublicKey{}, 0, ErrNoViableBump
}

// FindAssociatedTokenAddress returns the associated token account of wallet
// for mint under the classic token program.
func FindAssociatedTokenAddress(wallet, mint solanago.PublicKey) (solanago.PublicKey, uint8, error) {
	return FindProgramAddress(
		[][]byte{wallet[:], solanago.TokenProgramID[:], mint[:]},
		solanago.SPLAssociatedTokenAccountProgramID,
	)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
