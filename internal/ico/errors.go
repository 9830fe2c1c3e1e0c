package ico

import (
	"errors"
	"fmt"
	"strings"

	"solana-ico/internal/anchor"
	"solana-ico/internal/solana"
)

var (
	// ErrInvalidAmount is returned for zero, negative or malformed amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrWalletNotConnected is returned when an action needs a signer and none is set.
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrSaleNotInitialized is returned when no sale record exists.
	ErrSaleNotInitialized = errors.New("sale not initialized")

	// ErrInsufficientBalance is returned when the buyer cannot pay price plus fee.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBusy is returned when an action is already running in the session.
	ErrBusy = errors.New("another action is in progress")

	// ErrConfirmTimeout is returned when a signature does not reach the
	// commitment before the confirmation timeout.
	ErrConfirmTimeout = errors.New("confirmation timed out")

	// ErrTransactionFailed is returned for failed transactions without a
	// program error code.
	ErrTransactionFailed = errors.New("transaction failed")
)

// ProgramError is a custom error raised by an on-chain program, named
// through the IDL when the code is known.
type ProgramError struct {
	Code        uint32
	Name        string
	Msg         string
	Instruction int
	Logs        []string
}

func (e *ProgramError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("program error %d in instruction %d", e.Code, e.Instruction)
	}
	return fmt.Sprintf("program error %d (%s): %s", e.Code, e.Name, e.Msg)
}

// transactionError converts a transaction error value into a ProgramError
// or ErrTransactionFailed.
func transactionError(idl *anchor.IDL, txErr interface{}, logs []string) error {
	idx, code, ok := solana.ParseInstructionError(txErr)
	if !ok {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, txErr)
	}
	perr := &ProgramError{Code: code, Instruction: idx, Logs: logs}
	if def, found := idl.LookupError(code); found {
		perr.Name = def.Name
		perr.Msg = def.Msg
	}
	return perr
}

// mapSendError decodes preflight simulation failures returned by the node.
func mapSendError(idl *anchor.IDL, err error) error {
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		if txErr := rpcErr.TransactionError(); txErr != nil {
			return transactionError(idl, txErr, rpcErr.Logs())
		}
	}
	return err
}

// UserMessage renders err for display without transport detail.
func UserMessage(err error) string {
	var perr *ProgramError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &perr):
		if perr.Msg != "" {
			return perr.Msg
		}
		return perr.Error()
	case errors.Is(err, ErrInvalidAmount):
		return "Please enter a valid amount"
	case errors.Is(err, ErrWalletNotConnected):
		return "Please connect a wallet"
	case errors.Is(err, ErrSaleNotInitialized):
		return "The sale has not been initialized"
	case errors.Is(err, ErrBusy):
		return "Another action is in progress"
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient balance, " + strings.TrimPrefix(err.Error(), ErrInsufficientBalance.Error()+": ")
	default:
		return err.Error()
	}
}
