package ico

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/solana"
)

func TestMapSendError_ProgramError(t *testing.T) {
	p := newTestProgram(t)
	rpcErr := &solana.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed",
		Data:    []byte(`{"err":{"InstructionError":[0,{"Custom":6001}]},"logs":["Program log: AnchorError"]}`),
	}

	err := mapSendError(p.IDL, fmt.Errorf("send transaction: %w", rpcErr))

	var perr *ProgramError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, uint32(6001), perr.Code)
	assert.Equal(t, "InvalidAdmin", perr.Name)
	assert.Equal(t, "Invalid admin", perr.Msg)
	assert.Equal(t, []string{"Program log: AnchorError"}, perr.Logs)
	assert.Equal(t, "Invalid admin", UserMessage(err))
}

func TestMapSendError_UnknownCode(t *testing.T) {
	p := newTestProgram(t)
	rpcErr := &solana.RPCError{Code: -32002, Data: []byte(`{"err":{"InstructionError":[1,{"Custom":3012}]}}`)}

	var perr *ProgramError
	require.True(t, errors.As(mapSendError(p.IDL, rpcErr), &perr))
	assert.Equal(t, uint32(3012), perr.Code)
	assert.Equal(t, 1, perr.Instruction)
	assert.Empty(t, perr.Name)
}

func TestMapSendError_PassThrough(t *testing.T) {
	p := newTestProgram(t)

	plain := errors.New("connection refused")
	assert.Equal(t, plain, mapSendError(p.IDL, plain))

	rpcErr := &solana.RPCError{Code: -32602, Message: "invalid params"}
	assert.Equal(t, error(rpcErr), mapSendError(p.IDL, rpcErr))

	notCustom := &solana.RPCError{Code: -32002, Data: []byte(`{"err":"AccountNotFound"}`)}
	assert.ErrorIs(t, mapSendError(p.IDL, notCustom), ErrTransactionFailed)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Please enter a valid amount", UserMessage(fmt.Errorf("%w: %q", ErrInvalidAmount, "x")))
	assert.Equal(t, "Please connect a wallet", UserMessage(ErrWalletNotConnected))
	assert.Equal(t, "Another action is in progress", UserMessage(ErrBusy))
	assert.Equal(t, "Insufficient balance, need 0.01 SOL plus fee",
		UserMessage(fmt.Errorf("%w: need 0.01 SOL plus fee", ErrInsufficientBalance)))
}
