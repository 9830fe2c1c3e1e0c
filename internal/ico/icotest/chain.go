// Package icotest simulates the sale program on top of the stub RPC client
// so that tests can run the full client flow.
package icotest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"solana-ico/internal/anchor"
	"solana-ico/internal/ico"
	"solana-ico/internal/solana"
	"solana-ico/internal/solana/stub"
	"solana-ico/internal/wallet"
)

// TokenAccountSize is the SPL token account layout size.
const TokenAccountSize = 165

// Chain applies sale program instructions to stub accounts.
type Chain struct {
	RPC     *stub.RPCClient
	Program *ico.Program

	// FailCode, when non-zero, makes the next sale program instruction
	// fail preflight with this custom error code.
	FailCode uint32

	// Block, when set, is received from before each transaction is applied.
	Block chan struct{}
}

// NewChain creates an empty chain with a random program id and mint.
func NewChain(t testing.TB) *Chain {
	t.Helper()
	program, err := ico.NewProgram(solanago.NewWallet().PublicKey(), solanago.NewWallet().PublicKey())
	if err != nil {
		t.Fatalf("new program: %v", err)
	}
	c := &Chain{RPC: stub.NewRPCClient(), Program: program}
	c.RPC.OnSend = c.apply
	return c
}

// NewKeypair returns a funded keypair.
func (c *Chain) NewKeypair(t testing.TB, lamports uint64) *wallet.Keypair {
	t.Helper()
	kp, err := wallet.NewKeypair()
	if err != nil {
		t.Fatalf("new keypair: %v", err)
	}
	c.RPC.SetBalance(kp.PublicKey().String(), lamports)
	return kp
}

// NewClient returns a client signing with signer (nil for none) that
// confirms quickly against the stub.
func (c *Chain) NewClient(signer wallet.Signer) *ico.Client {
	confirmer := ico.NewConfirmer(c.RPC, solana.CommitmentConfirmed, 2*time.Second, ico.WithPollInterval(5*time.Millisecond))
	opts := []ico.ClientOption{ico.WithConfirmer(confirmer)}
	if signer != nil {
		opts = append(opts, ico.WithSigner(signer))
	}
	return ico.NewClient(c.RPC, c.Program, opts...)
}

// PutSale stores a sale record for admin and returns its address.
func (c *Chain) PutSale(t testing.TB, admin solanago.PublicKey, total, sold uint64) string {
	t.Helper()
	addr, err := c.Program.DataAddress(admin)
	if err != nil {
		t.Fatalf("data address: %v", err)
	}
	data, err := ico.EncodeSale(admin, total, sold)
	if err != nil {
		t.Fatalf("encode sale: %v", err)
	}
	c.RPC.SetAccount(addr.String(), &solana.AccountInfo{Owner: c.Program.ID.String(), Data: data, Lamports: 1})
	return addr.String()
}

// PutTokenAccount stores owner's token account holding amount base units.
func (c *Chain) PutTokenAccount(t testing.TB, owner solanago.PublicKey, amount uint64) string {
	t.Helper()
	addr, err := c.Program.TokenAccount(owner)
	if err != nil {
		t.Fatalf("token account: %v", err)
	}
	c.RPC.SetAccount(addr.String(), &solana.AccountInfo{
		Owner: solanago.TokenProgramID.String(),
		Data:  TokenAccountData(c.Program.Mint, owner, amount),
	})
	return addr.String()
}

// TokenAccountData lays out an initialized SPL token account.
func TokenAccountData(mint, owner solanago.PublicKey, amount uint64) []byte {
	data := make([]byte, TokenAccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1 // initialized
	return data
}

// ProgramInstructions returns the instructions of tx addressed to programID.
func ProgramInstructions(tx *solanago.Transaction, programID solanago.PublicKey) []solanago.CompiledInstruction {
	var out []solanago.CompiledInstruction
	for _, ix := range tx.Message.Instructions {
		if tx.Message.AccountKeys[ix.ProgramIDIndex].Equals(programID) {
			out = append(out, ix)
		}
	}
	return out
}

// apply runs inside the stub's send with its lock held.
func (c *Chain) apply(rpc *stub.RPCClient, tx *solanago.Transaction) error {
	if c.Block != nil {
		<-c.Block
	}
	keys := tx.Message.AccountKeys
	for idx, ix := range tx.Message.Instructions {
		program := keys[ix.ProgramIDIndex]
		account := func(i int) solanago.PublicKey { return keys[ix.Accounts[i]] }

		switch {
		case program.Equals(solanago.SPLAssociatedTokenAccountProgramID):
			ata, owner := account(1), account(2)
			rpc.PutAccount(ata.String(), &solana.AccountInfo{
				Owner: solanago.TokenProgramID.String(),
				Data:  TokenAccountData(c.Program.Mint, owner, 0),
			})

		case program.Equals(c.Program.ID):
			if c.FailCode != 0 {
				code := c.FailCode
				c.FailCode = 0
				return simulationError(idx, code)
			}
			if err := c.applySale(rpc, ix, account); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unexpected program %s", program)
		}
	}
	return nil
}

func (c *Chain) applySale(rpc *stub.RPCClient, ix solanago.CompiledInstruction, account func(int) solanago.PublicKey) error {
	data := []byte(ix.Data)
	if len(data) < anchor.DiscriminatorLength+8 {
		return fmt.Errorf("short instruction data")
	}
	disc := data[:anchor.DiscriminatorLength]
	args := data[anchor.DiscriminatorLength:]

	sale := func(addr solanago.PublicKey) (*saleState, bool) {
		info, ok := rpc.Accounts[addr.String()]
		if !ok {
			return nil, false
		}
		s, err := c.Program.DecodeSale(addr.String(), info.Data)
		if err != nil {
			return nil, false
		}
		admin := solanago.MustPublicKeyFromBase58(s.Admin)
		return &saleState{admin: admin, total: s.TotalTokens, sold: s.TokensSold}, true
	}
	store := func(addr solanago.PublicKey, s *saleState) error {
		raw, err := ico.EncodeSale(s.admin, s.total, s.sold)
		if err != nil {
			return err
		}
		rpc.PutAccount(addr.String(), &solana.AccountInfo{Owner: c.Program.ID.String(), Data: raw, Lamports: 1})
		return nil
	}

	switch {
	case isInstruction(disc, "createIcoAta"):
		amount := binary.LittleEndian.Uint64(args)
		return store(account(1), &saleState{admin: account(4), total: amount})

	case isInstruction(disc, "depositeIcoInAta"):
		amount := binary.LittleEndian.Uint64(args)
		s, ok := sale(account(1))
		if !ok {
			return simulationError(0, 3012)
		}
		if !s.admin.Equals(account(4)) {
			return simulationError(0, 6001)
		}
		s.total += amount
		return store(account(1), s)

	case isInstruction(disc, "buyTokens"):
		if len(args) < 9 {
			return fmt.Errorf("short buy args")
		}
		amount := binary.LittleEndian.Uint64(args[1:9])
		s, ok := sale(account(1))
		if !ok {
			return simulationError(0, 3012)
		}
		s.sold += amount
		if err := store(account(1), s); err != nil {
			return err
		}

		ata, user, admin := account(3), account(4), account(5)
		info, ok := rpc.Accounts[ata.String()]
		if !ok {
			return simulationError(0, 3012)
		}
		held := binary.LittleEndian.Uint64(info.Data[64:72])
		rpc.PutAccount(ata.String(), &solana.AccountInfo{
			Owner: solanago.TokenProgramID.String(),
			Data:  TokenAccountData(c.Program.Mint, user, held+amount*ico.TokenDecimals),
		})
		cost := amount * ico.LamportsPerToken
		rpc.Balances[user.String()] -= cost
		rpc.Balances[admin.String()] += cost
		return nil
	}
	return fmt.Errorf("unknown instruction")
}

type saleState struct {
	admin       solanago.PublicKey
	total, sold uint64
}

func isInstruction(disc []byte, name string) bool {
	want := anchor.InstructionDiscriminator(name)
	return bytes.Equal(disc, want[:])
}

// simulationError mimics the node's preflight failure response.
func simulationError(index int, code uint32) error {
	data, _ := json.Marshal(map[string]interface{}{
		"err": map[string]interface{}{
			"InstructionError": []interface{}{index, map[string]interface{}{"Custom": code}},
		},
		"logs": []string{fmt.Sprintf("Program log: custom program error: %#x", code)},
	})
	return &solana.RPCError{Code: -32002, Message: "Transaction simulation failed", Data: data}
}
