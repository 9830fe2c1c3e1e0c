// Package ico is the client for the token-sale program: address derivation,
// instruction building, transaction submission and the session state that
// mirrors what a connected wallet sees.
package ico

import (
	_ "embed"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-ico/internal/anchor"
	"solana-ico/internal/domain"
	"solana-ico/internal/pda"
)

//go:embed idl/ico.json
var idlJSON []byte

const (
	// LamportsPerToken is the fixed price of one whole token (0.001 SOL).
	LamportsPerToken uint64 = 1_000_000

	// TokenDecimals is the scale of one whole token in base units.
	TokenDecimals uint64 = domain.TokenDecimals

	// FeeReserveLamports is kept on top of the price for the transaction fee.
	FeeReserveLamports uint64 = 5000

	// DataSeed prefixes the sale record address seeds.
	DataSeed = "data"

	// DataAccount is the IDL name of the sale record.
	DataAccount = "Data"
)

// Instruction names as declared in the IDL.
const (
	ixCreateSale = "createIcoAta"
	ixDeposit    = "depositeIcoInAta"
	ixBuy        = "buyTokens"
)

// Program describes one deployment of the sale program.
type Program struct {
	ID   solanago.PublicKey
	Mint solanago.PublicKey
	IDL  *anchor.IDL
}

// NewProgram parses the embedded IDL for the deployment at programID selling mint.
func NewProgram(programID, mint solanago.PublicKey) (*Program, error) {
	if programID.IsZero() || mint.IsZero() {
		return nil, fmt.Errorf("program id and mint are required")
	}
	idl, err := anchor.Parse(idlJSON)
	if err != nil {
		return nil, fmt.Errorf("parse ico idl: %w", err)
	}
	return &Program{ID: programID, Mint: mint, IDL: idl}, nil
}

// VaultAddress returns the program-owned token account holding the sale
// tokens, seeded by the mint, and its bump.
func (p *Program) VaultAddress() (solanago.PublicKey, uint8, error) {
	addr, bump, err := pda.FindProgramAddress([][]byte{p.Mint.Bytes()}, p.ID)
	if err != nil {
		return solanago.PublicKey{}, 0, fmt.Errorf("derive vault address: %w", err)
	}
	return addr, bump, nil
}

// DataAddress returns the sale record address of admin.
func (p *Program) DataAddress(admin solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := pda.FindProgramAddress([][]byte{[]byte(DataSeed), admin.Bytes()}, p.ID)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive data address: %w", err)
	}
	return addr, nil
}

// TokenAccount returns owner's associated token account for the sale mint.
func (p *Program) TokenAccount(owner solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := pda.FindAssociatedTokenAddress(owner, p.Mint)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("derive token account: %w", err)
	}
	return addr, nil
}

// adminAccounts resolves the accounts shared by the create and deposit instructions.
func (p *Program) adminAccounts(admin solanago.PublicKey) (map[string]solanago.PublicKey, error) {
	vault, _, err := p.VaultAddress()
	if err != nil {
		return nil, err
	}
	data, err := p.DataAddress(admin)
	if err != nil {
		return nil, err
	}
	adminATA, err := p.TokenAccount(admin)
	if err != nil {
		return nil, err
	}
	return map[string]solanago.PublicKey{
		"icoAtaForIcoProgram": vault,
		"data":                data,
		"icoMint":             p.Mint,
		"icoAtaForAdmin":      adminATA,
		"admin":               admin,
		"tokenProgram":        solanago.TokenProgramID,
	}, nil
}

// CreateSaleInstruction creates the vault and sale record and moves amount
// whole tokens from the admin's token account into the vault.
func (p *Program) CreateSaleInstruction(admin solanago.PublicKey, amount uint64) (solanago.Instruction, error) {
	accounts, err := p.adminAccounts(admin)
	if err != nil {
		return nil, err
	}
	accounts["systemProgram"] = solanago.SystemProgramID
	accounts["rent"] = solanago.SysVarRentPubkey
	return p.IDL.BuildInstruction(p.ID, ixCreateSale, accounts, amount)
}

// DepositInstruction moves amount more whole tokens into the vault.
func (p *Program) DepositInstruction(admin solanago.PublicKey, amount uint64) (solanago.Instruction, error) {
	accounts, err := p.adminAccounts(admin)
	if err != nil {
		return nil, err
	}
	return p.IDL.BuildInstruction(p.ID, ixDeposit, accounts, amount)
}

// BuyInstruction pays for and receives amount whole tokens from the sale
// administered by admin.
func (p *Program) BuyInstruction(user, admin solanago.PublicKey, amount uint64) (solanago.Instruction, error) {
	vault, bump, err := p.VaultAddress()
	if err != nil {
		return nil, err
	}
	data, err := p.DataAddress(admin)
	if err != nil {
		return nil, err
	}
	userATA, err := p.TokenAccount(user)
	if err != nil {
		return nil, err
	}
	accounts := map[string]solanago.PublicKey{
		"icoAtaForIcoProgram": vault,
		"data":                data,
		"icoMint":             p.Mint,
		"icoAtaForUser":       userATA,
		"user":                user,
		"admin":               admin,
		"tokenProgram":        solanago.TokenProgramID,
		"systemProgram":       solanago.SystemProgramID,
	}
	return p.IDL.BuildInstruction(p.ID, ixBuy, accounts, bump, amount)
}

// saleRecord is the borsh layout of the Data account body.
type saleRecord struct {
	Admin       solanago.PublicKey
	TotalTokens uint64
	TokensSold  uint64
}

// DecodeSale decodes the sale record stored at address.
func (p *Program) DecodeSale(address string, data []byte) (*domain.Sale, error) {
	var rec saleRecord
	if err := p.IDL.DecodeAccount(DataAccount, data, &rec); err != nil {
		return nil, err
	}
	return &domain.Sale{
		Address:     address,
		Admin:       rec.Admin.String(),
		TotalTokens: rec.TotalTokens,
		TokensSold:  rec.TokensSold,
	}, nil
}

// EncodeSale produces account data for a sale record, as the program stores it.
func EncodeSale(admin solanago.PublicKey, totalTokens, tokensSold uint64) ([]byte, error) {
	return anchor.EncodeAccount(DataAccount, saleRecord{
		Admin:       admin,
		TotalTokens: totalTokens,
		TokensSold:  tokensSold,
	})
}
