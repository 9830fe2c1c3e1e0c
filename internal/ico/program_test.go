package ico

import (
	"encoding/binary"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/anchor"
)

func newTestProgram(t *testing.T) *Program {
	t.Helper()
	p, err := NewProgram(solanago.NewWallet().PublicKey(), solanago.NewWallet().PublicKey())
	require.NoError(t, err)
	return p
}

func TestNewProgram_RequiresAddresses(t *testing.T) {
	_, err := NewProgram(solanago.PublicKey{}, solanago.NewWallet().PublicKey())
	assert.Error(t, err)
}

func TestProgram_Addresses(t *testing.T) {
	p := newTestProgram(t)
	admin := solanago.NewWallet().PublicKey()

	vault, bump, err := p.VaultAddress()
	require.NoError(t, err)
	wantVault, wantBump, err := solanago.FindProgramAddress([][]byte{p.Mint.Bytes()}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, wantVault, vault)
	assert.Equal(t, wantBump, bump)

	data, err := p.DataAddress(admin)
	require.NoError(t, err)
	wantData, _, err := solanago.FindProgramAddress([][]byte{[]byte("data"), admin.Bytes()}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, wantData, data)

	ata, err := p.TokenAccount(admin)
	require.NoError(t, err)
	wantATA, _, err := solanago.FindAssociatedTokenAddress(admin, p.Mint)
	require.NoError(t, err)
	assert.Equal(t, wantATA, ata)
}

func TestProgram_CreateSaleInstruction(t *testing.T) {
	p := newTestProgram(t)
	admin := solanago.NewWallet().PublicKey()

	ix, err := p.CreateSaleInstruction(admin, 1000)
	require.NoError(t, err)
	assert.Equal(t, p.ID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 8)
	vault, _, _ := p.VaultAddress()
	assert.Equal(t, vault, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsWritable)
	assert.Equal(t, p.Mint, accounts[2].PublicKey)
	assert.Equal(t, admin, accounts[4].PublicKey)
	assert.True(t, accounts[4].IsSigner)
	assert.Equal(t, solanago.SysVarRentPubkey, accounts[7].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	disc := anchor.InstructionDiscriminator("create_ico_ata")
	assert.Equal(t, disc[:], data[:8])
	assert.Equal(t, uint64(1000), binary.LittleEndian.Uint64(data[8:]))
}

func TestProgram_DepositInstruction(t *testing.T) {
	p := newTestProgram(t)
	admin := solanago.NewWallet().PublicKey()

	ix, err := p.DepositInstruction(admin, 7)
	require.NoError(t, err)
	require.Len(t, ix.Accounts(), 6)
	assert.Equal(t, solanago.TokenProgramID, ix.Accounts()[5].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	disc := anchor.InstructionDiscriminator("deposite_ico_in_ata")
	assert.Equal(t, disc[:], data[:8])
	assert.Len(t, data, 16)
}

func TestProgram_BuyInstruction(t *testing.T) {
	p := newTestProgram(t)
	user := solanago.NewWallet().PublicKey()
	admin := solanago.NewWallet().PublicKey()

	ix, err := p.BuyInstruction(user, admin, 25)
	require.NoError(t, err)

	accounts := ix.Accounts()
	require.Len(t, accounts, 8)
	userATA, _ := p.TokenAccount(user)
	dataAddr, _ := p.DataAddress(admin)
	assert.Equal(t, dataAddr, accounts[1].PublicKey)
	assert.Equal(t, userATA, accounts[3].PublicKey)
	assert.Equal(t, user, accounts[4].PublicKey)
	assert.True(t, accounts[4].IsSigner)
	assert.Equal(t, admin, accounts[5].PublicKey)
	assert.True(t, accounts[5].IsWritable)
	assert.False(t, accounts[5].IsSigner)

	data, err := ix.Data()
	require.NoError(t, err)
	_, bump, _ := p.VaultAddress()
	require.Len(t, data, 17)
	assert.Equal(t, bump, data[8])
	assert.Equal(t, uint64(25), binary.LittleEndian.Uint64(data[9:]))
}

func TestProgram_DecodeSale(t *testing.T) {
	p := newTestProgram(t)
	admin := solanago.NewWallet().PublicKey()

	data, err := EncodeSale(admin, 1000, 250)
	require.NoError(t, err)
	assert.Len(t, data, 56)

	sale, err := p.DecodeSale("sale1", data)
	require.NoError(t, err)
	assert.Equal(t, "sale1", sale.Address)
	assert.Equal(t, admin.String(), sale.Admin)
	assert.Equal(t, uint64(1000), sale.TotalTokens)
	assert.Equal(t, uint64(250), sale.TokensSold)
	assert.Equal(t, uint64(750), sale.Remaining())

	data[0] ^= 0xff
	_, err = p.DecodeSale("sale1", data)
	assert.ErrorIs(t, err, anchor.ErrDiscriminatorMismatch)
}
