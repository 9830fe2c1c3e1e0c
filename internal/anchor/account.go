package anchor

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/mr-tron/base58"

	"solana-ico/internal/solana"
)

// ErrDiscriminatorMismatch is returned when account data carries another
// account type's tag.
var ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")

// DecodeAccount checks the discriminator and size of data for account type
// name and borsh-decodes the body into out.
func (idl *IDL) DecodeAccount(name string, data []byte, out interface{}) error {
	if _, err := idl.Account(name); err != nil {
		return err
	}
	if len(data) < DiscriminatorLength {
		return fmt.Errorf("decode %s: data too short (%d bytes)", name, len(data))
	}
	disc := AccountDiscriminator(name)
	if !bytes.Equal(data[:DiscriminatorLength], disc[:]) {
		return fmt.Errorf("decode %s: %w", name, ErrDiscriminatorMismatch)
	}

	size, err := idl.AccountSize(name)
	switch {
	case err == nil && len(data) < size:
		return fmt.Errorf("decode %s: expected %d bytes, got %d", name, size, len(data))
	case err != nil && !errors.Is(err, ErrDynamicSize):
		return err
	}

	if err := bin.NewBorshDecoder(data[DiscriminatorLength:]).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// EncodeAccount prefixes the borsh encoding of v with the discriminator.
func EncodeAccount(name string, v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	disc := AccountDiscriminator(name)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// AccountFilters returns getProgramAccounts filters that select accounts of
// type name by discriminator. Size is left to DecodeAccount, which accepts
// accounts grown past their declared layout.
func (idl *IDL) AccountFilters(name string) ([]solana.AccountFilter, error) {
	if _, err := idl.Account(name); err != nil {
		return nil, err
	}

	disc := AccountDiscriminator(name)
	return []solana.AccountFilter{
		{Memcmp: &solana.Memcmp{Offset: 0, Bytes: base58.Encode(disc[:])}},
	}, nil
}
