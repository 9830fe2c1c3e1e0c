package anchor

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
)

// BuildInstruction assembles an instruction from the IDL. Accounts are keyed
// by their IDL names and ordered as the IDL lists them; args are borsh
// encoded in order and must match the declared Go types (u64 → uint64,
// publicKey → solanago.PublicKey, [u8; N] → []byte of length N, ...).
func (idl *IDL) BuildInstruction(programID solanago.PublicKey, name string, accounts map[string]solanago.PublicKey, args ...interface{}) (*solanago.GenericInstruction, error) {
	ix, err := idl.Instruction(name)
	if err != nil {
		return nil, err
	}

	metas := make(solanago.AccountMetaSlice, 0, len(ix.Accounts))
	for _, item := range ix.Accounts {
		key, ok := accounts[item.Name]
		if !ok {
			return nil, fmt.Errorf("build %s: missing account %s", ix.Name, item.Name)
		}
		metas = append(metas, solanago.NewAccountMeta(key, item.IsMut, item.IsSigner))
	}

	data, err := EncodeArgs(ix, args...)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", ix.Name, err)
	}

	return solanago.NewInstruction(programID, metas, data), nil
}

// EncodeArgs returns discriminator plus borsh-encoded args.
func EncodeArgs(ix *Instruction, args ...interface{}) ([]byte, error) {
	if len(args) != len(ix.Args) {
		return nil, fmt.Errorf("expected %d args, got %d", len(ix.Args), len(args))
	}

	var buf bytes.Buffer
	disc := InstructionDiscriminator(ix.Name)
	buf.Write(disc[:])

	enc := bin.NewBorshEncoder(&buf)
	for i, field := range ix.Args {
		if err := encodeValue(enc, field.Type, args[i]); err != nil {
			return nil, fmt.Errorf("arg %s: %w", field.Name, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *bin.Encoder, typ Type, v interface{}) error {
	if typ.Array != nil {
		b, ok := v.([]byte)
		if !ok || typ.Array.Elem.Name != "u8" {
			return fmt.Errorf("%w: %s with %T", ErrUnsupportedType, typ, v)
		}
		if len(b) != typ.Array.Len {
			return fmt.Errorf("expected %d bytes, got %d", typ.Array.Len, len(b))
		}
		return enc.WriteBytes(b, false)
	}

	var ok bool
	switch typ.Name {
	case "u8":
		_, ok = v.(uint8)
	case "u16":
		_, ok = v.(uint16)
	case "u32":
		_, ok = v.(uint32)
	case "u64":
		_, ok = v.(uint64)
	case "i64":
		_, ok = v.(int64)
	case "bool":
		_, ok = v.(bool)
	case "string":
		_, ok = v.(string)
	case "publicKey", "pubkey":
		_, ok = v.(solanago.PublicKey)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	if !ok {
		return fmt.Errorf("type %s cannot hold %T", typ, v)
	}
	return enc.Encode(v)
}
