// Package anchor reads Anchor interface descriptions (legacy IDL format) and
// builds or decodes the program data they describe.
package anchor

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrUnknownInstruction is returned for names absent from the IDL.
	ErrUnknownInstruction = errors.New("unknown instruction")
	// ErrUnknownAccount is returned for account types absent from the IDL.
	ErrUnknownAccount = errors.New("unknown account type")
	// ErrDynamicSize is returned when an account has variable-length fields.
	ErrDynamicSize = errors.New("account has no fixed size")
	// ErrUnsupportedType is returned for IDL types this package cannot encode.
	ErrUnsupportedType = errors.New("unsupported idl type")
)

// IDL is a parsed interface description.
type IDL struct {
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
	Accounts     []TypeDef     `json:"accounts"`
	Errors       []ErrorDef    `json:"errors"`
}

// Instruction describes one program instruction.
type Instruction struct {
	Name     string        `json:"name"`
	Accounts []AccountItem `json:"accounts"`
	Args     []Field       `json:"args"`
}

// AccountItem is an account slot of an instruction.
type AccountItem struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

// TypeDef is a named struct layout.
type TypeDef struct {
	Name string `json:"name"`
	Type struct {
		Kind   string  `json:"kind"`
		Fields []Field `json:"fields"`
	} `json:"type"`
}

// Field is a named, typed value.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Type is either a primitive name ("u64", "publicKey", ...) or a fixed array.
type Type struct {
	Name  string
	Array *ArrayType
}

// ArrayType is a fixed-length array of Elem.
type ArrayType struct {
	Elem Type
	Len  int
}

// ErrorDef is a custom program error.
type ErrorDef struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// UnmarshalJSON accepts `"u64"` and `{"array": ["u8", 32]}`.
func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Name = name
		return nil
	}

	var composite struct {
		Array []json.RawMessage `json:"array"`
	}
	if err := json.Unmarshal(data, &composite); err != nil {
		return fmt.Errorf("parse type: %w", err)
	}
	if len(composite.Array) != 2 {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, string(data))
	}

	var arr ArrayType
	if err := json.Unmarshal(composite.Array[0], &arr.Elem); err != nil {
		return err
	}
	if err := json.Unmarshal(composite.Array[1], &arr.Len); err != nil {
		return fmt.Errorf("parse array length: %w", err)
	}
	t.Array = &arr
	return nil
}

// String renders the type the way the IDL spells it.
func (t Type) String() string {
	if t.Array != nil {
		return fmt.Sprintf("[%s; %d]", t.Array.Elem, t.Array.Len)
	}
	return t.Name
}

// Size returns the borsh size of a fixed-size type.
func (t Type) Size() (int, error) {
	if t.Array != nil {
		elem, err := t.Array.Elem.Size()
		if err != nil {
			return 0, err
		}
		return elem * t.Array.Len, nil
	}
	switch t.Name {
	case "u8", "i8", "bool":
		return 1, nil
	case "u16", "i16":
		return 2, nil
	case "u32", "i32":
		return 4, nil
	case "u64", "i64":
		return 8, nil
	case "u128", "i128":
		return 16, nil
	case "publicKey", "pubkey":
		return 32, nil
	case "string", "bytes":
		return 0, ErrDynamicSize
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, t.Name)
	}
}

// Parse decodes an IDL document.
func Parse(data []byte) (*IDL, error) {
	var idl IDL
	if err := json.Unmarshal(data, &idl); err != nil {
		return nil, fmt.Errorf("parse idl: %w", err)
	}
	if idl.Name == "" {
		return nil, errors.New("parse idl: missing program name")
	}
	if len(idl.Instructions) == 0 {
		return nil, errors.New("parse idl: no instructions")
	}
	return &idl, nil
}

// Instruction finds an instruction by camelCase or snake_case name.
func (idl *IDL) Instruction(name string) (*Instruction, error) {
	want := SnakeCase(name)
	for i := range idl.Instructions {
		if SnakeCase(idl.Instructions[i].Name) == want {
			return &idl.Instructions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, name)
}

// Account finds an account layout by name.
func (idl *IDL) Account(name string) (*TypeDef, error) {
	for i := range idl.Accounts {
		if idl.Accounts[i].Name == name {
			return &idl.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, name)
}

// AccountSize returns discriminator plus body size for a fixed-size account.
func (idl *IDL) AccountSize(name string) (int, error) {
	def, err := idl.Account(name)
	if err != nil {
		return 0, err
	}
	size := DiscriminatorLength
	for _, f := range def.Type.Fields {
		n, err := f.Type.Size()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", f.Name, err)
		}
		size += n
	}
	return size, nil
}

// LookupError maps a custom program error code to its definition.
func (idl *IDL) LookupError(code uint32) (ErrorDef, bool) {
	for _, e := range idl.Errors {
		if e.Code == code {
			return e, true
		}
	}
	return ErrorDef{}, false
}

// DiscriminatorLength is the size of Anchor's instruction and account tags.
const DiscriminatorLength = 8

// InstructionDiscriminator returns sha256("global:<snake_name>")[:8].
func InstructionDiscriminator(name string) [8]byte {
	return discriminator("global", SnakeCase(name))
}

// AccountDiscriminator returns sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) [8]byte {
	return discriminator("account", name)
}

func discriminator(namespace, name string) [8]byte {
	hash := sha256.Sum256([]byte(namespace + ":" + name))
	var disc [8]byte
	copy(disc[:], hash[:8])
	return disc
}

// SnakeCase converts camelCase identifiers to snake_case.
func SnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
