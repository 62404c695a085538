package descrambler

import (
	"fmt"
	"strings"
)

// Kind identifies the cipher used on a service.
type Kind int

const (
	KindNone      Kind = 0
	KindCSA       Kind = 1
	KindDESNCB    Kind = 2 // DES over 8-byte blocks, no chaining
	KindAESECB    Kind = 3
	KindAES128ECB Kind = 16
)

var kindNames = map[Kind]string{
	KindNone:      "none",
	KindCSA:       "csa",
	KindDESNCB:    "des-ncb",
	KindAESECB:    "aes-ecb",
	KindAES128ECB: "aes128-ecb",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KeySize is the control word length for k.
func (k Kind) KeySize() int {
	if k >= KindAES128ECB {
		return 16
	}
	return 8
}

func (k Kind) valid() bool {
	_, ok := kindNames[k]
	return ok && k != KindNone
}

// ParseKind maps a kind name, as printed by String, back to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s && k != KindNone {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
