package store

import (
	"github.com/axiom-network/axiomd/internal/hasher"
)

func hexDecodeHash(h string) ([hasher.Size]byte, error) {
	return hasher.HashFromHex(h)
}
