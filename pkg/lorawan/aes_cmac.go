package lorawan

import (
	"fmt"

	"github.com/jacobsa/crypto/cmac"
)

// aesCMAC implements AES-CMAC according to RFC 4493 and returns the full 16-byte tag
func aesCMAC(key AES128Key, parts ...[]byte) ([]byte, error) {
	hash, err := cmac.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cmac: %w", err)
	}

	for _, p := range parts {
		if _, err := hash.Write(p); err != nil {
			return nil, fmt.Errorf("write cmac: %w", err)
		}
	}

	return hash.Sum(nil), nil
}
