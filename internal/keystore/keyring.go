package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

// KeyringStore reads session keys from the OS keyring. Each device is one
// secret under the configured service, the account is the DevAddr hex and
// the secret is "<app_s_key>,<nwk_s_key>".
type KeyringStore struct {
	service string
	codec   *KeyCodec
}

// NewKeyringStore creates a keyring backed key store
func NewKeyringStore(service string, codec *KeyCodec) *KeyringStore {
	if codec == nil {
		codec = &KeyCodec{}
	}
	return &KeyringStore{service: service, codec: codec}
}

// GetSessionKeys gets the session keys of devAddr
func (s *KeyringStore) GetSessionKeys(ctx context.Context, devAddr lorawan.DevAddr) (lorawan.SessionKeys, error) {
	secret, err := keyring.Get(s.service, devAddr.String())
	if errors.Is(err, keyring.ErrNotFound) {
		return lorawan.SessionKeys{}, ErrNotFound
	}
	if err != nil {
		return lorawan.SessionKeys{}, fmt.Errorf("keyring get: %w", err)
	}

	appSKey, nwkSKey, ok := strings.Cut(secret, ",")
	if !ok {
		return lorawan.SessionKeys{}, fmt.Errorf("%w: keyring secret for %s is not <app_s_key>,<nwk_s_key>", ErrInvalidData, devAddr)
	}

	return s.codec.sessionKeys(devAddr, appSKey, nwkSKey)
}

// Close is a no-op
func (s *KeyringStore) Close() error {
	return nil
}
