package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lorawan-server/lorawan-framesec/internal/config"
	"github.com/lorawan-server/lorawan-framesec/pkg/crypto"
	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

// Common errors
var (
	ErrNotFound    = errors.New("session keys not found")
	ErrInvalidData = errors.New("invalid key data")
)

// Store is the read-only key-store collaborator of the frame security layer.
// Implementations must be safe for concurrent use.
type Store interface {
	GetSessionKeys(ctx context.Context, devAddr lorawan.DevAddr) (lorawan.SessionKeys, error)
	Close() error
}

// New opens the backend selected in cfg
func New(cfg *config.KeyStoreConfig) (Store, error) {
	codec, err := NewKeyCodec(cfg.MasterKey)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.KeyStoreFile:
		s, err := NewFileStore(cfg.File, codec)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.KeyStorePostgres:
		s, err := NewPostgresStore(cfg.DSN, cfg.MaxOpenConns, cfg.QueryTimeout, codec)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.KeyStoreKeyring:
		return NewKeyringStore(cfg.KeyringService, codec), nil
	default:
		return nil, fmt.Errorf("unknown keystore backend %q", cfg.Backend)
	}
}

// KeyCodec turns stored key strings into keys, opening sealed values
// when a master key is configured
type KeyCodec struct {
	masterKey []byte
}

// NewKeyCodec creates a codec, masterKeyHex may be empty
func NewKeyCodec(masterKeyHex string) (*KeyCodec, error) {
	if masterKeyHex == "" {
		return &KeyCodec{}, nil
	}

	mk, err := hex.DecodeString(strings.ReplaceAll(masterKeyHex, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(mk) != 16 {
		return nil, fmt.Errorf("master key must be 16 bytes, got %d", len(mk))
	}
	return &KeyCodec{masterKey: mk}, nil
}

func (c *KeyCodec) key(name, value string) (lorawan.AES128Key, error) {
	if crypto.IsSealed(value) {
		if c.masterKey == nil {
			return lorawan.AES128Key{}, fmt.Errorf("%w: %s is sealed but no master key is configured", ErrInvalidData, name)
		}
		opened, err := crypto.OpenValue(c.masterKey, value)
		if err != nil {
			return lorawan.AES128Key{}, fmt.Errorf("%w: %s: %v", ErrInvalidData, name, err)
		}
		value = opened
	}

	key, err := lorawan.ParseAES128Key(value)
	if err != nil {
		return lorawan.AES128Key{}, fmt.Errorf("%w: %s: %v", ErrInvalidData, name, err)
	}
	return key, nil
}

func (c *KeyCodec) sessionKeys(devAddr lorawan.DevAddr, appSKey, nwkSKey string) (lorawan.SessionKeys, error) {
	app, err := c.key("app_s_key", appSKey)
	if err != nil {
		return lorawan.SessionKeys{}, err
	}
	nwk, err := c.key("nwk_s_key", nwkSKey)
	if err != nil {
		return lorawan.SessionKeys{}, err
	}

	return lorawan.SessionKeys{
		DevAddr: devAddr,
		AppSKey: app,
		NwkSKey: nwk,
	}, nil
}
