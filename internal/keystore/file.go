package keystore

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

// DeviceFile is the YAML document read by FileStore:
//
//	devices:
//	  - dev_addr: 0029be41
//	    app_s_key: 36e197fbafa44590f4a0c0346a8f0d86
//	    nwk_s_key: 0f56d740d2d91908c2573f440bdfc20e
type DeviceFile struct {
	Devices []DeviceKeys `yaml:"devices"`
}

// DeviceKeys is one device entry, keys are hex or sealed values
type DeviceKeys struct {
	Name    string          `yaml:"name,omitempty"`
	DevAddr lorawan.DevAddr `yaml:"dev_addr"`
	AppSKey string          `yaml:"app_s_key"`
	NwkSKey string          `yaml:"nwk_s_key"`
}

// FileStore serves keys loaded once from a YAML file
type FileStore struct {
	sessions map[lorawan.DevAddr]lorawan.SessionKeys
}

// NewFileStore loads and validates every entry of the file
func NewFileStore(path string, codec *KeyCodec) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	var doc DeviceFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal key file: %w", err)
	}

	if codec == nil {
		codec = &KeyCodec{}
	}

	s := &FileStore{sessions: make(map[lorawan.DevAddr]lorawan.SessionKeys, len(doc.Devices))}
	for i, dev := range doc.Devices {
		if _, ok := s.sessions[dev.DevAddr]; ok {
			return nil, fmt.Errorf("devices[%d]: duplicate dev_addr %s", i, dev.DevAddr)
		}
		keys, err := codec.sessionKeys(dev.DevAddr, dev.AppSKey, dev.NwkSKey)
		if err != nil {
			return nil, fmt.Errorf("devices[%d] (%s): %w", i, dev.DevAddr, err)
		}
		s.sessions[dev.DevAddr] = keys
	}

	log.Info().
		Str("path", path).
		Int("devices", len(s.sessions)).
		Msg("Key file loaded")

	return s, nil
}

// GetSessionKeys returns the keys of devAddr
func (s *FileStore) GetSessionKeys(ctx context.Context, devAddr lorawan.DevAddr) (lorawan.SessionKeys, error) {
	keys, ok := s.sessions[devAddr]
	if !ok {
		return lorawan.SessionKeys{}, ErrNotFound
	}
	return keys, nil
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}
