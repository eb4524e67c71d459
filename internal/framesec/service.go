package framesec

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-framesec/internal/keystore"
	"github.com/lorawan-server/lorawan-framesec/internal/models"
	"github.com/lorawan-server/lorawan-framesec/internal/validation"
	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

// Errors returned by Service, transports map them to status codes
var (
	ErrBadRequest     = errors.New("bad request")
	ErrUnknownDevice  = errors.New("unknown device")
	ErrAuthentication = errors.New("frame authentication failed")
)

// Service seals and opens frames for devices known to the key store.
// It holds no per-device state and is safe for concurrent use.
type Service struct {
	store     keystore.Store
	validator *validation.Validator
}

// NewService creates a new frame security service
func NewService(store keystore.Store) *Service {
	return &Service{
		store:     store,
		validator: validation.NewValidator(),
	}
}

// Seal encrypts and authenticates req.Payload
func (s *Service) Seal(ctx context.Context, req *models.SealRequest) (*models.FrameResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	devAddr, dir, err := parseContext(req.DevAddr, req.Direction)
	if err != nil {
		return nil, err
	}
	header, err := decodeHex("header", req.Header)
	if err != nil {
		return nil, err
	}
	plaintext, err := decodeHex("payload", req.Payload)
	if err != nil {
		return nil, err
	}

	keys, err := s.sessionKeys(ctx, devAddr)
	if err != nil {
		return nil, err
	}

	frame, err := lorawan.Seal(keys, dir, req.FCnt, header, plaintext)
	if err != nil {
		if errors.Is(err, lorawan.ErrContractViolation) {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return nil, fmt.Errorf("seal frame: %w", err)
	}

	data, err := frame.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}

	log.Debug().
		Str("devAddr", devAddr.String()).
		Str("direction", dir.String()).
		Uint32("fCnt", req.FCnt).
		Int("headerLen", len(header)).
		Int("payloadLen", len(plaintext)).
		Msg("Frame sealed")

	return &models.FrameResponse{
		DevAddr:   devAddr.String(),
		Direction: dir.String(),
		FCnt:      req.FCnt,
		Frame:     hex.EncodeToString(data),
		Header:    hex.EncodeToString(frame.Header),
		Payload:   hex.EncodeToString(frame.Ciphertext),
		MIC:       frame.MIC.String(),
	}, nil
}

// Open verifies and decrypts req.Frame. No payload is returned unless the
// MIC matches.
func (s *Service) Open(ctx context.Context, req *models.OpenRequest) (*models.FrameResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	devAddr, dir, err := parseContext(req.DevAddr, req.Direction)
	if err != nil {
		return nil, err
	}
	data, err := decodeHex("frame", req.Frame)
	if err != nil {
		return nil, err
	}

	frame, err := lorawan.UnmarshalSecuredFrame(data, req.HeaderLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	keys, err := s.sessionKeys(ctx, devAddr)
	if err != nil {
		return nil, err
	}

	plaintext, err := lorawan.Open(keys, dir, req.FCnt, frame)
	switch {
	case errors.Is(err, lorawan.ErrAuthenticationFailure):
		log.Warn().
			Str("devAddr", devAddr.String()).
			Str("direction", dir.String()).
			Uint32("fCnt", req.FCnt).
			Msg("Frame rejected, MIC mismatch")
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	case errors.Is(err, lorawan.ErrContractViolation):
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	case err != nil:
		return nil, fmt.Errorf("open frame: %w", err)
	}

	log.Debug().
		Str("devAddr", devAddr.String()).
		Str("direction", dir.String()).
		Uint32("fCnt", req.FCnt).
		Int("payloadLen", len(plaintext)).
		Msg("Frame opened")

	return &models.FrameResponse{
		DevAddr:   devAddr.String(),
		Direction: dir.String(),
		FCnt:      req.FCnt,
		Header:    hex.EncodeToString(frame.Header),
		Payload:   hex.EncodeToString(plaintext),
		MIC:       frame.MIC.String(),
	}, nil
}

func (s *Service) sessionKeys(ctx context.Context, devAddr lorawan.DevAddr) (lorawan.SessionKeys, error) {
	keys, err := s.store.GetSessionKeys(ctx, devAddr)
	if errors.Is(err, keystore.ErrNotFound) {
		return lorawan.SessionKeys{}, fmt.Errorf("%w: %s", ErrUnknownDevice, devAddr)
	}
	if err != nil {
		return lorawan.SessionKeys{}, fmt.Errorf("get session keys: %w", err)
	}
	return keys, nil
}

func parseContext(devAddr, direction string) (lorawan.DevAddr, lorawan.Direction, error) {
	addr, err := lorawan.ParseDevAddr(devAddr)
	if err != nil {
		return lorawan.DevAddr{}, 0, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	dir, err := lorawan.ParseDirection(direction)
	if err != nil {
		return lorawan.DevAddr{}, 0, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return addr, dir, nil
}

func decodeHex(name, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrBadRequest, name, err)
	}
	return b, nil
}
