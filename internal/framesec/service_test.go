package framesec

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lorawan-framesec/internal/keystore"
	"github.com/lorawan-server/lorawan-framesec/internal/models"
	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

const testHeader = "4041be290000000001"

type mapStore struct {
	sessions map[lorawan.DevAddr]lorawan.SessionKeys
	err      error
}

func (s *mapStore) GetSessionKeys(ctx context.Context, devAddr lorawan.DevAddr) (lorawan.SessionKeys, error) {
	if s.err != nil {
		return lorawan.SessionKeys{}, s.err
	}
	keys, ok := s.sessions[devAddr]
	if !ok {
		return lorawan.SessionKeys{}, keystore.ErrNotFound
	}
	return keys, nil
}

func (s *mapStore) Close() error { return nil }

func testKeys(t *testing.T) lorawan.SessionKeys {
	t.Helper()
	app, err := lorawan.ParseAES128Key("36e197fbafa44590f4a0c0346a8f0d86")
	require.NoError(t, err)
	nwk, err := lorawan.ParseAES128Key("0f56d740d2d91908c2573f440bdfc20e")
	require.NoError(t, err)
	return lorawan.SessionKeys{DevAddr: lorawan.DevAddr{0x00, 0x29, 0xbe, 0x41}, AppSKey: app, NwkSKey: nwk}
}

func newTestService(t *testing.T) *Service {
	keys := testKeys(t)
	return NewService(&mapStore{sessions: map[lorawan.DevAddr]lorawan.SessionKeys{keys.DevAddr: keys}})
}

func TestSealThenOpen(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sealed, err := svc.Seal(ctx, &models.SealRequest{
		DevAddr:   "0029be41",
		Direction: "uplink",
		FCnt:      7,
		Header:    testHeader,
		Payload:   "48656c6c6f",
	})
	require.NoError(t, err)

	assert.Equal(t, "0029be41", sealed.DevAddr)
	assert.Equal(t, "uplink", sealed.Direction)
	assert.Equal(t, testHeader, sealed.Header)
	assert.Len(t, sealed.Payload, 10)
	assert.Equal(t, testHeader+sealed.Payload+sealed.MIC, sealed.Frame)

	// the service must agree with the frame layer
	header, _ := hex.DecodeString(testHeader)
	frame, err := lorawan.Seal(testKeys(t), lorawan.Uplink, 7, header, []byte("Hello"))
	require.NoError(t, err)
	assert.Equal(t, frame.MIC.String(), sealed.MIC)

	opened, err := svc.Open(ctx, &models.OpenRequest{
		DevAddr:   "0029be41",
		Direction: "uplink",
		FCnt:      7,
		Frame:     sealed.Frame,
		HeaderLen: len(header),
	})
	require.NoError(t, err)
	assert.Equal(t, "48656c6c6f", opened.Payload)
	assert.Equal(t, sealed.MIC, opened.MIC)
	assert.Empty(t, opened.Frame)
}

func TestOpenRejectsTamperedFrame(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sealed, err := svc.Seal(ctx, &models.SealRequest{
		DevAddr:   "0029be41",
		Direction: "downlink",
		FCnt:      1,
		Header:    "6041be290000010001",
		Payload:   "00",
	})
	require.NoError(t, err)

	tampered := []byte(sealed.Frame)
	if tampered[len(tampered)-1] == '0' {
		tampered[len(tampered)-1] = '1'
	} else {
		tampered[len(tampered)-1] = '0'
	}

	req := &models.OpenRequest{
		DevAddr:   "0029be41",
		Direction: "downlink",
		FCnt:      1,
		Frame:     string(tampered),
		HeaderLen: 9,
	}
	resp, err := svc.Open(ctx, req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, lorawan.ErrAuthenticationFailure)

	// a frame counter mismatch is also an authentication failure
	req.Frame = sealed.Frame
	req.FCnt = 2
	_, err = svc.Open(ctx, req)
	assert.ErrorIs(t, err, ErrAuthentication)

	// so is the wrong direction
	req.FCnt = 1
	req.Direction = "uplink"
	_, err = svc.Open(ctx, req)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestServiceErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("unknown device", func(t *testing.T) {
		_, err := svc.Seal(ctx, &models.SealRequest{DevAddr: "01020304", Direction: "uplink", Header: testHeader})
		assert.ErrorIs(t, err, ErrUnknownDevice)
	})

	t.Run("invalid request", func(t *testing.T) {
		_, err := svc.Seal(ctx, &models.SealRequest{DevAddr: "0029be41", Direction: "up", Header: testHeader})
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("oversize frame", func(t *testing.T) {
		payload := make([]byte, 255)
		_, err := svc.Seal(ctx, &models.SealRequest{
			DevAddr:   "0029be41",
			Direction: "uplink",
			Header:    testHeader,
			Payload:   hex.EncodeToString(payload),
		})
		assert.ErrorIs(t, err, ErrBadRequest)
		assert.ErrorIs(t, err, lorawan.ErrContractViolation)
	})

	t.Run("frame shorter than header and MIC", func(t *testing.T) {
		_, err := svc.Open(ctx, &models.OpenRequest{
			DevAddr:   "0029be41",
			Direction: "uplink",
			Frame:     "40414243",
			HeaderLen: 8,
		})
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("store failure", func(t *testing.T) {
		storeErr := errors.New("connection refused")
		svc := NewService(&mapStore{err: storeErr})
		_, err := svc.Seal(ctx, &models.SealRequest{DevAddr: "0029be41", Direction: "uplink", Header: testHeader})
		assert.ErrorIs(t, err, storeErr)
		assert.False(t, errors.Is(err, ErrBadRequest))
		assert.False(t, errors.Is(err, ErrUnknownDevice))
	})
}
