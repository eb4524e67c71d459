package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lorawan-framesec/pkg/crypto"
	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

func writeKeys(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
devices:
  - dev_addr: 0029be41
    app_s_key: 36e197fbafa44590f4a0c0346a8f0d86
    nwk_s_key: 0f56d740d2d91908c2573f440bdfc20e
`), 0o600))
	return path
}

func TestSealOpenCommands(t *testing.T) {
	keys := writeKeys(t)

	var out bytes.Buffer
	err := runSeal([]string{"-keys", keys, "-dev-addr", "0029be41", "-fcnt", "65538", "-fport", "1", "-payload", "01"}, &out)
	require.NoError(t, err)

	frameHex := strings.TrimSpace(out.String())
	// MHDR | DevAddr LE | FCtrl | FCnt LE (low 16 bits) | FPort | 1 byte | MIC
	require.Len(t, frameHex, 2*(9+1+4))
	assert.Equal(t, "4041be290000020001", frameHex[:18])

	t.Run("with the full counter", func(t *testing.T) {
		out.Reset()
		err := runOpen([]string{"-keys", keys, "-frame", frameHex, "-fcnt", "65538"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "01", strings.TrimSpace(out.String()))
	})

	t.Run("expanded from the last counter", func(t *testing.T) {
		out.Reset()
		err := runOpen([]string{"-keys", keys, "-frame", frameHex, "-last-fcnt", "65536"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "01", strings.TrimSpace(out.String()))
	})

	t.Run("with the 16-bit counter only", func(t *testing.T) {
		out.Reset()
		err := runOpen([]string{"-keys", keys, "-frame", frameHex}, &out)
		assert.ErrorIs(t, err, lorawan.ErrAuthenticationFailure)
		assert.Empty(t, out.String())
	})
}

func TestSealRawHeader(t *testing.T) {
	keys := writeKeys(t)

	var out bytes.Buffer
	err := runSeal([]string{"-keys", keys, "-dev-addr", "0029be41", "-header", "40", "-payload", "0102"}, &out)
	assert.Error(t, err, "-dir is required with -header")

	out.Reset()
	err = runSeal([]string{"-keys", keys, "-dev-addr", "0029be41", "-header", "40", "-dir", "downlink", "-payload", "0102"}, &out)
	require.NoError(t, err)
	frameHex := strings.TrimSpace(out.String())
	assert.Len(t, frameHex, 2*(1+2+4))

	out.Reset()
	err = runOpen([]string{"-keys", keys, "-frame", frameHex, "-header-len", "1", "-dev-addr", "0029be41", "-dir", "downlink", "-fcnt", "0"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "0102", strings.TrimSpace(out.String()))
}

func TestBuildHeader(t *testing.T) {
	addr := lorawan.DevAddr{0x00, 0x29, 0xbe, 0x41}

	hdr, dir, err := buildHeader("confirmed-down", addr, 0x12345, 2, true, []byte{0x02})
	require.NoError(t, err)
	assert.Equal(t, lorawan.Downlink, dir)
	assert.Equal(t, uint16(0x2345), hdr.FHDR.FCnt)

	b, err := hdr.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "a041be290001452302"+"02", hex.EncodeToString(b))

	_, _, err = buildHeader("unconfirmed-up", addr, 0, -1, true, nil)
	assert.Error(t, err)

	_, _, err = buildHeader("join-request", addr, 0, 1, true, nil)
	assert.ErrorIs(t, err, lorawan.ErrContractViolation)

	hdr, _, err = buildHeader("unconfirmed-up", addr, 0, -1, false, nil)
	require.NoError(t, err)
	assert.Nil(t, hdr.FPort)
}

func TestDataHeaderLen(t *testing.T) {
	tests := []struct {
		frame    string
		expected int
	}{
		{"4041be290000000001aabbccdd", 9},        // FPort and 1 byte payload
		{"4041be2900000000aabbccdd", 8},          // no FPort
		{"4041be29000200000102aabbccdd", 10},     // 2 bytes FOpts
		{"4041be2900020000010201ffaabbccdd", 11}, // FOpts, FPort and payload
	}

	for _, tst := range tests {
		data, err := hex.DecodeString(tst.frame)
		require.NoError(t, err)
		n, err := dataHeaderLen(data)
		require.NoError(t, err)
		assert.Equal(t, tst.expected, n, tst.frame)
	}

	_, err := dataHeaderLen([]byte{0x40})
	assert.ErrorIs(t, err, lorawan.ErrContractViolation)
}

func TestHashSecretAndSealValue(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runHashSecret([]string{"s3cret"}, &out))
	assert.True(t, crypto.VerifyPassword("s3cret", strings.TrimSpace(out.String())))

	out.Reset()
	mk := "000102030405060708090a0b0c0d0e0f"
	require.NoError(t, runSealValue([]string{"-master-key", mk, "36e197fbafa44590f4a0c0346a8f0d86"}, &out))
	sealed := strings.TrimSpace(out.String())
	assert.True(t, crypto.IsSealed(sealed))

	mkBytes, _ := hex.DecodeString(mk)
	opened, err := crypto.OpenValue(mkBytes, sealed)
	require.NoError(t, err)
	assert.Equal(t, "36e197fbafa44590f4a0c0346a8f0d86", opened)

	assert.Error(t, runSealValue([]string{"-master-key", "00", "x"}, &out))

	out.Reset()
	require.NoError(t, runGenKey(&out))
	assert.Len(t, strings.TrimSpace(out.String()), 32)
}
