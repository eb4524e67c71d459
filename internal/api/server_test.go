package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lorawan-framesec/internal/config"
	"github.com/lorawan-server/lorawan-framesec/internal/framesec"
	"github.com/lorawan-server/lorawan-framesec/internal/keystore"
	"github.com/lorawan-server/lorawan-framesec/internal/models"
	"github.com/lorawan-server/lorawan-framesec/pkg/crypto"
)

const devicesYAML = `
devices:
  - name: push-button
    dev_addr: 0029be41
    app_s_key: 36e197fbafa44590f4a0c0346a8f0d86
    nwk_s_key: 0f56d740d2d91908c2573f440bdfc20e
`

func newTestServer(t *testing.T, withClients bool) *httptest.Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "devices.yml")
	require.NoError(t, os.WriteFile(path, []byte(devicesYAML), 0o600))
	store, err := keystore.NewFileStore(path, nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Name: "framesec-test", Version: "test"},
		JWT: config.JWTConfig{
			Secret:         "test-signing-secret",
			Issuer:         "lorawan-framesec",
			AccessTokenTTL: time.Hour,
		},
	}
	if withClients {
		hash, err := crypto.HashPassword("s3cret")
		require.NoError(t, err)
		cfg.Clients = config.ClientList{{ID: "network-server", SecretHash: hash}}
	}

	srv := httptest.NewServer(NewRESTServer(cfg, framesec.NewService(store)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func token(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := post(t, srv.URL+"/api/v1/auth/token", "", models.TokenRequest{ClientID: "network-server", ClientSecret: "s3cret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr models.TokenResponse
	decode(t, resp, &tr)
	assert.Equal(t, "Bearer", tr.TokenType)
	assert.Equal(t, 3600, tr.ExpiresIn)
	return tr.AccessToken
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, true)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestSealOpenRoundTrip(t *testing.T) {
	srv := newTestServer(t, true)
	tok := token(t, srv)

	resp := post(t, srv.URL+"/api/v1/frames/seal", tok, models.SealRequest{
		DevAddr:   "0029be41",
		Direction: "uplink",
		FCnt:      42,
		Header:    "4041be2900002a0001",
		Payload:   "0102030405",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sealed models.FrameResponse
	decode(t, resp, &sealed)
	assert.Len(t, sealed.MIC, 8)

	resp = post(t, srv.URL+"/api/v1/frames/open", tok, models.OpenRequest{
		DevAddr:   "0029be41",
		Direction: "uplink",
		FCnt:      42,
		Frame:     sealed.Frame,
		HeaderLen: 9,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var opened models.FrameResponse
	decode(t, resp, &opened)
	assert.Equal(t, "0102030405", opened.Payload)
}

func TestFrameErrors(t *testing.T) {
	srv := newTestServer(t, true)
	tok := token(t, srv)

	sealResp := post(t, srv.URL+"/api/v1/frames/seal", tok, models.SealRequest{
		DevAddr: "0029be41", Direction: "downlink", FCnt: 3, Header: "6041be2900000300", Payload: "ff",
	})
	require.Equal(t, http.StatusOK, sealResp.StatusCode)
	var sealed models.FrameResponse
	decode(t, sealResp, &sealed)

	tests := []struct {
		name   string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{"no token", "/api/v1/frames/seal", "", models.SealRequest{DevAddr: "0029be41", Direction: "uplink", Header: "40"}, http.StatusUnauthorized},
		{"bad token", "/api/v1/frames/seal", "abc", models.SealRequest{DevAddr: "0029be41", Direction: "uplink", Header: "40"}, http.StatusUnauthorized},
		{"malformed json", "/api/v1/frames/seal", tok, "{", http.StatusBadRequest},
		{"unknown field", "/api/v1/frames/seal", tok, `{"devAddr":"0029be41","direction":"uplink","header":"40","key":"00"}`, http.StatusBadRequest},
		{"validation", "/api/v1/frames/seal", tok, models.SealRequest{DevAddr: "0029", Direction: "uplink", Header: "40"}, http.StatusBadRequest},
		{"unknown device", "/api/v1/frames/seal", tok, models.SealRequest{DevAddr: "01020304", Direction: "uplink", Header: "40"}, http.StatusNotFound},
		{"short frame", "/api/v1/frames/open", tok, models.OpenRequest{DevAddr: "0029be41", Direction: "downlink", Frame: "6041", HeaderLen: 8}, http.StatusBadRequest},
		{"wrong counter", "/api/v1/frames/open", tok, models.OpenRequest{DevAddr: "0029be41", Direction: "downlink", FCnt: 4, Frame: sealed.Frame, HeaderLen: 8}, http.StatusUnprocessableEntity},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			resp := post(t, srv.URL+tst.path, tst.token, tst.body)
			assert.Equal(t, tst.status, resp.StatusCode)

			var body models.ErrorResponse
			decode(t, resp, &body)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t, true)

	resp := post(t, srv.URL+"/api/v1/auth/token", "", models.TokenRequest{ClientID: "network-server", ClientSecret: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, srv.URL+"/api/v1/auth/token", "", models.TokenRequest{ClientID: "network-server"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNoClientsDisablesAuth(t *testing.T) {
	srv := newTestServer(t, false)

	resp := post(t, srv.URL+"/api/v1/frames/seal", "", models.SealRequest{
		DevAddr: "0029be41", Direction: "uplink", Header: "40", Payload: "",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
