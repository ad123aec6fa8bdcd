package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/address"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/api"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/registry"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testSetup(t *testing.T, apiKey, adminSecret string) (*gin.Engine, *config.Config) {
	t.Helper()
	chainCfg := &config.ChainConfig{
		ID:                    "BEP20_TESTNET",
		RPCURL:                "https://example.invalid",
		TokenContract:         "0x1111111111111111111111111111111111111111",
		TokenDecimals:         18,
		Recipient:             "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		RequiredConfirmations: 2,
		PollIntervalMs:        1000,
		MaxBlockRange:         500,
	}
	if apiKey != "" {
		t.Setenv("API_KEY", apiKey)
	}
	loaded, err := config.LoadConfig("/nonexistent-config-file-for-tests.yaml")
	require.NoError(t, err)
	loaded.Chains = map[string]*config.ChainConfig{"BEP20_TESTNET": chainCfg}
	loaded.API.AdminJWTSecret = adminSecret

	bus := eventbus.New(testLog())
	addrSrc := address.NewPoolSource(loaded.Chains)
	reg := registry.New(loaded, bus, addrSrc, store.NewMemoryStore(), testLog())
	t.Cleanup(reg.Stop)
	facade := api.New(reg, bus, loaded.Chains, map[string]api.WatcherStatuser{})

	return SetupRouter(loaded, facade, testLog()), loaded
}

func doReq(r *gin.Engine, method, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSetupRouter_HealthAndMetricsArePublic(t *testing.T) {
	r, _ := testSetup(t, "secret-key", "")

	rec := doReq(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doReq(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSetupRouter_APISurfaceRequiresBearerToken(t *testing.T) {
	r, _ := testSetup(t, "secret-key", "")

	rec := doReq(r, http.MethodGet, "/api/v1/payment-sessions", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doReq(r, http.MethodGet, "/api/v1/payment-sessions", "Bearer secret-key")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSetupRouter_AdminGroupOnlyMountedWhenSecretConfigured(t *testing.T) {
	r, _ := testSetup(t, "secret-key", "")

	rec := doReq(r, http.MethodPost, "/api/v1/admin/expiry-sweep", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetupRouter_AdminGroupMountedAndGatedWhenSecretConfigured(t *testing.T) {
	r, _ := testSetup(t, "secret-key", "admin-secret")

	rec := doReq(r, http.MethodPost, "/api/v1/admin/expiry-sweep", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetupRouter_UnknownRouteReturnsEnvelope404(t *testing.T) {
	r, _ := testSetup(t, "secret-key", "")

	rec := doReq(r, http.MethodGet, "/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
