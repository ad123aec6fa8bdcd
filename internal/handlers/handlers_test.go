package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/address"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/api"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/eventbus"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/registry"
	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/store"
)

const testNetwork = "BEP20_TESTNET"

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newTestFacade wires a real in-memory registry behind a Facade, the
// same backing used by internal/registry's own tests, rather than a
// hand-rolled fake: the handlers hold no logic of their own to fake
// around.
func newTestFacade(t *testing.T) *api.Facade {
	t.Helper()
	chainCfg := &config.ChainConfig{
		ID:                    testNetwork,
		RPCURL:                "https://example.invalid",
		TokenContract:         "0x1111111111111111111111111111111111111111",
		TokenDecimals:         18,
		Recipient:             "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		RequiredConfirmations: 2,
		PollIntervalMs:        1000,
		MaxBlockRange:         500,
	}
	cfg := &config.Config{Chains: map[string]*config.ChainConfig{testNetwork: chainCfg}}
	bus := eventbus.New(testLog())
	addrSrc := address.NewPoolSource(cfg.Chains)
	reg := registry.New(cfg, bus, addrSrc, store.NewMemoryStore(), testLog())
	t.Cleanup(reg.Stop)

	return api.New(reg, bus, cfg.Chains, map[string]api.WatcherStatuser{})
}

func init() {
	gin.SetMode(gin.TestMode)
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func newTestEngine(facade *api.Facade) *gin.Engine {
	r := gin.New()
	sh := NewSessionHandler(facade)
	th := NewTransferHandler(facade)
	syh := NewSystemHandler(facade, testLog())

	r.POST("/api/v1/payment-sessions", sh.Create)
	r.GET("/api/v1/payment-sessions/:id", sh.Get)
	r.GET("/api/v1/payment-sessions", sh.List)
	r.POST("/api/v1/payment-sessions/:id/recreate", sh.Recreate)
	r.GET("/api/v1/transactions/:id", th.Get)
	r.GET("/api/v1/transactions", th.List)
	r.GET("/api/v1/system/network-status", syh.NetworkStatus)
	r.POST("/api/v1/admin/expiry-sweep", syh.ForceExpirySweep)
	return r
}

func TestSessionHandler_CreateThenGet(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodPost, "/api/v1/payment-sessions",
		`{"amount":"1.0","currency":"USDT","network":"BEP20_TESTNET","expirationMinutes":30}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var created domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, domain.SessionPending, created.Status)
	require.NotEmpty(t, created.ID)

	rec = doRequest(r, http.MethodGet, "/api/v1/payment-sessions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, created.ID, fetched.ID)
}

func TestSessionHandler_Create_DefaultsExpirationMinutes(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodPost, "/api/v1/payment-sessions",
		`{"amount":"1.0","currency":"USDT","network":"BEP20_TESTNET"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var created domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.ExpiresAt.After(created.CreatedAt))
}

func TestSessionHandler_Create_InvalidInputMapsTo400(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodPost, "/api/v1/payment-sessions",
		`{"amount":"1.0","currency":"EUR","network":"BEP20_TESTNET"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "invalid_request", envelope.Error.Code)
}

func TestSessionHandler_Create_NonPositiveAmountMapsTo400(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	for _, amount := range []string{"-5", "0", "abc"} {
		body := `{"amount":"` + amount + `","currency":"USDT","network":"BEP20_TESTNET","expirationMinutes":30}`
		rec := doRequest(r, http.MethodPost, "/api/v1/payment-sessions", body)
		require.Equalf(t, http.StatusBadRequest, rec.Code, "amount %q should be rejected", amount)
	}
}

func TestSessionHandler_Create_MissingFieldRejectedByBinding(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodPost, "/api/v1/payment-sessions", `{"currency":"USDT"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Get_NotFoundMapsTo404(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodGet, "/api/v1/payment-sessions/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_List_ReturnsPaginationEnvelope(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodPost, "/api/v1/payment-sessions",
		`{"amount":"1.0","currency":"USDT","network":"BEP20_TESTNET","expirationMinutes":30}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/v1/payment-sessions?page=1&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions   []domain.Session `json:"sessions"`
		Pagination struct {
			Page  int `json:"page"`
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	require.Equal(t, 1, body.Pagination.Total)
}

func TestSessionHandler_Recreate_RejectsNonExpired(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodPost, "/api/v1/payment-sessions",
		`{"amount":"1.0","currency":"USDT","network":"BEP20_TESTNET","expirationMinutes":30}`)
	var created domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(r, http.MethodPost, "/api/v1/payment-sessions/"+created.ID+"/recreate", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferHandler_ListAndGet(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodGet, "/api/v1/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Transfers []domain.Transfer `json:"transfers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Transfers)

	rec = doRequest(r, http.MethodGet, "/api/v1/transactions/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSystemHandler_NetworkStatusReportsInactiveWithNoRunningWatcher(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodGet, "/api/v1/system/network-status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Networks []api.NetworkStatusEntry `json:"networks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Networks, 1)
	require.Equal(t, testNetwork, body.Networks[0].ID)
	require.Equal(t, 2, body.Networks[0].RequiredConfirmations)
}

func TestSystemHandler_ForceExpirySweep(t *testing.T) {
	facade := newTestFacade(t)
	r := newTestEngine(facade)

	rec := doRequest(r, http.MethodPost, "/api/v1/admin/expiry-sweep", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Expired int `json:"expired"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 0, body.Expired)
}
