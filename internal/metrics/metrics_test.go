package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func scrape(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestStatusBucket(t *testing.T) {
	for code, want := range map[int]string{
		101: "1xx", 200: "2xx", 201: "2xx", 304: "3xx",
		400: "4xx", 401: "4xx", 404: "4xx", 500: "5xx", 503: "5xx",
	} {
		assert.Equal(t, want, statusBucket(code), code)
	}
}

func TestHandler_ExportsGauges(t *testing.T) {
	body := scrape(t)
	assert.Contains(t, body, "dotescrow_active_websocket_clients")
	assert.Contains(t, body, "dotescrow_goroutines")
}

func TestHandler_ExportsObservedCounters(t *testing.T) {
	TransactionsTotal.WithLabelValues("release_milestone", "finalized").Inc()
	NodeBreakerTransitionsTotal.WithLabelValues("block", "closed", "open").Inc()

	body := scrape(t)
	assert.Contains(t, body, `dotescrow_transactions_total{message="release_milestone",outcome="finalized"}`)
	assert.Contains(t, body, "dotescrow_node_breaker_transitions_total")
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/escrows/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	c := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/escrows/:id", "4xx")
	before := counterValue(t, c)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/escrows/escrow_1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, counterValue(t, c))
}
