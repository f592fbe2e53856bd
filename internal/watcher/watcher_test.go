package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelarogbonlo/dot-escrow/internal/abi"
	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/chain/chaintest"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
)

func checkCount(t *testing.T, outcome string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := metrics.TrackerChecksTotal.GetMetricWithLabelValues(outcome)
	require.NoError(t, err)
	require.NoError(t, c.Write(m))
	return m.Counter.GetValue()
}

func blockHash(n uint64) string {
	return fmt.Sprintf("0x%064x", n+0xb000)
}

func extrinsic(n uint64, i int) string {
	return fmt.Sprintf("0x%02x%08x%02x", 0x84, n, i)
}

// newChain builds blocks 0..height, each with two extrinsics, and marks
// block finalized as the finalized head.
func newChain(t *testing.T, height, finalized uint64) *chaintest.Node {
	t.Helper()
	c, err := abi.Escrow()
	require.NoError(t, err)
	node := chaintest.NewNode(c)
	for n := uint64(0); n <= height; n++ {
		b := chain.Block{
			Hash:       blockHash(n),
			Number:     n,
			Extrinsics: []string{extrinsic(n, 0), extrinsic(n, 1)},
		}
		if n > 0 {
			b.ParentHash = blockHash(n - 1)
		}
		node.AddBlock(b)
	}
	node.Finalized = blockHash(finalized)
	return node
}

func txHashOf(t *testing.T, n uint64, i int) string {
	t.Helper()
	h, err := ExtrinsicHash(extrinsic(n, i))
	require.NoError(t, err)
	return h
}

func TestExtrinsicHash(t *testing.T) {
	h, err := ExtrinsicHash("0x")
	require.NoError(t, err)
	assert.Equal(t, "0x0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8", h)

	_, err = ExtrinsicHash("not-hex")
	assert.Error(t, err)
}

func TestCheck_FoundInBestBlock(t *testing.T) {
	node := newChain(t, 12, 10)
	tr := New(node, DefaultConfig())
	before := checkCount(t, OutcomeFound)

	res := tr.Check(context.Background(), txHashOf(t, 12, 1))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, &Receipt{
		Status:      StatusIncluded,
		BlockHash:   blockHash(12),
		BlockNumber: 12,
		Finalized:   false,
	}, res.Receipt)
	assert.Equal(t, before+1, checkCount(t, OutcomeFound))
}

func TestCheck_WalksWindow(t *testing.T) {
	node := newChain(t, 12, 5)
	hash := txHashOf(t, 3, 0)

	res := New(node, Config{Window: 10}).Check(context.Background(), hash)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, uint64(3), res.Receipt.BlockNumber)
	assert.True(t, res.Receipt.Finalized)

	res = New(node, Config{Window: 9}).Check(context.Background(), hash)
	assert.False(t, res.Success)
	assert.Equal(t, MsgNotFound, res.Error)
	assert.Nil(t, res.Receipt)
}

func TestCheck_SingleBlockWindow(t *testing.T) {
	node := newChain(t, 4, 4)
	tr := New(node, Config{Window: 1})

	assert.True(t, tr.Check(context.Background(), txHashOf(t, 4, 0)).Success)
	assert.Equal(t, MsgNotFound, tr.Check(context.Background(), txHashOf(t, 3, 0)).Error)
	assert.Equal(t, 1, New(node, Config{}).Window())
}

func TestCheck_StopsAtGenesis(t *testing.T) {
	node := newChain(t, 2, 2)
	before := checkCount(t, OutcomeNotFound)

	res := New(node, Config{Window: 50}).Check(context.Background(), "0x"+strings.Repeat("00", 32))

	assert.Equal(t, MsgNotFound, res.Error)
	assert.Equal(t, before+1, checkCount(t, OutcomeNotFound))
}

func TestCheck_NormalizesHash(t *testing.T) {
	node := newChain(t, 3, 3)
	hash := txHashOf(t, 2, 1)

	res := New(node, DefaultConfig()).Check(context.Background(), "  "+strings.ToUpper(hash[2:])+" ")

	assert.True(t, res.Success)
}

func TestCheck_MissingAncestorEndsScan(t *testing.T) {
	node := newChain(t, 3, 3)
	delete(node.Blocks, blockHash(1))

	res := New(node, DefaultConfig()).Check(context.Background(), txHashOf(t, 0, 0))

	assert.Equal(t, MsgNotFound, res.Error)
}

func TestCheck_RPCErrorVerbatim(t *testing.T) {
	node := newChain(t, 3, 3)
	node.BlockErr = errors.New("connection refused")
	before := checkCount(t, OutcomeError)

	res := New(node, DefaultConfig()).Check(context.Background(), txHashOf(t, 3, 0))

	assert.Equal(t, CheckResult{Error: "connection refused"}, res)
	assert.Equal(t, before+1, checkCount(t, OutcomeError))
}

func TestWait_FindsLaterBlock(t *testing.T) {
	node := newChain(t, 3, 3)
	tr := New(node, Config{Window: 10, PollInterval: 5 * time.Millisecond})
	hash := txHashOf(t, 4, 0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		node.AddBlock(chain.Block{
			Hash:       blockHash(4),
			ParentHash: blockHash(3),
			Number:     4,
			Extrinsics: []string{extrinsic(4, 0)},
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res := tr.Wait(ctx, hash)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, uint64(4), res.Receipt.BlockNumber)
}

func TestWait_GivesUpWithContext(t *testing.T) {
	node := newChain(t, 3, 3)
	tr := New(node, Config{Window: 10, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res := tr.Wait(ctx, "0x"+strings.Repeat("11", 32))

	assert.Equal(t, MsgNotFound, res.Error)
}

func TestHandler_Check(t *testing.T) {
	gin.SetMode(gin.TestMode)
	node := newChain(t, 3, 2)
	r := gin.New()
	NewHandler(New(node, DefaultConfig())).RegisterRoutes(r.Group("/v1"))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions/check", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"txHash":"` + txHashOf(t, 2, 0) + `"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res CheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Receipt.Finalized)

	w = post(`{"txHash":"0x` + strings.Repeat("22", 32) + `"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(`{"txHash":"0x1234"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(`{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	node.BlockErr = errors.New("node unavailable")
	w = post(`{"txHash":"0x` + strings.Repeat("22", 32) + `"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "node unavailable")
}
