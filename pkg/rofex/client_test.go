package rofex

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgiraudo/rofex/pkg/models"
)

const testToken = "test-token-abc"

// brokerStub serves the login and market-data endpoints the client hits.
func brokerStub(t *testing.T, marketDataBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/getToken", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "user", r.Header.Get("X-Username"))
		assert.Equal(t, "pass", r.Header.Get("X-Password"))
		w.Header().Set("X-Auth-Token", testToken)
	})
	mux.HandleFunc("/rest/marketdata/get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get("X-Auth-Token"))
		io.WriteString(w, marketDataBody)
	})
	return httptest.NewServer(mux)
}

func stubClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(Config{
		Username: "user",
		Password: "pass",
		Account:  "REM123",
		BaseURL:  baseURL,
	}, logger)
}

func TestMarketDataSnapshot(t *testing.T) {
	srv := brokerStub(t, `{"status":"OK","marketData":{
		"BI":[{"price":101.1,"size":40}],"OF":[{"price":101.22,"size":68}]}}`)
	defer srv.Close()

	c := stubClient(t, srv.URL)
	q, err := c.MarketData(context.Background(), "DLR/AGO21")
	require.NoError(t, err)
	assert.Equal(t, 101.1, q.Bid)
	assert.Equal(t, 101.22, q.Ask)

	bid, err := c.BidPrice(context.Background(), "DLR/AGO21")
	require.NoError(t, err)
	assert.Equal(t, 101.1, bid)
}

func TestMarketDataEmptyBook(t *testing.T) {
	srv := brokerStub(t, `{"status":"OK","marketData":{"BI":[],"OF":[]}}`)
	defer srv.Close()

	c := stubClient(t, srv.URL)
	_, err := c.BidPrice(context.Background(), "DLR/AGO21")
	assert.ErrorIs(t, err, models.ErrNoQuote)
	_, err = c.AskPrice(context.Background(), "DLR/AGO21")
	assert.ErrorIs(t, err, models.ErrNoQuote)
}

func TestMarketDataBadStatus(t *testing.T) {
	srv := brokerStub(t, `{"status":"ERROR","marketData":{}}`)
	defer srv.Close()

	c := stubClient(t, srv.URL)
	_, err := c.MarketData(context.Background(), "DLR/AGO21")
	assert.Error(t, err)
}

func TestSubmitOrderParams(t *testing.T) {
	var gotQuery map[string][]string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/getToken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Auth-Token", testToken)
	})
	mux.HandleFunc("/rest/order/newSingleOrder", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		io.WriteString(w, `{"status":"OK","order":{"clientId":"ord-1"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := stubClient(t, srv.URL)
	require.NoError(t, c.Sell(context.Background(), "DLR/AGO21", 7, 101.1))

	assert.Equal(t, []string{"Sell"}, gotQuery["side"])
	assert.Equal(t, []string{"DLR/AGO21"}, gotQuery["symbol"])
	assert.Equal(t, []string{"7"}, gotQuery["orderQty"])
	assert.Equal(t, []string{"101.1"}, gotQuery["price"])
	assert.Equal(t, []string{"limit"}, gotQuery["ordType"])
	assert.Equal(t, []string{"Day"}, gotQuery["timeInForce"])
	assert.Equal(t, []string{"REM123"}, gotQuery["account"])
}

func TestInstrumentsDedupesLeadingToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/getToken", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Auth-Token", testToken)
	})
	mux.HandleFunc("/rest/instruments/all", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"OK","instruments":[
			{"instrumentId":{"symbol":"DLR/AGO21"}},
			{"instrumentId":{"symbol":"DLR/AGO21 48hs"}},
			{"instrumentId":{"symbol":"GGAL/AGO21"}}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := stubClient(t, srv.URL)
	symbols, err := c.Instruments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DLR/AGO21", "GGAL/AGO21"}, symbols)
}

func TestTokenCachedAcrossRequests(t *testing.T) {
	logins := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/getToken", func(w http.ResponseWriter, r *http.Request) {
		logins++
		w.Header().Set("X-Auth-Token", testToken)
	})
	mux.HandleFunc("/rest/marketdata/get", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"OK","marketData":{"BI":[{"price":1,"size":1}],"OF":[{"price":2,"size":1}]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := stubClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx))
	_, err := c.MarketData(ctx, "DLR/AGO21")
	require.NoError(t, err)
	_, err = c.MarketData(ctx, "DLR/SEP21")
	require.NoError(t, err)

	assert.Equal(t, 1, logins)
}
