// Package rofex talks to the Matba Rofex (Primary API) trading environment:
// REST login and market-data snapshots, websocket market-data streaming and
// order entry for the futures legs.
package rofex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hgiraudo/rofex/pkg/models"
)

const (
	// Remarket is the broker's paper-trading environment.
	EnvRemarket   = "remarket"
	EnvProduction = "production"

	remarketBaseURL   = "https://api.remarkets.primary.com.ar"
	remarketWSURL     = "wss://api.remarkets.primary.com.ar/"
	productionBaseURL = "https://api.primary.com.ar"
	productionWSURL   = "wss://api.primary.com.ar/"

	marketID = "ROFX"
)

// Config holds the broker connection parameters.
type Config struct {
	Environment string // remarket or production
	Username    string
	Password    string
	Account     string
	// BaseURL and WSURL override the environment endpoints; used in tests.
	BaseURL string
	WSURL   string
	// RequestsPerSecond caps REST calls; defaults to 5.
	RequestsPerSecond float64
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Environment == EnvProduction {
		return productionBaseURL
	}
	return remarketBaseURL
}

func (c Config) wsURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	if c.Environment == EnvProduction {
		return productionWSURL
	}
	return remarketWSURL
}

// Client is the broker REST client. It doubles as the quote source for
// future-class instruments.
type Client struct {
	baseURL    string
	wsURL      string
	account    string
	auth       *authenticator
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	base := cfg.baseURL()
	return &Client{
		baseURL:    base,
		wsURL:      cfg.wsURL(),
		account:    cfg.Account,
		auth:       newAuthenticator(base, cfg.Username, cfg.Password, httpClient),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// Login forces an initial authentication so startup fails fast on bad
// credentials.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.auth.Token(ctx)
	return err
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.auth.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker request %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// marketDataResponse is the REST snapshot shape. BI/OF carry the best bid
// and offer; empty arrays mean that side of the book is empty.
type marketDataResponse struct {
	Status     string `json:"status"`
	MarketData struct {
		Bids   []bookLevel `json:"BI"`
		Offers []bookLevel `json:"OF"`
	} `json:"marketData"`
}

type bookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// MarketData fetches the current best bid/ask snapshot for a symbol. A
// one-sided or empty book reports models.ErrNoQuote for the missing sides
// via BidPrice/AskPrice.
func (c *Client) MarketData(ctx context.Context, symbol string) (models.Quote, error) {
	path := fmt.Sprintf("/rest/marketdata/get?marketId=%s&symbol=%s&entries=BI,OF&depth=1",
		marketID, url.QueryEscape(symbol))

	var decoded marketDataResponse
	if err := c.get(ctx, path, &decoded); err != nil {
		return models.Quote{}, err
	}
	if decoded.Status != "OK" {
		return models.Quote{}, fmt.Errorf("market data %s: status %s", symbol, decoded.Status)
	}

	q := models.Quote{Symbol: symbol, Timestamp: time.Now()}
	if len(decoded.MarketData.Bids) > 0 {
		q.Bid = decoded.MarketData.Bids[0].Price
	}
	if len(decoded.MarketData.Offers) > 0 {
		q.Ask = decoded.MarketData.Offers[0].Price
	}
	return q, nil
}

// BidPrice implements the quote-source capability for futures.
func (c *Client) BidPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := c.MarketData(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if q.Bid == 0 {
		return 0, models.ErrNoQuote
	}
	return q.Bid, nil
}

// AskPrice implements the quote-source capability for futures.
func (c *Client) AskPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := c.MarketData(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if q.Ask == 0 {
		return 0, models.ErrNoQuote
	}
	return q.Ask, nil
}

type instrumentsResponse struct {
	Status      string `json:"status"`
	Instruments []struct {
		InstrumentID struct {
			Symbol string `json:"symbol"`
		} `json:"instrumentId"`
	} `json:"instruments"`
}

// Instruments lists every symbol quoted on the market, deduplicated on the
// leading token of the exchange symbol.
func (c *Client) Instruments(ctx context.Context) ([]string, error) {
	var decoded instrumentsResponse
	if err := c.get(ctx, "/rest/instruments/all", &decoded); err != nil {
		return nil, err
	}
	if decoded.Status != "OK" {
		return nil, errors.New("instrument list: status " + decoded.Status)
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, inst := range decoded.Instruments {
		symbol, _, _ := strings.Cut(inst.InstrumentID.Symbol, " ")
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}
