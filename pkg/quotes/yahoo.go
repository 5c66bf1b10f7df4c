package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hgiraudo/rofex/pkg/models"
)

const DefaultYahooURL = "https://query1.finance.yahoo.com/v7/finance/quote"

// YahooClient quotes listed equities (e.g. GGAL.BA) from the Yahoo Finance
// quote endpoint. It implements the quote-source capability for
// equity-class instruments.
type YahooClient struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewYahooClient(baseURL string, requestsPerSecond float64) *YahooClient {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &YahooClient{
		url:        baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (c *YahooClient) BidPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := c.fetch(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if q.Bid == 0 {
		return 0, models.ErrNoQuote
	}
	return q.Bid, nil
}

func (c *YahooClient) AskPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := c.fetch(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if q.Ask == 0 {
		return 0, models.ErrNoQuote
	}
	return q.Ask, nil
}

type yahooResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol string  `json:"symbol"`
			Bid    float64 `json:"bid"`
			Ask    float64 `json:"ask"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

func (c *YahooClient) fetch(ctx context.Context, symbol string) (models.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.Quote{}, err
	}

	u := fmt.Sprintf("%s?symbols=%s", c.url, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Quote{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("yahoo quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("yahoo quote request: status %d", resp.StatusCode)
	}

	var decoded yahooResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return models.Quote{}, fmt.Errorf("yahoo quote decode: %w", err)
	}
	if len(decoded.QuoteResponse.Result) == 0 {
		return models.Quote{}, models.ErrNoQuote
	}

	r := decoded.QuoteResponse.Result[0]
	return models.Quote{
		Symbol:    r.Symbol,
		Bid:       r.Bid,
		Ask:       r.Ask,
		Timestamp: time.Now(),
	}, nil
}
