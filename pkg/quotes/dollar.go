// Package quotes implements the spot quote sources: the dolarsi currency
// board for USD and Yahoo Finance for listed equities. Both are plain HTTP
// clients that report a missing price as models.ErrNoQuote.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hgiraudo/rofex/pkg/models"
)

const (
	DefaultDollarURL = "https://www.dolarsi.com/api/api.php?type=valoresprincipales"

	// Boards published by the API.
	BoardOficial = "Dolar Oficial"
	BoardBlue    = "Dolar Blue"
	BoardBolsa   = "Dolar Bolsa"
	BoardCCL     = "Dolar Contado con Liqui"
)

// DollarClient quotes the US dollar against the peso from the dolarsi
// public API. It implements the quote-source capability for currency-class
// instruments; the symbol argument is not used by the upstream API.
type DollarClient struct {
	url        string
	board      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewDollarClient(url, board string, requestsPerSecond float64) *DollarClient {
	if url == "" {
		url = DefaultDollarURL
	}
	if board == "" {
		board = BoardOficial
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &DollarClient{
		url:        url,
		board:      board,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// BidPrice returns the board's buy price.
func (c *DollarClient) BidPrice(ctx context.Context, symbol string) (float64, error) {
	bid, _, err := c.fetch(ctx)
	return bid, err
}

// AskPrice returns the board's sell price.
func (c *DollarClient) AskPrice(ctx context.Context, symbol string) (float64, error) {
	_, ask, err := c.fetch(ctx)
	return ask, err
}

// quoteEntry is one board in the API response. Prices arrive as strings
// with a comma decimal separator, e.g. "165,25".
type quoteEntry struct {
	Casa struct {
		Nombre string `json:"nombre"`
		Compra string `json:"compra"`
		Venta  string `json:"venta"`
	} `json:"casa"`
}

func (c *DollarClient) fetch(ctx context.Context) (bid, ask float64, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("dollar quote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("dollar quote request: status %d", resp.StatusCode)
	}

	var entries []quoteEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return 0, 0, fmt.Errorf("dollar quote decode: %w", err)
	}

	for _, e := range entries {
		if e.Casa.Nombre != c.board {
			continue
		}
		bid, err = parseCommaDecimal(e.Casa.Compra)
		if err != nil {
			return 0, 0, models.ErrNoQuote
		}
		ask, err = parseCommaDecimal(e.Casa.Venta)
		if err != nil {
			return 0, 0, models.ErrNoQuote
		}
		return bid, ask, nil
	}
	return 0, 0, models.ErrNoQuote
}

func parseCommaDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}
