package rofex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/hgiraudo/rofex/pkg/models"
)

type orderResponse struct {
	Status string `json:"status"`
	Order  struct {
		ClientID string `json:"clientId"`
	} `json:"order"`
}

// Buy submits a day-limit buy order for a future. Fire-and-forget: the
// engine does not track the resulting order state.
func (c *Client) Buy(ctx context.Context, symbol string, quantity int64, price float64) error {
	return c.submitOrder(ctx, models.OrderSideBuy, symbol, quantity, price)
}

// Sell submits a day-limit sell order for a future.
func (c *Client) Sell(ctx context.Context, symbol string, quantity int64, price float64) error {
	return c.submitOrder(ctx, models.OrderSideSell, symbol, quantity, price)
}

func (c *Client) submitOrder(ctx context.Context, side models.OrderSide, symbol string, quantity int64, price float64) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := c.auth.Token(ctx)
	if err != nil {
		return err
	}

	// the order endpoint wants capitalized sides
	apiSide := "Buy"
	if side == models.OrderSideSell {
		apiSide = "Sell"
	}

	params := url.Values{}
	params.Set("marketId", marketID)
	params.Set("symbol", symbol)
	params.Set("side", apiSide)
	params.Set("orderQty", fmt.Sprintf("%d", quantity))
	params.Set("price", fmt.Sprintf("%g", price))
	params.Set("ordType", "limit")
	params.Set("timeInForce", "Day")
	params.Set("account", c.account)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/rest/order/newSingleOrder?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("order %s %s: %w", side, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("order %s %s: status %d", side, symbol, resp.StatusCode)
	}

	var decoded orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("order %s %s: decode: %w", side, symbol, err)
	}
	if decoded.Status != "OK" {
		return fmt.Errorf("order %s %s: status %s", side, symbol, decoded.Status)
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":    symbol,
		"side":      side,
		"quantity":  quantity,
		"price":     price,
		"client_id": decoded.Order.ClientID,
	}).Info("Order submitted")
	return nil
}
