// Package byma simulates order entry on the spot exchange. The engine's
// equity and currency legs have no live order route, so submissions are
// logged for manual execution instead of sent anywhere.
package byma

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hgiraudo/rofex/pkg/models"
)

// Simulator accepts spot orders and records them. It satisfies the same
// order-sink capability as the live futures client.
type Simulator struct {
	logger *logrus.Logger

	mu     sync.Mutex
	orders []models.TradeLeg
}

func NewSimulator(logger *logrus.Logger) *Simulator {
	return &Simulator{logger: logger}
}

func (s *Simulator) Buy(ctx context.Context, symbol string, quantity int64, price float64) error {
	return s.record(models.OrderSideBuy, symbol, quantity, price)
}

func (s *Simulator) Sell(ctx context.Context, symbol string, quantity int64, price float64) error {
	return s.record(models.OrderSideSell, symbol, quantity, price)
}

func (s *Simulator) record(side models.OrderSide, symbol string, quantity int64, price float64) error {
	s.mu.Lock()
	s.orders = append(s.orders, models.TradeLeg{
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Price:    price,
	})
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"venue":    "BYMA",
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    price,
	}).Info("Simulated spot order")
	return nil
}

// Orders returns a copy of everything submitted so far, oldest first.
func (s *Simulator) Orders() []models.TradeLeg {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TradeLeg, len(s.orders))
	copy(out, s.orders)
	return out
}
