package rofex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hgiraudo/rofex/pkg/models"
)

// TickHandler receives every decoded market-data tick. Handlers run on the
// stream's read goroutine; the engine processes ticks one at a time.
type TickHandler func(models.MarketTick)

// MarketDataStream is the websocket market-data feed: it subscribes to the
// best bid/offer of the watched futures and dispatches decoded ticks to a
// handler. Disconnects trigger reconnection with the configured delay until
// the attempt limit is reached.
type MarketDataStream struct {
	client  *Client
	handler TickHandler
	logger  *logrus.Logger

	reconnectDelay time.Duration
	maxReconnects  int

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	symbols   []string
}

func NewMarketDataStream(client *Client, handler TickHandler, logger *logrus.Logger) *MarketDataStream {
	return &MarketDataStream{
		client:         client,
		handler:        handler,
		logger:         logger,
		reconnectDelay: 5 * time.Second,
		maxReconnects:  10,
	}
}

// SetReconnectPolicy overrides the reconnect delay and attempt limit.
func (s *MarketDataStream) SetReconnectPolicy(delay time.Duration, maxAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectDelay = delay
	s.maxReconnects = maxAttempts
}

// Connect dials the broker websocket, authenticating with the REST token.
func (s *MarketDataStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	token, err := s.client.auth.Token(ctx)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{"X-Auth-Token": []string{token}}

	conn, _, err := dialer.DialContext(ctx, s.client.wsURL, header)
	if err != nil {
		return fmt.Errorf("market data dial: %w", err)
	}

	s.conn = conn
	s.connected = true

	go s.readLoop(ctx)
	go s.keepAlive(ctx)
	return nil
}

// subscribeMessage asks for level-1 bids and offers of the given products.
type subscribeMessage struct {
	Type     string    `json:"type"`
	Level    int       `json:"level"`
	Entries  []string  `json:"entries"`
	Products []product `json:"products"`
}

type product struct {
	Symbol   string `json:"symbol"`
	MarketID string `json:"marketId"`
}

// Subscribe requests bid/offer updates for the watch symbols. The list is
// remembered so a reconnect can resubscribe.
func (s *MarketDataStream) Subscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return fmt.Errorf("market data stream not connected")
	}
	s.symbols = symbols

	msg := subscribeMessage{
		Type:    "smd",
		Level:   1,
		Entries: []string{"BI", "OF"},
	}
	for _, symbol := range symbols {
		msg.Products = append(msg.Products, product{Symbol: symbol, MarketID: marketID})
	}
	return s.conn.WriteJSON(msg)
}

// mdMessage is the broker's market-data push. BI/OF carry at most one level
// at the subscription depth used here.
type mdMessage struct {
	Type         string `json:"type"`
	InstrumentID struct {
		Symbol string `json:"symbol"`
	} `json:"instrumentId"`
	MarketData struct {
		Bids   []bookLevel `json:"BI"`
		Offers []bookLevel `json:"OF"`
	} `json:"marketData"`
}

func (s *MarketDataStream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, raw, err := s.conn.ReadMessage()
			if err != nil {
				s.logger.WithError(err).Error("Market data read failed")
				s.handleDisconnect(ctx)
				return
			}
			s.dispatch(raw)
		}
	}
}

func (s *MarketDataStream) dispatch(raw []byte) {
	var msg mdMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.WithError(err).Debug("Undecodable market data message")
		return
	}

	switch msg.Type {
	case "Md":
		tick := decodeTick(msg)
		if s.handler != nil {
			s.handler(tick)
		}
	case "or":
		// Order reports are logged only; the engine does not track fills.
		s.logger.WithField("raw", string(raw)).Debug("Order report")
	case "error":
		s.logger.WithField("raw", string(raw)).Error("Market data error message")
	}
}

func decodeTick(msg mdMessage) models.MarketTick {
	tick := models.MarketTick{
		Symbol:    msg.InstrumentID.Symbol,
		Timestamp: time.Now(),
	}
	if len(msg.MarketData.Bids) > 0 {
		tick.Bid = &models.PriceLevel{
			Price: msg.MarketData.Bids[0].Price,
			Size:  msg.MarketData.Bids[0].Size,
		}
	}
	if len(msg.MarketData.Offers) > 0 {
		tick.Ask = &models.PriceLevel{
			Price: msg.MarketData.Offers[0].Price,
			Size:  msg.MarketData.Offers[0].Size,
		}
	}
	return tick
}

func (s *MarketDataStream) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.connected {
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.logger.WithError(err).Error("Failed to send ping")
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MarketDataStream) handleDisconnect(ctx context.Context) {
	s.mu.Lock()
	s.connected = false
	if s.conn != nil {
		s.conn.Close()
	}
	symbols := s.symbols
	s.mu.Unlock()

	for attempt := 1; attempt <= s.maxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}

		s.logger.WithField("attempt", attempt).Info("Reconnecting market data stream")
		if err := s.Connect(ctx); err != nil {
			s.logger.WithError(err).Warn("Reconnect failed")
			continue
		}
		if len(symbols) > 0 {
			if err := s.Subscribe(symbols); err != nil {
				s.logger.WithError(err).Warn("Resubscribe failed")
				s.handleDisconnect(ctx)
			}
		}
		return
	}
	s.logger.Error("Market data stream gave up reconnecting")
}

// Close shuts the stream down.
func (s *MarketDataStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
