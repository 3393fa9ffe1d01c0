package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantforge/hft/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"
)

// streamClient is a small reconnecting websocket client used by
// BinanceAdapter's subscriptions. go-binance ships its own stream helpers
// over gorilla/websocket, but they hide the raw combined-stream payload;
// dialing directly with nhooyr.io/websocket keeps the reconnect/backoff
// policy identical across the orderbook and user-data streams. This is a
// second websocket dependency next to gorilla/websocket, which serves the
// realtime fan-out.
type streamClient struct {
	streamName string
	onMessage  func(payload []byte)

	baseDelay time.Duration
	maxDelay  time.Duration
}

func newStreamClient(streamName string, onMessage func(payload []byte)) *streamClient {
	return &streamClient{
		streamName: streamName,
		onMessage:  onMessage,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
}

// run dials and redials the stream until ctx is cancelled, applying
// exponential backoff between attempts.
func (s *streamClient) run(ctx context.Context) error {
	delay := s.baseDelay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Warn().Err(err).Str("stream", s.streamName).Dur("retry_in", delay).
				Msg("exchange: stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
}

func (s *streamClient) connectOnce(ctx context.Context) error {
	url := fmt.Sprintf("wss://stream.binance.com:9443/ws/%s", s.streamName)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("stream dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Sets baseDelay back to one second. run keeps its own delay variable,
	// so this does not reset the backoff already in progress: it keeps
	// doubling up to maxDelay across reconnects.
	s.baseDelay = time.Second

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		s.onMessage(payload)
	}
}

func (s *streamClient) close() {
	// Closing is driven entirely by context cancellation in run/connectOnce;
	// this hook exists so Adapter.Disconnect has something to call even
	// when no connection is currently open.
}

type depthPayload struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
	// lastUpdateId varies by stream variant; ignored here since partial
	// depth streams are resnapshotted, not diffed, by the caller.
}

func parseDepthPayload(symbol string, raw []byte) (models.Orderbook, error) {
	var p depthPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.Orderbook{}, fmt.Errorf("parse depth payload: %w", err)
	}

	book := models.Orderbook{Symbol: symbol}
	for _, lvl := range p.Bids {
		book.Bids = append(book.Bids, levelFromStrings(lvl[0], lvl[1]))
	}
	for _, lvl := range p.Asks {
		book.Asks = append(book.Asks, levelFromStrings(lvl[0], lvl[1]))
	}
	return book, nil
}

type userDataPayload struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	OrderID   int64  `json:"i"`
	Side      string `json:"S"`
	OrderType string `json:"o"`
	Status    string `json:"X"`
	Quantity  string `json:"q"`
	Price     string `json:"p"`
	LastQty   string `json:"l"`
	LastPrice string `json:"L"`
	TradeID   int64  `json:"t"`
	EventTime int64  `json:"E"`
}

func parseUserDataPayload(raw []byte) (*models.Order, *models.Trade, error) {
	var p userDataPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, fmt.Errorf("parse user data payload: %w", err)
	}
	if p.EventType != "executionReport" {
		return nil, nil, nil
	}

	qty, _ := decimal.NewFromString(p.Quantity)
	price, _ := decimal.NewFromString(p.Price)
	order := &models.Order{
		ID:        fmt.Sprintf("%d", p.OrderID),
		Symbol:    p.Symbol,
		Side:      models.OrderSide(p.Side),
		Type:      models.OrderType(p.OrderType),
		Quantity:  qty,
		Price:     price,
		Status:    mapBinanceStatus(p.Status),
		UpdatedAt: time.UnixMilli(p.EventTime),
	}

	var trade *models.Trade
	if p.Status == "FILLED" || p.Status == "PARTIALLY_FILLED" {
		lastQty, _ := decimal.NewFromString(p.LastQty)
		lastPrice, _ := decimal.NewFromString(p.LastPrice)
		if !lastQty.IsZero() {
			trade = &models.Trade{
				ID:         fmt.Sprintf("%d", p.TradeID),
				OrderID:    order.ID,
				Symbol:     p.Symbol,
				Side:       order.Side,
				Quantity:   lastQty,
				Price:      lastPrice,
				ExecutedAt: time.UnixMilli(p.EventTime),
			}
		}
	}

	return order, trade, nil
}
